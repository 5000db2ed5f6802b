package dynamic

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/yanizio/participants/internal/calc"
	"github.com/yanizio/participants/internal/field"
	"github.com/yanizio/participants/internal/logger"
	"github.com/yanizio/participants/internal/queue"
	"github.com/yanizio/participants/internal/record"
	"github.com/yanizio/participants/internal/tags"
)

// RecomputeAll queues one packet per record for f and dispatches the
// batch.  A nil ids slice targets every record.
func (r *Resolver) RecomputeAll(ctx context.Context, f *field.Field, ids []int64) (string, error) {
	if !f.IsDynamic() {
		return "", fmt.Errorf("%w: %s", ErrNotDynamic, f.Name)
	}
	if r.dispatch == nil {
		return "", errors.New("dynamic: no dispatcher configured")
	}
	if ids == nil {
		var err error
		if ids, err = r.records.IDs(ctx); err != nil {
			return "", err
		}
	}
	r.InvalidateField(f.Name)
	if len(ids) == 0 {
		return "", nil
	}

	ps := make([]queue.Packet, len(ids))
	for i, id := range ids {
		ps[i] = queue.Packet{RecordID: id, Field: f.Name, Default: f.Default}
	}
	log := logger.FromContext(ctx)
	batch, err := r.dispatch.Dispatch(ctx, ps)
	if err != nil {
		log.Warnw("recompute dispatch incomplete", "field", f.Name, "batch", batch, "held", r.dispatch.Buffered())
		return batch, err
	}
	log.Infow("recompute queued", "field", f.Name, "records", len(ids), "batch", batch)
	return batch, nil
}

// Process applies one recompute packet.  The value is computed from the
// current definition, so a packet dispatched before a later edit still
// converges on the latest template.  Writing an unchanged value reports
// Skipped, which makes duplicate delivery harmless.
func (r *Resolver) Process(ctx context.Context, p queue.Packet) (queue.Outcome, error) {
	snap, err := r.fields.Snapshot(ctx)
	if err != nil {
		return queue.Failed, err
	}
	f, ok := snap.Field(p.Field)
	if !ok || !f.IsDynamic() {
		return queue.Failed, fmt.Errorf("%w: %s", field.ErrUnknownField, p.Field)
	}
	log := logger.FromContext(ctx)
	if p.Default != f.Default {
		log.Debugw("template changed since dispatch; using current definition", "field", f.Name)
	}

	data, err := r.records.Values(ctx, p.RecordID, storedColumns(snap, Dependencies(f)))
	if errors.Is(err, record.ErrNotFound) {
		return queue.Skipped, nil
	}
	if err != nil {
		return queue.Failed, err
	}

	v := r.compute(ctx, snap, f, data)
	changed, err := r.records.UpdateColumn(ctx, p.RecordID, f.Name, v.Column(f))
	if err != nil {
		return queue.Failed, err
	}
	r.InvalidateRecord(p.RecordID)
	if !changed {
		return queue.Skipped, nil
	}
	return queue.Updated, nil
}

// Edit reports the effect of UpdateField.
type Edit struct {
	Changed bool   // template, element, or attributes differ
	Batch   string // recompute batch id, when one was queued
}

// UpdateField saves an edited definition.  A calculation template that
// does not parse is rejected and the stored definition is kept.  When a
// dynamic field's template or attributes change, every record is queued
// for recompute.
func (r *Resolver) UpdateField(ctx context.Context, edited *field.Field) (Edit, error) {
	if err := field.Validate(edited); err != nil {
		return Edit{}, err
	}
	snap, err := r.fields.Snapshot(ctx)
	if err != nil {
		return Edit{}, err
	}
	cur, ok := snap.Field(edited.Name)
	if !ok || cur.Internal {
		return Edit{}, fmt.Errorf("%w: %s", field.ErrUnknownField, edited.Name)
	}

	log := logger.FromContext(ctx)
	if edited.IsDynamic() && edited.IsNumeric() {
		if err := calc.Validate(edited.Default); err != nil {
			log.Warnw("field edit rejected", "field", edited.Name, "err", err)
			return Edit{}, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
		}
	} else if edited.IsDynamic() && !tags.HasTags(edited.Default) {
		log.Warnw("string-combine template has no tags", "field", edited.Name)
	}
	if r.saver == nil {
		return Edit{}, errors.New("dynamic: no field store configured")
	}

	ed := Edit{Changed: definitionChanged(cur, edited)}
	if err := r.fields.Mutate(ctx, func(ctx context.Context) error {
		return r.saver.SaveField(ctx, edited)
	}); err != nil {
		return Edit{}, err
	}
	log.Infow("field saved", "field", edited.Name, "changed", ed.Changed)

	if ed.Changed && edited.IsDynamic() {
		ed.Batch, err = r.RecomputeAll(ctx, edited, nil)
		if err != nil {
			return ed, err
		}
	}
	return ed, nil
}

func definitionChanged(a, b *field.Field) bool {
	return a.Default != b.Default ||
		a.FormElement != b.FormElement ||
		!maps.Equal(a.Attributes, b.Attributes)
}

// ComputeRow resolves every dynamic field against one row, in definition
// order, so a computed field may depend on an earlier one.  The import
// path writes the results with the row itself.
func (r *Resolver) ComputeRow(ctx context.Context, snap *field.Snapshot, row map[string]string) map[string]Value {
	data := maps.Clone(row)
	if data == nil {
		data = map[string]string{}
	}
	out := map[string]Value{}
	for _, f := range snap.Dynamic() {
		v := r.compute(ctx, snap, f, data)
		out[f.Name] = v
		data[f.Name] = v.Stored
	}
	return out
}
