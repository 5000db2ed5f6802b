// internal/dynamic/resolver.go
//
// Dynamic field value resolver.
//
// Context
// -------
// numeric-calc, date-calc, and string-combine fields hold a template in
// their default instead of user input.  The resolver reads the fields a
// template depends on, runs the calculation engine (numeric types) or tag
// substitution (string types), and returns the stored and display forms
// of the result.
//
// Workflow
// --------
//   1.  Dependencies come from the template's field tags.
//   2.  Values are read from the record row, then overridden by any
//       overlay (an in-flight submission or a live preview).
//   3.  Results are cached per field and record under a fingerprint of
//       the template, the input values, and the clock anchor, so a changed
//       template or dependency can never hit a stale entry.
//
// Notes
// -----
// • An incomplete calculation resolves to empty strings; zero is a real
//   value.
// • Oxford commas, two spaces after periods.

package dynamic

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/participants/internal/cache"
	"github.com/yanizio/participants/internal/calc"
	"github.com/yanizio/participants/internal/field"
	"github.com/yanizio/participants/internal/locale"
	"github.com/yanizio/participants/internal/logger"
	"github.com/yanizio/participants/internal/metrics"
	"github.com/yanizio/participants/internal/queue"
	"github.com/yanizio/participants/internal/record"
	"github.com/yanizio/participants/internal/tags"
)

var (
	// ErrInvalidTemplate rejects a field edit; the stored template stays.
	ErrInvalidTemplate = errors.New("dynamic: invalid template")
	// ErrNotDynamic is returned for fields without a template.
	ErrNotDynamic = errors.New("dynamic: field is not computed")
)

// Records is the row access the resolver needs.  *record.Store satisfies
// it.
type Records interface {
	Values(ctx context.Context, id int64, cols []string) (map[string]string, error)
	IDs(ctx context.Context) ([]int64, error)
	UpdateColumn(ctx context.Context, id int64, col string, value *string) (bool, error)
}

// FieldSaver persists an edited definition.  *field.SQLStore satisfies
// it.
type FieldSaver interface {
	SaveField(ctx context.Context, f *field.Field) error
}

// Value is a resolved dynamic field.
type Value struct {
	Stored   string `json:"stored"`
	Display  string `json:"display"`
	Complete bool   `json:"complete"`
}

// Column is the value to bind for f: nil (SQL NULL) when a numeric field
// resolved empty.
func (v Value) Column(f *field.Field) *string {
	if v.Stored == "" && f.IsNumeric() {
		return nil
	}
	s := v.Stored
	return &s
}

type cacheKey struct {
	field  string
	record int64
	sum    uint64
}

// Options wires a Resolver.
type Options struct {
	Fields     *field.Registry
	Records    Records
	Dispatcher *queue.Dispatcher
	Saver      FieldSaver
	Clock      *calc.Clock
	Locale     *locale.Formatter
	CacheSize  int
	CacheTTL   time.Duration
	Logger     *zap.SugaredLogger
}

// Resolver computes dynamic field values.  Safe for concurrent use.
type Resolver struct {
	fields   *field.Registry
	records  Records
	dispatch *queue.Dispatcher
	saver    FieldSaver
	clock    *calc.Clock
	locale   *locale.Formatter
	cache    *cache.LRU[cacheKey, Value]
	log      *zap.SugaredLogger
}

// New builds a Resolver.  Fields is required; the rest have defaults or
// are needed only by the operations that use them.
func New(o Options) *Resolver {
	if o.Locale == nil {
		o.Locale = locale.Default()
	}
	if o.Clock == nil {
		o.Clock = calc.NewClock(o.Locale.Location(), time.Hour)
	}
	if o.CacheSize <= 0 {
		o.CacheSize = 5000
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = time.Hour
	}
	if o.Logger == nil {
		o.Logger = zap.S()
	}
	return &Resolver{
		fields:   o.Fields,
		records:  o.Records,
		dispatch: o.Dispatcher,
		saver:    o.Saver,
		clock:    o.Clock,
		locale:   o.Locale,
		cache:    cache.New[cacheKey, Value](o.CacheSize, o.CacheTTL),
		log:      o.Logger,
	}
}

// Dependencies lists the fields f's template reads.
func Dependencies(f *field.Field) []string { return tags.Dependencies(f.Default) }

// Resolve computes f for record id.  Overlay values win over stored ones.
// An id of 0 resolves against the overlay alone.
func (r *Resolver) Resolve(ctx context.Context, f *field.Field, id int64, overlay map[string]string) (Value, error) {
	if !f.IsDynamic() {
		return Value{}, fmt.Errorf("%w: %s", ErrNotDynamic, f.Name)
	}
	snap, err := r.fields.Snapshot(ctx)
	if err != nil {
		return Value{}, err
	}

	deps := Dependencies(f)
	data := make(map[string]string, len(deps))
	if id > 0 && r.records != nil {
		vals, err := r.records.Values(ctx, id, storedColumns(snap, deps))
		if err != nil && !errors.Is(err, record.ErrNotFound) {
			return Value{}, err
		}
		for k, v := range vals {
			data[k] = v
		}
	}
	for _, d := range deps {
		if v, ok := overlay[d]; ok {
			data[d] = v
		}
	}

	key := cacheKey{field: f.Name, record: id, sum: r.fingerprint(f, deps, data)}
	if v, ok := r.cache.Get(key); ok {
		metrics.ResolverCacheTotal.WithLabelValues("hit").Inc()
		return v, nil
	}
	metrics.ResolverCacheTotal.WithLabelValues("miss").Inc()

	v := r.compute(ctx, snap, f, data)
	r.cache.Add(key, v)
	return v, nil
}

// Preview resolves f against overlay data only.
func (r *Resolver) Preview(ctx context.Context, f *field.Field, overlay map[string]string) (Value, error) {
	return r.Resolve(ctx, f, 0, overlay)
}

// InvalidateField drops every cached value of the named field.
func (r *Resolver) InvalidateField(name string) int {
	return r.cache.RemoveFunc(func(k cacheKey) bool { return k.field == name })
}

// InvalidateRecord drops every cached value of one record.
func (r *Resolver) InvalidateRecord(id int64) int {
	return r.cache.RemoveFunc(func(k cacheKey) bool { return k.record == id })
}

func (r *Resolver) fingerprint(f *field.Field, deps []string, data map[string]string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(f.FormElement))
	h.Write([]byte{0})
	h.Write([]byte(f.Default))
	h.Write([]byte{0})
	if f.HasAttr("complete_only") {
		h.Write([]byte{1})
	}
	sorted := append([]string(nil), deps...)
	sort.Strings(sorted)
	for _, d := range sorted {
		v, ok := data[d]
		h.Write([]byte(d))
		if ok {
			h.Write([]byte{'='})
			h.Write([]byte(v))
		}
		h.Write([]byte{0})
	}
	fmt.Fprintf(h, "@%d", r.clock.Anchor())
	return h.Sum64()
}

// storedColumns keeps the dependency names that are real columns.
func storedColumns(snap *field.Snapshot, deps []string) []string {
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		if snap.IsColumn(d) {
			out = append(out, d)
		}
	}
	return out
}

// compute dispatches on the element: numeric types run the calculation
// engine, everything else is string substitution.
func (r *Resolver) compute(ctx context.Context, snap *field.Snapshot, f *field.Field, data map[string]string) Value {
	if f.IsNumeric() {
		return r.calculate(ctx, snap, f, data)
	}
	return r.combine(snap, f, data)
}

func (r *Resolver) env(f *field.Field) calc.Env {
	return calc.Env{Clock: r.clock, Locale: r.locale, NumericField: f.IsNumeric()}
}

func (r *Resolver) calculate(ctx context.Context, snap *field.Snapshot, f *field.Field, data map[string]string) Value {
	log := logger.FromContext(ctx)

	t, err := calc.Parse(f.Default)
	if err != nil {
		metrics.CalcIncompleteTotal.Inc()
		log.Debugw("calculation template invalid", "field", f.Name, "err", err)
		return Value{}
	}

	in := make(map[string]string, len(data))
	for _, d := range t.Dependencies() {
		raw, ok := data[d]
		if !ok {
			continue
		}
		if df, ok := snap.Field(d); ok && (df.Kind() == field.KindDate || df.Kind() == field.KindTimestamp) {
			raw = r.dateOperand(df, raw)
		}
		in[d] = raw
	}

	res := t.Evaluate(in, r.env(f))
	if !res.Complete {
		metrics.CalcIncompleteTotal.Inc()
		log.Debugw("calculation incomplete", "field", f.Name, "missing", res.Missing)
		return Value{}
	}

	shown := res.Display
	if f.Kind() == field.KindDate && (t.Format.Name == calc.FmtUnformatted || t.Format.Name == calc.FmtAutoNumeric) {
		shown = r.locale.Date(int64(res.Value))
	}
	dm := r.displayMap(snap, Dependencies(f), data)
	display := tags.Clean(tags.Replace(t.Front, dm) + shown + tags.Replace(t.Back, dm))
	return Value{Stored: res.Stored, Display: display, Complete: true}
}

// dateOperand turns a date dependency into unix seconds.  Stored rows
// already hold an integer (date) or a DATETIME string (timestamp).  Overlay
// values are typed dates and go through the locale parser.
func (r *Resolver) dateOperand(df *field.Field, raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return raw
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return s
	}
	if df.Kind() == field.KindTimestamp {
		if ts, err := time.ParseInLocation(time.DateTime, s, time.UTC); err == nil {
			return strconv.FormatInt(ts.Unix(), 10)
		}
	}
	if t, err := r.locale.ParseDate(s, false); err == nil {
		return strconv.FormatInt(t.Unix(), 10)
	}
	return raw
}

func (r *Resolver) combine(snap *field.Snapshot, f *field.Field, data map[string]string) Value {
	deps := Dependencies(f)
	complete := true
	for _, d := range deps {
		if strings.TrimSpace(data[d]) == "" {
			complete = false
		}
	}

	m := r.displayMap(snap, deps, data)
	for _, tg := range tags.Scan(f.Default) {
		if tg.Kind != tags.KindKeyword {
			continue
		}
		if s, ok := r.clock.KeywordText(tg.Name); ok {
			m[tg.Body] = s
		}
	}

	out := tags.Clean(tags.Replace(f.Default, m))
	if !complete && f.HasAttr("complete_only") {
		out = ""
	}
	return Value{Stored: out, Display: out, Complete: complete}
}

// displayMap builds {name: display, "value:"+name: raw} for every
// non-empty dependency.
func (r *Resolver) displayMap(snap *field.Snapshot, deps []string, data map[string]string) map[string]string {
	m := make(map[string]string, 2*len(deps))
	for _, d := range deps {
		raw := strings.TrimSpace(data[d])
		if raw == "" {
			continue
		}
		disp := raw
		if df, ok := snap.Field(d); ok {
			disp = r.DisplayValue(df, raw)
		}
		m[d] = disp
		m[tags.ValuePrefix+d] = raw
	}
	return m
}
