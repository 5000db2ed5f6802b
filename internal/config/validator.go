// internal/config/validator.go
//
// Rule checks for the loaded configuration.
//
// Context
// -------
// `LoadFrom` calls `validateStruct` once the merged Koanf tree is
// unmarshalled.  Field rules live in the `validate:` tags of model.go
// (listen address, DSN, locale codes and timezone, list paging, queue
// driver).  Rules that span two fields are registered here:
//
//   • database.max_idle may not exceed database.max_open when a pool cap
//     is set.
//
// Failures name the YAML key (`queue.redis_addr`), not the Go field, so
// the message points straight at the line in global.yaml or the PDB_
// variable to fix.
//
// Notes
// -----
//   • Oxford commas, two spaces after periods.

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	val.RegisterStructValidation(func(sl validator.StructLevel) {
		d := sl.Current().Interface().(Database)
		if d.MaxOpen > 0 && d.MaxIdle > d.MaxOpen {
			sl.ReportError(d.MaxIdle, "max_idle", "MaxIdle", "ltefield", "max_open")
		}
	}, Database{})
	return val
}

// validateStruct returns every failed rule as one error, or nil.
func validateStruct(c *Config) error {
	err := v.Struct(c)
	var fails validator.ValidationErrors
	if !errors.As(err, &fails) {
		return err
	}
	msgs := make([]string, 0, len(fails))
	for _, fe := range fails {
		key := fe.Namespace()
		if _, rest, ok := strings.Cut(key, "."); ok {
			key = rest
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, key+" "+rule)
	}
	return fmt.Errorf("config invalid: %s", strings.Join(msgs, "; "))
}
