package field

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// columnNameRe matches names that are safe as unquoted MySQL columns.
var columnNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

var validate = func() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("column_name", func(fl validator.FieldLevel) bool {
		return columnNameRe.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("element", func(fl validator.FieldLevel) bool {
		_, ok := LookupElement(Element(fl.Field().String()))
		return ok
	})
	return v
}()

// Validate checks the structural rules of a field definition.  Template
// grammar for dynamic elements is checked by the dynamic package.
func Validate(f *Field) error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("field %q: %w", f.Name, err)
	}
	switch f.Name {
	case ColID, ColPrivateID, ColDateRecorded, ColDateUpdated, ColLastAccessed:
		return fmt.Errorf("field %q: %w", f.Name, ErrDuplicateField)
	}
	return nil
}

// IsColumnName reports whether name is a legal field name.
func IsColumnName(name string) bool { return columnNameRe.MatchString(name) }
