package config

import (
	"reflect"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

// Validator is implemented by configuration structs that need checks
// beyond `required:"true"`. Validate is called on the root struct and on
// every nested struct that implements it, children first. Errors that are
// already *sserr.Error are returned unchanged; others are wrapped with
// [sserr.CodeValidation].
//
//	func (c *Config) Validate() error {
//	    if c.Port < 1 || c.Port > 65535 {
//	        return sserr.Newf(sserr.CodeValidation,
//	            "config: port %d is out of range [1, 65535]", c.Port)
//	    }
//	    return nil
//	}
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	err := walk(rv, "", func(f fieldRef) error {
		if f.sf.Tag.Get("required") == "true" && f.v.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is missing", f.path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := validateNested(rv); err != nil {
		return err
	}
	return runValidator(cfg)
}

// validateNested calls Validate on nested structs, deepest first.
func validateNested(rv reflect.Value) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rv.Field(i)
		if !field.CanSet() || field.Kind() != reflect.Struct || isLeaf(field.Type()) {
			continue
		}
		if err := validateNested(field); err != nil {
			return err
		}
		if err := runValidator(field.Addr().Interface()); err != nil {
			return err
		}
	}
	return nil
}

func runValidator(v any) error {
	val, ok := v.(Validator)
	if !ok {
		return nil
	}
	if err := val.Validate(); err != nil {
		if _, isTyped := sserr.AsError(err); isTyped {
			return err
		}
		return sserr.Wrap(err, sserr.CodeValidation, "config: custom validation failed")
	}
	return nil
}
