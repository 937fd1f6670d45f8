package common

import (
	"fmt"

	"github.com/go-playground/validator"
)

type GenericEchoValidator struct {
	Validator *validator.Validate
}

// Validate checks the struct tags of a bound request body. Failures wrap ErrValidation
// so handlers can answer with the usual JSON error payload.
func (gv *GenericEchoValidator) Validate(i interface{}) error {
	if gv.Validator == nil {
		gv.Validator = validator.New()
	}
	if err := gv.Validator.Struct(i); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
