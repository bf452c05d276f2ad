package common

import (
	"errors"
	"fmt"

	"github.com/fatih/structs"
	"github.com/rs/zerolog"
)

// Option sets a named field of the options struct it is applied to.
type Option func(options interface{}) error

var ErrBadOption = errors.New("bad option")

// Apply applies options in order to the options struct pointed to by opts.
func Apply(opts interface{}, options ...Option) error {
	for _, o := range options {
		if err := o(opts); err != nil {
			return err
		}
	}
	return nil
}

// SetField sets field name of the struct pointed to by options to value.
func SetField(options interface{}, name string, value interface{}) error {
	if !structs.IsStruct(options) {
		return ErrBadOption
	}
	field, ok := structs.New(options).FieldOk(name)
	if !ok {
		return fmt.Errorf("%w: no field %s", ErrBadOption, name)
	}
	if err := field.Set(value); err != nil {
		return fmt.Errorf("%w: %s", ErrBadOption, err)
	}
	return nil
}

func OptionLogger(logger zerolog.Logger) Option {
	return func(options interface{}) error {
		return SetField(options, "Logger", logger)
	}
}
