// BlendFarm - Distributed Blender Render Farm Client
// Copyright 2026 Ludrietz
// SPDX-License-Identifier: GPL-3.0-or-later
// https://github.com/Ludrietz/blendfarm

// Package validation provides struct validation using
// go-playground/validator v10, with custom validators for the shapes
// this client cares about: node endpoints and hardware addresses.
//
//	type Config struct {
//	    Address string `validate:"required,hostport"`
//	    MAC     string `validate:"omitempty,mac48"`
//	}
//
//	if err := validation.ValidateStruct(&cfg); err != nil { ... }
package validation

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/Ludrietz/blendfarm/internal/wol"
)

// singleton validator instance
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single field validation failure.
type FieldError struct {
	field   string
	tag     string
	param   string
	message string
}

// Field returns the struct field name that failed validation.
func (e *FieldError) Field() string { return e.field }

// Tag returns the validation tag that failed.
func (e *FieldError) Tag() string { return e.tag }

// Error returns a human-readable message.
func (e *FieldError) Error() string { return e.message }

// StructError collects every field failure from one ValidateStruct
// call.
type StructError struct {
	fields []FieldError
}

// Fields returns the individual field failures.
func (e *StructError) Fields() []FieldError { return e.fields }

// Error implements the error interface.
func (e *StructError) Error() string {
	if len(e.fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(e.fields))
	for i, fe := range e.fields {
		messages[i] = fe.message
	}
	return strings.Join(messages, "; ")
}

// GetValidator returns the singleton validator, initialized once with
// the custom validators registered.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// hostport: a dialable TCP endpoint in host:port form.
		_ = validate.RegisterValidation("hostport", func(fl validator.FieldLevel) bool {
			host, port, err := net.SplitHostPort(fl.Field().String())
			return err == nil && host != "" && port != ""
		})

		// mac48: a 48-bit hardware address in any of the accepted
		// wake-on-LAN forms.
		_ = validate.RegisterValidation("mac48", func(fl validator.FieldLevel) bool {
			_, err := wol.ParseMAC(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// ValidateStruct validates s, returning nil on success or a
// *StructError listing every failed field.
func ValidateStruct(s any) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &StructError{fields: []FieldError{{
			field:   "unknown",
			tag:     "unknown",
			message: err.Error(),
		}}}
	}

	fields := make([]FieldError, len(validationErrs))
	for i, fe := range validationErrs {
		fields[i] = FieldError{
			field:   fe.Field(),
			tag:     fe.Tag(),
			param:   fe.Param(),
			message: translateError(fe),
		}
	}
	return &StructError{fields: fields}
}

// translateError converts a validator.FieldError to a human-readable
// message.
func translateError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "hostport":
		return fmt.Sprintf("%s must be a host:port endpoint", field)
	case "mac48":
		return fmt.Sprintf("%s must be a 12-hex-digit MAC address", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
