// Copyright (c) Fieldward, Inc.
// SPDX-License-Identifier: BUSL-1.1

package agent

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fieldward/fieldward/structs"
)

// bodyValidator checks request DTOs against their struct tags. Field names
// in failure details follow the json tag so clients can map them back onto
// the payload they sent.
var bodyValidator = newBodyValidator()

func newBodyValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateBody folds struct-tag failures into one field-keyed validation
// error.
func validateBody(obj interface{}) error {
	err := bodyValidator.Struct(obj)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return structs.NewValidationError(err.Error())
	}
	verr := structs.NewValidationError("request validation failed")
	for _, fe := range fieldErrs {
		verr = verr.WithDetail(fe.Field(), failureMessage(fe))
	}
	return verr
}

func failureMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "latitude":
		return "must be a valid latitude"
	case "longitude":
		return "must be a valid longitude"
	default:
		return "invalid value"
	}
}
