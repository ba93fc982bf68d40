package services

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// validateStruct runs the struct's validate tags and reports the first
// failing field.
func validateStruct(v interface{}) *ServiceError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := strings.TrimPrefix(fe.Namespace(), strings.Split(fe.Namespace(), ".")[0]+".")
		if fe.Param() != "" {
			return validationError("%s failed on %s=%s", field, fe.Tag(), fe.Param())
		}
		return validationError("%s failed on %s", field, fe.Tag())
	}
	return validationError("invalid request: %v", err)
}

func parseID(raw, what string) (uuid.UUID, *ServiceError) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, validationError("invalid %s id", what)
	}
	return id, nil
}
