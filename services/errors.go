package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tunguyen02/mobile-backend/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindAuthorization ErrorKind = "authorization"
	KindNotFound      ErrorKind = "not_found"
	KindInvalidState  ErrorKind = "invalid_state"
	KindGateway       ErrorKind = "gateway"
	KindInternal      ErrorKind = "internal"
)

// ServiceError represents a typed error with an HTTP status code.
type ServiceError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func validationError(format string, args ...interface{}) *ServiceError {
	return &ServiceError{Kind: KindValidation, StatusCode: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func unauthenticatedError(msg string) *ServiceError {
	return &ServiceError{Kind: KindAuthorization, StatusCode: http.StatusUnauthorized, Message: msg}
}

func forbiddenError(msg string) *ServiceError {
	return &ServiceError{Kind: KindAuthorization, StatusCode: http.StatusForbidden, Message: msg}
}

func notFoundError(msg string) *ServiceError {
	return &ServiceError{Kind: KindNotFound, StatusCode: http.StatusNotFound, Message: msg}
}

func invalidStateError(format string, args ...interface{}) *ServiceError {
	return &ServiceError{Kind: KindInvalidState, StatusCode: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func gatewayError(msg string) *ServiceError {
	return &ServiceError{Kind: KindGateway, StatusCode: http.StatusBadGateway, Message: msg}
}

func internalError(msg string) *ServiceError {
	return &ServiceError{Kind: KindInternal, StatusCode: http.StatusInternalServerError, Message: msg}
}

// asServiceError maps an error returned from a transaction closure back to
// a *ServiceError. Unknown errors are logged and reported as internal.
func asServiceError(err error, logger *zap.Logger, msg string, fields ...zap.Field) *ServiceError {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	var te *models.TransitionError
	if errors.As(err, &te) {
		return invalidStateError("%s", te.Error())
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundError("Resource not found")
	}
	logger.Error(msg, append(fields, zap.Error(err))...)
	return internalError(msg)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
