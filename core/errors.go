package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	RelayErrorBadInput             = "RELAY_BAD_INPUT"
	RelayErrorEventNotFound        = "RELAY_EVENT_NOT_FOUND"
	RelayErrorSubscriptionNotFound = "RELAY_SUBSCRIPTION_NOT_FOUND"
	RelayErrorAttemptNotFound      = "RELAY_DELIVERY_NOT_FOUND"
	RelayErrorStoreFailure         = "RELAY_STORE_FAILURE"
	RelayErrorInternal             = "RELAY_INTERNAL_ERROR"
)

func relayErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureRelayErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrEventNotFound):
		return newRelayError(err.Error(), goerrors.CategoryNotFound, RelayErrorEventNotFound)
	case errors.Is(err, ErrSubscriptionNotFound):
		return newRelayError(err.Error(), goerrors.CategoryNotFound, RelayErrorSubscriptionNotFound)
	case errors.Is(err, ErrAttemptNotFound):
		return newRelayError(err.Error(), goerrors.CategoryNotFound, RelayErrorAttemptNotFound)
	case errors.Is(err, ErrUnknownEventType), errors.Is(err, ErrInvalidMode):
		return newRelayError(err.Error(), goerrors.CategoryBadInput, RelayErrorBadInput)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.HasPrefix(msg, "sqlstore:"):
		return newRelayError(err.Error(), goerrors.CategoryInternal, RelayErrorStoreFailure)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "must"):
		return newRelayError(err.Error(), goerrors.CategoryBadInput, RelayErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureRelayErrorEnvelope(mapped)
}

func newRelayError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureRelayErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

// storeFailure wraps a persistence error so callers can tell it apart from
// per-delivery outcomes and re-trigger the invocation.
func storeFailure(err error, message string) error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return err
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(RelayErrorStoreFailure)
}

func badInput(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(RelayErrorBadInput)
}

func notFound(err error, textCode string) error {
	return goerrors.Wrap(err, goerrors.CategoryNotFound, err.Error()).
		WithCode(http.StatusNotFound).
		WithTextCode(textCode)
}

func ensureRelayErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = relayHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultRelayTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultRelayTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return RelayErrorBadInput
	case goerrors.CategoryNotFound:
		return RelayErrorEventNotFound
	default:
		return RelayErrorInternal
	}
}

func relayHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return errors.Join(existing, next)
}
