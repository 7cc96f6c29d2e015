// Package errors defines the application error taxonomy and central handling.
package errors

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// GenericApology is the uniform fallback shown to the user when a handler fails.
const GenericApology = "Произошла ошибка. Попробуйте позже"

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

// NewInvalidEmailError marks a customer email that failed validation.
func NewInvalidEmailError(email string) *AppError {
	return &AppError{
		Code:        "E101",
		Message:     fmt.Sprintf("invalid customer email: %q", email),
		UserMessage: "Введите корректный email",
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewUnresolvableAddressError marks an address the geocoder could not resolve.
func NewUnresolvableAddressError(address string) *AppError {
	return &AppError{
		Code:        "E102",
		Message:     fmt.Sprintf("unresolvable address: %q", address),
		UserMessage: "Не удалось распознать адрес. Пришлите адрес текстом или отправьте геолокацию",
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewUnroutableEventError marks an inbound update with no resolvable chat identifier.
func NewUnroutableEventError(reason string) *AppError {
	return &AppError{
		Code:      "E110",
		Message:   fmt.Sprintf("unroutable event: %s", reason),
		Severity:  SeverityLow,
		Retryable: false,
	}
}

// NewNoPizzeriasError marks a locator call against an empty facility list.
func NewNoPizzeriasError() *AppError {
	return &AppError{
		Code:        "E120",
		Message:     "no pizzerias available for fulfillment",
		UserMessage: GenericApology,
		Severity:    SeverityHigh,
		Retryable:   false,
	}
}

// NewBackendUnavailableError marks a transport-level failure of an external API call.
func NewBackendUnavailableError(api string, cause error) *AppError {
	return &AppError{
		Code:        "E200",
		Message:     fmt.Sprintf("%s unavailable", api),
		UserMessage: "Сервис временно недоступен",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

// NewBackendRejectedError marks a request the external API refused.
func NewBackendRejectedError(api string, status int, reason string) *AppError {
	return &AppError{
		Code:        "E201",
		Message:     fmt.Sprintf("%s rejected request: status=%d reason=%s", api, status, reason),
		UserMessage: "Сервис временно недоступен",
		Severity:    SeverityMedium,
		Retryable:   false,
	}
}

// NewDatabaseError marks an order log persistence failure.
func NewDatabaseError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        "E210",
		Message:     fmt.Sprintf("database error: %s", underlyingMsg),
		UserMessage: GenericApology,
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

// NewRateLimitError marks a user exceeding the per-chat request budget.
func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        "E500",
		Message:     fmt.Sprintf("rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Слишком много запросов. Попробуйте через %d секунд", retryAfter),
		Severity:    SeverityLow,
		Retryable:   false,
	}
}
