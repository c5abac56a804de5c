package errors

import (
	stderrors "errors"
	"fmt"
)

// ConfigurationError reports a caller bug or an invalid setting: a bad process
// argument, a value passed where a component was required, a missing entry point.
func ConfigurationError(message string) *BaseError {
	return New(ConfigurationErrorCode, message)
}

// ConfigurationErrorf creates a configuration error with formatted message
func ConfigurationErrorf(format string, args ...interface{}) *BaseError {
	return Newf(ConfigurationErrorCode, format, args...)
}

// WrapConfigurationError wraps configuration-related errors
func WrapConfigurationError(configType, operation string, cause error) *BaseError {
	message := fmt.Sprintf("failed to %s configuration '%s'", operation, configType)
	return Wrap(ConfigurationErrorCode, message, cause).
		WithContext("config_type", configType).
		WithContext("operation", operation)
}

// InvariantViolation reports state that must never be observed, such as a
// route table that still holds entries right after a reset.
func InvariantViolation(component, message string) *BaseError {
	return Newf(InvariantErrorCode, "%s invariant violated: %s", component, message).
		WithContext("component", component)
}

// ListenerFailure wraps an error raised by a restart listener hook
func ListenerFailure(listener, phase string, cause error) *BaseError {
	return Wrapf(ListenerErrorCode, cause, "restart listener %s failed during %s", listener, phase).
		WithContext("listener", listener).
		WithContext("phase", phase)
}

// LookupMiss reports an absent entry. Callers are expected to ignore it.
func LookupMiss(kind, key string) *BaseError {
	return Newf(LookupMissCode, "%s %q not found", kind, key).
		WithContext("kind", kind).
		WithContext("key", key)
}

// RegistrationError reports a rejected registration
func RegistrationError(componentType, name, reason string) *BaseError {
	return Newf(RegistrationErrorCode, "failed to register %s '%s': %s", componentType, name, reason).
		WithContext("component_type", componentType).
		WithContext("name", name)
}

// SyntaxError reports malformed marker or annotation text
func SyntaxError(message string, loc SourceLocation) *BaseError {
	return New(SyntaxErrorCode, message).WithLocation(loc)
}

// CodeOf returns the code of the first RewireError in err's chain
func CodeOf(err error) ErrorCode {
	var re RewireError
	if stderrors.As(err, &re) {
		return re.ErrorCode()
	}
	return UnknownErrorCode
}

// HasCode reports whether err's chain carries a RewireError with the given code
func HasCode(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
