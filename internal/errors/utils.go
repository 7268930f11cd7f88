package errors

import (
	"errors"
)

// Wrap wraps an error with additional context, creating an SsrkitError if the
// input is not already one.
func Wrap(err error, errType ErrorType, code, message string) *SsrkitError {
	if err == nil {
		return nil
	}

	var se *SsrkitError
	if errors.As(err, &se) {
		return &SsrkitError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       err,
			Context:     se.Context,
			Component:   se.Component,
			FilePath:    se.FilePath,
			Recoverable: se.Recoverable,
		}
	}

	return &SsrkitError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeBuild,
	}
}

// WrapBuild wraps an error as a build error with component context.
func WrapBuild(err error, code, message, component string) *SsrkitError {
	se := Wrap(err, ErrorTypeBuild, code, message)
	if se != nil {
		se.Component = component
	}
	return se
}

// WrapConfig wraps an error as a configuration error.
func WrapConfig(err error, code, message string) *SsrkitError {
	se := Wrap(err, ErrorTypeConfig, code, message)
	if se != nil {
		se.Recoverable = false
	}
	return se
}

// GetErrorContext returns the merged context of every SsrkitError in the
// chain. Outer errors win on key conflicts.
func GetErrorContext(err error) map[string]interface{} {
	result := make(map[string]interface{})

	for err != nil {
		var se *SsrkitError
		if !errors.As(err, &se) {
			break
		}
		for k, v := range se.Context {
			if _, exists := result[k]; !exists {
				result[k] = v
			}
		}
		err = se.Cause
	}

	return result
}

// CollectErrors filters out nil errors.
func CollectErrors(errs ...error) []error {
	var result []error
	for _, err := range errs {
		if err != nil {
			result = append(result, err)
		}
	}
	return result
}

// CombineErrors joins the non-nil errors; nil when there are none.
func CombineErrors(errs ...error) error {
	collected := CollectErrors(errs...)
	switch len(collected) {
	case 0:
		return nil
	case 1:
		return collected[0]
	default:
		return errors.Join(collected...)
	}
}
