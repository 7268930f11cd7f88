// Package errors provides the structured error type shared by every ssrkit
// package, together with the constructors for the failure conditions the
// build pipeline distinguishes: route misses, unimplemented framework
// adapters, virtual-module collisions and per-island build failures.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeRoute      ErrorType = "route"
	ErrorTypeHydration  ErrorType = "hydration"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeRouteNotFound     = "ERR_ROUTE_NOT_FOUND"
	ErrCodeNotImplemented    = "ERR_NOT_IMPLEMENTED"
	ErrCodeVirtualCollision  = "ERR_VIRTUAL_COLLISION"
	ErrCodeIslandBuildFailed = "ERR_ISLAND_BUILD_FAILED"
	ErrCodeBundleFailed      = "ERR_BUNDLE_FAILED"
	ErrCodeConfigInvalid     = "ERR_CONFIG_INVALID"
	ErrCodeInvalidPath       = "ERR_INVALID_PATH"
	ErrCodeMalformedProps    = "ERR_MALFORMED_PROPS"
	ErrCodeGenerateFailed    = "ERR_GENERATE_FAILED"
)

// SsrkitError is a structured error type with context.
type SsrkitError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	FilePath    string
	Recoverable bool
}

// Error implements the error interface.
func (e *SsrkitError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}
	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *SsrkitError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code, so the package sentinels work as errors.Is
// targets.
func (e *SsrkitError) Is(target error) bool {
	var t *SsrkitError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *SsrkitError) WithContext(key string, value interface{}) *SsrkitError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithFile adds file location information.
func (e *SsrkitError) WithFile(filePath string) *SsrkitError {
	e.FilePath = filePath

	return e
}

// WithComponent adds component context.
func (e *SsrkitError) WithComponent(component string) *SsrkitError {
	e.Component = component

	return e
}

// Error creation functions

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *SsrkitError {
	return &SsrkitError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *SsrkitError {
	return &SsrkitError{
		Type:        ErrorTypeBuild,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *SsrkitError {
	return &SsrkitError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *SsrkitError {
	return &SsrkitError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *SsrkitError {
	return &SsrkitError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRecoverable reports whether err is marked recoverable.
func IsRecoverable(err error) bool {
	var se *SsrkitError
	if errors.As(err, &se) {
		return se.Recoverable
	}

	return false
}

// IsBuildError reports whether err is a build error.
func IsBuildError(err error) bool {
	var se *SsrkitError
	if errors.As(err, &se) {
		return se.Type == ErrorTypeBuild
	}

	return false
}

// Sentinels usable as errors.Is targets.
var (
	ErrNotImplemented   = &SsrkitError{Type: ErrorTypeBuild, Code: ErrCodeNotImplemented}
	ErrVirtualCollision = &SsrkitError{Type: ErrorTypeConfig, Code: ErrCodeVirtualCollision}
	ErrIslandBuild      = &SsrkitError{Type: ErrorTypeBuild, Code: ErrCodeIslandBuildFailed}
	ErrMalformedProps   = &SsrkitError{Type: ErrorTypeHydration, Code: ErrCodeMalformedProps}
	ErrRouteNotFound    = &SsrkitError{Type: ErrorTypeRoute, Code: ErrCodeRouteNotFound}
)

// ErrNotImplementedFor reports a framework adapter that cannot generate the
// requested entry.
func ErrNotImplementedFor(framework, entry string) *SsrkitError {
	return (&SsrkitError{
		Type:    ErrorTypeBuild,
		Code:    ErrCodeNotImplemented,
		Message: fmt.Sprintf("%s entry generation for framework %q is not implemented", entry, framework),
	}).WithContext("framework", framework)
}

// ErrCollision reports a virtual module id claimed by two sub-pipelines.
func ErrCollision(id, owner, claimant string) *SsrkitError {
	return (&SsrkitError{
		Type:    ErrorTypeConfig,
		Code:    ErrCodeVirtualCollision,
		Message: fmt.Sprintf("virtual module %q is registered by both %s and %s", id, owner, claimant),
	}).WithContext("id", id)
}

// ErrIslandBuildFailed reports one island artifact that failed to bundle.
func ErrIslandBuildFailed(island string, cause error) *SsrkitError {
	return &SsrkitError{
		Type:        ErrorTypeBuild,
		Code:        ErrCodeIslandBuildFailed,
		Message:     "island build failed",
		Cause:       cause,
		Component:   island,
		Recoverable: true,
	}
}

// ErrMalformedPropsFor reports island props that are not valid JSON.
func ErrMalformedPropsFor(island string, cause error) *SsrkitError {
	return &SsrkitError{
		Type:        ErrorTypeHydration,
		Code:        ErrCodeMalformedProps,
		Message:     "malformed island props",
		Cause:       cause,
		Component:   island,
		Recoverable: true,
	}
}

// ErrInvalidPath reports a configured directory that fails validation.
func ErrInvalidPath(path, reason string) *SsrkitError {
	return NewValidationError(ErrCodeInvalidPath, fmt.Sprintf("invalid path %q: %s", path, reason)).
		WithContext("path", path)
}
