// Package errors provides standardized error values for the amarui kernel core
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryConfig    ErrorCategory = "CONFIG"
	CategoryInterrupt ErrorCategory = "INTERRUPT"
	CategoryFault     ErrorCategory = "FAULT"
	CategorySystem    ErrorCategory = "SYSTEM"
)

// Error codes shared across packages.
const (
	CodeAlreadyInitialized = "ALREADY_INITIALIZED"
	CodeNotInitialized     = "NOT_INITIALIZED"
	CodeMissingBootInfo    = "MISSING_BOOT_INFO"
	CodeInvalidConfig      = "INVALID_CONFIG"
	CodeInvalidOffsets     = "INVALID_PIC_OFFSETS"
	CodeInvalidVector      = "INVALID_VECTOR"
	CodeOrdering           = "INIT_ORDER"
)

// StandardError provides a consistent error format
type StandardError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Context  map[string]interface{}
	Caller   string
}

// Error implements the error interface
func (e *StandardError) Error() string {
	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Category, e.Code, e.Message, e.Caller)
}

// Is reports whether target is a *StandardError with the same category and code.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// NewStandardError creates a new standardized error
func NewStandardError(category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	pc, _, _, ok := runtime.Caller(2)
	caller := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &StandardError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller,
	}
}

// HasCode reports whether err wraps a *StandardError carrying code.
func HasCode(err error, code string) bool {
	var se *StandardError
	if !stderrors.As(err, &se) {
		return false
	}
	return se.Code == code
}

// Common error constructors
func AlreadyInitialized(component string) *StandardError {
	return NewStandardError(CategorySystem, CodeAlreadyInitialized,
		fmt.Sprintf("%s already initialized", component),
		map[string]interface{}{"component": component})
}

func NotInitialized(component string) *StandardError {
	return NewStandardError(CategorySystem, CodeNotInitialized,
		fmt.Sprintf("%s not initialized", component),
		map[string]interface{}{"component": component})
}

func MissingBootInfo(field string) *StandardError {
	return NewStandardError(CategoryConfig, CodeMissingBootInfo,
		fmt.Sprintf("boot info is missing %s", field),
		map[string]interface{}{"field": field})
}

func InvalidConfig(field string, reason string) *StandardError {
	return NewStandardError(CategoryConfig, CodeInvalidConfig,
		fmt.Sprintf("invalid %s: %s", field, reason),
		map[string]interface{}{"field": field})
}

func InvalidOffsets(offset1, offset2 uint8) *StandardError {
	return NewStandardError(CategoryInterrupt, CodeInvalidOffsets,
		fmt.Sprintf("PIC offsets %d/%d must be consecutive blocks of 8 above the exception range", offset1, offset2),
		map[string]interface{}{"offset1": offset1, "offset2": offset2})
}

func InvalidVector(vector uint8, reason string) *StandardError {
	return NewStandardError(CategoryInterrupt, CodeInvalidVector,
		fmt.Sprintf("vector %d: %s", vector, reason),
		map[string]interface{}{"vector": vector})
}

func Ordering(step, requires string) *StandardError {
	return NewStandardError(CategoryInterrupt, CodeOrdering,
		fmt.Sprintf("%s requires %s first", step, requires),
		map[string]interface{}{"step": step, "requires": requires})
}
