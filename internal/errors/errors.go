package errors

import "fmt"

// ErrorCode represents the CLI error codes
type ErrorCode int

const (
	// CodeGeneric represents a generic failure (code 1)
	CodeGeneric ErrorCode = 1
	// CodeValidation represents invalid arguments or project layout (code 2)
	CodeValidation ErrorCode = 2
	// CodeUnsupportedFormat represents a bitmap whose extension is not handled (code 3)
	CodeUnsupportedFormat ErrorCode = 3
	// CodeDecodeFailure represents a bitmap that could not be decoded (code 4)
	CodeDecodeFailure ErrorCode = 4
	// CodeNotInProject represents commands executed outside project context (code 5)
	CodeNotInProject ErrorCode = 5
	// CodeFileMissing represents a watched file that no longer exists (code 6)
	CodeFileMissing ErrorCode = 6
)

// CLIError represents a CLI error with a specific error code
type CLIError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Cause
}

// NewGenericError creates a new generic error (code 1)
func NewGenericError(message string, cause error) *CLIError {
	return &CLIError{
		Code:    CodeGeneric,
		Message: message,
		Cause:   cause,
	}
}

// NewValidationError creates a new validation error (code 2)
func NewValidationError(message string) *CLIError {
	return &CLIError{
		Code:    CodeValidation,
		Message: message,
	}
}

// NewUnsupportedFormatError creates a new unsupported format error (code 3)
func NewUnsupportedFormatError(path string) *CLIError {
	return &CLIError{
		Code:    CodeUnsupportedFormat,
		Message: fmt.Sprintf("unsupported bitmap format: %s", path),
	}
}

// NewDecodeError creates a new decode error (code 4)
func NewDecodeError(message string, cause error) *CLIError {
	return &CLIError{
		Code:    CodeDecodeFailure,
		Message: message,
		Cause:   cause,
	}
}

// NewContextError creates a new context error (code 5)
func NewContextError(message string) *CLIError {
	return &CLIError{
		Code:    CodeNotInProject,
		Message: message,
	}
}

// NewFileMissingError creates a new file missing error (code 6)
func NewFileMissingError(path string, cause error) *CLIError {
	return &CLIError{
		Code:    CodeFileMissing,
		Message: fmt.Sprintf("file not found: %s", path),
		Cause:   cause,
	}
}

// HasCode reports whether err is a CLIError carrying the given code
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if cliErr, ok := err.(*CLIError); ok {
			if cliErr.Code == code {
				return true
			}
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
