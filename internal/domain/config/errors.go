package config

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorization.
const (
	ErrCodeConfigNotFound   = "CONFIG_NOT_FOUND"
	ErrCodeConfigExists     = "CONFIG_EXISTS"
	ErrCodeConfigParse      = "CONFIG_PARSE"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeCatalog          = "CATALOG_UNAVAILABLE"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeProtected        = "PROTECTED"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInstallFailed    = "INSTALL_FAILED"
	ErrCodeUninstallFailed  = "UNINSTALL_FAILED"
)

// UserError is a short, actionable message for the user. The underlying
// error carries the detail for the diagnostic log.
type UserError struct {
	Code       string // e.g. "CONFIG_NOT_FOUND"
	Message    string
	Context    string // file path, package or plugin id
	Suggestion string
	Underlying error
}

// Error returns the message and its context.
func (e *UserError) Error() string {
	if e.Context == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (at %s)", e.Message, e.Context)
}

// Unwrap returns the underlying error.
func (e *UserError) Unwrap() error {
	return e.Underlying
}

// Is matches another UserError by code.
func (e *UserError) Is(target error) bool {
	if t, ok := target.(*UserError); ok {
		return e.Code == t.Code
	}
	return false
}

// Format returns the message with code, location and suggestion. verbose
// adds the underlying error.
func (e *UserError) Format(verbose bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Context != "" {
		fmt.Fprintf(&b, "\n  Location: %s", e.Context)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\n  Suggestion: %s", e.Suggestion)
	}
	if verbose && e.Underlying != nil {
		fmt.Fprintf(&b, "\n  Detail: %v", e.Underlying)
	}
	return b.String()
}

// NewUserError creates a UserError with the given code and message.
func NewUserError(code, message string) *UserError {
	return &UserError{Code: code, Message: message}
}

// WithContext returns a copy with context set.
func (e *UserError) WithContext(ctx string) *UserError {
	c := *e
	c.Context = ctx
	return &c
}

// WithSuggestion returns a copy with suggestion set.
func (e *UserError) WithSuggestion(suggestion string) *UserError {
	c := *e
	c.Suggestion = suggestion
	return &c
}

// WithUnderlying returns a copy wrapping err.
func (e *UserError) WithUnderlying(err error) *UserError {
	c := *e
	c.Underlying = err
	return &c
}

// ErrorList accumulates validation errors.
type ErrorList struct {
	errors []*UserError
}

// NewErrorList creates an empty ErrorList.
func NewErrorList() *ErrorList {
	return &ErrorList{}
}

// AddValidation adds a validation error for field.
func (l *ErrorList) AddValidation(field, message, suggestion string) {
	l.errors = append(l.errors, &UserError{
		Code:       ErrCodeValidationFailed,
		Message:    fmt.Sprintf("%s: %s", field, message),
		Context:    field,
		Suggestion: suggestion,
	})
}

// Len returns the number of errors.
func (l *ErrorList) Len() int {
	return len(l.errors)
}

// Errors returns a copy of the errors.
func (l *ErrorList) Errors() []*UserError {
	return append([]*UserError(nil), l.errors...)
}

func (l *ErrorList) Error() string {
	switch len(l.errors) {
	case 0:
		return ""
	case 1:
		return l.errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d errors occurred:\n", len(l.errors))
	for i, err := range l.errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err.Error())
	}
	return b.String()
}

// AsError returns the list as an error, or nil when empty.
func (l *ErrorList) AsError() error {
	if len(l.errors) == 0 {
		return nil
	}
	return l
}

// NewConfigNotFoundError reports a missing explicit config file.
func NewConfigNotFoundError(path string) *UserError {
	return &UserError{
		Code:       ErrCodeConfigNotFound,
		Message:    fmt.Sprintf("configuration file not found: %s", path),
		Context:    path,
		Suggestion: "Run 'modkeeper config init' to create one, or check the --config path.",
	}
}

// NewConfigParseError reports an unreadable config file.
func NewConfigParseError(path string, err error) *UserError {
	return &UserError{
		Code:       ErrCodeConfigParse,
		Message:    "failed to parse configuration file",
		Context:    path,
		Suggestion: "Check your YAML syntax. Use 2 spaces for indentation and quote values containing ':' or '#'.",
		Underlying: err,
	}
}

// IsUserError reports whether err carries a UserError with code.
func IsUserError(err error, code string) bool {
	var ue *UserError
	return errors.As(err, &ue) && ue.Code == code
}

// GetUserError extracts a UserError from an error chain.
func GetUserError(err error) *UserError {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue
	}
	return nil
}
