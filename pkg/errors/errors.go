package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Error carries an HTTP status code, an i18n message key and the call stack.
type Error struct {
	Code    int        `json:"code"`
	Key     string     `json:"key,omitempty"`
	Message string     `json:"message"`
	Err     error      `json:"-"` // 原始错误，不序列化
	Stack   string     `json:"stack,omitempty"`
	Context []KeyValue `json:"context,omitempty"`
}

// KeyValue represents a key-value pair for context
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// 业务错误，Key 对应 pkg/i18n 中的 message id
var (
	ErrBadRequest          = Define(http.StatusBadRequest, "bad_request", "invalid request")
	ErrUnauthorized        = Define(http.StatusUnauthorized, "unauthorized", "login required")
	ErrBadCredentials      = Define(http.StatusUnauthorized, "bad_credentials", "invalid email or password")
	ErrEmailTaken          = Define(http.StatusConflict, "email_taken", "email already registered")
	ErrNotFound            = Define(http.StatusNotFound, "not_found", "record not found")
	ErrModelNotFound       = Define(http.StatusNotFound, "model_not_found", "voice model not found")
	ErrInvalidPrompt       = Define(http.StatusBadRequest, "invalid_prompt", "prompt must be 1-500 characters")
	ErrInvalidDuration     = Define(http.StatusBadRequest, "invalid_duration", "duration must be one of 30, 60, 90, 120")
	ErrInvalidName         = Define(http.StatusBadRequest, "invalid_name", "name must be 1-64 characters")
	ErrInvalidStatus       = Define(http.StatusConflict, "invalid_status", "record is not in a state that allows this change")
	ErrInsufficientCredits = Define(http.StatusPaymentRequired, "insufficient_credits", "not enough credits")
	ErrBeatTooLarge        = Define(http.StatusRequestEntityTooLarge, "beat_too_large", "beat file is too large")
	ErrDuplicateRequest    = Define(http.StatusConflict, "duplicate_request", "duplicate request")
	ErrRateLimited         = Define(http.StatusTooManyRequests, "rate_limited", "too many requests")
	ErrWriteFailed         = Define(http.StatusInternalServerError, "write_failed", "write failed")
)

// Define declares a sentinel error without a stack trace.
func Define(code int, key, message string) *Error {
	return &Error{Code: code, Key: key, Message: message}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap implements the errors.Wrapper interface
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors declared with the same code and key, so a wrapped
// sentinel still satisfies errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	if t.Key == "" {
		return e == t
	}
	return e.Code == t.Code && e.Key == t.Key
}

// WithCodef creates a new error with code and formatted message
func WithCodef(code int, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(),
	}
}

// Wrap wraps an error with message
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    GetCode(err),
		Key:     GetKey(err),
		Message: message,
		Err:     err,
		Stack:   captureStack(),
	}
}

// New creates a new error
func New(message string) *Error {
	return &Error{
		Message: message,
		Stack:   captureStack(),
	}
}

// Errorf creates a new formatted error
func Errorf(format string, args ...interface{}) *Error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(),
	}
}

// Because returns a copy of a sentinel carrying the underlying cause and a stack.
func (e *Error) Because(cause error) *Error {
	if e == nil {
		return nil
	}
	return &Error{
		Code:    e.Code,
		Key:     e.Key,
		Message: e.Message,
		Err:     cause,
		Stack:   captureStack(),
		Context: append([]KeyValue(nil), e.Context...),
	}
}

// WithContext adds context to an error
func (e *Error) WithContext(key, value string) *Error {
	if e == nil {
		return nil
	}

	// 创建新的错误实例以避免修改原始错误
	newErr := &Error{
		Code:    e.Code,
		Key:     e.Key,
		Message: e.Message,
		Err:     e.Err,
		Stack:   e.Stack,
		Context: make([]KeyValue, len(e.Context), len(e.Context)+1),
	}
	copy(newErr.Context, e.Context)
	newErr.Context = append(newErr.Context, KeyValue{Key: key, Value: value})

	return newErr
}

// captureStack captures the current stack trace
func captureStack() string {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)
	stack := string(buf[:n])

	// 移除 goroutine 头与 captureStack 自身的帧
	lines := strings.Split(stack, "\n")
	if len(lines) > 5 {
		stack = strings.Join(lines[5:], "\n")
	}

	return strings.TrimSpace(stack)
}

// GetCode returns the first non-zero code in the chain.
func GetCode(err error) int {
	var e *Error
	for err != nil {
		if stderrors.As(err, &e) {
			if e.Code != 0 {
				return e.Code
			}
			err = e.Err
			continue
		}
		return 0
	}
	return 0
}

// GetKey returns the first non-empty i18n key in the chain.
func GetKey(err error) string {
	var e *Error
	for err != nil {
		if stderrors.As(err, &e) {
			if e.Key != "" {
				return e.Key
			}
			err = e.Err
			continue
		}
		return ""
	}
	return ""
}

// GetMessage returns the error message
func GetMessage(err error) string {
	var e *Error
	if stderrors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// GetStack returns the error stack trace
func GetStack(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Stack
	}
	return ""
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As is errors.As re-exported so callers need a single errors import.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Cause returns the underlying error
func Cause(err error) error {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Err != nil {
			err = e.Err
		} else {
			return err
		}
	}
	return err
}

// Format implements fmt.Formatter
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s", e.Error())
			if e.Stack != "" {
				fmt.Fprintf(s, "\n%s", e.Stack)
			}
			return
		}
		fallthrough
	case 's':
		fmt.Fprintf(s, "%s", e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
