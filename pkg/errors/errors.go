package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// Error represents a coded relay error with an optional cause and stack trace
type Error struct {
	Code    int        `json:"code"`
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

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message != "" && e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
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

// Is matches another *Error carrying the same non-zero code, so errors.Is
// works against the package sentinels regardless of added context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	if e.Code != 0 && t.Code != 0 {
		return e.Code == t.Code
	}
	return e == t
}

// WithCode creates a new error with code
func WithCode(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Stack:   captureStack(),
	}
}

// WithCodef creates a new error with code and formatted message
func WithCodef(code int, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(),
	}
}

// Wrap wraps an error with message. The code of a wrapped *Error is kept.
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    GetCode(err),
		Message: message,
		Err:     err,
		Stack:   captureStack(),
	}
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    GetCode(err),
		Message: fmt.Sprintf(format, args...),
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

// WithContext returns a copy of e with one more context pair appended
func (e *Error) WithContext(key, value string) *Error {
	if e == nil {
		return nil
	}

	newErr := &Error{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Stack:   e.Stack,
		Context: make([]KeyValue, len(e.Context), len(e.Context)+1),
	}
	copy(newErr.Context, e.Context)
	newErr.Context = append(newErr.Context, KeyValue{Key: key, Value: value})

	return newErr
}

// ContextValue looks up a context value by key
func (e *Error) ContextValue(key string) (string, bool) {
	if e == nil {
		return "", false
	}
	for _, kv := range e.Context {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// captureStack captures the current stack trace
func captureStack() string {
	buf := make([]byte, 1024)
	n := runtime.Stack(buf, false)
	stack := string(buf[:n])

	// 移除顶部几行（captureStack 和构造函数自身）
	lines := strings.Split(stack, "\n")
	if len(lines) > 6 {
		stack = strings.Join(lines[6:], "\n")
	}

	return strings.TrimSpace(stack)
}

// GetCode returns the code of the first *Error in the chain, or 0
func GetCode(err error) int {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Code != 0 {
				return e.Code
			}
			err = e.Err
			continue
		}
		if u, ok := err.(interface{ Unwrap() error }); ok {
			err = u.Unwrap()
			continue
		}
		return 0
	}
	return 0
}

// GetMessage returns the error message
func GetMessage(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
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
