package domain

import (
	"errors"
	"fmt"
)

// ParseError reports a malformed attachment.
type ParseError struct {
	Format Format
	Line   int // 1-based; 0 when not tied to a line
	Msg    string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse %s: line %d: %s", e.Format, e.Line, e.Msg)
	}
	return fmt.Sprintf("parse %s: %s", e.Format, e.Msg)
}

// IOError reports a failed staging or destination write.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// AuthError indicates that the weather service token exchange failed.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("auth error: status %d: %s", e.StatusCode, e.Message)
	}
	return "auth error: " + e.Message
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsParseError reports whether err (or any error in its chain) is a ParseError.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

func parseErrorf(format Format, line int, msg string, args ...any) *ParseError {
	return &ParseError{Format: format, Line: line, Msg: fmt.Sprintf(msg, args...)}
}
