package fault

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Every typed error below matches exactly one of them with errors.Is.
var (
	ErrInvalidInputType = errors.New("invalid input type")
	ErrSourceUnreadable = errors.New("source unreadable")
	ErrInvalidConfig    = errors.New("invalid config")
	ErrNotFound         = errors.New("not found")
)

// InvalidInputTypeError reports a selected file that is not a PDF
type InvalidInputTypeError struct {
	Name string
	MIME string
}

func (e *InvalidInputTypeError) Error() string {
	return fmt.Sprintf("%s is not a PDF file (detected %s)", e.Name, e.MIME)
}

func (e *InvalidInputTypeError) Is(target error) bool { return target == ErrInvalidInputType }

// SourceUnreadableError reports bytes that could not be decoded or loaded as a document
type SourceUnreadableError struct {
	Name string
	Err  error
}

func (e *SourceUnreadableError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("source unreadable: %v", e.Err)
	}
	return fmt.Sprintf("source unreadable: %s: %v", e.Name, e.Err)
}

func (e *SourceUnreadableError) Unwrap() error { return e.Err }

func (e *SourceUnreadableError) Is(target error) bool { return target == ErrSourceUnreadable }

// InvalidConfigError reports a trim configuration producing a degenerate crop
type InvalidConfigError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s=%g: %s", e.Field, e.Value, e.Reason)
}

func (e *InvalidConfigError) Is(target error) bool { return target == ErrInvalidConfig }

// NotFoundError reports a lookup miss in the page action store or the session
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Unreadable wraps err as a SourceUnreadableError unless it already is one.
func Unreadable(name string, err error) error {
	if err == nil {
		return nil
	}
	var su *SourceUnreadableError
	if errors.As(err, &su) {
		if su.Name == "" && name != "" {
			return &SourceUnreadableError{Name: name, Err: su.Err}
		}
		return err
	}
	return &SourceUnreadableError{Name: name, Err: err}
}
