package fault

import "errors"

// Kind labels err with its taxonomy name for logs, metrics and user notices.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInputType):
		return "invalid_input_type"
	case errors.Is(err, ErrSourceUnreadable):
		return "source_unreadable"
	case errors.Is(err, ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

// IsFatal reports errors that must stop the process instead of being shown per document.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

// Notice renders a user-facing message naming the file and what failed.
func Notice(file string, err error) string {
	if err == nil {
		return ""
	}
	var it *InvalidInputTypeError
	if errors.As(err, &it) {
		return it.Name + " is not a PDF file."
	}
	if errors.Is(err, ErrSourceUnreadable) {
		return file + ": could not read the document (" + err.Error() + ")"
	}
	return file + ": " + err.Error()
}
