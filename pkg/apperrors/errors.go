package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrEmptySchema       = errors.New("schema contains no fields")
	ErrNoRegulations     = errors.New("no regulations requested")
	ErrUnknownRegulation = errors.New("unknown regulation")
	ErrStoreUnavailable  = errors.New("store unavailable")
)
