package spec

import "errors"

var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrDialogNotFound      = errors.New("dialog not found")
	ErrDialogAlreadyExists = errors.New("dialog already exists")
	ErrActionAlreadyExists = errors.New("action already exists")
	ErrLibraryNotFound     = errors.New("library not found")
	ErrLibraryCycle        = errors.New("library cycle")
	ErrStackDepthExceeded  = errors.New("dialog stack depth exceeded")
	ErrStateNotFound       = errors.New("session state not found")
)
