package storage

import "errors"

var (
	ErrNotFound          = errors.New("storage: not found")
	ErrAlreadyExists     = errors.New("storage: already exists")
	ErrInsufficientFunds = errors.New("storage: insufficient funds for allocation")
	ErrConflict          = errors.New("storage: conflicting concurrent write")
	ErrCorrupt           = errors.New("storage: corrupt account encoding")
	ErrOverflow          = errors.New("storage: lamport overflow")
	ErrNotPlain          = errors.New("storage: account is owned by a program")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
