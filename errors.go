package biglist

import "errors"

var (
	// ErrAlreadyExists is returned by New when the destination already holds
	// a dataset.
	ErrAlreadyExists = errors.New("biglist: dataset already exists")
	// ErrNotExist is returned by Open when no dataset exists at the URL.
	ErrNotExist = errors.New("biglist: dataset does not exist")
	// ErrIndexOutOfRange is returned for element access outside [0, total).
	ErrIndexOutOfRange = errors.New("biglist: index out of range")
)
