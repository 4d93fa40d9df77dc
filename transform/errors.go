package transform

import "errors"

var (
	// ErrNoHeader is returned by AddByName when SetHeader was never called.
	ErrNoHeader = errors.New("transform: no header set")
	// ErrFieldNotFound is returned by AddByName when name is not present
	// in the current header.
	ErrFieldNotFound = errors.New("transform: field not found")
)
