package pe

import "github.com/pkg/errors"

var (
	ErrInvalidPESize = errors.New("not a PE file, smaller than tiny PE")
)

var (
	ErrInvalidDOSSignature = errors.New("invalid DOS signature. Probably not a PE file")
	ErrInvalidNTSignature  = errors.New("not a valid PE signature. Magic not found")
	ErrOutsideBoundary     = errors.New("reading data outside boundary")
	ErrNoSectionForRVA     = errors.New("no section contains the given RVA")
)
