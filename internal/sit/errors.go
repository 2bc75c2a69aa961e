package sit

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	ErrFormat    = errors.New("not a StuffIt archive")
	ErrCorrupt   = errors.New("corrupt StuffIt archive")
	ErrPassword  = errors.New("password protected StuffIt archive")
	ErrAlgo      = errors.New("unimplemented StuffIt compression algorithm")
	ErrDecode    = errors.New("inconsistent StuffIt compressed data")
	ErrTruncated = errors.New("truncated StuffIt compressed data")
	ErrChecksum  = errors.New("StuffIt checksum mismatch")
)

// ParseError is returned by New when the archive was recognised but could not be walked.
type ParseError struct {
	Offset int64 // of the structure that failed
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("StuffIt archive at offset %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ErrorKind classifies a MemberError for callers that do not want to match sentinels.
type ErrorKind int

const (
	KindIO ErrorKind = iota
	KindNotFound
	KindUnsupported
	KindDecode
	KindTruncated
	KindChecksum
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindUnsupported:
		return "unsupported"
	case KindDecode:
		return "decode"
	case KindTruncated:
		return "truncated"
	case KindChecksum:
		return "checksum"
	default:
		return "io"
	}
}

// MemberError is returned by Archive.Open. It never aborts access to other members.
type MemberError struct {
	Name string
	Err  error
}

func (e *MemberError) Error() string {
	return fmt.Sprintf("StuffIt member %q: %v", e.Name, e.Err)
}

func (e *MemberError) Unwrap() error { return e.Err }

func (e *MemberError) Kind() ErrorKind {
	switch {
	case errors.Is(e.Err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(e.Err, ErrAlgo), errors.Is(e.Err, ErrPassword):
		return KindUnsupported
	case errors.Is(e.Err, ErrDecode):
		return KindDecode
	case errors.Is(e.Err, ErrTruncated):
		return KindTruncated
	case errors.Is(e.Err, ErrChecksum):
		return KindChecksum
	default:
		return KindIO
	}
}
