package codec

import (
	"errors"
	"fmt"
)

// ErrUnknownType is returned by Registry.New for an unregistered type name.
var ErrUnknownType = errors.New("codec: unknown record type")

// UnknownVersionError reports a record whose stored version is newer than
// (or otherwise outside) what the schema knows how to read.
type UnknownVersionError struct {
	Schema  string
	Version int
	Max     int
}

func (e *UnknownVersionError) Error() string {
	return fmt.Sprintf("codec: %s: unknown version %d (max %d)", e.Schema, e.Version, e.Max)
}

// DeserializationError reports a malformed or truncated record. Group is the
// version of the field group being read when the failure happened, or -1
// when the failure lies outside any group. Version is -1 when unknown.
type DeserializationError struct {
	Schema  string
	Version int
	Group   int
	Err     error
}

func (e *DeserializationError) Error() string {
	switch {
	case e.Version < 0:
		return fmt.Sprintf("codec: %s: %v", e.Schema, e.Err)
	case e.Group < 0:
		return fmt.Sprintf("codec: %s v%d: %v", e.Schema, e.Version, e.Err)
	}
	return fmt.Sprintf("codec: %s v%d: group %d: %v", e.Schema, e.Version, e.Group, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// IsMalformed reports whether err means persisted data could not be
// decoded, as opposed to an I/O or lookup problem.
func IsMalformed(err error) bool {
	var de *DeserializationError
	var ue *UnknownVersionError
	return errors.As(err, &de) || errors.As(err, &ue)
}
