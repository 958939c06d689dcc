// Package codec implements the versioned record format used to persist
// entities and attachments.
//
// A record is an integer version tag followed by field groups. Each group is
// introduced at some version and, once released, never changes: new fields
// go into a new group at a higher version. A reader built against version N
// can therefore read any record written at version 0..N. Field order within
// a group is part of the format.
package codec

import (
	"time"

	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// Writer is a sequential sink of typed values. Errors are sticky: after the
// first failure every write is a no-op and Err reports that failure.
type Writer interface {
	WriteInt(v int)
	WriteBool(v bool)
	WriteString(v string)
	WriteDouble(v float64)
	WriteTime(v time.Time)
	WriteDuration(v time.Duration)
	WriteRef(v gamedb.DBRef)
	WritePoint(v gamedb.Point3D)
	Err() error
}

// Reader is the sequential source matching Writer. Errors are sticky; once
// Err is non-nil every read returns the zero value.
type Reader interface {
	ReadInt() int
	ReadBool() bool
	ReadString() string
	ReadDouble() float64
	ReadTime() time.Time
	ReadDuration() time.Duration
	ReadRef() gamedb.DBRef
	ReadPoint() gamedb.Point3D
	Err() error
}

// WriteEntity writes a back-reference to e. Deleted or nil entities are
// written as Nothing.
func WriteEntity(w Writer, e *gamedb.Entity) {
	if e.IsDeleted() {
		w.WriteRef(gamedb.Nothing)
		return
	}
	w.WriteRef(e.Serial)
}
