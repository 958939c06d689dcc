// Package attach implements attachments: small persisted behaviors that can
// be added to any item or mobile at runtime and react to world events.
package attach

import (
	"fmt"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"github.com/crystal-mush/xmlattach/pkg/timer"
)

// Attachment is implemented by every attachment type. Concrete types embed
// Base and add handler interfaces matching their capabilities.
type Attachment interface {
	codec.Record
	Core() *Base
	Capabilities() Capability
}

// Base is the state shared by all attachments.
type Base struct {
	Name         string
	Expiration   time.Duration // 0 = never expires
	AttachedBy   string
	OwnedBy      *gamedb.Entity // whoever created it, distinct from the entity it is on
	CreationTime time.Time

	serial    int
	on        *gamedb.Entity
	deleted   bool
	remaining time.Duration // expiration left when loaded, until Load restarts the timer
	timer     *timer.Handle
	clock     func() time.Time
}

// Core returns b. It lets the registry reach the shared state of any
// attachment.
func (b *Base) Core() *Base { return b }

// Serial returns the registry-assigned serial, or 0 if never attached.
func (b *Base) Serial() int { return b.serial }

// AttachedTo returns the entity carrying the attachment.
func (b *Base) AttachedTo() *gamedb.Entity { return b.on }

// IsDeleted reports whether the attachment has been removed.
func (b *Base) IsDeleted() bool { return b.deleted }

// Remaining returns the time left before expiry.
func (b *Base) Remaining() time.Duration {
	if b.timer != nil {
		return b.timer.Remaining()
	}
	return b.remaining
}

// Now returns the registry clock, or the wall clock before the attachment
// has been indexed.
func (b *Base) Now() time.Time {
	if b.clock != nil {
		return b.clock()
	}
	return time.Now()
}

// expiresIn formats the expiration for identify lines.
func (b *Base) expiresIn() string {
	return fmt.Sprintf("expires in %g mins", b.Expiration.Minutes())
}

var baseSchema = codec.NewSchema("attachment", codec.Fallthrough,
	codec.Group[Base]{
		Since: 0,
		Write: func(w codec.Writer, b *Base) {
			w.WriteString(b.Name)
			w.WriteDuration(b.Expiration)
			if b.Expiration > 0 {
				w.WriteDuration(b.Remaining())
			} else {
				w.WriteDuration(0)
			}
			w.WriteTime(b.CreationTime)
		},
		Read: func(d *codec.Decoder, b *Base) {
			b.Name = d.ReadString()
			b.Expiration = d.ReadDuration()
			b.remaining = d.ReadDuration()
			b.CreationTime = d.ReadTime()
		},
	},
	codec.Group[Base]{
		Since: 1,
		Write: func(w codec.Writer, b *Base) {
			if b.OwnedBy.IsDeleted() {
				w.WriteInt(-1)
				return
			}
			w.WriteInt(int(b.OwnedBy.Kind))
			w.WriteRef(b.OwnedBy.Serial)
		},
		Read: func(d *codec.Decoder, b *Base) {
			switch kind := d.ReadInt(); kind {
			case -1:
			case int(gamedb.KindItem), int(gamedb.KindMobile):
				d.ReadEntity(func(e *gamedb.Entity) { b.OwnedBy = e })
			default:
				d.Fail(fmt.Errorf("attach: bad owner kind %d", kind))
			}
		},
	},
	codec.Group[Base]{
		Since: 2,
		Write: func(w codec.Writer, b *Base) { w.WriteString(b.AttachedBy) },
		Read:  func(d *codec.Decoder, b *Base) { b.AttachedBy = d.ReadString() },
	},
)

// WriteRecord writes the base state followed by v under its own schema.
func WriteRecord[T any](w codec.Writer, b *Base, s *codec.Schema[T], v *T) error {
	return WriteRecordAt(w, b, s, v, s.Current())
}

// WriteRecordAt is WriteRecord with the type's own schema pinned to an
// older version.
func WriteRecordAt[T any](w codec.Writer, b *Base, s *codec.Schema[T], v *T, version int) error {
	if err := baseSchema.Encode(w, b); err != nil {
		return err
	}
	return s.EncodeAt(w, v, version)
}

// ReadRecord is the inverse of WriteRecord.
func ReadRecord[T any](d *codec.Decoder, b *Base, s *codec.Schema[T], v *T) error {
	if err := baseSchema.Decode(d, b); err != nil {
		return err
	}
	return s.Decode(d, v)
}
