package codec

import (
	"fmt"

	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// Layout is the order in which field groups appear in the stream.
type Layout int

const (
	// Ascending writes and reads groups from version 0 upward.
	Ascending Layout = iota
	// Fallthrough writes the newest group first and reads from the stored
	// version down to 0. Legacy record types use it.
	Fallthrough
)

func (l Layout) String() string {
	if l == Fallthrough {
		return "fallthrough"
	}
	return "ascending"
}

// Group is a set of fields introduced at version Since. Write and Read must
// touch the same fields in the same order. Either may be nil for a version
// that added no fields.
//
// A Reset group marks a version that dropped everything before it: a
// record stored at that version or later carries no groups below it.
type Group[T any] struct {
	Since int
	Reset bool
	Write func(w Writer, v *T)
	Read  func(d *Decoder, v *T)
}

// Schema is the declarative version table of one record type.
type Schema[T any] struct {
	name   string
	layout Layout
	groups []Group[T]
}

// NewSchema builds a schema. Groups must start at version 0 and be strictly
// increasing; a malformed table is a programming error and panics.
func NewSchema[T any](name string, layout Layout, groups ...Group[T]) *Schema[T] {
	if len(groups) == 0 {
		panic(fmt.Sprintf("codec: schema %s: must have at least one group", name))
	}
	if groups[0].Since != 0 {
		panic(fmt.Sprintf("codec: schema %s: first group must be version 0, got %d", name, groups[0].Since))
	}
	seen := make(map[int]bool, len(groups))
	for i, g := range groups {
		if seen[g.Since] {
			panic(fmt.Sprintf("codec: schema %s: duplicate version %d", name, g.Since))
		}
		seen[g.Since] = true
		if i > 0 && g.Since < groups[i-1].Since {
			panic(fmt.Sprintf("codec: schema %s: version %d listed after %d", name, g.Since, groups[i-1].Since))
		}
	}
	gs := make([]Group[T], len(groups))
	copy(gs, groups)
	return &Schema[T]{name: name, layout: layout, groups: gs}
}

// Name returns the schema name used in errors.
func (s *Schema[T]) Name() string { return s.name }

// Layout returns the stream layout.
func (s *Schema[T]) Layout() Layout { return s.layout }

// Current returns the highest version this schema writes.
func (s *Schema[T]) Current() int { return s.groups[len(s.groups)-1].Since }

// active returns the groups readable at version in stream order.
func (s *Schema[T]) active(version int) []Group[T] {
	floor := 0
	for _, g := range s.groups {
		if g.Reset && g.Since <= version {
			floor = g.Since
		}
	}
	var out []Group[T]
	for _, g := range s.groups {
		if g.Since >= floor && g.Since <= version {
			out = append(out, g)
		}
	}
	if s.layout == Fallthrough {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// Encode writes v at the current version.
func (s *Schema[T]) Encode(w Writer, v *T) error {
	return s.EncodeAt(w, v, s.Current())
}

// EncodeAt writes v as it would have been written at an older version,
// omitting groups introduced later.
func (s *Schema[T]) EncodeAt(w Writer, v *T, version int) error {
	if version < 0 || version > s.Current() {
		return &UnknownVersionError{Schema: s.name, Version: version, Max: s.Current()}
	}
	w.WriteInt(version)
	for _, g := range s.active(version) {
		if g.Write != nil {
			g.Write(w, v)
		}
	}
	if err := w.Err(); err != nil {
		return fmt.Errorf("codec: encode %s: %w", s.name, err)
	}
	return nil
}

// Decode reads one record into v. On error v may be partially filled and
// must be discarded.
func (s *Schema[T]) Decode(d *Decoder, v *T) error {
	prev := d.version
	defer func() { d.version = prev }()

	k := d.ReadInt()
	if err := d.Err(); err != nil {
		return &DeserializationError{Schema: s.name, Version: -1, Group: -1, Err: fmt.Errorf("read version: %w", err)}
	}
	if k < 0 || k > s.Current() {
		return &UnknownVersionError{Schema: s.name, Version: k, Max: s.Current()}
	}
	d.version = k
	for _, g := range s.active(k) {
		if g.Read != nil {
			g.Read(d, v)
		}
		if err := d.Err(); err != nil {
			return &DeserializationError{Schema: s.name, Version: k, Group: g.Since, Err: err}
		}
	}
	return nil
}

// DecodeNested decodes a sub-record from inside another schema's group and
// records any failure on d.
func (s *Schema[T]) DecodeNested(d *Decoder, v *T) {
	if d.Err() != nil {
		return
	}
	if err := s.Decode(d, v); err != nil {
		d.Fail(err)
	}
}

// Decoder wraps a Reader with the state needed while decoding: the version
// of the record currently being read and the pending reference fixups.
type Decoder struct {
	Reader
	fixups  *Fixups
	version int
	err     error
}

// NewDecoder returns a decoder over r. A nil fixups gets a private queue.
func NewDecoder(r Reader, fixups *Fixups) *Decoder {
	if fixups == nil {
		fixups = &Fixups{}
	}
	return &Decoder{Reader: r, fixups: fixups}
}

// Version returns the stored version of the record being decoded.
func (d *Decoder) Version() int { return d.version }

// Fixups returns the reference queue shared by this load.
func (d *Decoder) Fixups() *Fixups { return d.fixups }

// Fail records a semantic decode error, such as an impossible count.
func (d *Decoder) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Err returns the first decode or stream error.
func (d *Decoder) Err() error {
	if d.err != nil {
		return d.err
	}
	return d.Reader.Err()
}

// ReadCount reads a list length and rejects negative or absurd values.
func (d *Decoder) ReadCount(limit int) int {
	n := d.ReadInt()
	if d.Err() != nil {
		return 0
	}
	if n < 0 || n > limit {
		d.Fail(fmt.Errorf("codec: count %d out of range [0, %d]", n, limit))
		return 0
	}
	return n
}

// ReadEntity reads a back-reference and defers assign until the post-load
// fixup pass. It returns the raw serial.
func (d *Decoder) ReadEntity(assign func(*gamedb.Entity)) gamedb.DBRef {
	ref := d.ReadRef()
	if d.Err() != nil {
		return gamedb.Nothing
	}
	d.fixups.Defer(ref, assign)
	return ref
}
