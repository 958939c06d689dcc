package codec

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Record is a persistable value that knows its own type name and schema.
type Record interface {
	RecordType() string
	EncodeRecord(w Writer) error
	DecodeRecord(d *Decoder) error
}

// Registry maps record type names to constructors for loading.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]func() Record
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]func() Record)}
}

// Register adds a constructor. Names are case-insensitive; registering the
// same name twice panics.
func (r *Registry) Register(name string, ctor func() Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(name)
	if _, ok := r.ctors[key]; ok {
		panic(fmt.Sprintf("codec: duplicate record type %q", name))
	}
	r.ctors[key] = ctor
}

// New returns a fresh zero record of the named type.
func (r *Registry) New(name string) (Record, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownType, name)
	}
	return ctor(), nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ctors))
	for k := range r.ctors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Marshal encodes rec in the binary layout.
func Marshal(rec Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := rec.EncodeRecord(NewBinaryWriter(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a binary record, queueing references on fixups. data
// must hold exactly one record.
func Unmarshal(data []byte, rec Record, fixups *Fixups) error {
	r := bytes.NewReader(data)
	if err := rec.DecodeRecord(NewDecoder(NewBinaryReader(r), fixups)); err != nil {
		return err
	}
	if n := r.Len(); n > 0 {
		return &DeserializationError{Schema: rec.RecordType(), Version: -1, Group: -1,
			Err: fmt.Errorf("%d trailing bytes", n)}
	}
	return nil
}
