package codec

import (
	"errors"
	"testing"
)

type note struct{ Text string }

var noteSchema = NewSchema("note", Ascending, Group[note]{Since: 0,
	Write: func(w Writer, v *note) { w.WriteString(v.Text) },
	Read:  func(d *Decoder, v *note) { v.Text = d.ReadString() },
})

func (n *note) RecordType() string            { return "Note" }
func (n *note) EncodeRecord(w Writer) error   { return noteSchema.Encode(w, n) }
func (n *note) DecodeRecord(d *Decoder) error { return noteSchema.Decode(d, n) }

func TestRegistryAndMarshal(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Note", func() Record { return &note{} })

	data, err := Marshal(&note{Text: "remember"})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := reg.New("note")
	if err != nil {
		t.Fatalf("New(note): %v", err)
	}
	if err := Unmarshal(data, rec, nil); err != nil {
		t.Fatal(err)
	}
	if rec.(*note).Text != "remember" {
		t.Errorf("Text = %q", rec.(*note).Text)
	}

	if _, err := reg.New("missing"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("New(missing): err = %v, want ErrUnknownType", err)
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Note", func() Record { return &note{} })
	defer func() {
		if recover() == nil {
			t.Error("duplicate Register did not panic")
		}
	}()
	reg.Register("NOTE", func() Record { return &note{} })
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	data, err := Marshal(&note{Text: "remember"})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name  string
		extra []byte
		ok    bool
	}{
		{"exact", nil, true},
		{"one byte", []byte{0}, false},
		{"whole record", data, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := append(append([]byte(nil), data...), tt.extra...)
			err := Unmarshal(buf, &note{}, nil)
			if tt.ok {
				if err != nil {
					t.Fatalf("Unmarshal: %v", err)
				}
				return
			}
			var de *DeserializationError
			if !errors.As(err, &de) || de.Schema != "Note" {
				t.Fatalf("err = %v, want DeserializationError for Note", err)
			}
			if !IsMalformed(err) {
				t.Error("trailing bytes not reported as malformed")
			}
		})
	}
}
