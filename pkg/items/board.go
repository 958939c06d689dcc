package items

import (
	"fmt"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// SimpleMap is a map with a list of pinned locations. Each use shows the
// next pin.
type SimpleMap struct {
	Pins     []gamedb.Point3D
	PinIndex int
}

var mapSchema = codec.NewSchema("SimpleMap", codec.Fallthrough,
	codec.Group[SimpleMap]{
		Since: 0,
		Write: func(w codec.Writer, m *SimpleMap) {
			w.WriteInt(m.PinIndex)
			w.WriteInt(len(m.Pins))
			for _, p := range m.Pins {
				w.WritePoint(p)
			}
		},
		Read: func(d *codec.Decoder, m *SimpleMap) {
			m.PinIndex = d.ReadInt()
			n := d.ReadCount(1024)
			m.Pins = make([]gamedb.Point3D, 0, n)
			for range n {
				m.Pins = append(m.Pins, d.ReadPoint())
			}
		},
	},
)

func (m *SimpleMap) RecordType() string                  { return "SimpleMap" }
func (m *SimpleMap) EncodeRecord(w codec.Writer) error   { return mapSchema.Encode(w, m) }
func (m *SimpleMap) DecodeRecord(d *codec.Decoder) error { return mapSchema.Decode(d, m) }

// AddPin appends a location to the map.
func (m *SimpleMap) AddPin(p gamedb.Point3D) { m.Pins = append(m.Pins, p) }

func (m *SimpleMap) Use(env *attach.Env, self, from *gamedb.Entity) {
	if from == nil {
		return
	}
	if len(m.Pins) == 0 {
		env.Tell(from, "The map is blank.")
		return
	}
	if m.PinIndex < 0 || m.PinIndex >= len(m.Pins) {
		m.PinIndex = 0
	}
	env.Tell(from, fmt.Sprintf("Pin %d of %d marks %s.", m.PinIndex+1, len(m.Pins), m.Pins[m.PinIndex]))
	m.PinIndex = (m.PinIndex + 1) % len(m.Pins)
}

// LeadersBoard shows the quest ranking to whoever reads it.
type LeadersBoard struct{}

var boardSchema = codec.NewSchema[LeadersBoard]("LeadersBoard", codec.Fallthrough,
	codec.Group[LeadersBoard]{Since: 0},
)

func (b *LeadersBoard) RecordType() string                  { return "LeadersBoard" }
func (b *LeadersBoard) EncodeRecord(w codec.Writer) error   { return boardSchema.Encode(w, b) }
func (b *LeadersBoard) DecodeRecord(d *codec.Decoder) error { return boardSchema.Decode(d, b) }

func (b *LeadersBoard) Use(env *attach.Env, self, from *gamedb.Entity) {
	if from == nil {
		return
	}
	var lines []string
	if env.Rankings != nil {
		lines = env.Rankings.TopLines(0)
	}
	if len(lines) == 0 {
		env.Tell(from, "No one has been ranked yet.")
		return
	}
	env.Tell(from, "Quest leaders:")
	for _, l := range lines {
		env.Tell(from, l)
	}
}
