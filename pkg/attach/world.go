package attach

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

const (
	maxEntityMaps = 1 << 16
	maxSkillMods  = 1 << 12
)

var entitySchema = codec.NewSchema("entity", codec.Ascending,
	codec.Group[gamedb.Entity]{
		Since: 0,
		Write: func(w codec.Writer, e *gamedb.Entity) {
			w.WriteRef(e.Serial)
			w.WriteInt(int(e.Kind))
			w.WriteString(e.Name)
			w.WriteString(e.TypeName)
			w.WriteInt(e.Hue)
			w.WriteInt(e.Karma)
			w.WriteInt(e.Fame)
			w.WriteInt(e.Hits)
			w.WriteBool(e.Frozen)
			w.WriteBool(e.Player)
			w.WriteInt(int(e.Access))
			w.WritePoint(e.Location)
			w.WriteString(e.Map)
			w.WriteRef(e.Parent)
			w.WriteInt(e.Layer)
			w.WriteBool(e.Movable)
		},
		Read: func(d *codec.Decoder, e *gamedb.Entity) {
			e.Serial = d.ReadRef()
			switch kind := gamedb.Kind(d.ReadInt()); kind {
			case gamedb.KindItem, gamedb.KindMobile:
				e.Kind = kind
			default:
				d.Fail(fmt.Errorf("attach: bad entity kind %d", kind))
			}
			e.Name = d.ReadString()
			e.TypeName = d.ReadString()
			e.Hue = d.ReadInt()
			e.Karma = d.ReadInt()
			e.Fame = d.ReadInt()
			e.Hits = d.ReadInt()
			e.Frozen = d.ReadBool()
			e.Player = d.ReadBool()
			e.Access = gamedb.AccessLevel(d.ReadInt())
			e.Location = d.ReadPoint()
			e.Map = d.ReadString()
			e.Parent = d.ReadRef()
			e.Layer = d.ReadInt()
			e.Movable = d.ReadBool()
		},
	},
	codec.Group[gamedb.Entity]{
		Since: 1,
		Write: func(w codec.Writer, e *gamedb.Entity) {
			skills := sortedKeys(e.Skills)
			w.WriteInt(len(skills))
			for _, k := range skills {
				w.WriteString(k)
				w.WriteDouble(e.Skills[k])
			}
			props := sortedKeys(e.Props)
			w.WriteInt(len(props))
			for _, k := range props {
				w.WriteString(k)
				w.WriteString(e.Props[k])
			}
			w.WriteInt(len(e.SkillMods))
			for _, m := range e.SkillMods {
				w.WriteString(m.Skill)
				w.WriteDouble(m.Value)
				w.WriteTime(m.Expires)
				w.WriteRef(m.Item)
			}
		},
		Read: func(d *codec.Decoder, e *gamedb.Entity) {
			n := d.ReadCount(maxEntityMaps)
			e.Skills = make(map[string]float64, n)
			for range n {
				k := d.ReadString()
				e.Skills[k] = d.ReadDouble()
			}
			n = d.ReadCount(maxEntityMaps)
			e.Props = make(map[string]string, n)
			for range n {
				k := d.ReadString()
				e.Props[k] = d.ReadString()
			}
			n = d.ReadCount(maxSkillMods)
			e.SkillMods = make([]gamedb.SkillMod, 0, n)
			for range n {
				var m gamedb.SkillMod
				m.Skill = d.ReadString()
				m.Value = d.ReadDouble()
				m.Expires = d.ReadTime()
				m.Item = d.ReadRef()
				e.SkillMods = append(e.SkillMods, m)
			}
		},
	},
	codec.Group[gamedb.Entity]{
		Since: 2,
		Write: func(w codec.Writer, e *gamedb.Entity) {
			w.WriteInt(int(e.PoisonImmune))
			w.WriteInt(int(e.HitPoison))
		},
		Read: func(d *codec.Decoder, e *gamedb.Entity) {
			e.PoisonImmune = gamedb.ClampPoison(d.ReadInt())
			e.HitPoison = gamedb.ClampPoison(d.ReadInt())
		},
	},
)

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// EncodeEntity writes e's base state, then its behavior type name and
// record. Behaviors that do not persist are written as an empty name.
func EncodeEntity(w codec.Writer, e *gamedb.Entity) error {
	if err := entitySchema.Encode(w, e); err != nil {
		return err
	}
	rec, ok := e.Behavior.(codec.Record)
	if !ok {
		w.WriteString("")
		return w.Err()
	}
	w.WriteString(rec.RecordType())
	if err := rec.EncodeRecord(w); err != nil {
		return fmt.Errorf("attach: encode %s behavior of %s: %w", rec.RecordType(), e.Serial, err)
	}
	return nil
}

// DecodeEntity reads an entity written by EncodeEntity. An unknown
// behavior type returns the entity without a behavior and an error
// wrapping codec.ErrUnknownType; the behavior record is left unread.
func DecodeEntity(d *codec.Decoder, behaviors *codec.Registry) (*gamedb.Entity, error) {
	e := gamedb.NewEntity(gamedb.KindItem, "")
	if err := entitySchema.Decode(d, e); err != nil {
		return nil, err
	}
	name := d.ReadString()
	if err := d.Err(); err != nil {
		return nil, &codec.DeserializationError{Schema: "entity", Version: d.Version(), Group: -1, Err: err}
	}
	if name == "" {
		return e, nil
	}
	rec, err := behaviors.New(name)
	if err != nil {
		return e, fmt.Errorf("attach: behavior of %s: %w", e.Serial, err)
	}
	if err := rec.DecodeRecord(d); err != nil {
		return nil, fmt.Errorf("attach: decode %s behavior of %s: %w", name, e.Serial, err)
	}
	e.Behavior = rec
	return e, nil
}

// EncodeAttachment writes a's type name, the serial of the entity it is
// on, and its record.
func EncodeAttachment(w codec.Writer, a Attachment) error {
	w.WriteString(a.RecordType())
	w.WriteRef(a.Core().on.Serial)
	if err := a.EncodeRecord(w); err != nil {
		return fmt.Errorf("attach: encode %s: %w", a.RecordType(), err)
	}
	return nil
}

// LoadStats summarizes a completed load.
type LoadStats struct {
	Entities    int
	Attachments int
	Skipped     int // records of unknown type
	Unresolved  int // references to entities that were not loaded
	Orphans     int // attachments whose entity was not loaded
	Restored    int // behaviors whose post-load hook ran
}

func (s LoadStats) String() string {
	return fmt.Sprintf("%d entities, %d attachments, %d skipped, %d unresolved, %d orphaned",
		s.Entities, s.Attachments, s.Skipped, s.Unresolved, s.Orphans)
}

type owned struct {
	a     Attachment
	owner gamedb.DBRef
}

// Loader collects decoded entities and attachments and installs them in a
// world only once every record has been read. A caller that hits an error
// from Entity or Attachment drops the Loader and the world stays as it
// was.
type Loader struct {
	behaviors   *codec.Registry
	attachments *codec.Registry

	fixups   codec.Fixups
	entities []*gamedb.Entity
	pending  []owned
	stats    LoadStats
}

// NewLoader returns a loader resolving type names against the given
// registries.
func NewLoader(behaviors, attachments *codec.Registry) *Loader {
	return &Loader{behaviors: behaviors, attachments: attachments}
}

// Entity decodes one entity value. Unknown behavior types are logged and
// the entity is kept without its behavior.
func (l *Loader) Entity(r codec.Reader) error {
	e, err := DecodeEntity(codec.NewDecoder(r, &l.fixups), l.behaviors)
	if e != nil {
		l.entities = append(l.entities, e)
	}
	if errors.Is(err, codec.ErrUnknownType) {
		log.Printf("attach: %v, behavior skipped", err)
		l.stats.Skipped++
		return nil
	}
	return err
}

// Attachment decodes one attachment value. Unknown types are logged and
// skipped.
func (l *Loader) Attachment(r codec.Reader) error {
	d := codec.NewDecoder(r, &l.fixups)
	name := d.ReadString()
	owner := d.ReadRef()
	if err := d.Err(); err != nil {
		return &codec.DeserializationError{Schema: "attachment", Version: -1, Group: -1, Err: err}
	}
	a, err := New(l.attachments, name)
	if err != nil {
		log.Printf("attach: %v on %s, skipped", err, owner)
		l.stats.Skipped++
		return nil
	}
	if err := a.DecodeRecord(d); err != nil {
		return fmt.Errorf("attach: decode %s on %s: %w", name, owner, err)
	}
	l.pending = append(l.pending, owned{a: a, owner: owner})
	return nil
}

// Commit adds the entities to world, resolves references and runs the
// After hooks, re-indexes the attachments in reg, runs the behaviors'
// post-load hooks and finally restores the serial allocator.
func (l *Loader) Commit(world *gamedb.World, reg *Registry, next gamedb.DBRef) LoadStats {
	for _, e := range l.entities {
		world.Add(e)
	}
	l.stats.Entities = len(l.entities)
	l.stats.Unresolved = l.fixups.Run(world)

	for _, p := range l.pending {
		e, ok := world.Lookup(p.owner)
		if !ok {
			log.Printf("attach: %s on missing %s dropped", p.a.RecordType(), p.owner)
			l.stats.Orphans++
			continue
		}
		if err := reg.Load(p.a, e); err != nil {
			log.Printf("attach: load %s on %s: %v", p.a.RecordType(), p.owner, err)
			l.stats.Orphans++
			continue
		}
		l.stats.Attachments++
	}
	l.stats.Restored = reg.RestoreBehaviors()
	world.SetNextSerial(next)

	stats := l.stats
	l.entities, l.pending, l.stats = nil, nil, LoadStats{}
	return stats
}
