package items

import (
	"strconv"
	"strings"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"github.com/crystal-mush/xmlattach/pkg/script"
)

const (
	// Digits is the number of dials on a combination lock.
	Digits = 8

	MaxCombination = 99999999

	// NothingHappens is told when a lock is tried with the wrong combination.
	NothingHappens = "Nothing happens."
)

// ClampDigit limits v to a single decimal digit.
func ClampDigit(v int) int { return min(max(v, 0), 9) }

// CombinationLock reads one digit from each of eight entity properties and
// fires its target property when the digits spell the combination. Digit 0
// is the least significant.
type CombinationLock struct {
	combination int

	Sound          int
	Dials          [Digits]Target
	Target         *gamedb.Entity
	TargetProperty string
}

func NewCombinationLock() *CombinationLock { return &CombinationLock{Sound: 940} }

var lockSchema = codec.NewSchema("CombinationLock", codec.Fallthrough,
	codec.Group[CombinationLock]{
		Since: 0,
		Write: func(w codec.Writer, l *CombinationLock) {
			w.WriteInt(l.combination)
			w.WriteInt(l.Sound)
			for _, t := range l.Dials {
				writeTarget(w, t)
			}
			codec.WriteEntity(w, l.Target)
			w.WriteString(l.TargetProperty)
		},
		Read: func(d *codec.Decoder, l *CombinationLock) {
			l.SetCombination(d.ReadInt())
			l.Sound = d.ReadInt()
			for i := range l.Dials {
				readTarget(d, &l.Dials[i])
			}
			d.ReadEntity(func(e *gamedb.Entity) { l.Target = e })
			l.TargetProperty = d.ReadString()
		},
	},
)

func (l *CombinationLock) RecordType() string                  { return "CombinationLock" }
func (l *CombinationLock) EncodeRecord(w codec.Writer) error   { return lockSchema.Encode(w, l) }
func (l *CombinationLock) DecodeRecord(d *codec.Decoder) error { return lockSchema.Decode(d, l) }

func (l *CombinationLock) Combination() int { return l.combination }

// SetCombination stores v clamped to 0..MaxCombination.
func (l *CombinationLock) SetCombination(v int) {
	l.combination = min(max(v, 0), MaxCombination)
}

// Digit returns the current value of dial i. A dial whose property is a
// test reads 1 when the test passes; otherwise the property value is used.
// Missing dials and unreadable values read 0.
func (l *CombinationLock) Digit(i int) int {
	if i < 0 || i >= Digits {
		return 0
	}
	t := l.Dials[i]
	if t.Entity.IsDeleted() || t.Property == "" {
		return 0
	}
	if script.IsTest(t.Property) {
		if script.EvaluateCondition(t.Entity, t.Property) {
			return 1
		}
		return 0
	}
	s, ok := t.Entity.GetProperty(t.Property)
	if !ok {
		return 0
	}
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return ClampDigit(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return ClampDigit(int(f))
	}
	return 0
}

// CurrentValue is the number spelled by the dials.
func (l *CombinationLock) CurrentValue() int {
	v, place := 0, 1
	for i := range Digits {
		v += l.Digit(i) * place
		place *= 10
	}
	return v
}

func (l *CombinationLock) Matched() bool { return l.CurrentValue() == l.combination }

// Use tries the lock.
func (l *CombinationLock) Use(env *attach.Env, self, from *gamedb.Entity) {
	if from == nil {
		return
	}
	if !inReach(env, from, self) {
		env.Tell(from, attach.TooFarMessage)
		return
	}
	if !l.Matched() {
		env.Tell(from, NothingHappens)
		return
	}
	Target{Entity: l.Target, Property: l.TargetProperty}.apply(env, from)
}
