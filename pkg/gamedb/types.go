package gamedb

import (
	"fmt"
	"strconv"
	"strings"
)

// DBRef is the serial of a world entity.
type DBRef int

const (
	Nothing DBRef = -1
)

func (r DBRef) String() string {
	if r == Nothing {
		return "#-1"
	}
	return "#" + strconv.Itoa(int(r))
}

// Kind distinguishes the two entity families attachments can live on.
type Kind int

const (
	KindItem   Kind = 0
	KindMobile Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindItem:
		return "item"
	case KindMobile:
		return "mobile"
	default:
		return "unknown"
	}
}

// AccessLevel orders staff privileges.
type AccessLevel int

const (
	Player AccessLevel = iota
	Counselor
	GameMaster
	Seer
	Administrator
)

var accessNames = []string{"Player", "Counselor", "GameMaster", "Seer", "Administrator"}

func (a AccessLevel) String() string {
	if a >= 0 && int(a) < len(accessNames) {
		return accessNames[a]
	}
	return "AccessLevel(" + strconv.Itoa(int(a)) + ")"
}

// ParseAccessLevel accepts a level name (case-insensitive) or its number.
func ParseAccessLevel(s string) (AccessLevel, error) {
	s = strings.TrimSpace(s)
	for i, n := range accessNames {
		if strings.EqualFold(n, s) {
			return AccessLevel(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n < len(accessNames) {
		return AccessLevel(n), nil
	}
	return Player, fmt.Errorf("gamedb: unknown access level %q", s)
}

// PoisonLevel is the strength of a poison effect.
type PoisonLevel int

const (
	PoisonNone PoisonLevel = iota
	PoisonLesser
	PoisonRegular
	PoisonGreater
	PoisonDeadly
	PoisonLethal
)

var poisonNames = []string{"None", "Lesser", "Regular", "Greater", "Deadly", "Lethal"}

func (p PoisonLevel) String() string {
	if p >= 0 && int(p) < len(poisonNames) {
		return poisonNames[p]
	}
	return "Unknown"
}

// ClampPoison converts a stored level, pinning it to None..Lethal.
func ClampPoison(n int) PoisonLevel {
	return PoisonLevel(max(int(PoisonNone), min(n, int(PoisonLethal))))
}

// Point3D is a world coordinate.
type Point3D struct {
	X, Y, Z int
}

func (p Point3D) String() string {
	return fmt.Sprintf("(%d, %d, %d)", p.X, p.Y, p.Z)
}

// Add returns p offset by o.
func (p Point3D) Add(o Point3D) Point3D {
	return Point3D{p.X + o.X, p.Y + o.Y, p.Z + o.Z}
}

// ParsePoint3D parses "x,y,z" with optional parentheses and spaces.
func ParsePoint3D(s string) (Point3D, error) {
	s = strings.Trim(strings.TrimSpace(s), "()")
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Point3D{}, fmt.Errorf("gamedb: bad point %q", s)
	}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Point3D{}, fmt.Errorf("gamedb: bad point %q", s)
		}
		v[i] = n
	}
	return Point3D{v[0], v[1], v[2]}, nil
}
