package gamedb

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownProperty is returned when a property name matches neither a
// built-in field nor a custom property.
var ErrUnknownProperty = errors.New("unknown property")

// ErrReadOnly is returned when setting a property that cannot be assigned.
var ErrReadOnly = errors.New("read-only property")

const skillPrefix = "skill."

// GetProperty returns the textual value of a property. Built-in field names
// are matched case-insensitively; anything else is looked up in Props.
// "Skill.<name>" reads a base skill value.
func (e *Entity) GetProperty(name string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "name":
		return e.Name, true
	case "type", "typename":
		return e.TypeName, true
	case "serial":
		return strconv.Itoa(int(e.Serial)), true
	case "kind":
		return e.Kind.String(), true
	case "hue":
		return strconv.Itoa(e.Hue), true
	case "karma":
		return strconv.Itoa(e.Karma), true
	case "fame":
		return strconv.Itoa(e.Fame), true
	case "hits":
		return strconv.Itoa(e.Hits), true
	case "frozen":
		return strconv.FormatBool(e.Frozen), true
	case "player":
		return strconv.FormatBool(e.Player), true
	case "accesslevel":
		return e.Access.String(), true
	case "x":
		return strconv.Itoa(e.Location.X), true
	case "y":
		return strconv.Itoa(e.Location.Y), true
	case "z":
		return strconv.Itoa(e.Location.Z), true
	case "location":
		return e.Location.String(), true
	case "map":
		return e.Map, true
	case "layer":
		return strconv.Itoa(e.Layer), true
	case "movable":
		return strconv.FormatBool(e.Movable), true
	case "deleted":
		return strconv.FormatBool(e.Deleted), true
	case "poisonimmune":
		return e.PoisonImmune.String(), true
	case "hitpoison":
		return e.HitPoison.String(), true
	}
	if strings.HasPrefix(key, skillPrefix) {
		v, ok := e.Skills[name[len(skillPrefix):]]
		if !ok {
			return "0", true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	for k, v := range e.Props {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// SetProperty assigns a property from its textual form. Unknown names are
// stored as custom properties.
func (e *Entity) SetProperty(name, value string) error {
	key := strings.ToLower(strings.TrimSpace(name))
	value = strings.TrimSpace(value)
	var err error
	switch key {
	case "":
		return fmt.Errorf("gamedb: empty property name")
	case "name":
		e.Name = value
	case "type", "typename", "serial", "kind", "deleted":
		return fmt.Errorf("gamedb: %s: %w", name, ErrReadOnly)
	case "hue":
		e.Hue, err = strconv.Atoi(value)
	case "karma":
		e.Karma, err = strconv.Atoi(value)
	case "fame":
		e.Fame, err = strconv.Atoi(value)
	case "hits":
		e.Hits, err = strconv.Atoi(value)
	case "frozen":
		e.Frozen, err = strconv.ParseBool(value)
	case "player":
		e.Player, err = strconv.ParseBool(value)
	case "accesslevel":
		e.Access, err = ParseAccessLevel(value)
	case "x":
		e.Location.X, err = strconv.Atoi(value)
	case "y":
		e.Location.Y, err = strconv.Atoi(value)
	case "z":
		e.Location.Z, err = strconv.Atoi(value)
	case "location":
		e.Location, err = ParsePoint3D(value)
	case "map":
		e.Map = value
	case "layer":
		e.Layer, err = strconv.Atoi(value)
	case "movable":
		e.Movable, err = strconv.ParseBool(value)
	default:
		if strings.HasPrefix(key, skillPrefix) {
			var v float64
			v, err = strconv.ParseFloat(value, 64)
			if err == nil {
				if e.Skills == nil {
					e.Skills = make(map[string]float64)
				}
				e.Skills[name[len(skillPrefix):]] = v
			}
			break
		}
		if e.Props == nil {
			e.Props = make(map[string]string)
		}
		for k := range e.Props {
			if strings.EqualFold(k, name) {
				delete(e.Props, k)
			}
		}
		e.Props[strings.TrimSpace(name)] = value
	}
	if err != nil {
		return fmt.Errorf("gamedb: set %s=%q: %w", name, value, err)
	}
	return nil
}
