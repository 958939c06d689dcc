package script

import (
	"errors"
	"fmt"
	"strings"

	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// ApplyProperties sets each property/value pair in a '/'-separated string,
// for example "Hue/33/Name/an open door". Every pair is attempted; the
// returned error joins the pairs that failed.
func ApplyProperties(target *gamedb.Entity, props string) error {
	if target == nil {
		return ErrNoTarget
	}
	props = strings.TrimSpace(props)
	if props == "" {
		return nil
	}
	fields := strings.Split(props, "/")
	var errs []error
	for i := 0; i < len(fields); i += 2 {
		name := strings.TrimSpace(fields[i])
		if i+1 >= len(fields) {
			errs = append(errs, fmt.Errorf("script: property %q has no value", name))
			break
		}
		if err := target.SetProperty(name, fields[i+1]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
