package flatfile

import (
	"fmt"
	"io"
	"os"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
)

// formatVersion is the layout of the dump itself. Records carry their own
// versions.
const formatVersion = 1

const endMarker = "***END OF DUMP***"

// Write writes the world and its attachments to w in the text dump format.
func Write(w io.Writer, world *gamedb.World, reg *attach.Registry) error {
	tw := NewTextWriter(w)

	tw.Raw(fmt.Sprintf("+X%d", formatVersion))
	tw.Raw(fmt.Sprintf("+N%d", world.NextSerial()))

	var err error
	world.Each(func(e *gamedb.Entity) {
		if err != nil {
			return
		}
		tw.Raw(fmt.Sprintf("!%d", e.Serial))
		if werr := attach.EncodeEntity(tw, e); werr != nil {
			err = fmt.Errorf("writing entity %s: %w", e.Serial, werr)
		}
	})
	if err != nil {
		return err
	}

	world.Each(func(e *gamedb.Entity) {
		for _, a := range reg.On(e) {
			if err != nil || a.Core().IsDeleted() {
				continue
			}
			tw.Raw(fmt.Sprintf("@%d", e.Serial))
			if werr := attach.EncodeAttachment(tw, a); werr != nil {
				err = fmt.Errorf("writing %s on %s: %w", a.RecordType(), e.Serial, werr)
			}
		}
	})
	if err != nil {
		return err
	}

	tw.Raw(endMarker)
	return tw.Flush()
}

// Save writes the world to a file path.
func Save(path string, world *gamedb.World, reg *attach.Registry) error {
	// Write to temp file first, then rename for atomicity
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if err := Write(f, world, reg); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	// Rename temp to final
	if err := os.Rename(tmpPath, path); err != nil {
		// On Windows, may need to remove target first
		os.Remove(path)
		if err := os.Rename(tmpPath, path); err != nil {
			return fmt.Errorf("rename temp to final: %w", err)
		}
	}

	return nil
}
