package archive

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ArchiveInfo is one archive found on disk.
type ArchiveInfo struct {
	Path     string
	Size     int64
	ModTime  time.Time
	Manifest *Manifest // nil when the manifest could not be read
}

// Filename is the archive's base name.
func (ai ArchiveInfo) Filename() string { return filepath.Base(ai.Path) }

// When is the manifest timestamp, or the file time if the manifest is
// missing or its timestamp does not parse.
func (ai ArchiveInfo) When() time.Time {
	if ai.Manifest != nil {
		if t, err := time.Parse(time.RFC3339, ai.Manifest.Timestamp); err == nil {
			return t
		}
	}
	return ai.ModTime
}

// ListArchives returns the .tar.gz files in dir, newest first.
func ListArchives(dir string) ([]ArchiveInfo, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.tar.gz"))
	if err != nil {
		return nil, fmt.Errorf("archive: list %s: %w", dir, err)
	}
	out := make([]ArchiveInfo, 0, len(paths))
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			continue
		}
		ai := ArchiveInfo{Path: p, Size: st.Size(), ModTime: st.ModTime()}
		if m, err := ReadManifest(p); err == nil {
			ai.Manifest = m
		}
		out = append(out, ai)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].When(), out[j].When()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].Path > out[j].Path
	})
	return out, nil
}

// Prune keeps the newest keep archives in dir and removes the rest. It
// returns how many were removed; keep <= 0 removes nothing.
func Prune(dir string, keep int) int {
	if keep <= 0 {
		return 0
	}
	list, err := ListArchives(dir)
	if err != nil {
		log.Printf("archive: prune: %v", err)
		return 0
	}
	removed := 0
	for i := keep; i < len(list); i++ {
		if err := os.Remove(list[i].Path); err != nil {
			log.Printf("archive: prune %s: %v", list[i].Filename(), err)
			continue
		}
		log.Printf("archive: pruned %s", list[i].Filename())
		removed++
	}
	return removed
}

// ReadManifest returns the manifest of the archive at path without
// unpacking anything else.
func ReadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("archive: no manifest.json")
		}
		if err != nil {
			return nil, err
		}
		if hdr.Name != "manifest.json" {
			continue
		}
		var m Manifest
		if err := json.NewDecoder(tr).Decode(&m); err != nil {
			return nil, fmt.Errorf("archive: manifest: %w", err)
		}
		return &m, nil
	}
}
