// Package archive bundles the world store, the leader export and the host
// config into a checksummed .tar.gz with a JSON manifest.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Manifest describes the contents of an archive.
type Manifest struct {
	Version     int                  `json:"version"`
	ID          string               `json:"id"`
	Server      string               `json:"server"`
	Timestamp   string               `json:"timestamp"`
	WorldName   string               `json:"world_name"`
	Entities    int                  `json:"entities"`
	Attachments int                  `json:"attachments"`
	Files       map[string]FileEntry `json:"files"`
}

// FileEntry describes a single file within the archive.
type FileEntry struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
	Type   string `json:"type"` // "bolt", "sql", "dump", "conf"
}

// Archive member names.
const (
	boltName = "data/world.bolt"
	sqlName  = "data/leaders.sqldb"
	dumpName = "data/world.flat"
)

// ArchiveParams holds all inputs needed to create an archive.
type ArchiveParams struct {
	BoltSnapshotFunc  func(destPath string) error // Caller provides bolt snapshot closure
	DumpFunc          func(w io.Writer) error     // Text dump of the world (nil = skip)
	SQLPath           string                      // Path to SQLite database (empty = skip)
	SQLCheckpointFunc func() error                // Checkpoint WAL before copy (nil = skip)
	ConfPath          string                      // Path to host config file (empty = skip)
	ArchiveDir        string                      // Output directory for the archive
	WorldName         string                      // World name for manifest
	Entities          int
	Attachments       int
}

// CreateArchive creates a .tar.gz archive of all world data and returns the
// archive path and its manifest.
func CreateArchive(params ArchiveParams) (string, *Manifest, error) {
	if err := os.MkdirAll(params.ArchiveDir, 0755); err != nil {
		return "", nil, fmt.Errorf("archive: create dir %s: %w", params.ArchiveDir, err)
	}

	now := time.Now()
	id := uuid.NewString()
	filename := fmt.Sprintf("archive-%s-%s.tar.gz", now.Format("20060102-150405"), id[:8])
	archivePath := filepath.Join(params.ArchiveDir, filename)

	// Create temp dir for staging
	tmpDir, err := os.MkdirTemp("", "xmlattach-archive-*")
	if err != nil {
		return "", nil, fmt.Errorf("archive: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	manifest := &Manifest{
		Version:     1,
		ID:          id,
		Server:      "xmlattach",
		Timestamp:   now.UTC().Format(time.RFC3339),
		WorldName:   params.WorldName,
		Entities:    params.Entities,
		Attachments: params.Attachments,
		Files:       make(map[string]FileEntry),
	}

	type staged struct {
		path, name, kind string
	}
	var files []staged

	if params.BoltSnapshotFunc != nil {
		p := filepath.Join(tmpDir, "world.bolt")
		if err := params.BoltSnapshotFunc(p); err != nil {
			return "", nil, fmt.Errorf("archive: bolt snapshot: %w", err)
		}
		files = append(files, staged{p, boltName, "bolt"})
	}

	if params.DumpFunc != nil {
		p := filepath.Join(tmpDir, "world.flat")
		if err := writeDump(p, params.DumpFunc); err != nil {
			return "", nil, fmt.Errorf("archive: dump: %w", err)
		}
		files = append(files, staged{p, dumpName, "dump"})
	}

	if params.SQLPath != "" {
		if params.SQLCheckpointFunc != nil {
			if err := params.SQLCheckpointFunc(); err != nil {
				return "", nil, fmt.Errorf("archive: sql checkpoint: %w", err)
			}
		}
		p := filepath.Join(tmpDir, "leaders.sqldb")
		if err := copyFile(params.SQLPath, p); err != nil {
			return "", nil, fmt.Errorf("archive: copy sql: %w", err)
		}
		files = append(files, staged{p, sqlName, "sql"})
	}

	if params.ConfPath != "" {
		if _, err := os.Stat(params.ConfPath); err == nil {
			files = append(files, staged{params.ConfPath, "conf/" + filepath.Base(params.ConfPath), "conf"})
		}
	}

	outFile, err := os.Create(archivePath)
	if err != nil {
		return "", nil, fmt.Errorf("archive: create %s: %w", archivePath, err)
	}
	defer outFile.Close()

	gw := gzip.NewWriter(outFile)
	tw := tar.NewWriter(gw)

	for _, f := range files {
		entry, err := addFileToTar(tw, f.path, f.name)
		if err != nil {
			return "", nil, err
		}
		entry.Type = f.kind
		manifest.Files[f.name] = entry
	}

	// Marshal and add manifest as the last entry
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("archive: marshal manifest: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    "manifest.json",
		Size:    int64(len(manifestJSON)),
		Mode:    0644,
		ModTime: now,
	}); err != nil {
		return "", nil, fmt.Errorf("archive: write manifest header: %w", err)
	}
	if _, err := tw.Write(manifestJSON); err != nil {
		return "", nil, fmt.Errorf("archive: write manifest: %w", err)
	}

	if err := tw.Close(); err != nil {
		return "", nil, fmt.Errorf("archive: close tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return "", nil, fmt.Errorf("archive: close gzip: %w", err)
	}
	if err := outFile.Close(); err != nil {
		return "", nil, fmt.Errorf("archive: close %s: %w", archivePath, err)
	}
	return archivePath, manifest, nil
}

func writeDump(path string, dump func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := dump(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// addFileToTar adds a single file to the tar archive with the given archive name,
// computing its SHA-256 while writing.
func addFileToTar(tw *tar.Writer, srcPath, archName string) (FileEntry, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: open %s: %w", srcPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: stat %s: %w", srcPath, err)
	}

	// Use forward slashes in tar paths
	archName = strings.ReplaceAll(archName, "\\", "/")

	if err := tw.WriteHeader(&tar.Header{
		Name:    archName,
		Size:    info.Size(),
		Mode:    0644,
		ModTime: info.ModTime(),
	}); err != nil {
		return FileEntry{}, fmt.Errorf("archive: header %s: %w", archName, err)
	}

	h := sha256.New()
	written, err := io.Copy(tw, io.TeeReader(f, h))
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: write %s: %w", archName, err)
	}

	return FileEntry{
		SHA256: hex.EncodeToString(h.Sum(nil)),
		Size:   written,
	}, nil
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
