package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// RestoreParams says which archive to restore and where each part goes.
// An empty destination skips that part.
type RestoreParams struct {
	ArchivePath string
	BoltDest    string
	SQLDest     string
	DumpDest    string
	ConfDest    string

	// Stdin and Stdout carry the prompt shown when the archived host config
	// differs from the one at ConfDest.
	Stdin  io.Reader
	Stdout io.Writer
}

// RestoreResult reports what a restore put back.
type RestoreResult struct {
	Manifest      *Manifest
	FilesRestored int
	Warnings      []string
}

// RestoreArchive unpacks an archive to a scratch directory, checks every
// file against the manifest checksums and only then copies the parts into
// place. A checksum failure restores nothing.
func RestoreArchive(params RestoreParams) (*RestoreResult, error) {
	scratch, err := os.MkdirTemp("", "xmlattach-restore-*")
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	defer os.RemoveAll(scratch)

	if err := unpack(params.ArchivePath, scratch); err != nil {
		return nil, fmt.Errorf("restore: unpack %s: %w", params.ArchivePath, err)
	}
	m, err := verify(scratch)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	res := &RestoreResult{Manifest: m}

	parts := []struct{ name, dest string }{
		{boltName, params.BoltDest},
		{sqlName, params.SQLDest},
		{dumpName, params.DumpDest},
	}
	for _, p := range parts {
		if p.dest == "" {
			continue
		}
		src := filepath.Join(scratch, filepath.FromSlash(p.name))
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := install(src, p.dest); err != nil {
			return nil, fmt.Errorf("restore: %s: %w", p.name, err)
		}
		res.FilesRestored++
	}

	if params.ConfDest == "" {
		return res, nil
	}
	name := filepath.Base(params.ConfDest)
	src := filepath.Join(scratch, "conf", name)
	if _, err := os.Stat(src); err != nil {
		return res, nil
	}
	choice, err := chooseConf(src, params.ConfDest, params.Stdin, params.Stdout)
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("config %s: %v", name, err))
		return res, nil
	}
	if choice != useArchived {
		res.Warnings = append(res.Warnings, "kept current config: "+name)
		return res, nil
	}
	if err := install(src, params.ConfDest); err != nil {
		return nil, fmt.Errorf("restore: conf %s: %w", name, err)
	}
	res.FilesRestored++
	return res, nil
}

func install(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	return copyFile(src, dest)
}

// verify reads the manifest out of dir and checks each listed file.
func verify(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, errors.New("archive has no manifest.json")
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	for name, entry := range m.Files {
		sum, err := sha256File(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if sum != entry.SHA256 {
			return nil, fmt.Errorf("%s: checksum mismatch, archive may be corrupt", name)
		}
	}
	return &m, nil
}

func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// unpack writes the regular files and directories of a .tar.gz under dir.
// Entries that would land outside dir are an error.
func unpack(path, dir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gz.Close()

	root := filepath.Clean(dir) + string(os.PathSeparator)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(dir, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(target+string(os.PathSeparator), root) {
			return fmt.Errorf("entry %q escapes the archive", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(target, 0755)
		case tar.TypeReg:
			err = writeEntry(target, tr)
		}
		if err != nil {
			return err
		}
	}
}

func writeEntry(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

type confChoice int

const (
	keepCurrent confChoice = iota
	useArchived
)

// chooseConf decides whether the archived config replaces current. A
// missing current file is replaced, an identical one kept. Otherwise the
// operator is asked; end of input keeps the current file.
func chooseConf(archived, current string, in io.Reader, out io.Writer) (confChoice, error) {
	cur, err := os.ReadFile(current)
	if errors.Is(err, os.ErrNotExist) {
		return useArchived, nil
	}
	if err != nil {
		return keepCurrent, err
	}
	arc, err := os.ReadFile(archived)
	if err != nil {
		return keepCurrent, err
	}
	if bytes.Equal(cur, arc) {
		return keepCurrent, nil
	}
	if in == nil || out == nil {
		return keepCurrent, nil
	}

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "\n%s differs from the archived copy.\n", filepath.Base(current))
		fmt.Fprint(out, "[K]eep current  [U]se archived  [D]iff  [S]kip: ")
		if !sc.Scan() {
			return keepCurrent, nil
		}
		answer := strings.ToUpper(strings.TrimSpace(sc.Text()))
		if answer == "" {
			continue
		}
		switch answer[0] {
		case 'U':
			return useArchived, nil
		case 'K', 'S':
			return keepCurrent, nil
		case 'D':
			lineDiff(out, string(cur), string(arc))
		default:
			fmt.Fprintln(out, "Answer K, U, D or S.")
		}
	}
}

// lineDiff prints the lines that differ position by position.
func lineDiff(w io.Writer, current, archived string) {
	a := strings.Split(current, "\n")
	b := strings.Split(archived, "\n")
	fmt.Fprintln(w, "\n--- current\n+++ archived")
	for i := range max(len(a), len(b)) {
		var x, y string
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x == y {
			continue
		}
		if i < len(a) {
			fmt.Fprintf(w, "-%s\n", x)
		}
		if i < len(b) {
			fmt.Fprintf(w, "+%s\n", y)
		}
	}
	fmt.Fprintln(w)
}
