package archive

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestCreateAndRestore(t *testing.T) {
	src := t.TempDir()
	conf := filepath.Join(src, "host.yaml")
	writeFile(t, conf, "world_name: Britain\n")
	bolt := filepath.Join(src, "world.db")
	writeFile(t, bolt, "not really bolt")

	path, m, err := CreateArchive(ArchiveParams{
		BoltSnapshotFunc: func(dest string) error { return copyFile(bolt, dest) },
		DumpFunc: func(w io.Writer) error {
			_, err := io.WriteString(w, "+X1\n***END OF DUMP***\n")
			return err
		},
		ConfPath:   conf,
		ArchiveDir: filepath.Join(src, "backups"),
		WorldName:  "Britain",
		Entities:   3,
	})
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}
	if m.ID == "" || len(m.Files) != 3 || m.Files[boltName].Type != "bolt" {
		t.Errorf("manifest = %+v", m)
	}

	read, err := ReadManifest(path)
	if err != nil || read.ID != m.ID || read.Entities != 3 || read.WorldName != "Britain" {
		t.Fatalf("ReadManifest = %+v, %v", read, err)
	}

	dst := t.TempDir()
	res, err := RestoreArchive(RestoreParams{
		ArchivePath: path,
		BoltDest:    filepath.Join(dst, "world.db"),
		DumpDest:    filepath.Join(dst, "world.flat"),
		ConfDest:    filepath.Join(dst, "host.yaml"),
		Stdin:       strings.NewReader(""),
		Stdout:      io.Discard,
	})
	if err != nil {
		t.Fatalf("RestoreArchive: %v", err)
	}
	if res.FilesRestored != 3 || res.Manifest.ID != m.ID {
		t.Errorf("result = %+v", res)
	}
	got, _ := os.ReadFile(filepath.Join(dst, "world.flat"))
	if !strings.HasPrefix(string(got), "+X1") {
		t.Errorf("dump = %q", got)
	}
}

func TestRestoreKeepsIdenticalConfig(t *testing.T) {
	src := t.TempDir()
	conf := filepath.Join(src, "host.yaml")
	writeFile(t, conf, "a: 1\n")
	path, _, err := CreateArchive(ArchiveParams{ConfPath: conf, ArchiveDir: src})
	if err != nil {
		t.Fatal(err)
	}
	res, err := RestoreArchive(RestoreParams{ArchivePath: path, ConfDest: conf, Stdin: strings.NewReader(""), Stdout: io.Discard})
	if err != nil {
		t.Fatal(err)
	}
	if res.FilesRestored != 0 || len(res.Warnings) != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestListAndPrune(t *testing.T) {
	dir := t.TempDir()
	for range 3 {
		if _, _, err := CreateArchive(ArchiveParams{ArchiveDir: dir, WorldName: "w"}); err != nil {
			t.Fatal(err)
		}
	}
	list, err := ListArchives(dir)
	if err != nil || len(list) != 3 {
		t.Fatalf("ListArchives = %d, %v", len(list), err)
	}
	for i, ai := range list {
		if ai.Manifest == nil || ai.Manifest.WorldName != "w" {
			t.Errorf("archive %d manifest = %+v", i, ai.Manifest)
		}
		if i > 0 && ai.When().After(list[i-1].When()) {
			t.Errorf("archive %d newer than %d", i, i-1)
		}
	}
	writeFile(t, filepath.Join(dir, "junk.tar.gz"), "junk")
	if list, _ := ListArchives(dir); len(list) != 4 || countNil(list) != 1 {
		t.Errorf("junk archive not listed: %+v", list)
	}
	os.Remove(filepath.Join(dir, "junk.tar.gz"))
	if n := Prune(dir, 1); n != 2 {
		t.Errorf("pruned %d", n)
	}
	if list, _ := ListArchives(dir); len(list) != 1 {
		t.Errorf("%d left after prune", len(list))
	}
	if n := Prune(dir, 0); n != 0 {
		t.Errorf("keep 0 pruned %d", n)
	}
}

func TestRestoreDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	path, _, err := CreateArchive(ArchiveParams{ArchiveDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, path, "garbage")
	if _, err := RestoreArchive(RestoreParams{ArchivePath: path}); err == nil {
		t.Error("corrupt archive restored")
	}
}

func TestRestoreConfigPrompt(t *testing.T) {
	tests := []struct {
		input    string
		restored int
		want     string
	}{
		{"D\nU\n", 1, "a: 1\n"},
		{"k\n", 0, "a: 2\n"},
		{"x\n\n", 0, "a: 2\n"},
	}
	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.input, "\n", ","), func(t *testing.T) {
			src := t.TempDir()
			conf := filepath.Join(src, "host.yaml")
			writeFile(t, conf, "a: 1\n")
			path, _, err := CreateArchive(ArchiveParams{ConfPath: conf, ArchiveDir: src})
			if err != nil {
				t.Fatal(err)
			}
			writeFile(t, conf, "a: 2\n")

			var out strings.Builder
			res, err := RestoreArchive(RestoreParams{
				ArchivePath: path,
				ConfDest:    conf,
				Stdin:       strings.NewReader(tt.input),
				Stdout:      &out,
			})
			if err != nil {
				t.Fatal(err)
			}
			if res.FilesRestored != tt.restored {
				t.Errorf("restored %d, want %d", res.FilesRestored, tt.restored)
			}
			got, _ := os.ReadFile(conf)
			if string(got) != tt.want {
				t.Errorf("config = %q, want %q", got, tt.want)
			}
			if strings.HasPrefix(tt.input, "D") && !strings.Contains(out.String(), "+a: 1") {
				t.Errorf("diff output = %q", out.String())
			}
		})
	}
}

func countNil(list []ArchiveInfo) int {
	n := 0
	for _, ai := range list {
		if ai.Manifest == nil {
			n++
		}
	}
	return n
}
