package flatfile

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/codec"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"github.com/crystal-mush/xmlattach/pkg/items"
	"github.com/crystal-mush/xmlattach/pkg/npc"
	"github.com/crystal-mush/xmlattach/pkg/quest"
	"github.com/crystal-mush/xmlattach/pkg/script"
	"github.com/crystal-mush/xmlattach/pkg/timer"
)

type host struct {
	world *gamedb.World
	reg   *attach.Registry
}

func newHost() *host {
	clock := timer.NewManualClock(time.Unix(1_700_000_000, 0))
	h := &host{world: gamedb.NewWorld()}
	h.reg = attach.NewRegistry(h.world, timer.New(clock.Now), script.NewEngine(h.world))
	return h
}

func registries() (behaviors, attachments *codec.Registry) {
	behaviors, attachments = codec.NewRegistry(), codec.NewRegistry()
	items.RegisterBehaviors(behaviors)
	quest.RegisterBehaviors(behaviors)
	npc.RegisterBehaviors(behaviors)
	attach.RegisterBuiltins(attachments)
	quest.RegisterAttachments(attachments)
	npc.RegisterAttachments(attachments)
	return behaviors, attachments
}

func populate(t *testing.T, h *host) (lever, sw, alice *gamedb.Entity) {
	t.Helper()
	lever = gamedb.NewEntity(gamedb.KindItem, "a lever")
	l := items.NewLever()
	lever.Behavior = l
	h.world.Add(lever)

	sw = gamedb.NewEntity(gamedb.KindItem, "a switch")
	sw.Behavior = items.NewSwitch()
	h.world.Add(sw)
	l.Link = sw

	alice = gamedb.NewEntity(gamedb.KindMobile, "Alice")
	alice.Player = true
	alice.Props["Motto"] = "say \"hi\"\n\tthen\\leave"
	alice.Location = gamedb.Point3D{X: 10, Y: -20, Z: 5}
	h.world.Add(alice)

	if err := quest.GiveQuestPoints(h.reg.Env(), alice, quest.Info{Name: "Rats", Difficulty: 4}); err != nil {
		t.Fatal(err)
	}
	if err := h.reg.AttachTo(sw, attach.NewIsEnemy("Karma<0")); err != nil {
		t.Fatal(err)
	}
	return lever, sw, alice
}

func dump(t *testing.T, h *host) string {
	t.Helper()
	var buf bytes.Buffer
	if err := Write(&buf, h.world, h.reg); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return buf.String()
}

func TestWriteParseRoundTrip(t *testing.T) {
	src := newHost()
	lever, sw, alice := populate(t, src)
	text := dump(t, src)

	if !strings.HasPrefix(text, "+X1\n+N4\n!1\n") {
		t.Errorf("header = %q", text[:min(len(text), 20)])
	}
	if !strings.HasSuffix(text, endMarker+"\n") {
		t.Error("missing end marker")
	}

	dst := newHost()
	behaviors, attachments := registries()
	stats, err := Parse(strings.NewReader(text), dst.world, dst.reg, behaviors, attachments)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if stats.Entities != 3 || stats.Attachments != 2 || stats.Skipped != 0 {
		t.Errorf("stats = %v", stats)
	}

	gotLever, _ := dst.world.Lookup(lever.Serial)
	gotSwitch, _ := dst.world.Lookup(sw.Serial)
	gotAlice, _ := dst.world.Lookup(alice.Serial)
	if l, ok := gotLever.Behavior.(*items.Lever); !ok || l.Link != gotSwitch {
		t.Errorf("lever = %+v", gotLever.Behavior)
	}
	if gotAlice.Props["Motto"] != alice.Props["Motto"] || gotAlice.Location != alice.Location {
		t.Errorf("alice = %+v", gotAlice)
	}
	if quest.GetPoints(dst.reg.Env(), gotAlice) != 4 {
		t.Errorf("points = %d", quest.GetPoints(dst.reg.Env(), gotAlice))
	}
	if dst.world.NextSerial() != src.world.NextSerial() {
		t.Errorf("NextSerial = %d", dst.world.NextSerial())
	}

	// Writing the parsed world gives the same text back.
	if again := dump(t, dst); again != text {
		t.Errorf("second dump differs:\n%s\n---\n%s", text, again)
	}
}

func TestParseSkipsUnknownTypes(t *testing.T) {
	src := newHost()
	populate(t, src)
	text := dump(t, src)

	behaviors, attachments := codec.NewRegistry(), codec.NewRegistry()
	quest.RegisterAttachments(attachments)
	dst := newHost()
	stats, err := Parse(strings.NewReader(text), dst.world, dst.reg, behaviors, attachments)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if stats.Entities != 3 || stats.Skipped != 3 || stats.Attachments != 1 {
		t.Errorf("stats = %v", stats)
	}
}

func TestParseFailures(t *testing.T) {
	src := newHost()
	populate(t, src)
	text := dump(t, src)

	tests := []struct {
		name      string
		text      string
		malformed bool
	}{
		{"truncated string", strings.Replace(text, `s"Alice"`, `s"Alice`, 1), true},
		{"wrong tag", strings.Replace(text, `s"Alice"`, `i7`, 1), true},
		{"no end marker", strings.TrimSuffix(text, endMarker+"\n"), false},
		{"newer format", strings.Replace(text, "+X1", "+X9", 1), false},
		{"junk line", strings.Replace(text, "+N4\n", "+N4\n#comment\n", 1), false},
	}
	behaviors, attachments := registries()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := newHost()
			_, err := Parse(strings.NewReader(tt.text), dst.world, dst.reg, behaviors, attachments)
			if err == nil {
				t.Fatal("expected an error")
			}
			if codec.IsMalformed(err) != tt.malformed {
				t.Errorf("IsMalformed(%v) = %v", err, !tt.malformed)
			}
			if dst.world.Len() != 0 || dst.reg.Count() != 0 {
				t.Errorf("partial world kept: %d entities", dst.world.Len())
			}
		})
	}
}

func TestQuoteString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", `""`},
		{"plain", `"plain"`},
		{`a "b"`, `"a \"b\""`},
		{"x\\y", `"x\\y"`},
		{"line\nnext\r\ttab", `"line\nnext\r\ttab"`},
	}
	for _, tt := range tests {
		got := quoteString(tt.in)
		if got != tt.want {
			t.Errorf("quoteString(%q) = %s, want %s", tt.in, got, tt.want)
		}
		back, err := unquoteString(got)
		if err != nil || back != tt.in {
			t.Errorf("unquoteString(%s) = %q, %v", got, back, err)
		}
	}
	if _, err := unquoteString(`"open`); err == nil {
		t.Error("unterminated string accepted")
	}
}

func TestSaveLoad(t *testing.T) {
	src := newHost()
	populate(t, src)
	path := filepath.Join(t.TempDir(), "world.flat")
	if err := Save(path, src.world, src.reg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	dst := newHost()
	behaviors, attachments := registries()
	stats, err := Load(path, dst.world, dst.reg, behaviors, attachments)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stats.Entities != 3 || dst.world.Len() != 3 {
		t.Errorf("stats = %v", stats)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing"), newHost().world, dst.reg, behaviors, attachments); err == nil {
		t.Error("missing file loaded")
	}
}
