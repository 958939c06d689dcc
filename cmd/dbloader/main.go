package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/archive"
	"github.com/crystal-mush/xmlattach/pkg/attach"
	"github.com/crystal-mush/xmlattach/pkg/boltstore"
	"github.com/crystal-mush/xmlattach/pkg/flatfile"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"github.com/crystal-mush/xmlattach/pkg/server"
	"github.com/crystal-mush/xmlattach/pkg/validate"
)

func main() {
	dbPath := flag.String("db", "", "Path to a world flatfile")
	boltPath := flag.String("bolt", "", "Path to a bbolt world database")
	toFlat := flag.String("to-flat", "", "Write the loaded world as a flatfile")
	toBolt := flag.String("to-bolt", "", "Write the loaded world into a new bbolt database")
	showMobiles := flag.Bool("mobiles", false, "List all mobiles")
	showObj := flag.Int("obj", -1, "Show details for a specific entity by serial")
	showAttStats := flag.Bool("attstats", false, "Show attachment usage statistics")
	showLeaders := flag.Bool("leaders", false, "Show the quest ranking")
	runValidate := flag.Bool("validate", false, "Run integrity checks")
	fixAll := flag.Bool("fix", false, "Apply every available fix (with -validate)")
	reportPath := flag.String("report", "", "Write the validation report as JSON (with -validate)")
	archives := flag.String("archives", "", "List the archives in a directory and exit")
	flag.Parse()

	if *archives != "" {
		if err := listArchives(*archives); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if (*dbPath == "") == (*boltPath == "") {
		fmt.Fprintln(os.Stderr, "Usage: dbloader -db <flatfile> | -bolt <boltfile> [options]")
		fmt.Fprintln(os.Stderr, "  -to-flat <path>  Convert to flatfile")
		fmt.Fprintln(os.Stderr, "  -to-bolt <path>  Convert to bbolt")
		fmt.Fprintln(os.Stderr, "  -mobiles         List mobiles")
		fmt.Fprintln(os.Stderr, "  -obj <serial>    Show entity details")
		fmt.Fprintln(os.Stderr, "  -attstats        Show attachment usage stats")
		fmt.Fprintln(os.Stderr, "  -leaders         Show the quest ranking")
		fmt.Fprintln(os.Stderr, "  -validate        Run integrity checks (-fix, -report <json>)")
		fmt.Fprintln(os.Stderr, "Usage: dbloader -archives <dir>")
		os.Exit(1)
	}

	host := server.NewHost(nil)
	start := time.Now()
	stats, err := load(host, *dbPath, *boltPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded in %v: %v\n\n", time.Since(start), stats)

	// Always print summary
	printSummary(host)

	if *showMobiles {
		fmt.Println()
		printMobiles(host.World)
	}

	if *showObj >= 0 {
		fmt.Println()
		printEntity(host, gamedb.DBRef(*showObj))
	}

	if *showAttStats {
		fmt.Println()
		printAttStats(host.Registry)
	}

	if *showLeaders {
		fmt.Println()
		printLeaders(host)
	}

	if *runValidate {
		fmt.Println()
		if n := runValidation(host, *fixAll, *reportPath); n > 0 && *toFlat == "" && *toBolt == "" {
			os.Exit(2)
		}
	}

	if *toFlat != "" {
		if err := flatfile.Save(*toFlat, host.World, host.Registry); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nWrote flatfile %s\n", *toFlat)
	}

	if *toBolt != "" {
		if err := writeBolt(host, *toBolt); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nWrote bbolt database %s\n", *toBolt)
	}
}

func load(host *server.Host, dbPath, boltPath string) (attach.LoadStats, error) {
	if dbPath != "" {
		fmt.Printf("Loading flatfile: %s\n", dbPath)
		return flatfile.Load(dbPath, host.World, host.Registry, host.Behaviors, host.Attachments)
	}
	fmt.Printf("Loading bbolt database: %s\n", boltPath)
	store, err := boltstore.Open(boltPath)
	if err != nil {
		return attach.LoadStats{}, err
	}
	defer store.Close()
	return store.LoadWorld(host.World, host.Registry, host.Behaviors, host.Attachments)
}

func writeBolt(host *server.Host, path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	store, err := boltstore.Open(path)
	if err != nil {
		return err
	}
	if err := store.SaveWorld(host.World, host.Registry); err != nil {
		store.Close()
		return err
	}
	return store.Close()
}

func printSummary(host *server.Host) {
	fmt.Println("=== WORLD SUMMARY ===")
	fmt.Printf("Entities:       %d\n", host.World.Len())
	fmt.Printf("Attachments:    %d\n", host.Registry.Count())
	fmt.Printf("Next serial:    %s\n", host.World.NextSerial())
	fmt.Printf("Ranked:         %d questers\n", host.Leaders.Len())

	kinds := make(map[string]int)
	behaviors := make(map[string]int)
	host.World.Each(func(e *gamedb.Entity) {
		kinds[e.Kind.String()]++
		if e.Player {
			kinds["player"]++
		}
		if e.Behavior != nil {
			behaviors[e.Behavior.RecordType()]++
		}
	})

	fmt.Println("\n--- Entity Counts by Kind ---")
	for _, k := range sortedKeys(kinds) {
		fmt.Printf("  %-10s %d\n", k, kinds[k])
	}
	if len(behaviors) > 0 {
		fmt.Println("\n--- Behaviors ---")
		for _, k := range sortedKeys(behaviors) {
			fmt.Printf("  %-20s %d\n", k, behaviors[k])
		}
	}
}

func printMobiles(w *gamedb.World) {
	fmt.Println("=== MOBILES ===")
	fmt.Printf("%-8s %-25s %-8s %-8s %-10s %s\n", "Serial", "Name", "Karma", "Hits", "Access", "Location")
	fmt.Println(strings.Repeat("-", 80))
	count := 0
	w.Each(func(e *gamedb.Entity) {
		if !e.IsMobile() {
			return
		}
		loc, m := w.WorldLocation(e)
		fmt.Printf("%-8s %-25s %-8d %-8d %-10s %s %s\n",
			e.Serial, truncate(e.Name, 25), e.Karma, e.Hits, e.Access, loc, m)
		count++
	})
	fmt.Printf("\nTotal: %d mobiles\n", count)
}

func printEntity(host *server.Host, ref gamedb.DBRef) {
	e, ok := host.World.Lookup(ref)
	if !ok {
		fmt.Printf("Entity %s not found\n", ref)
		return
	}

	fmt.Printf("=== ENTITY %s ===\n", ref)
	fmt.Printf("Name:     %s\n", e.Name)
	fmt.Printf("Kind:     %s\n", e.Kind)
	if e.TypeName != "" {
		fmt.Printf("Type:     %s\n", e.TypeName)
	}
	fmt.Printf("Location: %s %s\n", e.Location, e.Map)
	if e.Parent != gamedb.Nothing {
		fmt.Printf("Parent:   %s (layer %d)\n", e.Parent, e.Layer)
	}
	if e.IsMobile() {
		fmt.Printf("Karma:    %d  Fame: %d  Hits: %d  Access: %s\n", e.Karma, e.Fame, e.Hits, e.Access)
	}
	if e.Hue != 0 {
		fmt.Printf("Hue:      %d\n", e.Hue)
	}
	if e.Behavior != nil {
		fmt.Printf("Behavior: %s\n", e.Behavior.RecordType())
	}

	if len(e.Props) > 0 {
		fmt.Printf("\nProperties (%d):\n", len(e.Props))
		for _, k := range sortedKeys(e.Props) {
			fmt.Printf("  %-20s %s\n", k, truncate(e.Props[k], 100))
		}
	}
	if len(e.Skills) > 0 {
		fmt.Printf("\nSkills (%d):\n", len(e.Skills))
		for _, k := range sortedKeys(e.Skills) {
			fmt.Printf("  %-20s %.1f\n", k, e.Skills[k])
		}
	}
	if len(e.SkillMods) > 0 {
		fmt.Printf("\nSkill mods (%d):\n", len(e.SkillMods))
		for _, m := range e.SkillMods {
			bound := "timed"
			if m.Item != gamedb.Nothing {
				bound = "item " + m.Item.String()
			}
			fmt.Printf("  %-20s %+.1f (%s)\n", m.Skill, m.Value, bound)
		}
	}

	atts := host.Registry.On(e)
	if len(atts) > 0 {
		fmt.Printf("\nAttachments (%d):\n", len(atts))
		for _, a := range atts {
			b := a.Core()
			line := fmt.Sprintf("  [%d] %-16s %q", b.Serial(), a.RecordType(), b.Name)
			if b.Expiration > 0 {
				line += fmt.Sprintf(" expires in %v", b.Remaining().Round(time.Second))
			}
			fmt.Println(line)
		}
	}
	if contents := host.World.Contents(e); len(contents) > 0 {
		fmt.Printf("\nContents (%d):\n", len(contents))
		for _, c := range contents {
			fmt.Printf("  %-8s %s\n", c.Serial, c.Name)
		}
	}
}

func printAttStats(reg *attach.Registry) {
	fmt.Println("=== ATTACHMENT USAGE ===")

	type stat struct {
		count   int
		owners  map[gamedb.DBRef]bool
		expires int
	}
	byType := make(map[string]*stat)
	reg.Each(func(a attach.Attachment) {
		s, ok := byType[a.RecordType()]
		if !ok {
			s = &stat{owners: make(map[gamedb.DBRef]bool)}
			byType[a.RecordType()] = s
		}
		s.count++
		if on := a.Core().AttachedTo(); on != nil {
			s.owners[on.Serial] = true
		}
		if a.Core().Expiration > 0 {
			s.expires++
		}
	})

	names := make([]string, 0, len(byType))
	for n := range byType {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		return byType[names[i]].count > byType[names[j]].count
	})

	fmt.Printf("%-20s %8s %8s %8s\n", "Type", "Count", "Owners", "Timed")
	fmt.Println(strings.Repeat("-", 48))
	for _, n := range names {
		s := byType[n]
		fmt.Printf("%-20s %8d %8d %8d\n", n, s.count, len(s.owners), s.expires)
	}
}

func printLeaders(host *server.Host) {
	fmt.Println("=== QUEST RANKING ===")
	for _, line := range host.Leaders.TopLines(0) {
		fmt.Println(line)
	}
}

// runValidation runs the checkers, optionally applies every fix and writes
// a JSON report. It returns the number of remaining errors.
func runValidation(host *server.Host, fix bool, reportPath string) int {
	fmt.Println("=== VALIDATION ===")
	v := validate.New(host.World, host.Registry)
	findings := v.Run()
	for _, f := range findings {
		fmt.Printf("%s: %s %s %s\n", strings.ToUpper(f.Severity.String()), f.ID, f.ObjectRef, f.Description)
		if f.Current != "" {
			fmt.Printf("    current: %s\n", f.Current)
		}
	}

	fixed := 0
	if fix {
		for _, cat := range validate.Categories {
			fixed += v.ApplyAll(cat)
		}
	}

	if reportPath != "" {
		f, err := os.Create(reportPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		} else {
			if err := validate.GenerateReport(v).WriteJSON(f); err != nil {
				fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			}
			f.Close()
		}
	}

	errs := v.Errors()
	fmt.Printf("\nValidation complete: %d findings, %d errors, %d fixed\n", len(findings), errs, fixed)
	return errs
}

func listArchives(dir string) error {
	list, err := archive.ListArchives(dir)
	if err != nil {
		return err
	}
	fmt.Printf("%-48s %-20s %10s %8s %s\n", "ARCHIVE", "WHEN", "SIZE", "ENTITIES", "WORLD")
	for _, ai := range list {
		world, entities := "?", "?"
		if m := ai.Manifest; m != nil {
			world, entities = m.WorldName, strconv.Itoa(m.Entities)
		}
		fmt.Printf("%-48s %-20s %10d %8s %s\n", ai.Filename(), ai.When().UTC().Format(time.DateTime), ai.Size, entities, world)
	}
	fmt.Printf("%d archives\n", len(list))
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
