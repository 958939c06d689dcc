package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/crystal-mush/xmlattach/pkg/boltstore"
	"github.com/crystal-mush/xmlattach/pkg/flatfile"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"github.com/crystal-mush/xmlattach/pkg/script"
	"github.com/crystal-mush/xmlattach/pkg/server"
)

func main() {
	dbPath := flag.String("db", "", "Path to a world flatfile")
	boltPath := flag.String("bolt", "", "Path to a bbolt world database (read only)")
	target := flag.Int("target", -1, "Serial of the entity to evaluate against")
	expr := flag.String("e", "", "Line to evaluate (non-interactive mode)")
	batch := flag.String("batch", "", "File with lines to evaluate (one per line)")
	flag.Parse()

	host := server.NewHost(nil)
	if err := load(host, *dbPath, *boltPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading world: %v\n", err)
		os.Exit(1)
	}
	host.World.OnTell(func(to *gamedb.Entity, msg string) {
		fmt.Printf("  [tell %s]: %s\n", to.Serial, msg)
	})

	var self *gamedb.Entity
	if *target >= 0 {
		e, ok := host.World.Lookup(gamedb.DBRef(*target))
		if !ok {
			fmt.Fprintf(os.Stderr, "No entity %d\n", *target)
			os.Exit(1)
		}
		self = e
	} else {
		self = gamedb.NewEntity(gamedb.KindMobile, "Tester")
		self.Hits = 100
		self.Map = "Felucca"
		host.World.Add(self)
		fmt.Fprintf(os.Stderr, "Using test mobile %s\n", self.Serial)
	}
	s := &session{host: host, self: self}

	if *expr != "" {
		// Single line mode
		fmt.Println(s.eval(*expr))
		return
	}

	if *batch != "" {
		// Batch mode
		f, err := os.Open(*batch)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening batch file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()

		failed := 0
		scanner := bufio.NewScanner(f)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			line := scanner.Text()
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			// Format: line | expected_result (optional)
			parts := strings.SplitN(line, " | ", 2)
			result := s.eval(parts[0])

			if len(parts) == 2 {
				expected := parts[1]
				status := "PASS"
				if result != expected {
					status = "FAIL"
					failed++
				}
				fmt.Printf("[%s] Line %d: %s\n", status, lineNum, parts[0])
				if status == "FAIL" {
					fmt.Printf("  Expected: %s\n", expected)
					fmt.Printf("  Got:      %s\n", result)
				}
			} else {
				fmt.Printf("Line %d: %s => %s\n", lineNum, parts[0], result)
			}
		}
		if failed > 0 {
			os.Exit(1)
		}
		return
	}

	// Interactive REPL mode
	fmt.Printf("%s condition/action tester\n", server.VersionString())
	fmt.Printf("Target: %s %s\n", self.Serial, self.Name)
	fmt.Println("  ?<condition>   evaluate a condition, e.g. ?Karma>100")
	fmt.Println("  <actions>      run an action list, e.g. SET/Hue/33;MSG/hello")
	fmt.Println("  :target <n>    switch target    :show   print target")
	fmt.Println("  :tick          run deferred work")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("xml> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		fmt.Println(s.eval(line))
	}
}

func load(host *server.Host, dbPath, boltPath string) error {
	switch {
	case dbPath != "":
		fmt.Fprintf(os.Stderr, "Loading world from %s...\n", dbPath)
		stats, err := flatfile.Load(dbPath, host.World, host.Registry, host.Behaviors, host.Attachments)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Loaded %v\n", stats)
	case boltPath != "":
		fmt.Fprintf(os.Stderr, "Loading world from %s...\n", boltPath)
		store, err := boltstore.Open(boltPath)
		if err != nil {
			return err
		}
		defer store.Close()
		stats, err := store.LoadWorld(host.World, host.Registry, host.Behaviors, host.Attachments)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Loaded %v\n", stats)
	}
	return nil
}

type session struct {
	host *server.Host
	self *gamedb.Entity
}

// eval runs one line and returns its result. Results are stable so batch
// files can compare them.
func (s *session) eval(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "?"):
		ok, err := script.Check(s.self, strings.TrimSpace(line[1:]))
		if err != nil {
			return fmt.Sprintf("%v (%v)", ok, err)
		}
		return strconv.FormatBool(ok)

	case line == ":tick":
		return fmt.Sprintf("ran %d", s.host.Timers.Tick())

	case line == ":show":
		return describe(s.self)

	case strings.HasPrefix(line, ":target"):
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, ":target")))
		if err != nil {
			return "usage: :target <serial>"
		}
		e, ok := s.host.World.Lookup(gamedb.DBRef(n))
		if !ok {
			return fmt.Sprintf("no entity %d", n)
		}
		s.self = e
		return describe(e)
	}

	res := s.host.Script.RunActions(s.self, line)
	out := fmt.Sprintf("ran=%d failed=%d", res.Ran, res.Failed)
	for _, err := range res.Errors {
		out += "\n  " + err.Error()
	}
	return out
}

func describe(e *gamedb.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %q %s at %s %s", e.Serial, e.Name, e.Kind, e.Location, e.Map)
	fmt.Fprintf(&b, "\n  hue=%d karma=%d fame=%d hits=%d frozen=%v", e.Hue, e.Karma, e.Fame, e.Hits, e.Frozen)
	if e.Deleted {
		b.WriteString(" DELETED")
	}
	keys := make([]string, 0, len(e.Props))
	for k := range e.Props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n  %s=%s", k, e.Props[k])
	}
	return b.String()
}
