package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crystal-mush/xmlattach/pkg/archive"
	"github.com/crystal-mush/xmlattach/pkg/flatfile"
	"github.com/crystal-mush/xmlattach/pkg/server"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	confFile := flag.String("conf", envDefault("XMLATTACH_CONF", ""), "Path to host config file (env: XMLATTACH_CONF)")
	boltPath := flag.String("bolt", envDefault("XMLATTACH_BOLT", ""), "Path to bbolt world database, overrides config (env: XMLATTACH_BOLT)")
	sqlDBPath := flag.String("sqldb", envDefault("XMLATTACH_SQLDB", ""), "Path to SQLite3 leader export database (env: XMLATTACH_SQLDB)")
	metricsAddr := flag.String("metrics", envDefault("XMLATTACH_METRICS", ""), "Listen address for /metrics and /stats, e.g. :9100 (env: XMLATTACH_METRICS)")
	importFlat := flag.String("import", envDefault("XMLATTACH_IMPORT", ""), "Flatfile to import into an empty world (env: XMLATTACH_IMPORT)")
	forceImport := flag.Bool("force", os.Getenv("XMLATTACH_FORCE") == "true", "Replace a non-empty world on -import (env: XMLATTACH_FORCE)")
	restoreArchive := flag.String("restore", envDefault("XMLATTACH_RESTORE", ""), "Restore from archive before boot (env: XMLATTACH_RESTORE)")
	archiveOnExit := flag.Bool("archive", os.Getenv("XMLATTACH_ARCHIVE") == "true", "Write an archive on shutdown (env: XMLATTACH_ARCHIVE)")
	debug := flag.Bool("debug", os.Getenv("XMLATTACH_DEBUG") == "true", "Enable debug logging (env: XMLATTACH_DEBUG)")
	flag.Parse()

	log.Printf("Welcome to %s", server.VersionString())
	server.SetDebug(*debug)

	// Load host config if specified, otherwise use defaults
	var hc *server.HostConf
	if *confFile != "" {
		var err error
		hc, err = server.LoadHostConf(*confFile)
		if err != nil {
			log.Fatalf("Error loading host config: %v", err)
		}
		log.Printf("Loaded host config from %s", *confFile)
	} else {
		hc = server.DefaultHostConf()
	}

	// Command-line flags override config file values
	if *boltPath != "" {
		hc.BoltPath = *boltPath
	}
	if *sqlDBPath != "" {
		hc.SQLDatabase = *sqlDBPath
	}
	if *metricsAddr != "" {
		hc.MetricsAddr = *metricsAddr
	}

	// Pre-boot restore from archive
	if *restoreArchive != "" {
		log.Printf("Restoring from archive: %s", *restoreArchive)
		result, err := archive.RestoreArchive(archive.RestoreParams{
			ArchivePath: *restoreArchive,
			BoltDest:    hc.BoltPath,
			SQLDest:     hc.SQLDatabase,
			ConfDest:    *confFile,
			Stdin:       os.Stdin,
			Stdout:      os.Stdout,
		})
		if err != nil {
			log.Fatalf("Restore failed: %v", err)
		}
		log.Printf("Restore complete: %d files restored", result.FilesRestored)
		for _, w := range result.Warnings {
			log.Printf("Restore warning: %s", w)
		}
	}

	host := server.NewHost(hc)
	if err := host.Open(hc.BoltPath); err != nil {
		log.Fatalf("Error opening world %s: %v", hc.BoltPath, err)
	}

	if *importFlat != "" {
		if err := importWorld(host, *importFlat, *forceImport); err != nil {
			host.Close()
			log.Fatalf("Import failed: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var web *http.Server
	if hc.MetricsAddr != "" {
		web = startWeb(host, hc.MetricsAddr)
	}

	log.Printf("Running world %q, tick %v, autosave %v", hc.WorldName, hc.TickInterval(), hc.AutosaveInterval())
	if err := host.Run(ctx); err != nil {
		log.Printf("Run: %v", err)
	}
	log.Printf("Shutting down...")

	if web != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		web.Shutdown(shutdownCtx)
		cancel()
	}
	if host.LeaderDB != nil {
		if err := host.ExportLeaders(context.Background()); err != nil {
			log.Printf("Leader export failed: %v", err)
		}
	}
	if *archiveOnExit {
		if err := host.Save(); err != nil {
			log.Printf("Save before archive failed: %v", err)
		}
		if _, err := host.Archive(); err != nil {
			log.Printf("Archive failed: %v", err)
		}
	}
	if err := host.Close(); err != nil {
		log.Fatalf("Close: %v", err)
	}
	log.Printf("Shutdown complete.")
}

// importWorld replaces the host's world with a flatfile and saves it.
func importWorld(host *server.Host, path string, force bool) error {
	if host.World.Len() > 0 {
		if !force {
			return fmt.Errorf("world has %d entities, use -force to replace it", host.World.Len())
		}
		log.Printf("Discarding %d entities for import", host.World.Len())
		host.Timers.Clear()
		host.Registry.Reset()
		host.Leaders.Reset()
		host.World.Reset()
	}
	stats, err := flatfile.Load(path, host.World, host.Registry, host.Behaviors, host.Attachments)
	if err != nil {
		return err
	}
	log.Printf("Imported %s: %v", path, stats)
	return host.Save()
}

// startWeb serves /metrics and /stats on addr.
func startWeb(host *server.Host, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", host.Metrics.Handler())
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(host.Stats()); err != nil {
			log.Printf("stats: %v", err)
		}
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics listener: %v", err)
		}
	}()
	log.Printf("Serving metrics on %s", addr)
	return srv
}
