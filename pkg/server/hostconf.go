package server

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/crystal-mush/xmlattach/pkg/gamedb"
	"gopkg.in/yaml.v3"
)

// HostConf holds host-level configuration parameters.
// Supports both YAML (.yaml/.yml) and legacy key/value (.conf) formats.
// Environment variables override whatever the file sets.
type HostConf struct {
	// --- Identity ---
	WorldName string `yaml:"world_name" env:"XMLATTACH_WORLD_NAME"`

	// --- Loop ---
	TickIntervalMS  int `yaml:"tick_interval_ms" env:"XMLATTACH_TICK_INTERVAL_MS"`
	AutosaveMinutes int `yaml:"autosave_minutes" env:"XMLATTACH_AUTOSAVE_MINUTES"` // 0 = never

	// --- Storage ---
	BoltPath    string `yaml:"bolt_path" env:"XMLATTACH_BOLT_PATH"`
	SQLDatabase string `yaml:"sql_database" env:"XMLATTACH_SQL_DATABASE"` // Leader export, empty = disabled
	SQLTimeout  int    `yaml:"sql_timeout" env:"XMLATTACH_SQL_TIMEOUT"`   // Seconds

	// --- Archive/Backup ---
	ArchiveDir    string `yaml:"archive_dir" env:"XMLATTACH_ARCHIVE_DIR"`
	ArchiveRetain int    `yaml:"archive_retain" env:"XMLATTACH_ARCHIVE_RETAIN"` // Keep last N archives, 0 = unlimited

	// --- Observability ---
	MetricsAddr string `yaml:"metrics_addr" env:"XMLATTACH_METRICS_ADDR"` // empty = no listener
	LogEvents   bool   `yaml:"log_events" env:"XMLATTACH_LOG_EVENTS"`

	// --- Attachments ---
	IdentifyAccess   string `yaml:"identify_access" env:"XMLATTACH_IDENTIFY_ACCESS"`
	LeadersTop       int    `yaml:"leaders_top" env:"XMLATTACH_LEADERS_TOP"`
	HueExpireSeconds int    `yaml:"hue_expire_seconds" env:"XMLATTACH_HUE_EXPIRE_SECONDS"`

	// --- Internal: the file this was loaded from ---
	ConfPath string `yaml:"-"`
}

// DefaultHostConf returns a HostConf with the stock defaults.
func DefaultHostConf() *HostConf {
	return &HostConf{
		WorldName:        "xmlattach",
		TickIntervalMS:   100,
		AutosaveMinutes:  15,
		BoltPath:         "data/world.db",
		SQLTimeout:       5,
		ArchiveDir:       "backups",
		IdentifyAccess:   gamedb.GameMaster.String(),
		LeadersTop:       10,
		HueExpireSeconds: 30,
	}
}

// LoadHostConf loads a host config file. Format is auto-detected by extension:
//   - .yaml / .yml  -> YAML format
//   - .conf / other -> legacy key/value format
func LoadHostConf(path string) (*HostConf, error) {
	var hc *HostConf
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		hc, err = loadHostConfYAML(path)
	default:
		hc, err = loadHostConfLegacy(path)
	}
	if err != nil {
		return nil, err
	}
	hc.ConfPath = path
	if err := hc.applyEnv(); err != nil {
		return nil, err
	}
	return hc, nil
}

// applyEnv overrides fields from XMLATTACH_* environment variables. Unset
// variables leave the field alone.
func (hc *HostConf) applyEnv() error {
	if err := env.Parse(hc); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// --- YAML loader ---

func loadHostConfYAML(path string) (*HostConf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	hc := DefaultHostConf()
	if err := yaml.Unmarshal(data, hc); err != nil {
		return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
	}
	return hc, nil
}

// --- Legacy text loader ---

func loadHostConfLegacy(path string) (*HostConf, error) {
	hc := DefaultHostConf()
	if err := hc.loadLegacyFile(path, 0); err != nil {
		return nil, err
	}
	return hc, nil
}

func (hc *HostConf) loadLegacyFile(path string, depth int) error {
	if depth > 10 {
		return fmt.Errorf("include depth exceeded (circular include?)")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	baseDir := filepath.Dir(path)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		// Split on first whitespace (space or tab)
		key, val := splitKeyVal(line)
		if key == "" {
			continue
		}
		key = strings.ToLower(key)

		switch key {
		case "include":
			includePath := val
			if !filepath.IsAbs(includePath) {
				includePath = filepath.Join(baseDir, includePath)
			}
			if err := hc.loadLegacyFile(includePath, depth+1); err != nil {
				log.Printf("hostconf: warning: include %s: %v", val, err)
			}

		case "world_name":
			hc.WorldName = val
		case "tick_interval_ms":
			hc.TickIntervalMS = atoi(val, hc.TickIntervalMS)
		case "autosave_minutes":
			hc.AutosaveMinutes = atoi(val, hc.AutosaveMinutes)

		case "bolt_path":
			hc.BoltPath = val
		case "sql_database":
			hc.SQLDatabase = val
		case "sql_timeout":
			hc.SQLTimeout = atoi(val, hc.SQLTimeout)

		case "archive_dir":
			hc.ArchiveDir = val
		case "archive_retain":
			hc.ArchiveRetain = atoi(val, hc.ArchiveRetain)

		case "metrics_addr":
			hc.MetricsAddr = val
		case "log_events":
			hc.LogEvents = parseBool(val)

		case "identify_access":
			hc.IdentifyAccess = val
		case "leaders_top":
			hc.LeadersTop = atoi(val, hc.LeadersTop)
		case "hue_expire_seconds":
			hc.HueExpireSeconds = atoi(val, hc.HueExpireSeconds)

		default:
			// Unknown directives silently ignored for forward compatibility
		}
	}
	return scanner.Err()
}

// splitKeyVal splits a line on the first whitespace (space or tab).
func splitKeyVal(line string) (string, string) {
	for i := 0; i < len(line); i++ {
		if line[i] == ' ' || line[i] == '\t' {
			return line[:i], strings.TrimSpace(line[i+1:])
		}
	}
	return line, ""
}

// TickInterval returns the scheduler tick period.
func (hc *HostConf) TickInterval() time.Duration {
	if hc.TickIntervalMS <= 0 {
		return 100 * time.Millisecond
	}
	return time.Duration(hc.TickIntervalMS) * time.Millisecond
}

// AutosaveInterval returns the autosave period, or 0 when disabled.
func (hc *HostConf) AutosaveInterval() time.Duration {
	if hc.AutosaveMinutes <= 0 {
		return 0
	}
	return time.Duration(hc.AutosaveMinutes) * time.Minute
}

// HueExpiration returns the lifetime of Hue attachments created without
// one.
func (hc *HostConf) HueExpiration() time.Duration {
	if hc.HueExpireSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(hc.HueExpireSeconds) * time.Second
}

// IdentifyLevel returns the access level that sees every attachment on
// identify. A bad name falls back to GameMaster.
func (hc *HostConf) IdentifyLevel() gamedb.AccessLevel {
	lvl, err := gamedb.ParseAccessLevel(hc.IdentifyAccess)
	if err != nil {
		if hc.IdentifyAccess != "" {
			log.Printf("hostconf: identify_access: %v", err)
		}
		return gamedb.GameMaster
	}
	return lvl
}

// --- Helper functions ---

func atoi(s string, fallback int) int {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "true" || s == "1" || s == "on"
}
