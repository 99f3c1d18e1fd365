package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultHTTPAddr  = "127.0.0.1:8787"
	DefaultAuthToken = "auth"
)

type Config struct {
	CLIPath           string
	CLIArgs           []string
	NodePath          string
	RefreshSeconds    int
	HTTPAddr          string
	APIURL            string
	HTTPTimeoutSec    int
	DataDir           string
	JournalEnabled    bool
	JournalPath       string
	SessionFile       string
	WatchSession      bool
	Icon              string
	AuthToken         string
	LogLevel          string
	HeartbeatEnabled  bool
	HeartbeatSec      int
	HeartbeatStaleSec int

	// ConfigFile is the TOML file the values were layered over, if any.
	ConfigFile string
}

// File mirrors the optional TOML config. Zero values defer to the
// built-in defaults; environment variables override both.
type File struct {
	CLI               string   `toml:"cli"`
	CLIArgs           []string `toml:"cli_args"`
	Node              string   `toml:"node"`
	RefreshSeconds    int      `toml:"refresh_seconds"`
	HTTPAddr          string   `toml:"http_addr"`
	APIURL            string   `toml:"api_url"`
	HTTPTimeoutSec    int      `toml:"http_timeout_seconds"`
	DataDir           string   `toml:"data_dir"`
	JournalEnabled    *bool    `toml:"journal_enabled"`
	JournalPath       string   `toml:"journal_path"`
	SessionFile       string   `toml:"session_file"`
	WatchSession      *bool    `toml:"watch_session"`
	Icon              string   `toml:"icon"`
	AuthToken         string   `toml:"auth_token"`
	LogLevel          string   `toml:"log_level"`
	HeartbeatEnabled  *bool    `toml:"heartbeat_enabled"`
	HeartbeatSec      int      `toml:"heartbeat_seconds"`
	HeartbeatStaleSec int      `toml:"heartbeat_stale_seconds"`
}

// Load reads the TOML file named by FLOWY_CONFIG, or the default path when
// it exists, and layers the environment over it.
func Load() (Config, error) {
	path := strings.TrimSpace(os.Getenv("FLOWY_CONFIG"))
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	var file File
	if path != "" {
		if _, err := os.Stat(path); err == nil || explicit {
			loaded, err := LoadFile(path)
			if err != nil {
				return Config{}, err
			}
			file = loaded
		} else {
			path = ""
		}
	}
	cfg := resolve(file)
	cfg.ConfigFile = path
	return cfg, nil
}

func LoadFile(path string) (File, error) {
	var file File
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return File{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return file, nil
}

// FromEnv resolves the configuration from the environment alone.
func FromEnv() Config {
	return resolve(File{})
}

func resolve(file File) Config {
	dataDir := stringOrDefault("FLOWY_DATA_DIR", firstNonEmpty(file.DataDir, defaultDataDir()))
	httpAddr := stringOrDefault("FLOWY_HTTP_ADDR", firstNonEmpty(file.HTTPAddr, DefaultHTTPAddr))
	return Config{
		CLIPath:           stringOrDefault("FLOWY_CLI", file.CLI),
		CLIArgs:           fieldsOrDefault("FLOWY_CLI_ARGS", file.CLIArgs),
		NodePath:          stringOrDefault("FLOWY_NODE", file.Node),
		RefreshSeconds:    intOrDefault("FLOWY_REFRESH_SECONDS", positiveOr(file.RefreshSeconds, 10)),
		HTTPAddr:          httpAddr,
		APIURL:            strings.TrimRight(stringOrDefault("FLOWY_API_URL", firstNonEmpty(file.APIURL, "http://"+httpAddr)), "/"),
		HTTPTimeoutSec:    intOrDefault("FLOWY_HTTP_TIMEOUT_SECONDS", positiveOr(file.HTTPTimeoutSec, 30)),
		DataDir:           dataDir,
		JournalEnabled:    boolOrDefault("FLOWY_JOURNAL_ENABLED", boolValue(file.JournalEnabled, false)),
		JournalPath:       stringOrDefault("FLOWY_JOURNAL_PATH", firstNonEmpty(file.JournalPath, filepath.Join(dataDir, "journal.sqlite"))),
		SessionFile:       expandHome(stringOrDefault("FLOWY_SESSION_FILE", firstNonEmpty(file.SessionFile, defaultSessionFile()))),
		WatchSession:      boolOrDefault("FLOWY_WATCH_SESSION", boolValue(file.WatchSession, true)),
		Icon:              stringOrDefault("FLOWY_ICON", file.Icon),
		AuthToken:         stringOrDefault("FLOWY_AUTH_TOKEN", firstNonEmpty(file.AuthToken, DefaultAuthToken)),
		LogLevel:          strings.ToLower(stringOrDefault("FLOWY_LOG_LEVEL", firstNonEmpty(file.LogLevel, "info"))),
		HeartbeatEnabled:  boolOrDefault("FLOWY_HEARTBEAT_ENABLED", boolValue(file.HeartbeatEnabled, true)),
		HeartbeatSec:      intOrDefault("FLOWY_HEARTBEAT_SECONDS", positiveOr(file.HeartbeatSec, 30)),
		HeartbeatStaleSec: intOrDefault("FLOWY_HEARTBEAT_STALE_SECONDS", positiveOr(file.HeartbeatStaleSec, 120)),
	}
}

// DefaultPath is $XDG_CONFIG_HOME/flowy/config.toml, falling back to the
// OS config dir.
func DefaultPath() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "flowy", "config.toml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "flowy", "config.toml")
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "flowy", "config.toml")
	}
	return ""
}

func defaultDataDir() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" {
		return filepath.Join(xdg, "flowy")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "flowy")
	}
	return filepath.Join(os.TempDir(), "flowy")
}

func defaultSessionFile() string {
	return filepath.Join("~", ".wfconfig.json")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func fieldsOrDefault(name string, fallback []string) []string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return strings.Fields(value)
}

func positiveOr(value, fallback int) int {
	if value < 1 {
		return fallback
	}
	return value
}

func boolValue(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
