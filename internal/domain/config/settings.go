// Package config loads modkeeper settings and defines the user-facing error
// type the CLI reports.
//
// Settings come from modkeeper.yaml, overridden by MODKEEPER_* environment
// variables (MODKEEPER_CACHE_DURATION overrides cache.duration), with a
// default for every key.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/modkeeper/internal/ports"
)

// FileName is the config file name without extension.
const FileName = "modkeeper"

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "MODKEEPER"

// Settings is the full configuration.
type Settings struct {
	Paths     PathSettings      `mapstructure:"paths" yaml:"paths"`
	Registry  RegistrySettings  `mapstructure:"registry" yaml:"registry"`
	Curated   CuratedSettings   `mapstructure:"curated" yaml:"curated"`
	GitHub    GitHubSettings    `mapstructure:"github" yaml:"github"`
	Cache     CacheSettings     `mapstructure:"cache" yaml:"cache"`
	Network   NetworkSettings   `mapstructure:"network" yaml:"network"`
	Startup   StartupSettings   `mapstructure:"startup" yaml:"startup"`
	Protected ProtectedSettings `mapstructure:"protected" yaml:"protected"`
	Log       LogSettings       `mapstructure:"log" yaml:"log"`
	Host      HostSettings      `mapstructure:"host" yaml:"host"`

	// file is the config file that was read, if any.
	file string
}

// PathSettings locate the host installation.
type PathSettings struct {
	GameRoot   string `mapstructure:"game_root" yaml:"game_root"`
	RuntimeDir string `mapstructure:"runtime_dir" yaml:"runtime_dir"`
	// DataDir defaults to <runtime>/modkeeper.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// RegistrySettings configure the registry pass.
type RegistrySettings struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// CuratedSettings configure the curated pass. An empty URL disables it.
type CuratedSettings struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// GitHubSettings configure the source host.
type GitHubSettings struct {
	APIURL    string `mapstructure:"api_url" yaml:"api_url"`
	RawURL    string `mapstructure:"raw_url" yaml:"raw_url"`
	TokenFile string `mapstructure:"token_file" yaml:"token_file"`
}

// CacheSettings configure the catalog cache.
type CacheSettings struct {
	Duration time.Duration `mapstructure:"duration" yaml:"duration"`
}

// NetworkSettings configure the HTTP client.
type NetworkSettings struct {
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
	Backoff    time.Duration `mapstructure:"backoff" yaml:"backoff"`
	UserAgent  string        `mapstructure:"user_agent" yaml:"user_agent"`
}

// StartupSettings configure the startup verification pass.
type StartupSettings struct {
	Delay time.Duration `mapstructure:"delay" yaml:"delay"`
}

// ProtectedSettings name the identities that can never be uninstalled.
type ProtectedSettings struct {
	SelfID string `mapstructure:"self_id" yaml:"self_id"`
	HostID string `mapstructure:"host_id" yaml:"host_id"`
}

// LogSettings configure logging.
type LogSettings struct {
	Level string `mapstructure:"level" yaml:"level"`
	// File is the diagnostic log. Empty means <data>/modkeeper.log.
	File string `mapstructure:"file" yaml:"file"`
	JSON bool   `mapstructure:"json" yaml:"json"`
}

// HostSettings configure the host adapter.
type HostSettings struct {
	// SnapshotFile defaults to <runtime>/loaded_plugins.json.
	SnapshotFile string `mapstructure:"snapshot_file" yaml:"snapshot_file"`
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		Paths:     PathSettings{GameRoot: ".", RuntimeDir: "BepInEx"},
		Registry:  RegistrySettings{URL: "https://thunderstore.io/c/lethal-company/api/v1"},
		GitHub:    GitHubSettings{APIURL: "https://api.github.com", RawURL: "https://raw.githubusercontent.com"},
		Cache:     CacheSettings{Duration: time.Hour},
		Network:   NetworkSettings{Timeout: 30 * time.Second, MaxRetries: 3, Backoff: time.Second, UserAgent: "modkeeper"},
		Startup:   StartupSettings{Delay: 5 * time.Second},
		Protected: ProtectedSettings{SelfID: "com.modkeeper.engine", HostID: "BepInEx"},
		Log:       LogSettings{Level: "info"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("paths.game_root", d.Paths.GameRoot)
	v.SetDefault("paths.runtime_dir", d.Paths.RuntimeDir)
	v.SetDefault("paths.data_dir", d.Paths.DataDir)
	v.SetDefault("registry.url", d.Registry.URL)
	v.SetDefault("curated.url", d.Curated.URL)
	v.SetDefault("github.api_url", d.GitHub.APIURL)
	v.SetDefault("github.raw_url", d.GitHub.RawURL)
	v.SetDefault("github.token_file", d.GitHub.TokenFile)
	v.SetDefault("cache.duration", d.Cache.Duration)
	v.SetDefault("network.timeout", d.Network.Timeout)
	v.SetDefault("network.max_retries", d.Network.MaxRetries)
	v.SetDefault("network.backoff", d.Network.Backoff)
	v.SetDefault("network.user_agent", d.Network.UserAgent)
	v.SetDefault("startup.delay", d.Startup.Delay)
	v.SetDefault("protected.self_id", d.Protected.SelfID)
	v.SetDefault("protected.host_id", d.Protected.HostID)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("host.snapshot_file", d.Host.SnapshotFile)
}

// Load reads settings. An explicit path must exist; otherwise modkeeper.yaml
// is searched in the working directory and $HOME/.config/modkeeper and may
// be absent.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		path = ports.ExpandPath(path)
		if _, err := os.Stat(path); err != nil {
			return nil, NewConfigNotFoundError(path)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", FileName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, NewConfigParseError(v.ConfigFileUsed(), err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, NewConfigParseError(v.ConfigFileUsed(), err)
	}
	s.file = v.ConfigFileUsed()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks value ranges.
func (s *Settings) Validate() error {
	errs := NewErrorList()
	if strings.TrimSpace(s.Paths.GameRoot) == "" {
		errs.AddValidation("paths.game_root", "must not be empty", "Set it to the directory containing the game executable.")
	}
	if strings.TrimSpace(s.Registry.URL) == "" {
		errs.AddValidation("registry.url", "must not be empty", "")
	}
	if s.Cache.Duration < 0 {
		errs.AddValidation("cache.duration", "must not be negative", "Use 0 to always refresh.")
	}
	if s.Network.MaxRetries < 0 {
		errs.AddValidation("network.max_retries", "must not be negative", "")
	}
	if s.Network.Timeout <= 0 {
		errs.AddValidation("network.timeout", "must be positive", "For example 30s.")
	}
	if s.Startup.Delay < 0 {
		errs.AddValidation("startup.delay", "must not be negative", "")
	}
	return errs.AsError()
}

// File returns the config file that was read, or "".
func (s *Settings) File() string {
	return s.file
}

// GameRoot returns the absolute host root.
func (s *Settings) GameRoot() string {
	root := ports.ExpandPath(s.Paths.GameRoot)
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return root
}

// HostPaths derives the host directories.
func (s *Settings) HostPaths() ports.HostPaths {
	game := s.GameRoot()
	runtime := filepath.Join(game, s.Paths.RuntimeDir)
	return ports.HostPaths{
		GameRoot:    game,
		RuntimeRoot: runtime,
		PluginRoot:  filepath.Join(runtime, "plugins"),
		PatcherRoot: filepath.Join(runtime, "patchers"),
		ConfigRoot:  filepath.Join(runtime, "config"),
	}
}

// DataDir holds the cache, manifests, guard state and scratch space.
func (s *Settings) DataDir() string {
	if s.Paths.DataDir != "" {
		return ports.ExpandPath(s.Paths.DataDir)
	}
	return filepath.Join(s.HostPaths().RuntimeRoot, FileName)
}

// CacheFile is the catalog envelope.
func (s *Settings) CacheFile() string {
	return filepath.Join(s.DataDir(), "catalog_cache.json")
}

// ManifestsDir holds one install manifest per package.
func (s *Settings) ManifestsDir() string {
	return filepath.Join(s.DataDir(), "manifests")
}

// GuardFile is the update-loop guard state.
func (s *Settings) GuardFile() string {
	return filepath.Join(s.DataDir(), "update_guard.json")
}

// DownloadsDir receives package downloads.
func (s *Settings) DownloadsDir() string {
	return filepath.Join(s.DataDir(), "downloads")
}

// ScratchDir receives extracted archives.
func (s *Settings) ScratchDir() string {
	return filepath.Join(s.DataDir(), "scratch")
}

// LogFile is the diagnostic log.
func (s *Settings) LogFile() string {
	if s.Log.File != "" {
		return ports.ExpandPath(s.Log.File)
	}
	return filepath.Join(s.DataDir(), FileName+".log")
}

// SnapshotFile is the loaded-plugin snapshot written by the host bridge.
func (s *Settings) SnapshotFile() string {
	if s.Host.SnapshotFile != "" {
		return ports.ExpandPath(s.Host.SnapshotFile)
	}
	return filepath.Join(s.HostPaths().RuntimeRoot, "loaded_plugins.json")
}

// TokenFile is the optional source-host token file.
func (s *Settings) TokenFile() string {
	return ports.ExpandPath(s.GitHub.TokenFile)
}

// ProtectedIDs lists the identities uninstall refuses.
func (s *Settings) ProtectedIDs() []string {
	var ids []string
	for _, id := range []string{s.Protected.SelfID, s.Protected.HostID} {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// YAML renders the settings as a config file.
func (s *Settings) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// WriteDefault writes the default settings to path. An existing file is
// left alone.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return &UserError{
			Code:       ErrCodeConfigExists,
			Message:    "configuration file already exists",
			Context:    path,
			Suggestion: "Edit the existing file or remove it first.",
		}
	}

	data, err := Default().YAML()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
