/*
Package config manages TOML config for CodeServe services.

The file has one section per concern:

	[engine]
	min_confidence = 0.3
	typing_pause_ms = 1500
	poll_interval_ms = 1000
	idle_after_ms = 750
	min_fragment_length = 20
	max_patterns = 1000
	duplicate_threshold = 0.9
	max_results = 5
	languages = ["javascript", "typescript", "javascriptreact", "typescriptreact"]

	[store]
	path = ""
	in_memory = false
	sync_writes = true

A config that fails to decode as a whole is recovered section by section,
and values out of range are replaced by their defaults.
*/
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bastiangx/codeserve/internal/utils"
	"github.com/charmbracelet/log"
)

// Config holds the entire config structure
type Config struct {
	Engine EngineConfig `toml:"engine"`
	Store  StoreConfig  `toml:"store"`
	Server ServerConfig `toml:"server"`
	Report ReportConfig `toml:"report"`
	CLI    CliConfig    `toml:"cli"`
}

// EngineConfig tunes learning and prediction.
type EngineConfig struct {
	MinConfidence      float64  `toml:"min_confidence"`
	TypingPauseMs      int      `toml:"typing_pause_ms"`
	PollIntervalMs     int      `toml:"poll_interval_ms"`
	IdleAfterMs        int      `toml:"idle_after_ms"`
	MinFragmentLength  int      `toml:"min_fragment_length"`
	MaxPatterns        int      `toml:"max_patterns"`
	DuplicateThreshold float64  `toml:"duplicate_threshold"`
	MaxResults         int      `toml:"max_results"`
	Languages          []string `toml:"languages"`
}

// StoreConfig holds persistence options.
type StoreConfig struct {
	Path       string `toml:"path"`
	InMemory   bool   `toml:"in_memory"`
	SyncWrites bool   `toml:"sync_writes"`
}

// ServerConfig has IPC server related options.
type ServerConfig struct {
	MaxLineLength int    `toml:"max_line_length"`
	MetricsAddr   string `toml:"metrics_addr"`
}

// ReportConfig holds refactor-candidate thresholds for workspace reports.
type ReportConfig struct {
	MaxFunctionLines int     `toml:"max_function_lines"`
	MaxClassLines    int     `toml:"max_class_lines"`
	MaxClassMethods  int     `toml:"max_class_methods"`
	MaxParams        int     `toml:"max_params"`
	MaxComplexity    float64 `toml:"max_complexity"`
}

// CliConfig holds cli interface options.
type CliConfig struct {
	DefaultContextLines int `toml:"default_context_lines"`
}

// TypingPause is the quiet interval after which buffered typing is learned.
func (e EngineConfig) TypingPause() time.Duration {
	return time.Duration(e.TypingPauseMs) * time.Millisecond
}

// PollInterval is the period of the learning controller's ticker.
func (e EngineConfig) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalMs) * time.Millisecond
}

// IdleAfter is the quiet interval that moves the typing state back to idle.
func (e EngineConfig) IdleAfter() time.Duration {
	return time.Duration(e.IdleAfterMs) * time.Millisecond
}

// GetConfigDir returns the config directory with fallback priority:
// 1. ~/.config/codeserve
// 2. ~/Library/Application Support/codeserve (macOS)
// 3. Current executable dir
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Errorf("Failed to get home directory: %v", err)
		return utils.GetExecutableDir()
	}
	primaryPath := filepath.Join(homeDir, ".config", "codeserve")
	if result := utils.CheckDirStatus(primaryPath); result.Writable {
		return primaryPath, nil
	}
	macOSPath := filepath.Join(homeDir, "Library", "Application Support", "codeserve")
	if result := utils.CheckDirStatus(macOSPath); result.Writable {
		return macOSPath, nil
	}
	execDir, err := utils.GetExecutableDir()
	if err != nil {
		log.Errorf("Failed to get executable directory: %v", err)
		return "", err
	}
	return execDir, nil
}

// GetDefaultConfigPath returns the default path for config.toml
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// LoadConfigWithPriority loads config with priority:
// 1. Custom path from --config flag
// 2. Default path: [UserConfigDir]/codeserve/config.toml
// 3. Builtin defaults
func LoadConfigWithPriority(customConfigPath string) (*Config, string, error) {
	if customConfigPath != "" {
		if _, statErr := os.Stat(customConfigPath); statErr == nil {
			config, err := LoadConfig(customConfigPath)
			if err != nil {
				log.Warnf("Failed to load custom config from %s: %v. Trying default path...", customConfigPath, err)
			} else {
				log.Debugf("Loaded config from custom path: %s", customConfigPath)
				return config, customConfigPath, nil
			}
		} else {
			log.Warnf("Custom config file not found at %s: %v. Trying default path...", customConfigPath, statErr)
		}
	}
	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		log.Warnf("Failed to determine default config path: %v. Using built-in defaults...", err)
		return DefaultConfig(), "", nil
	}

	config, err := InitConfig(defaultPath)
	if err != nil {
		log.Warnf("Failed to load/create config at default path %s: %v. Using builtin defaults...", defaultPath, err)
		return DefaultConfig(), "", nil
	}
	log.Debugf("Loaded config from default path: %s", defaultPath)
	return config, defaultPath, nil
}

// DefaultLanguages is the allow-list of language tags the engine handles.
func DefaultLanguages() []string {
	return []string{"javascript", "typescript", "javascriptreact", "typescriptreact"}
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MinConfidence:      0.3,
			TypingPauseMs:      1500,
			PollIntervalMs:     1000,
			IdleAfterMs:        750,
			MinFragmentLength:  20,
			MaxPatterns:        1000,
			DuplicateThreshold: 0.9,
			MaxResults:         5,
			Languages:          DefaultLanguages(),
		},
		Store: StoreConfig{
			SyncWrites: true,
		},
		Server: ServerConfig{
			MaxLineLength: 400,
		},
		Report: ReportConfig{
			MaxFunctionLines: 50,
			MaxClassLines:    300,
			MaxClassMethods:  20,
			MaxParams:        5,
			MaxComplexity:    15,
		},
		CLI: CliConfig{
			DefaultContextLines: 5,
		},
	}
}

// Normalize replaces out of range values with their defaults.
func (c *Config) Normalize() {
	d := DefaultConfig()
	e := &c.Engine
	if e.MinConfidence < 0 || e.MinConfidence > 1 {
		log.Warnf("min_confidence %.2f outside [0,1], using %.2f", e.MinConfidence, d.Engine.MinConfidence)
		e.MinConfidence = d.Engine.MinConfidence
	}
	if e.DuplicateThreshold <= 0 || e.DuplicateThreshold > 1 {
		e.DuplicateThreshold = d.Engine.DuplicateThreshold
	}
	positive := []struct {
		val *int
		def int
		key string
	}{
		{&e.TypingPauseMs, d.Engine.TypingPauseMs, "typing_pause_ms"},
		{&e.PollIntervalMs, d.Engine.PollIntervalMs, "poll_interval_ms"},
		{&e.IdleAfterMs, d.Engine.IdleAfterMs, "idle_after_ms"},
		{&e.MinFragmentLength, d.Engine.MinFragmentLength, "min_fragment_length"},
		{&e.MaxPatterns, d.Engine.MaxPatterns, "max_patterns"},
		{&e.MaxResults, d.Engine.MaxResults, "max_results"},
		{&c.Server.MaxLineLength, d.Server.MaxLineLength, "max_line_length"},
		{&c.Report.MaxFunctionLines, d.Report.MaxFunctionLines, "max_function_lines"},
		{&c.Report.MaxClassLines, d.Report.MaxClassLines, "max_class_lines"},
		{&c.Report.MaxClassMethods, d.Report.MaxClassMethods, "max_class_methods"},
		{&c.Report.MaxParams, d.Report.MaxParams, "max_params"},
		{&c.CLI.DefaultContextLines, d.CLI.DefaultContextLines, "default_context_lines"},
	}
	for _, p := range positive {
		if *p.val <= 0 {
			log.Warnf("%s must be positive, using %d", p.key, p.def)
			*p.val = p.def
		}
	}
	if c.Report.MaxComplexity <= 0 {
		c.Report.MaxComplexity = d.Report.MaxComplexity
	}
	if len(e.Languages) == 0 {
		e.Languages = DefaultLanguages()
	}
}

// InitConfig loads config from file or creates default if missing
func InitConfig(configPath string) (*Config, error) {
	configDir := filepath.Dir(configPath)

	if err := utils.EnsureDir(configDir); err != nil {
		log.Warnf("Failed to create config directory %s: %v. Using built-in defaults...", configDir, err)
		return DefaultConfig(), nil
	}

	if !utils.FileExists(configPath) {
		config := DefaultConfig()
		if err := SaveConfig(config, configPath); err != nil {
			log.Warnf("Failed to create default config file at %s: %v. Using built-in defaults...", configPath, err)
			return DefaultConfig(), nil
		}
		log.Debugf("Created default config file at: %s", configPath)
		return config, nil
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		log.Warnf("Failed to load config from %s: %v. Using built-in defaults...", configPath, err)
		return DefaultConfig(), nil
	}
	return config, nil
}

// LoadConfig loads from a TOML file
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if err := utils.LoadTOMLFile(configPath, config); err != nil {
		return tryPartialParse(configPath)
	}
	config.Normalize()
	return config, nil
}

// tryPartialParse attempts to parse a TOML file
func tryPartialParse(configPath string) (*Config, error) {
	config := DefaultConfig()

	tempConfig, err := utils.ParseTOMLWithRecovery(configPath)
	if err != nil {
		log.Warnf("Could not parse any valid configuration from %s: %v. Using all defaults.", configPath, err)
		return config, nil
	}

	if section, ok := utils.ExtractSection(tempConfig, "engine"); ok {
		extractEngineConfig(section, &config.Engine)
	}
	if section, ok := utils.ExtractSection(tempConfig, "store"); ok {
		extractStoreConfig(section, &config.Store)
	}
	if section, ok := utils.ExtractSection(tempConfig, "server"); ok {
		extractServerConfig(section, &config.Server)
	}
	if section, ok := utils.ExtractSection(tempConfig, "report"); ok {
		extractReportConfig(section, &config.Report)
	}
	if section, ok := utils.ExtractSection(tempConfig, "cli"); ok {
		if val, ok := utils.ExtractInt64(section, "default_context_lines"); ok {
			config.CLI.DefaultContextLines = val
		}
	}
	config.Normalize()
	return config, nil
}

func extractEngineConfig(data map[string]any, engine *EngineConfig) {
	if val, ok := utils.ExtractFloat(data, "min_confidence"); ok {
		engine.MinConfidence = val
	}
	if val, ok := utils.ExtractInt64(data, "typing_pause_ms"); ok {
		engine.TypingPauseMs = val
	}
	if val, ok := utils.ExtractInt64(data, "poll_interval_ms"); ok {
		engine.PollIntervalMs = val
	}
	if val, ok := utils.ExtractInt64(data, "idle_after_ms"); ok {
		engine.IdleAfterMs = val
	}
	if val, ok := utils.ExtractInt64(data, "min_fragment_length"); ok {
		engine.MinFragmentLength = val
	}
	if val, ok := utils.ExtractInt64(data, "max_patterns"); ok {
		engine.MaxPatterns = val
	}
	if val, ok := utils.ExtractFloat(data, "duplicate_threshold"); ok {
		engine.DuplicateThreshold = val
	}
	if val, ok := utils.ExtractInt64(data, "max_results"); ok {
		engine.MaxResults = val
	}
	if val, ok := utils.ExtractStringSlice(data, "languages"); ok {
		engine.Languages = val
	}
}

func extractStoreConfig(data map[string]any, store *StoreConfig) {
	if val, ok := utils.ExtractString(data, "path"); ok {
		store.Path = val
	}
	if val, ok := utils.ExtractBool(data, "in_memory"); ok {
		store.InMemory = val
	}
	if val, ok := utils.ExtractBool(data, "sync_writes"); ok {
		store.SyncWrites = val
	}
}

func extractServerConfig(data map[string]any, server *ServerConfig) {
	if val, ok := utils.ExtractInt64(data, "max_line_length"); ok {
		server.MaxLineLength = val
	}
	if val, ok := utils.ExtractString(data, "metrics_addr"); ok {
		server.MetricsAddr = val
	}
}

func extractReportConfig(data map[string]any, report *ReportConfig) {
	if val, ok := utils.ExtractInt64(data, "max_function_lines"); ok {
		report.MaxFunctionLines = val
	}
	if val, ok := utils.ExtractInt64(data, "max_class_lines"); ok {
		report.MaxClassLines = val
	}
	if val, ok := utils.ExtractInt64(data, "max_class_methods"); ok {
		report.MaxClassMethods = val
	}
	if val, ok := utils.ExtractInt64(data, "max_params"); ok {
		report.MaxParams = val
	}
	if val, ok := utils.ExtractFloat(data, "max_complexity"); ok {
		report.MaxComplexity = val
	}
}

// SaveConfig saves into a TOML file
func SaveConfig(config *Config, configPath string) error {
	return utils.SaveTOMLFile(config, configPath)
}

// Overrides carries CLI flag values; nil fields keep the loaded value.
type Overrides struct {
	MinConfidence     *float64
	TypingPauseMs     *int
	MinFragmentLength *int
	MaxPatterns       *int
	DataPath          *string
}

// Apply copies every non-nil override into the config and re-normalizes it.
func (c *Config) Apply(o Overrides) {
	if o.MinConfidence != nil {
		c.Engine.MinConfidence = *o.MinConfidence
	}
	if o.TypingPauseMs != nil {
		c.Engine.TypingPauseMs = *o.TypingPauseMs
	}
	if o.MinFragmentLength != nil {
		c.Engine.MinFragmentLength = *o.MinFragmentLength
	}
	if o.MaxPatterns != nil {
		c.Engine.MaxPatterns = *o.MaxPatterns
	}
	if o.DataPath != nil && *o.DataPath != "" {
		c.Store.Path = *o.DataPath
	}
	c.Normalize()
}

// SupportsLanguage reports whether languageID is on the engine allow-list.
func (e EngineConfig) SupportsLanguage(languageID string) bool {
	for _, l := range e.Languages {
		if l == languageID {
			return true
		}
	}
	return false
}
