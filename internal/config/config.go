package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/opencode-ai/supervision/internal/permission"
	"github.com/opencode-ai/supervision/pkg/types"
)

// Environment variables read by Load.
const (
	EnvConfig        = "SUPERVISION_CONFIG"
	EnvConfigContent = "SUPERVISION_CONFIG_CONTENT"
	EnvLogLevel      = "SUPERVISION_LOG_LEVEL"
)

// fileNames are the config file names tried in each directory, in order.
var fileNames = []string{
	"supervision.json",
	"supervision.jsonc",
	"supervision.yaml",
	"supervision.yml",
}

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// Loaded is a merged configuration together with the files it came from.
type Loaded struct {
	*types.Config
	Files []string
}

// Load loads configuration from multiple sources (priority order):
// 1. Global config (~/.config/supervision/)
// 2. Project config (<directory>/ and <directory>/.supervision/)
// 3. SUPERVISION_CONFIG file
// 4. SUPERVISION_CONFIG_CONTENT inline JSON
// 5. Environment variables
//
// Missing files are skipped; a file that exists but does not parse is an
// error.
func Load(directory string) (*Loaded, error) {
	loaded := &Loaded{Config: &types.Config{}}
	seen := make(map[string]bool)

	loadOnce := func(path string) error {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil
		}
		if seen[absPath] {
			return nil
		}
		fileConfig, err := LoadFile(absPath)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		seen[absPath] = true
		loaded.Files = append(loaded.Files, absPath)
		mergeConfig(loaded.Config, fileConfig)
		return nil
	}

	var dirs []string
	dirs = append(dirs, GetPaths().Config)
	if directory != "" {
		dirs = append(dirs, directory, filepath.Join(directory, ".supervision"))
	}
	for _, dir := range dirs {
		for _, name := range fileNames {
			if err := loadOnce(filepath.Join(dir, name)); err != nil {
				return nil, err
			}
		}
	}

	if configPath := os.Getenv(EnvConfig); configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvConfig, err)
		}
		if err := loadOnce(configPath); err != nil {
			return nil, err
		}
	}

	if content := os.Getenv(EnvConfigContent); content != "" {
		var inline types.Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(content)), &inline); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvConfigContent, err)
		}
		mergeConfig(loaded.Config, &inline)
	}

	applyEnvOverrides(loaded.Config)

	if err := Validate(loaded.Config); err != nil {
		return nil, err
	}
	return loaded, nil
}

// LoadFile reads one config file. The format follows the extension: .yaml
// and .yml are YAML, anything else is JSON with comments. {env:VAR} and
// {file:path} placeholders are expanded before parsing; relative file paths
// resolve against the file's directory.
func LoadFile(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	data = interpolate(data, filepath.Dir(path))

	var cfg types.Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return &cfg, nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for a double-quoted JSON or YAML string
		escaped := strings.ReplaceAll(strings.TrimRight(string(content), "\n"), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")
		return escaped
	})

	return []byte(str)
}

// mergeConfig merges source config into target. Supervisor records with an
// id replace earlier records with the same id; records without one are
// appended.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}

	for _, sc := range source.Supervisors {
		replaced := false
		if sc.ID != "" {
			for i := range target.Supervisors {
				if target.Supervisors[i].ID == sc.ID {
					target.Supervisors[i] = sc
					replaced = true
					break
				}
			}
		}
		if !replaced {
			target.Supervisors = append(target.Supervisors, sc)
		}
	}

	if source.Sessions != nil {
		if target.Sessions == nil {
			target.Sessions = make(map[string][]string)
		}
		for k, v := range source.Sessions {
			target.Sessions[k] = v
		}
	}

	if source.MCP != nil {
		if target.MCP == nil {
			target.MCP = make(map[string]types.MCPConfig)
		}
		for k, v := range source.MCP {
			target.MCP[k] = v
		}
	}

	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	if source.Timeout != nil {
		target.Timeout = source.Timeout
	}
	if source.EnforcePermissions {
		target.EnforcePermissions = true
	}
	if source.StrictRegistration {
		target.StrictRegistration = true
	}
	if source.Context != nil {
		target.Context = source.Context
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"ark":       "ARK_API_KEY",
	}

	for provider, envVar := range providerEnvMap {
		p, ok := config.Provider[provider]
		if !ok || p.APIKey != "" {
			continue
		}
		if apiKey := os.Getenv(envVar); apiKey != "" {
			p.APIKey = apiKey
			config.Provider[provider] = p
		}
	}

	if level := os.Getenv(EnvLogLevel); level != "" {
		config.LogLevel = level
	}
}

// Validate checks a merged configuration for records that cannot be turned
// into supervisors or manager options.
func Validate(config *types.Config) error {
	var errs []error

	ids := make(map[string]bool, len(config.Supervisors))
	for i, sc := range config.Supervisors {
		if sc.Type == "" {
			errs = append(errs, fmt.Errorf("supervisors[%d]: missing type", i))
		}
		if sc.ID == "" {
			continue
		}
		if ids[sc.ID] {
			errs = append(errs, fmt.Errorf("supervisors[%d]: duplicate id %q", i, sc.ID))
		}
		ids[sc.ID] = true
	}

	if config.StrictRegistration {
		for sessionID, roster := range config.Sessions {
			for _, id := range roster {
				if !ids[id] {
					errs = append(errs, fmt.Errorf("sessions.%s: unknown supervisor %q", sessionID, id))
				}
			}
		}
	}

	for server, mc := range config.MCP {
		for pattern, tc := range mc.Tools {
			if _, err := permission.ParseAction(tc.Action); err != nil {
				errs = append(errs, fmt.Errorf("mcp.%s.tools.%s.action: %w", server, pattern, err))
			}
		}
	}

	if t := config.Timeout; t != nil {
		if _, err := time.ParseDuration(t.Duration); err != nil {
			errs = append(errs, fmt.Errorf("timeout.duration: %w", err))
		}
		switch t.Fallback {
		case "", "allow", "block":
		default:
			errs = append(errs, fmt.Errorf("timeout.fallback: must be allow or block, got %q", t.Fallback))
		}
	}

	if c := config.Context; c != nil {
		if c.Threshold < 0 || c.Threshold > 1 {
			errs = append(errs, fmt.Errorf("context.threshold: must be within [0, 1], got %v", c.Threshold))
		}
		if c.TopK < 0 {
			errs = append(errs, fmt.Errorf("context.topK: must not be negative, got %d", c.TopK))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Save saves the configuration as indented JSON.
func Save(config *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
