// Package config resolves runtime settings from, in ascending precedence,
// built-in defaults, the YAML config file, environment variables, and CLI
// flags. Every resolved value remembers where it came from so the stats
// command can show provenance.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath string
	CLILLM     string
	CLIEmbed   string
	CLIDBPath  string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath           ResolvedValue `json:"db_path"`
	LLMProvider      ResolvedValue `json:"llm_provider"`
	LLMClassifyModel ResolvedValue `json:"llm_classify_model"`

	EmbedProvider ResolvedValue `json:"embed_provider"`
	EmbedAPIKey   ResolvedValue `json:"embed_api_key"`
	EmbedEndpoint ResolvedValue `json:"embed_endpoint"`

	LLMKeys map[string]ResolvedValue `json:"llm_keys,omitempty"`

	Tuning Tuning `json:"tuning"`
}

type fileConfig struct {
	DBPath string `yaml:"db_path"`
	LLM    struct {
		Provider         string `yaml:"provider"`
		APIKey           string `yaml:"api_key"`
		ClassifyModel    string `yaml:"classify_model"`
		ClassifyProvider string `yaml:"classify_provider"`
	} `yaml:"llm"`
	Embed struct {
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
		Endpoint string `yaml:"endpoint"`
	} `yaml:"embed"`
	Tuning tuningFile `yaml:"tuning"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".skein", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
		Tuning:     DefaultTuning(),
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.LLMProvider, cfg.LLM.Provider, SourceConfig, path)
		apply(&out.LLMClassifyModel, firstNonEmpty(cfg.LLM.ClassifyModel, cfg.LLM.ClassifyProvider), SourceConfig, path)
		apply(&out.EmbedProvider, cfg.Embed.Provider, SourceConfig, path)
		apply(&out.EmbedEndpoint, cfg.Embed.Endpoint, SourceConfig, path)

		if key := strings.TrimSpace(cfg.Embed.APIKey); key != "" {
			out.EmbedAPIKey = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}

		if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
			providers := map[string]struct{}{}
			for _, v := range []string{cfg.LLM.Provider, cfg.LLM.ClassifyModel} {
				p := providerOf(v)
				if p != "" {
					providers[p] = struct{}{}
				}
			}
			if len(providers) == 0 {
				providers["default"] = struct{}{}
			}
			for p := range providers {
				out.LLMKeys[p] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
			}
		}

		cfg.Tuning.overlay(&out.Tuning)
	}

	applyEnv(&out.DBPath, "SKEIN_DB")
	applyEnv(&out.DBPath, "SKEIN_DB_PATH")

	applyEnv(&out.LLMProvider, "SKEIN_LLM")
	applyEnv(&out.LLMClassifyModel, "SKEIN_LLM_CLASSIFY")

	applyEnv(&out.EmbedProvider, "SKEIN_EMBED")
	applyEnv(&out.EmbedEndpoint, "SKEIN_EMBED_ENDPOINT")
	if v := strings.TrimSpace(os.Getenv("SKEIN_EMBED_API_KEY")); v != "" {
		out.EmbedAPIKey = ResolvedValue{Value: v, Source: SourceEnv, From: "SKEIN_EMBED_API_KEY"}
	}

	for env, provider := range map[string]string{
		"OPENROUTER_API_KEY": "openrouter",
		"OPENAI_API_KEY":     "openai",
		"GEMINI_API_KEY":     "google",
		"GOOGLE_API_KEY":     "google",
		"DEEPSEEK_API_KEY":   "deepseek",
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			out.LLMKeys[provider] = ResolvedValue{Value: v, Source: SourceEnv, From: env}
		}
	}

	apply(&out.LLMProvider, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.EmbedProvider, opts.CLIEmbed, SourceCLI, "--embed")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}

	if err := out.Tuning.Validate(); err != nil {
		return out, fmt.Errorf("invalid tuning in %s: %w", path, err)
	}

	return out, nil
}

// EffectiveClassifyModel returns the first configured model usable for
// relationship classification, falling back to the built-in default.
func (r ResolvedConfig) EffectiveClassifyModel(fallback string) ResolvedValue {
	candidates := []ResolvedValue{r.LLMClassifyModel, r.LLMProvider}

	for _, c := range candidates {
		if strings.TrimSpace(c.Value) == "" {
			continue
		}
		if strings.Contains(c.Value, "/") {
			return c
		}
		if fallback != "" && strings.HasPrefix(strings.ToLower(fallback), strings.ToLower(strings.TrimSpace(c.Value))+"/") {
			return ResolvedValue{Value: fallback, Source: c.Source, From: c.From}
		}
	}

	if strings.TrimSpace(fallback) != "" {
		return ResolvedValue{Value: fallback, Source: SourceDefault, From: "built-in default"}
	}
	return ResolvedValue{}
}

func (r ResolvedConfig) APIKeyForProvider(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
