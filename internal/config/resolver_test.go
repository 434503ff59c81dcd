package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveConfig_Precedence_ConfigEnvCLI(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	yaml := `db_path: ~/.skein/from-config.db
llm:
  provider: openrouter/x-ai/grok-4.1-fast
  classify_model: openrouter/deepseek/deepseek-v3.2
embed:
  provider: ollama/nomic-embed-text
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SKEIN_DB", "~/from-env.db")
	t.Setenv("SKEIN_LLM", "google/gemini-2.5-flash")

	resolved, err := ResolveConfig(ResolveOptions{
		ConfigPath: cfgPath,
		CLILLM:     "openrouter/google/gemini-2.0-flash-001",
		CLIDBPath:  "~/from-cli.db",
	})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}

	if resolved.DBPath.Source != SourceCLI {
		t.Fatalf("expected DB path source cli, got %s", resolved.DBPath.Source)
	}
	if resolved.LLMProvider.Source != SourceCLI {
		t.Fatalf("expected llm provider source cli, got %s", resolved.LLMProvider.Source)
	}
	if resolved.LLMClassifyModel.Source != SourceConfig {
		t.Fatalf("expected classify model from config, got %s", resolved.LLMClassifyModel.Source)
	}
}

func TestResolveConfig_MissingFileKeepsDefaults(t *testing.T) {
	tmp := t.TempDir()
	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: filepath.Join(tmp, "nope.yaml")})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	if resolved.Tuning != DefaultTuning() {
		t.Fatalf("expected default tuning, got %+v", resolved.Tuning)
	}
}

func TestResolveConfig_TuningOverlay(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	yaml := `tuning:
  topic_merge_threshold: 0.9
  classification_floor: 0.7
  hierarchy_floor: 0.8
  min_cluster_size: 3
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}

	if resolved.Tuning.TopicMergeThreshold != 0.9 {
		t.Errorf("TopicMergeThreshold = %v, want 0.9", resolved.Tuning.TopicMergeThreshold)
	}
	if resolved.Tuning.ClassificationFloor != 0.7 {
		t.Errorf("ClassificationFloor = %v, want 0.7", resolved.Tuning.ClassificationFloor)
	}
	if resolved.Tuning.HierarchyFloor != 0.8 {
		t.Errorf("HierarchyFloor = %v, want 0.8", resolved.Tuning.HierarchyFloor)
	}
	if resolved.Tuning.MinClusterSize != 3 {
		t.Errorf("MinClusterSize = %v, want 3", resolved.Tuning.MinClusterSize)
	}
	// Unset keys keep defaults.
	if resolved.Tuning.MaxChildDegree != 30 {
		t.Errorf("MaxChildDegree = %v, want default 30", resolved.Tuning.MaxChildDegree)
	}
	if resolved.Tuning.UMAPMinDist != 0.4 {
		t.Errorf("UMAPMinDist = %v, want default 0.4", resolved.Tuning.UMAPMinDist)
	}
}

func TestResolveConfig_InvalidTuningRejected(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	yaml := `tuning:
  topic_merge_threshold: 1.5
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	_, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath})
	if err == nil {
		t.Fatal("expected error for out-of-range merge threshold")
	}
	if !strings.Contains(err.Error(), "topic_merge_threshold") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTuningValidateDefaults(t *testing.T) {
	if err := DefaultTuning().Validate(); err != nil {
		t.Fatalf("default tuning should validate: %v", err)
	}
}

func TestEffectiveClassifyModel_ProviderFallback(t *testing.T) {
	resolved := ResolvedConfig{
		LLMProvider:      ResolvedValue{Value: "openrouter", Source: SourceConfig},
		LLMClassifyModel: ResolvedValue{Value: "", Source: SourceUnknown},
	}

	m := resolved.EffectiveClassifyModel("openrouter/deepseek/deepseek-v3.2")
	if m.Value != "openrouter/deepseek/deepseek-v3.2" {
		t.Fatalf("unexpected effective model: %q", m.Value)
	}
	if m.Source != SourceConfig {
		t.Fatalf("expected source=config from provider fallback, got %s", m.Source)
	}
}

func TestEffectiveClassifyModel_ExplicitWins(t *testing.T) {
	resolved := ResolvedConfig{
		LLMProvider:      ResolvedValue{Value: "openrouter", Source: SourceConfig},
		LLMClassifyModel: ResolvedValue{Value: "google/gemini-2.5-flash", Source: SourceEnv},
	}

	m := resolved.EffectiveClassifyModel("openrouter/deepseek/deepseek-v3.2")
	if m.Value != "google/gemini-2.5-flash" {
		t.Fatalf("unexpected effective model: %q", m.Value)
	}
	if m.Source != SourceEnv {
		t.Fatalf("expected source=env, got %s", m.Source)
	}
}

func TestAPIKeyForProvider_EnvOverridesConfig(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "config.yaml")
	yaml := `llm:
  provider: openrouter/x-ai/grok-4.1-fast
  api_key: config-key
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("OPENROUTER_API_KEY", "env-key")

	resolved, err := ResolveConfig(ResolveOptions{ConfigPath: cfgPath})
	if err != nil {
		t.Fatalf("ResolveConfig: %v", err)
	}
	k := resolved.APIKeyForProvider("openrouter/some-model")
	if k.Value != "env-key" {
		t.Fatalf("expected env key, got %q", k.Value)
	}
	if k.Source != SourceEnv {
		t.Fatalf("expected source env, got %s", k.Source)
	}
}
