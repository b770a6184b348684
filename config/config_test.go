package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/scttfrdmn/catering-agent-go/adapter/llm"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catering.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

var envKeys = []string{
	"CATERING_CONFIG", "CATERING_LLM_PROVIDER", "CATERING_LLM_MODEL", "GOOGLE_GENAI_MODAL",
	"OPENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY",
	"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_API_VERSION",
	"AZURE_OPENAI_DEPLOYMENT", "AZURE_OPENAI_EMBEDDING_DEPLOYMENT",
	"AWS_REGION", "AWS_PROFILE", "REDIS_URL", "CATERING_CATALOG_DSN",
	"CATERING_EXPORT_DIR", "CATERING_S3_BUCKET", "CATERING_S3_PREFIX", "CATERING_S3_REGION",
	"CATERING_AUDIT_LOG", "CATERING_KNOWLEDGE_ENABLED", "CATERING_KNOWLEDGE_EMBEDDER",
	"CATERING_KNOWLEDGE_STORE", "CATERING_KNOWLEDGE_RERANK", "CATERING_ADDR",
	"CATERING_CORS_ORIGINS", "CATERING_LOG_LEVEL", "CATERING_LOG_FORMAT",
	"CATERING_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT", "CATERING_CONSOLE_TRACES",
	"CATERING_METRICS",
}

// clearEnv blanks every variable Load reads; empty values are ignored.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
	if cfg.Provider().Provider != llm.ProviderScripted {
		t.Errorf("expected scripted provider by default, got %q", cfg.Provider().Provider)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	clearEnv(t)
	t.Setenv("TEST_GEMINI_KEY", "file-key")
	t.Setenv("GOOGLE_GENAI_MODAL", "gemini-2.0-flash")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("CATERING_CORS_ORIGINS", "https://ops.example.com,https://admin.example.com")

	path := writeFile(t, `
llm:
  provider: gemini
  gemini_api_key: ${TEST_GEMINI_KEY}
storage:
  session_ttl: 2h
export:
  s3_bucket: catering-exports
  s3_prefix: approvals
agent:
  timeout: 15s
  max_steps: 4
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.LLM.GeminiKey != "file-key" {
		t.Errorf("expected expanded key, got %q", cfg.LLM.GeminiKey)
	}
	if cfg.LLM.Model != "gemini-2.0-flash" {
		t.Errorf("expected model from GOOGLE_GENAI_MODAL, got %q", cfg.LLM.Model)
	}
	if cfg.Storage.SessionTTL != 2*time.Hour || cfg.Agent.Timeout != 15*time.Second || cfg.Agent.MaxSteps != 4 {
		t.Errorf("durations not decoded: %+v %+v", cfg.Storage, cfg.Agent)
	}
	if cfg.Storage.RedisURL != "redis://localhost:6379/1" {
		t.Errorf("REDIS_URL not applied: %q", cfg.Storage.RedisURL)
	}
	if diff := cmp.Diff([]string{"https://ops.example.com", "https://admin.example.com"}, cfg.Server.CORSOrigins); diff != "" {
		t.Errorf("cors origins mismatch (-want +got):\n%s", diff)
	}
	if s3 := cfg.S3(); s3.Bucket != "catering-exports" || s3.Prefix != "approvals" {
		t.Errorf("unexpected S3 config %+v", s3)
	}
	if lc := cfg.Logging(nil); lc.Level != "debug" || lc.Format != "json" {
		t.Errorf("unexpected log config %+v", lc)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	clearEnv(t)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("CATERING_LLM_PROVIDER=openai\nOPENAI_API_KEY=sk-test\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables that are already set, even to "".
	os.Unsetenv("CATERING_LLM_PROVIDER")
	os.Unsetenv("OPENAI_API_KEY")
	t.Cleanup(func() {
		os.Unsetenv("CATERING_LLM_PROVIDER")
		os.Unsetenv("OPENAI_API_KEY")
	})

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p := cfg.Provider(); p.Provider != llm.ProviderOpenAI || p.OpenAIKey != "sk-test" {
		t.Errorf("unexpected provider config %+v", p)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.LLM.Provider = llm.ProviderAzure
	cfg.Knowledge.Embedder = "word2vec"
	cfg.Log.Level = "loud"
	cfg.Export.Dir = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"AZURE_OPENAI_API_KEY",
		"Azure deployment",
		`unknown embedder "word2vec"`,
		"log:",
		"export:",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error lacks %q:\n%v", want, err)
		}
	}

	cfg = Default()
	cfg.Knowledge.Enabled = false
	cfg.Knowledge.Embedder = "word2vec"
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled knowledge should not be validated: %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Chdir(t.TempDir())
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := Load(writeFile(t, "llm:\n  flavour: spicy\n")); err == nil {
		t.Error("expected error for unknown field")
	}
	if _, err := Load(writeFile(t, "llm:\n  provider: mystery\n")); err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Errorf("expected unknown provider error, got %v", err)
	}
}
