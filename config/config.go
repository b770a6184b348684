// Package config loads the assistant's settings from a .env file, an
// optional YAML file and the environment, in that order of precedence
// (environment wins).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/scttfrdmn/catering-agent-go/adapter/llm"
	"github.com/scttfrdmn/catering-agent-go/export"
	"github.com/scttfrdmn/catering-agent-go/observability"
)

// Embedders and rerankers accepted by the knowledge section.
const (
	EmbedderHash   = "hash"
	EmbedderOpenAI = "openai"
	EmbedderAzure  = "azure"
	EmbedderGemini = "gemini"

	RerankLexical = "lexical"
	RerankLLM     = "llm"
)

// Config is the complete assistant configuration.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Storage   StorageConfig   `yaml:"storage"`
	Export    ExportConfig    `yaml:"export"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Agent     AgentConfig     `yaml:"agent"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LLMConfig selects the model provider.
type LLMConfig struct {
	// Provider is openai, azure, gemini, bedrock or scripted (default).
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	OpenAIKey string        `yaml:"openai_api_key"`
	GeminiKey string        `yaml:"gemini_api_key"`
	Azure     AzureConfig   `yaml:"azure"`
	Bedrock   BedrockConfig `yaml:"bedrock"`
}

type AzureConfig struct {
	APIKey              string `yaml:"api_key"`
	Endpoint            string `yaml:"endpoint"`
	APIVersion          string `yaml:"api_version"`
	Deployment          string `yaml:"deployment"`
	EmbeddingDeployment string `yaml:"embedding_deployment"`
}

type BedrockConfig struct {
	Region      string `yaml:"region"`
	Profile     string `yaml:"profile"`
	EndpointURL string `yaml:"endpoint_url"`
}

// StorageConfig selects the catalog and session backends.
type StorageConfig struct {
	// CatalogDSN is a SQLite DSN; empty serves the built-in fixtures from
	// memory.
	CatalogDSN string `yaml:"catalog_dsn"`
	// RedisURL enables Redis-backed sessions and conversation memory.
	RedisURL   string        `yaml:"redis_url"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// ExportConfig selects where exported files go. A bucket switches from the
// local directory to S3.
type ExportConfig struct {
	Dir          string `yaml:"dir"`
	S3Bucket     string `yaml:"s3_bucket"`
	S3Prefix     string `yaml:"s3_prefix"`
	S3Region     string `yaml:"s3_region"`
	S3Endpoint   string `yaml:"s3_endpoint"`
	S3PathStyle  bool   `yaml:"s3_path_style"`
	AuditLogPath string `yaml:"audit_log"`
}

type KnowledgeConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Embedder       string `yaml:"embedder"`
	EmbeddingModel string `yaml:"embedding_model"`
	// StorePath is a SQLite file for the vector store; empty keeps it in
	// memory.
	StorePath string `yaml:"store_path"`
	Rerank    string `yaml:"rerank"`
}

type AgentConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxSteps      int           `yaml:"max_steps"`
	RetryAttempts int           `yaml:"retry_attempts"`
	HistoryLimit  int           `yaml:"history_limit"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TelemetryConfig struct {
	ServiceName   string `yaml:"service_name"`
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
	ConsoleTraces bool   `yaml:"console_traces"`
	Metrics       bool   `yaml:"metrics"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LLM:       LLMConfig{Provider: llm.ProviderScripted},
		Storage:   StorageConfig{SessionTTL: 24 * time.Hour},
		Export:    ExportConfig{Dir: "exports"},
		Knowledge: KnowledgeConfig{Enabled: true, Embedder: EmbedderHash, Rerank: RerankLexical},
		Agent:     AgentConfig{Timeout: 60 * time.Second, MaxSteps: 8, RetryAttempts: 3, HistoryLimit: 10},
		Server: ServerConfig{
			Addr:            ":8080",
			CORSOrigins:     []string{"*"},
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log:       LogConfig{Level: "info", Format: "text"},
		Telemetry: TelemetryConfig{ServiceName: "catering-agent", Metrics: true},
	}
}

// Load reads .env from the working directory when present, then the YAML
// file at path (or $CATERING_CONFIG), then environment overrides. ${VAR}
// references in the YAML file are expanded. The result is validated.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv("CATERING_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := cfg.decode(bytes.NewReader([]byte(os.ExpandEnv(string(data))))); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	boolean := func(dst *bool, key string) {
		if v, ok := lookup(key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str(&c.LLM.Provider, "CATERING_LLM_PROVIDER")
	str(&c.LLM.Model, "CATERING_LLM_MODEL")
	if c.LLM.Provider == llm.ProviderGemini {
		str(&c.LLM.Model, "GOOGLE_GENAI_MODAL")
	}
	str(&c.LLM.OpenAIKey, "OPENAI_API_KEY")
	str(&c.LLM.GeminiKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	str(&c.LLM.Azure.APIKey, "AZURE_OPENAI_API_KEY")
	str(&c.LLM.Azure.Endpoint, "AZURE_OPENAI_ENDPOINT")
	str(&c.LLM.Azure.APIVersion, "AZURE_OPENAI_API_VERSION")
	str(&c.LLM.Azure.Deployment, "AZURE_OPENAI_DEPLOYMENT")
	str(&c.LLM.Azure.EmbeddingDeployment, "AZURE_OPENAI_EMBEDDING_DEPLOYMENT")
	str(&c.LLM.Bedrock.Region, "AWS_REGION")
	str(&c.LLM.Bedrock.Profile, "AWS_PROFILE")

	str(&c.Storage.CatalogDSN, "CATERING_CATALOG_DSN")
	str(&c.Storage.RedisURL, "REDIS_URL")

	str(&c.Export.Dir, "CATERING_EXPORT_DIR")
	str(&c.Export.S3Bucket, "CATERING_S3_BUCKET")
	str(&c.Export.S3Prefix, "CATERING_S3_PREFIX")
	str(&c.Export.S3Region, "CATERING_S3_REGION", "AWS_REGION")
	str(&c.Export.AuditLogPath, "CATERING_AUDIT_LOG")

	boolean(&c.Knowledge.Enabled, "CATERING_KNOWLEDGE_ENABLED")
	str(&c.Knowledge.Embedder, "CATERING_KNOWLEDGE_EMBEDDER")
	str(&c.Knowledge.StorePath, "CATERING_KNOWLEDGE_STORE")
	str(&c.Knowledge.Rerank, "CATERING_KNOWLEDGE_RERANK")

	str(&c.Server.Addr, "CATERING_ADDR")
	if v, ok := lookup("CATERING_CORS_ORIGINS"); ok && v != "" {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}

	str(&c.Log.Level, "CATERING_LOG_LEVEL")
	str(&c.Log.Format, "CATERING_LOG_FORMAT")
	str(&c.Telemetry.OTLPEndpoint, "CATERING_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	boolean(&c.Telemetry.ConsoleTraces, "CATERING_CONSOLE_TRACES")
	boolean(&c.Telemetry.Metrics, "CATERING_METRICS")
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case llm.ProviderScripted, llm.ProviderBedrock:
	case llm.ProviderOpenAI:
		if c.LLM.OpenAIKey == "" {
			errs = append(errs, errors.New("llm: OPENAI_API_KEY is required for the openai provider"))
		}
	case llm.ProviderAzure:
		if c.LLM.Azure.APIKey == "" || c.LLM.Azure.Endpoint == "" {
			errs = append(errs, errors.New("llm: AZURE_OPENAI_API_KEY and AZURE_OPENAI_ENDPOINT are required for the azure provider"))
		}
		if c.LLM.Azure.Deployment == "" && c.LLM.Model == "" {
			errs = append(errs, errors.New("llm: an Azure deployment or model is required"))
		}
	case llm.ProviderGemini:
		if c.LLM.GeminiKey == "" {
			errs = append(errs, errors.New("llm: GEMINI_API_KEY is required for the gemini provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm: unknown provider %q", c.LLM.Provider))
	}

	if c.Knowledge.Enabled {
		switch c.Knowledge.Embedder {
		case EmbedderHash:
		case EmbedderOpenAI:
			if c.LLM.OpenAIKey == "" {
				errs = append(errs, errors.New("knowledge: the openai embedder needs OPENAI_API_KEY"))
			}
		case EmbedderAzure:
			if c.LLM.Azure.APIKey == "" || c.LLM.Azure.Endpoint == "" || c.LLM.Azure.EmbeddingDeployment == "" {
				errs = append(errs, errors.New("knowledge: the azure embedder needs an API key, endpoint and embedding deployment"))
			}
		case EmbedderGemini:
			if c.LLM.GeminiKey == "" {
				errs = append(errs, errors.New("knowledge: the gemini embedder needs GEMINI_API_KEY"))
			}
		default:
			errs = append(errs, fmt.Errorf("knowledge: unknown embedder %q", c.Knowledge.Embedder))
		}
		if c.Knowledge.Rerank != RerankLexical && c.Knowledge.Rerank != RerankLLM {
			errs = append(errs, fmt.Errorf("knowledge: unknown reranker %q", c.Knowledge.Rerank))
		}
	}

	if c.Export.Dir == "" && c.Export.S3Bucket == "" {
		errs = append(errs, errors.New("export: a directory or an S3 bucket is required"))
	}
	if c.Agent.Timeout < 0 || c.Agent.MaxSteps < 0 || c.Agent.RetryAttempts < 0 {
		errs = append(errs, errors.New("agent: timeout, max_steps and retry_attempts must not be negative"))
	}
	if c.Storage.SessionTTL < 0 {
		errs = append(errs, errors.New("storage: session_ttl must not be negative"))
	}
	if _, err := observability.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Provider returns the model provider settings.
func (c *Config) Provider() llm.ProviderConfig {
	return llm.ProviderConfig{
		Provider:  c.LLM.Provider,
		Model:     c.LLM.Model,
		OpenAIKey: c.LLM.OpenAIKey,
		GeminiKey: c.LLM.GeminiKey,
		Azure: llm.AzureConfig{
			APIKey:     c.LLM.Azure.APIKey,
			Endpoint:   c.LLM.Azure.Endpoint,
			APIVersion: c.LLM.Azure.APIVersion,
			Deployment: c.LLM.Azure.Deployment,
		},
		Bedrock: llm.BedrockConfig{
			Region:      c.LLM.Bedrock.Region,
			Profile:     c.LLM.Bedrock.Profile,
			EndpointURL: c.LLM.Bedrock.EndpointURL,
		},
	}
}

// S3 returns the S3 sink settings.
func (c *Config) S3() export.S3Config {
	return export.S3Config{
		Bucket:         c.Export.S3Bucket,
		Prefix:         c.Export.S3Prefix,
		Region:         c.Export.S3Region,
		Endpoint:       c.Export.S3Endpoint,
		ForcePathStyle: c.Export.S3PathStyle,
	}
}

// Tracing returns the tracer settings.
func (c *Config) Tracing() observability.TracingConfig {
	return observability.TracingConfig{
		ServiceName:  c.Telemetry.ServiceName,
		OTLPEndpoint: c.Telemetry.OTLPEndpoint,
		Console:      c.Telemetry.ConsoleTraces,
	}
}

// Logging returns the logger settings writing to w.
func (c *Config) Logging(w io.Writer) observability.LogConfig {
	return observability.LogConfig{Level: c.Log.Level, Format: c.Log.Format, Writer: w}
}
