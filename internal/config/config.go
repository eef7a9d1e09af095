package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"wikirag/internal/domain"
)

// SourceConfig describes the folder that gets ingested.
type SourceConfig struct {
	Root           string   `yaml:"root" toml:"root"`
	Extensions     []string `yaml:"extensions" toml:"extensions"`
	IgnorePrefixes []string `yaml:"ignore_prefixes" toml:"ignore_prefixes"`
}

// RoutingRule maps a path segment to a collection. Rules are evaluated in order.
type RoutingRule struct {
	Segment    string `yaml:"segment" toml:"segment"`
	Collection string `yaml:"collection" toml:"collection"`
	Category   string `yaml:"category" toml:"category"`
}

// RoutingConfig holds the ordered routing rules.
type RoutingConfig struct {
	Rules  []RoutingRule `yaml:"rules" toml:"rules"`
	Strict bool          `yaml:"strict" toml:"strict"`
}

// RegroupConfig bounds the passage size in words. A nil Slack means the
// default; an explicit 0 disables the overflow allowance.
type RegroupConfig struct {
	MinWords int  `yaml:"min_words" toml:"min_words"`
	MaxWords int  `yaml:"max_words" toml:"max_words"`
	Slack    *int `yaml:"slack,omitempty" toml:"slack,omitempty"`
}

// SlackWords returns the configured slack or the default.
func (r RegroupConfig) SlackWords() int {
	if r.Slack == nil {
		return defaultSlack
	}
	return *r.Slack
}

// RemoteConverterConfig points at an HTTP conversion service.
type RemoteConverterConfig struct {
	URL         string `yaml:"url" toml:"url"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// LegacyConverterConfig configures the office suite used for .doc/.ppt/.xls.
type LegacyConverterConfig struct {
	Command     string `yaml:"command" toml:"command"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// ConverterConfig selects the document converter.
type ConverterConfig struct {
	Type      string                 `yaml:"type" toml:"type"`
	MaxTokens int                    `yaml:"max_tokens" toml:"max_tokens"`
	Remote    *RemoteConverterConfig `yaml:"remote,omitempty" toml:"remote,omitempty"`
	Legacy    LegacyConverterConfig  `yaml:"legacy" toml:"legacy"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url" toml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env" toml:"api_key_env"`
	Model             string  `yaml:"model" toml:"model"`
	TimeoutSecs       int     `yaml:"timeout_secs" toml:"timeout_secs"`
	BatchSize         int     `yaml:"batch_size" toml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	TaskMode          string  `yaml:"task_mode" toml:"task_mode"`
	Dimensions        int     `yaml:"dimensions" toml:"dimensions"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type" toml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty" toml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type" toml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty" toml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL             string `yaml:"url" toml:"url"`
	APIKey          string `yaml:"api_key" toml:"api_key"`
	TimeoutSecs     int    `yaml:"timeout_secs" toml:"timeout_secs"`
	UpsertBatchSize int    `yaml:"upsert_batch_size" toml:"upsert_batch_size"`
}

// ManifestConfig selects where fingerprints are kept.
type ManifestConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"`
}

// IngestConfig tunes the ingestion run.
type IngestConfig struct {
	Workers         int `yaml:"workers" toml:"workers"`
	WatchDebounceMS int `yaml:"watch_debounce_ms" toml:"watch_debounce_ms"`
}

// GeneratorConfig configures the OpenAI-compatible chat completion service.
type GeneratorConfig struct {
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"`
	Model       string `yaml:"model" toml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
	// Temperature is nil when unset so that an explicit 0 is kept.
	Temperature *float64 `yaml:"temperature,omitempty" toml:"temperature,omitempty"`
	MaxTokens   int      `yaml:"max_tokens" toml:"max_tokens"`
}

// SamplingTemperature returns the configured temperature or the default.
func (g GeneratorConfig) SamplingTemperature() float64 {
	if g.Temperature == nil {
		return defaultTemperature
	}
	return *g.Temperature
}

// QueryConfig configures retrieval and prompt assembly.
type QueryConfig struct {
	Collection     string  `yaml:"collection" toml:"collection"`
	TopK           int     `yaml:"top_k" toml:"top_k"`
	MinScore       float64 `yaml:"min_score" toml:"min_score"`
	SystemPrompt   string  `yaml:"system_prompt" toml:"system_prompt"`
	NoResultAnswer string  `yaml:"no_result_answer" toml:"no_result_answer"`
	Refusal        string  `yaml:"refusal" toml:"refusal"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string   `yaml:"addr" toml:"addr"`
	GinMode     string   `yaml:"gin_mode" toml:"gin_mode"`
	CORSOrigins []string `yaml:"cors_origins" toml:"cors_origins"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Source      SourceConfig      `yaml:"source" toml:"source"`
	Routing     RoutingConfig     `yaml:"routing" toml:"routing"`
	Regroup     RegroupConfig     `yaml:"regroup" toml:"regroup"`
	Converter   ConverterConfig   `yaml:"converter" toml:"converter"`
	Embedder    EmbedderConfig    `yaml:"embedder" toml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Manifest    ManifestConfig    `yaml:"manifest" toml:"manifest"`
	Ingest      IngestConfig      `yaml:"ingest" toml:"ingest"`
	Generator   GeneratorConfig   `yaml:"generator" toml:"generator"`
	Query       QueryConfig       `yaml:"query" toml:"query"`
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Log         LogConfig         `yaml:"log" toml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, cfg.Validate()
		}
		return nil, err
	}
	var cfg AppConfig
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, cfg.Validate()
}

// LoadDefault tries ./config.yaml first, then ~/.config/wikirag/config.yaml.
// If neither exists, it writes defaults to ~/.config/wikirag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, cfg.Validate()
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Write encodes cfg as YAML to w.
func Write(w io.Writer, cfg *AppConfig) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}

// DefaultUserConfigPath is ~/.config/wikirag/config.yaml.
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "wikirag", "config.yaml"), nil
}

// Default returns a fresh copy of the built-in configuration.
func Default() *AppConfig { return defaultConfig() }

// Validate rejects configurations the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	if len(c.Routing.Rules) == 0 {
		return fmt.Errorf("%w: at least one routing rule is required", domain.ErrInvalidConfig)
	}
	for i, r := range c.Routing.Rules {
		if strings.TrimSpace(r.Segment) == "" || strings.TrimSpace(r.Collection) == "" {
			return fmt.Errorf("%w: routing rule %d needs a segment and a collection", domain.ErrInvalidConfig, i)
		}
	}
	if c.Routing.Strict {
		for i, a := range c.Routing.Rules {
			for j, b := range c.Routing.Rules {
				if i != j && strings.Contains(a.Segment, b.Segment) {
					return fmt.Errorf("%w: routing segments %q and %q overlap", domain.ErrInvalidConfig, a.Segment, b.Segment)
				}
			}
		}
	}
	if c.Regroup.MinWords <= 0 || c.Regroup.MaxWords < c.Regroup.MinWords {
		return fmt.Errorf("%w: regroup bounds must satisfy 0 < min_words <= max_words", domain.ErrInvalidConfig)
	}
	if c.Regroup.SlackWords() < 0 {
		return fmt.Errorf("%w: regroup.slack must not be negative", domain.ErrInvalidConfig)
	}
	if c.Converter.Type == "remote" && !c.HasRemoteConverter() {
		return fmt.Errorf("%w: converter type remote needs converter.remote.url", domain.ErrInvalidConfig)
	}
	if !c.HasRemoteConverter() {
		for _, ext := range c.Source.Extensions {
			if !localFormats[strings.ToLower(ext)] {
				return fmt.Errorf("%w: %s files need converter.remote.url", domain.ErrInvalidConfig, ext)
			}
		}
	}
	if c.Query.MinScore < 0 {
		return fmt.Errorf("%w: query.min_score must not be negative", domain.ErrInvalidConfig)
	}
	return nil
}

const (
	defaultSlack       = 50
	defaultTemperature = 0.2
)

// localExtensions are the formats converted without a remote service:
// text and Markdown, DOCX, and DOC through pre-conversion to DOCX.
var localExtensions = []string{".doc", ".docx", ".md", ".txt"}

// remoteExtensions additionally need the remote conversion service.
var remoteExtensions = []string{".doc", ".docx", ".pdf", ".md", ".txt", ".ppt", ".pptx", ".xlsx"}

var localFormats = map[string]bool{".txt": true, ".md": true, ".markdown": true, ".docx": true, ".doc": true}

// HasRemoteConverter reports whether a conversion service is configured.
func (c *AppConfig) HasRemoteConverter() bool {
	return c.Converter.Remote != nil && strings.TrimSpace(c.Converter.Remote.URL) != ""
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Source: SourceConfig{
			Root:           "./wiki",
			Extensions:     append([]string(nil), localExtensions...),
			IgnorePrefixes: []string{"~$"},
		},
		Routing: RoutingConfig{Rules: []RoutingRule{
			{Segment: "niveau1-usagers", Collection: "wiki_usagers", Category: "usagers"},
			{Segment: "niveau2-direction", Collection: "wiki_direction", Category: "direction"},
		}},
		Regroup:   RegroupConfig{MinWords: 150, MaxWords: 400},
		Converter: ConverterConfig{Type: "local", MaxTokens: 8192},
		Embedder: EmbedderConfig{Type: "openai", OpenAI: &OpenAIEmbedderConfig{
			BaseURL:   "http://localhost:11434/v1",
			APIKeyEnv: "EMBEDDING_API_KEY",
			Model:     "jina-embeddings-v3",
			TaskMode:  "prefix",
		}},
		VectorStore: VectorStoreConfig{Type: "qdrant", Qdrant: &QdrantConfig{URL: "http://localhost:6333"}},
		Manifest:    ManifestConfig{Driver: "json", Path: "manifest.json"},
		Generator: GeneratorConfig{
			BaseURL:   "http://llama:8080/v1",
			APIKeyEnv: "LLM_API_KEY",
			Model:     "qwen:latest",
		},
		Query:  QueryConfig{MinScore: 0.01},
		Server: ServerConfig{Addr: ":8000"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Source.Root == "" {
		cfg.Source.Root = "./wiki"
	}
	if len(cfg.Source.Extensions) == 0 {
		if cfg.HasRemoteConverter() {
			cfg.Source.Extensions = append([]string(nil), remoteExtensions...)
		} else {
			cfg.Source.Extensions = append([]string(nil), localExtensions...)
		}
	}
	for i, r := range cfg.Routing.Rules {
		if r.Category == "" {
			cfg.Routing.Rules[i].Category = strings.TrimPrefix(r.Collection, "wiki_")
		}
	}
	if cfg.Regroup.MinWords == 0 {
		cfg.Regroup.MinWords = 150
	}
	if cfg.Regroup.MaxWords == 0 {
		cfg.Regroup.MaxWords = 400
	}
	if cfg.Regroup.Slack == nil {
		slack := defaultSlack
		cfg.Regroup.Slack = &slack
	}
	if cfg.Converter.Type == "" {
		cfg.Converter.Type = "local"
	}
	if cfg.Converter.MaxTokens == 0 {
		cfg.Converter.MaxTokens = 8192
	}
	if cfg.Converter.Remote != nil && cfg.Converter.Remote.TimeoutSecs == 0 {
		cfg.Converter.Remote.TimeoutSecs = 300
	}
	if cfg.Converter.Legacy.Command == "" {
		cfg.Converter.Legacy.Command = "libreoffice"
	}
	if cfg.Converter.Legacy.TimeoutSecs == 0 {
		cfg.Converter.Legacy.TimeoutSecs = 120
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 120
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 32
		}
		if cfg.Embedder.OpenAI.TaskMode == "" {
			cfg.Embedder.OpenAI.TaskMode = "none"
		}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "qdrant"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 30
		}
		if cfg.VectorStore.Qdrant.UpsertBatchSize == 0 {
			cfg.VectorStore.Qdrant.UpsertBatchSize = 100
		}
	}
	if cfg.Manifest.Driver == "" {
		cfg.Manifest.Driver = "json"
	}
	if cfg.Manifest.Path == "" {
		cfg.Manifest.Path = "manifest.json"
	}
	if cfg.Ingest.Workers <= 0 {
		cfg.Ingest.Workers = 1
	}
	if cfg.Ingest.WatchDebounceMS == 0 {
		cfg.Ingest.WatchDebounceMS = 500
	}
	if cfg.Generator.APIKeyEnv == "" {
		cfg.Generator.APIKeyEnv = "LLM_API_KEY"
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 120
	}
	if cfg.Generator.Temperature == nil {
		t := defaultTemperature
		cfg.Generator.Temperature = &t
	}
	if cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = 1024
	}
	if cfg.Query.Collection == "" && len(cfg.Routing.Rules) > 0 {
		cfg.Query.Collection = cfg.Routing.Rules[0].Collection
	}
	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 1
	}
	if cfg.Query.SystemPrompt == "" {
		cfg.Query.SystemPrompt = "Tu es un assistant utile et factuel, tu réponds uniquement en français."
	}
	if cfg.Query.NoResultAnswer == "" {
		cfg.Query.NoResultAnswer = "Aucun résultat suffisamment pertinent n’a été trouvé."
	}
	if cfg.Query.Refusal == "" {
		cfg.Query.Refusal = "Je ne trouve pas la réponse dans les documents fournis."
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// applyEnvOverrides maps the deployment environment variables onto the config.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("DATA_FOLDER"); v != "" {
		cfg.Source.Root = v
	}
	if host := os.Getenv("QDRANT_HOST"); host != "" && cfg.VectorStore.Qdrant != nil {
		port := os.Getenv("QDRANT_PORT")
		if _, err := strconv.Atoi(port); err != nil {
			port = "6333"
		}
		cfg.VectorStore.Qdrant.URL = "http://" + host + ":" + port
	}
	if v := os.Getenv("QDRANT_COLLECTION"); v != "" {
		cfg.Query.Collection = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.Generator.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL_NAME"); v != "" {
		cfg.Generator.Model = v
	}
}
