// Package config handles experiment configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	apperrors "github.com/tablefill/table-fill/internal/pkg/errors"
	"github.com/tablefill/table-fill/internal/pipeline"
	"github.com/tablefill/table-fill/internal/table"
)

// Config holds one experiment run's configuration.
type Config struct {
	// General experiment settings
	General GeneralConfig `yaml:"general"`

	// Query-table selection
	QueryTables QueryTablesConfig `yaml:"query-tables"`

	// Pipeline stage lists, cross-multiplied into pipelines
	Pipelines pipeline.Options `yaml:"pipelines"`

	// Entity index connection
	Index IndexConfig `yaml:"index"`

	// Host page-rank source
	PageRank PageRankConfig `yaml:"page-rank"`

	// Value generation service, required by generate_entity pipelines
	Generator GeneratorConfig `yaml:"generator"`

	// Event bus settings
	Bus BusConfig `yaml:"bus"`

	// Logging configuration
	Log LogConfig `yaml:"log"`
}

// GeneralConfig holds settings shared by every pipeline of a run.
type GeneralConfig struct {
	ExperimentType           string `envconfig:"TF_EXPERIMENT_TYPE" yaml:"experiment-type"`
	EvidenceCount            int    `envconfig:"TF_EVIDENCE_COUNT" yaml:"evidence_count"`
	KIntervals               []int  `envconfig:"TF_K_INTERVALS" yaml:"k-intervals"`
	SaveResultsWithEvidences bool   `envconfig:"TF_SAVE_RESULTS_WITH_EVIDENCES" yaml:"save_results_with_evidences"`
	Workers                  int    `envconfig:"TF_WORKERS" yaml:"workers"`
	ResultsDir               string `envconfig:"TF_RESULTS_DIR" yaml:"results-dir"`
}

// QueryTablesConfig selects the query tables an experiment runs on.
type QueryTablesConfig struct {
	SchemaOrgClass    string   `envconfig:"TF_SCHEMA_ORG_CLASS" yaml:"schema_org_class"`
	Category          string   `envconfig:"TF_CATEGORY" yaml:"category"`
	Path              string   `envconfig:"TF_QUERY_TABLE_PATH" yaml:"path"`
	QueryTableID      int      `envconfig:"TF_QUERY_TABLE_ID" yaml:"query-table-id"`
	ContextAttributes []string `yaml:"context-attributes"`
	GroundTruthTables []string `yaml:"ground-truth-tables"`
}

// IndexConfig holds entity index connection settings.
type IndexConfig struct {
	Host              string `envconfig:"TF_INDEX_HOST" yaml:"host"`
	Port              int    `envconfig:"TF_INDEX_PORT" yaml:"port"`
	APIKey            string `envconfig:"TF_INDEX_API_KEY" yaml:"api_key"`
	UseTLS            bool   `envconfig:"TF_INDEX_USE_TLS" yaml:"use_tls"`
	Collection        string `envconfig:"TF_INDEX_COLLECTION" yaml:"collection"`
	RequestsPerSecond int    `envconfig:"TF_INDEX_RATE_LIMIT" yaml:"requests_per_second"`

	EmbedderURL       string `envconfig:"TF_EMBEDDER_URL" yaml:"embedder_url"`
	EmbedderModel     string `envconfig:"TF_EMBEDDER_MODEL" yaml:"embedder_model"`
	EmbedderCacheSize int    `envconfig:"TF_EMBEDDER_CACHE_SIZE" yaml:"embedder_cache_size"`
}

// PageRankConfig selects where host page ranks come from.
type PageRankConfig struct {
	Source   string `envconfig:"TF_PAGE_RANK_SOURCE" yaml:"source"`
	File     string `envconfig:"TF_PAGE_RANK_FILE" yaml:"file"`
	RedisURL string `envconfig:"TF_PAGE_RANK_REDIS_URL" yaml:"redis_url"`
}

// GeneratorConfig holds the value generation service settings.
type GeneratorConfig struct {
	URL   string `envconfig:"TF_GENERATOR_URL" yaml:"url"`
	Model string `envconfig:"TF_GENERATOR_MODEL" yaml:"model"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"TF_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"TF_KAFKA_BROKERS" yaml:"kafka_brokers"`

	// JournalPath enables an on-disk event journal when set.
	JournalPath string `envconfig:"TF_BUS_JOURNAL" yaml:"journal_path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"TF_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"TF_LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from an optional yaml file with environment
// variable overrides, then validates it.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	setDefaults(cfg)

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, apperrors.StorageError("loading config file", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, apperrors.ValidationErrorf("processing env config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.General = GeneralConfig{
		ExperimentType: string(table.TypeAugmentation),
		EvidenceCount:  30,
		KIntervals:     []int{1, 2, 5, 10, 20, 30, 50},
		Workers:        0,
		ResultsDir:     "./results",
	}

	cfg.Index = IndexConfig{
		Host:              "localhost",
		Port:              6334,
		Collection:        "entity_rows",
		RequestsPerSecond: 20,
		EmbedderURL:       "http://localhost:8090/embed",
		EmbedderCacheSize: 10000,
	}

	cfg.PageRank = PageRankConfig{
		Source:   "file",
		RedisURL: "redis://localhost:6379",
	}

	cfg.Bus = BusConfig{
		Type: "memory",
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}
}

// Validate checks the configuration and reports every problem at once as
// a validation error.
func (c *Config) Validate() error {
	var errs []string

	experimentType := table.Type(c.General.ExperimentType)
	if experimentType != table.TypeRetrieval && experimentType != table.TypeAugmentation {
		errs = append(errs, fmt.Sprintf("invalid experiment-type: %s (must be retrieval or augmentation)", c.General.ExperimentType))
	}
	if c.General.EvidenceCount < 1 {
		errs = append(errs, "configuration for general - evidence_count missing")
	}
	if len(c.General.KIntervals) == 0 {
		errs = append(errs, "configuration for general - k-intervals missing")
	}
	for _, k := range c.General.KIntervals {
		if k < 1 {
			errs = append(errs, fmt.Sprintf("invalid k interval %d", k))
		}
	}
	if c.General.Workers < 0 {
		errs = append(errs, "workers must not be negative")
	}

	if c.QueryTables.SchemaOrgClass == "" {
		errs = append(errs, "configuration for query-tables - schema_org_class missing")
	}
	if c.QueryTables.Path == "" {
		errs = append(errs, "configuration for query-tables - path missing")
	}

	if err := c.Pipelines.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	validPageRankSources := map[string]bool{"file": true, "redis": true}
	if !validPageRankSources[c.PageRank.Source] {
		errs = append(errs, fmt.Sprintf("invalid page-rank source: %s (must be file or redis)", c.PageRank.Source))
	}

	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}
	if c.Bus.Type == "kafka" && c.Bus.KafkaBrokers == "" {
		errs = append(errs, "configuration for bus - kafka_brokers missing")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	if len(errs) > 0 {
		return apperrors.ValidationError("config validation failed:\n  - " + strings.Join(errs, "\n  - "))
	}

	return nil
}

// ExperimentType returns the configured experiment type.
func (c *Config) ExperimentType() table.Type {
	return table.Type(c.General.ExperimentType)
}

// KafkaBrokerList splits the broker setting into addresses.
func (c *Config) KafkaBrokerList() []string {
	if c.Bus.KafkaBrokers == "" {
		return nil
	}

	brokers := strings.Split(c.Bus.KafkaBrokers, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}

	return brokers
}
