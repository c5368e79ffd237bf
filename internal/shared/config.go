package shared

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AppEnv      string `envconfig:"APP_ENV" default:"prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9100"`

	StoreDriver         string `envconfig:"STORE_DRIVER" default:"sqlite"`
	DatabasePath        string `envconfig:"DATABASE_PATH" default:"ga_persona.db"`
	MySQLDSN            string `envconfig:"MYSQL_DSN" default:"root:root@tcp(localhost:3306)/ga?charset=utf8mb4&loc=UTC"`
	AuthoritativeDBPath string `envconfig:"AUTHORITATIVE_DB_PATH"`
	AIPSchema           string `envconfig:"AIP_SCHEMA"`

	RedisAddr string        `envconfig:"REDIS_ADDR"`
	RedisPass string        `envconfig:"REDIS_PASSWORD"`
	RedisDB   int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL  time.Duration `envconfig:"CACHE_TTL" default:"15m"`

	LLMBaseURL string        `envconfig:"LLM_BASE_URL" default:"https://api.openai.com/v1"`
	LLMAPIKey  string        `envconfig:"LLM_API_KEY"`
	LLMModel   string        `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMRPS     float64       `envconfig:"LLM_RPS" default:"2"`
	LLMTimeout time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`

	ExtractWorkers       int     `envconfig:"EXTRACT_WORKERS" default:"4"`
	ExtractMaxRetries    int     `envconfig:"EXTRACT_MAX_RETRIES" default:"2"`
	ExtractMinConfidence float64 `envconfig:"EXTRACT_MIN_CONFIDENCE" default:"0.5"`

	OntologyPath       string `envconfig:"ONTOLOGY_PATH"`
	PersonasPath       string `envconfig:"PERSONAS_PATH"`
	FeatureMappingPath string `envconfig:"FEATURE_MAPPING_PATH"`

	SourceCacheDir     string        `envconfig:"SOURCE_CACHE_DIR" default:".cache/sources"`
	SourceMaxCacheAge  time.Duration `envconfig:"SOURCE_MAX_CACHE_AGE" default:"168h"`
	SourceNeverRefresh bool          `envconfig:"SOURCE_NEVER_REFRESH" default:"false"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3Region    string `envconfig:"S3_REGION" default:"eu-central-1"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"ga.airport.rebuilt"`

	CombineReviewWeight float64 `envconfig:"COMBINE_REVIEW_WEIGHT" default:"0.7"`
	DecayHalfLifeDays   float64 `envconfig:"DECAY_HALF_LIFE" default:"0"`
	SmoothingStrength   float64 `envconfig:"SMOOTHING_STRENGTH" default:"0"`
	SmoothingPrior      float64 `envconfig:"SMOOTHING_PRIOR" default:"0.5"`

	RebuildSchedule string `envconfig:"REBUILD_SCHEDULE" default:"0 3 * * *"`
}

// Load reads an optional .env file and then the environment. Every invalid
// value is reported by variable name.
func Load() (Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.StoreDriver) {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER: %q is not sqlite or mysql", c.StoreDriver))
	}
	if strings.EqualFold(c.StoreDriver, "sqlite") && c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH: required for sqlite"))
	}
	if strings.EqualFold(c.StoreDriver, "mysql") && c.MySQLDSN == "" {
		errs = append(errs, errors.New("MYSQL_DSN: required for mysql"))
	}
	if c.LLMRPS <= 0 {
		errs = append(errs, fmt.Errorf("LLM_RPS: must be positive, got %v", c.LLMRPS))
	}
	if c.ExtractWorkers < 1 {
		errs = append(errs, fmt.Errorf("EXTRACT_WORKERS: must be at least 1, got %d", c.ExtractWorkers))
	}
	if c.ExtractMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("EXTRACT_MAX_RETRIES: must not be negative, got %d", c.ExtractMaxRetries))
	}
	if c.ExtractMinConfidence < 0 || c.ExtractMinConfidence > 1 {
		errs = append(errs, fmt.Errorf("EXTRACT_MIN_CONFIDENCE: must be in [0,1], got %v", c.ExtractMinConfidence))
	}
	if c.CombineReviewWeight < 0 || c.CombineReviewWeight > 1 {
		errs = append(errs, fmt.Errorf("COMBINE_REVIEW_WEIGHT: must be in [0,1], got %v", c.CombineReviewWeight))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC: required when KAFKA_BROKERS is set"))
	}
	return errors.Join(errs...)
}

func (c Config) CacheTTLSeconds() int { return int(c.CacheTTL.Seconds()) }
