// Package config loads process settings from defaults, an optional YAML file,
// a .env file and AGT_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/petasbytes/recagent/internal/model"
	"github.com/petasbytes/recagent/internal/provider"
	"github.com/petasbytes/recagent/internal/retry"
)

// EnvPrefix prefixes every environment override, e.g. AGT_INFERENCE_PROVIDER.
const EnvPrefix = "AGT"

type Config struct {
	Inference  InferenceConfig `mapstructure:"inference" yaml:"inference"`
	Retry      retry.Policy    `mapstructure:"retry" yaml:"retry"`
	Actions    ActionsConfig   `mapstructure:"actions" yaml:"actions"`
	Chain      ChainConfig     `mapstructure:"chain" yaml:"chain"`
	Assistant  model.Assistant `mapstructure:"assistant" yaml:"assistant"`
	Store      StoreConfig     `mapstructure:"store" yaml:"store"`
	Cache      CacheConfig     `mapstructure:"cache" yaml:"cache"`
	HTTP       HTTPConfig      `mapstructure:"http" yaml:"http"`
	Log        LogConfig       `mapstructure:"log" yaml:"log"`
	Data       DataConfig      `mapstructure:"data" yaml:"data"`
	Transcript string          `mapstructure:"transcript" yaml:"transcript"`
}

type InferenceConfig struct {
	Provider        string                          `mapstructure:"provider" yaml:"provider"`
	Model           string                          `mapstructure:"model" yaml:"model"`
	TimeoutPerChunk time.Duration                   `mapstructure:"timeout_per_chunk" yaml:"timeout_per_chunk"`
	TokenBudget     int                             `mapstructure:"token_budget" yaml:"token_budget"`
	MaxTokens       int64                           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Tokenizer       string                          `mapstructure:"tokenizer" yaml:"tokenizer"`
	Credentials     map[string]provider.Credentials `mapstructure:"credentials" yaml:"credentials"`
}

type ActionsConfig struct {
	PollTimeout    time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxResultRunes int           `mapstructure:"max_result_runes" yaml:"max_result_runes"`
}

type ChainConfig struct {
	MaxCorrectiveRounds int `mapstructure:"max_corrective_rounds" yaml:"max_corrective_rounds"`
}

type StoreConfig struct {
	// Driver is memory, sqlite or postgres.
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

type CacheConfig struct {
	// RedisAddr enables the run status cache when set.
	RedisAddr string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	JWTSecret       string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
	Format      string `mapstructure:"format" yaml:"format"`
}

type DataConfig struct {
	ReadRoot  string `mapstructure:"read_root" yaml:"read_root"`
	WriteRoot string `mapstructure:"write_root" yaml:"write_root"`
}

// Drivers lists the accepted store drivers.
var Drivers = []string{"memory", "sqlite", "postgres"}

// providerKeyEnv maps each provider to the SDK's conventional key variable.
var providerKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

func setDefaults(v *viper.Viper) {
	retryDefaults := retry.DefaultPolicy()

	v.SetDefault("inference.provider", "demo")
	v.SetDefault("inference.model", "")
	v.SetDefault("inference.timeout_per_chunk", 30*time.Second)
	v.SetDefault("inference.token_budget", 8000)
	v.SetDefault("inference.max_tokens", 1024)
	v.SetDefault("inference.tokenizer", "tiktoken")
	for name := range providerKeyEnv {
		v.SetDefault("inference.credentials."+name+".api_key", "")
		v.SetDefault("inference.credentials."+name+".base_url", "")
	}
	v.SetDefault("retry.max_attempts", retryDefaults.MaxAttempts)
	v.SetDefault("retry.initial_backoff", retryDefaults.InitialBackoff)
	v.SetDefault("retry.max_backoff", retryDefaults.MaxBackoff)
	v.SetDefault("retry.multiplier", retryDefaults.Multiplier)
	v.SetDefault("actions.poll_timeout", 30*time.Second)
	v.SetDefault("actions.poll_interval", 100*time.Millisecond)
	v.SetDefault("actions.max_result_runes", 16000)
	v.SetDefault("chain.max_corrective_rounds", 3)
	v.SetDefault("assistant.id", "recommender")
	v.SetDefault("assistant.name", "Movie recommender")
	v.SetDefault("assistant.instructions", "")
	v.SetDefault("assistant.provider", "")
	v.SetDefault("assistant.model", "")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.jwt_secret", "")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.format", "")
	v.SetDefault("data.read_root", "")
	v.SetDefault("data.write_root", "")
	v.SetDefault("transcript", "")
}

// Load reads path (optional, YAML) and the environment. A .env file next to
// path, or in the working directory when path is empty, is loaded first without
// overriding variables already set.
func Load(path string) (Config, error) {
	if err := loadDotEnv(path); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for name, env := range providerKeyEnv {
		key := "inference.credentials." + name + ".api_key"
		if err := v.BindEnv(key, envName(key), env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func loadDotEnv(path string) error {
	envFile := ".env"
	if path != "" {
		envFile = filepath.Join(filepath.Dir(path), ".env")
	}
	err := godotenv.Load(envFile)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", envFile, err)
}

// Validate rejects settings no component can run with.
func (c Config) Validate() error {
	var errs []error
	if c.Inference.Provider == "" {
		errs = append(errs, model.Invalidf("inference.provider is required"))
	}
	if c.Inference.TimeoutPerChunk <= 0 {
		errs = append(errs, model.Invalidf("inference.timeout_per_chunk must be positive"))
	}
	if c.Inference.TokenBudget <= 0 {
		errs = append(errs, model.Invalidf("inference.token_budget must be positive"))
	}
	switch c.Inference.Tokenizer {
	case "tiktoken", "heuristic":
	default:
		errs = append(errs, model.Invalidf("inference.tokenizer %q is not tiktoken or heuristic", c.Inference.Tokenizer))
	}
	if c.Actions.PollTimeout <= 0 || c.Actions.PollInterval <= 0 {
		errs = append(errs, model.Invalidf("actions.poll_timeout and actions.poll_interval must be positive"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, model.Invalidf("retry.max_attempts must be at least 1"))
	}
	if c.Chain.MaxCorrectiveRounds < 0 {
		errs = append(errs, model.Invalidf("chain.max_corrective_rounds must not be negative"))
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, model.Invalidf("store.dsn is required for driver %s", c.Store.Driver))
		}
	default:
		errs = append(errs, model.Invalidf("store.driver %q is not one of %s", c.Store.Driver, strings.Join(Drivers, ", ")))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy with secrets masked.
func (c Config) Redacted() Config {
	creds := make(map[string]provider.Credentials, len(c.Inference.Credentials))
	for name, cr := range c.Inference.Credentials {
		if cr.APIKey != "" {
			cr.APIKey = "***"
		}
		creds[name] = cr
	}
	c.Inference.Credentials = creds
	if c.HTTP.JWTSecret != "" {
		c.HTTP.JWTSecret = "***"
	}
	if c.Store.DSN != "" && c.Store.Driver == "postgres" {
		c.Store.DSN = "***"
	}
	return c
}

// YAML renders c with secrets masked.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}

// EnsureDirs creates the sqlite database directory when needed.
func (c Config) EnsureDirs() error {
	if c.Store.Driver != "sqlite" || c.Store.DSN == "" || strings.HasPrefix(c.Store.DSN, "file:") {
		return nil
	}
	if dir := filepath.Dir(c.Store.DSN); dir != "." {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}
