// Package config loads the consumer CLI configuration from defaults,
// CONSUMER_* environment variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/hugolhafner/dskit/backoff"
	"github.com/hugolhafner/go-consumer/header"
	"github.com/hugolhafner/go-consumer/kafka"
	"github.com/hugolhafner/go-consumer/logger"
	"github.com/hugolhafner/go-consumer/runner"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const EnvPrefix = "CONSUMER"

type Config struct {
	Topic             string                   `mapstructure:"topic"`
	TopicIsPattern    bool                     `mapstructure:"topic_is_pattern"`
	ConsumersCount    int                      `mapstructure:"consumers_count"`
	PollTimeout       time.Duration            `mapstructure:"poll_timeout"`
	CommitTimeout     time.Duration            `mapstructure:"commit_timeout"`
	ShutdownTimeout   time.Duration            `mapstructure:"shutdown_timeout"`
	StopTimeout       time.Duration            `mapstructure:"stop_timeout"`
	BreakOnFirstError bool                     `mapstructure:"break_on_first_error"`
	PollOnError       runner.PollErrorStrategy `mapstructure:"poll_on_error"`
	ConsistencyMode   string                   `mapstructure:"consumer_consistency_mode"`
	ReconnectBackoff  time.Duration            `mapstructure:"reconnect_backoff"`

	Kafka            KafkaConfig            `mapstructure:"kafka"`
	Headers          HeadersConfig          `mapstructure:"headers"`
	DeadLetter       DeadLetterConfig       `mapstructure:"dead_letter"`
	OffsetRepository OffsetRepositoryConfig `mapstructure:"offset_repository"`
	Logging          LoggingConfig          `mapstructure:"logging"`
	HTTP             HTTPConfig             `mapstructure:"http"`
	Tracing          TracingConfig          `mapstructure:"tracing"`
	Processor        ProcessorConfig        `mapstructure:"processor"`
}

type KafkaConfig struct {
	Brokers           []string      `mapstructure:"brokers"`
	GroupID           string        `mapstructure:"group_id"`
	GroupInstanceID   string        `mapstructure:"group_instance_id"`
	ClientID          string        `mapstructure:"client_id"`
	MaxPollRecords    int           `mapstructure:"max_poll_records"`
	SessionTimeout    time.Duration `mapstructure:"session_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// Properties are extra client settings as "key=value" pairs, e.g.
	// "auto.offset.reset=latest".
	Properties []string `mapstructure:"properties"`
}

// PropertyMap parses Properties. A later pair overrides an earlier one.
func (k KafkaConfig) PropertyMap() (map[string]string, error) {
	if len(k.Properties) == 0 {
		return nil, nil
	}

	props := make(map[string]string, len(k.Properties))
	for _, p := range k.Properties {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("kafka.properties: expected key=value, got %q", p)
		}
		props[key] = strings.TrimSpace(value)
	}
	return props, nil
}

type HeadersConfig struct {
	// Filter is one of default, none, allow or deny.
	Filter   string   `mapstructure:"filter"`
	Prefixes []string `mapstructure:"prefixes"`
	Keys     []string `mapstructure:"keys"`
	// Deserializer is string or bytes.
	Deserializer string `mapstructure:"deserializer"`
}

type DeadLetterConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Topic       string `mapstructure:"topic"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

type OffsetRepositoryConfig struct {
	// Type is none, memory or redis.
	Type  string      `mapstructure:"type"`
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	DevMode bool   `mapstructure:"dev_mode"`
}

type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	MetricsPath     string        `mapstructure:"metrics_path"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TracingConfig enables span export when OTLPEndpoint is set.
type TracingConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
	ServiceName  string `mapstructure:"service_name"`
}

type ProcessorConfig struct {
	LogLevel string `mapstructure:"log_level"`
	LogBody  bool   `mapstructure:"log_body"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("topic", "")
	v.SetDefault("topic_is_pattern", false)
	v.SetDefault("consumers_count", 1)
	v.SetDefault("poll_timeout", "1s")
	v.SetDefault("commit_timeout", "5s")
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("stop_timeout", "30s")
	v.SetDefault("break_on_first_error", false)
	v.SetDefault("poll_on_error", runner.StrategyReconnect.String())
	v.SetDefault("consumer_consistency_mode", kafka.ConsistencyEventual.String())
	v.SetDefault("reconnect_backoff", "1s")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_id", "")
	v.SetDefault("kafka.group_instance_id", "")
	v.SetDefault("kafka.client_id", "go-consumer")
	v.SetDefault("kafka.max_poll_records", 500)
	v.SetDefault("kafka.session_timeout", "45s")
	v.SetDefault("kafka.heartbeat_interval", "3s")
	v.SetDefault("kafka.properties", []string{})

	v.SetDefault("headers.filter", "default")
	v.SetDefault("headers.prefixes", []string{})
	v.SetDefault("headers.keys", []string{})
	v.SetDefault("headers.deserializer", "string")

	v.SetDefault("dead_letter.enabled", false)
	v.SetDefault("dead_letter.topic", "")
	v.SetDefault("dead_letter.max_attempts", 3)

	v.SetDefault("offset_repository.type", "none")
	v.SetDefault("offset_repository.redis.addr", "localhost:6379")
	v.SetDefault("offset_repository.redis.password", "")
	v.SetDefault("offset_repository.redis.db", 0)
	v.SetDefault("offset_repository.redis.key_prefix", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dev_mode", false)

	v.SetDefault("http.port", 9090)
	v.SetDefault("http.metrics_path", "/metrics")
	v.SetDefault("http.shutdown_timeout", "5s")

	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", "go-consumer")

	v.SetDefault("processor.log_level", "info")
	v.SetDefault("processor.log_body", false)
}

// Load reads the configuration. path may be empty, in which case only defaults
// and the environment are used.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
		func(f, t reflect.Kind, data interface{}) (interface{}, error) {
			if f == reflect.String && t == reflect.Bool {
				return strconv.ParseBool(data.(string))
			}
			return data, nil
		},
	)
	decoder, err := mapstructure.NewDecoder(
		&mapstructure.DecoderConfig{
			TagName:          "mapstructure",
			Result:           &cfg,
			DecodeHook:       decodeHook,
			WeaklyTypedInput: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("create config decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Topic == "" {
		errs = append(errs, errors.New("topic is required"))
	}
	if c.ConsumersCount < 1 {
		errs = append(errs, fmt.Errorf("consumers_count must be positive, got %d", c.ConsumersCount))
	}
	if c.PollTimeout <= 0 {
		errs = append(errs, errors.New("poll_timeout must be positive"))
	}
	if c.CommitTimeout <= 0 {
		errs = append(errs, errors.New("commit_timeout must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown_timeout must be positive"))
	}
	if c.ReconnectBackoff < 0 {
		errs = append(errs, errors.New("reconnect_backoff must not be negative"))
	}
	if !c.PollOnError.Valid() {
		errs = append(errs, fmt.Errorf("poll_on_error: %w", runner.ErrInvalidStrategy))
	}
	if _, err := kafka.ParseConsistencyMode(c.ConsistencyMode); err != nil {
		errs = append(errs, fmt.Errorf("consumer_consistency_mode: %w", err))
	}

	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required"))
	}
	if c.Kafka.GroupID == "" {
		errs = append(errs, errors.New("kafka.group_id is required"))
	}
	if _, err := c.Kafka.PropertyMap(); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.HeaderPropagator(); err != nil {
		errs = append(errs, err)
	}

	if c.DeadLetter.Enabled {
		if c.DeadLetter.Topic == "" {
			errs = append(errs, errors.New("dead_letter.topic is required when enabled"))
		}
		if c.DeadLetter.MaxAttempts < 1 {
			errs = append(errs, errors.New("dead_letter.max_attempts must be positive"))
		}
	}

	switch c.OffsetRepository.Type {
	case "none", "memory":
	case "redis":
		if c.OffsetRepository.Redis.Addr == "" {
			errs = append(errs, errors.New("offset_repository.redis.addr is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("offset_repository.type: unknown type %q", c.OffsetRepository.Type))
	}

	if _, err := logger.ParseLogLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	if _, err := logger.ParseLogLevel(c.Processor.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("processor.log_level: %w", err))
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port out of range: %d", c.HTTP.Port))
	}

	return errors.Join(errs...)
}

// ClientConfig returns the settings handed to the client factory. Malformed
// properties are dropped; Validate reports them.
func (c *Config) ClientConfig() kafka.ClientConfig {
	props, _ := c.Kafka.PropertyMap()

	return kafka.ClientConfig{
		BootstrapServers:  c.Kafka.Brokers,
		GroupID:           c.Kafka.GroupID,
		GroupInstanceID:   c.Kafka.GroupInstanceID,
		ClientID:          c.Kafka.ClientID,
		Topic:             c.Topic,
		TopicIsPattern:    c.TopicIsPattern,
		MaxPollRecords:    c.Kafka.MaxPollRecords,
		SessionTimeout:    c.Kafka.SessionTimeout,
		HeartbeatInterval: c.Kafka.HeartbeatInterval,
		Properties:        props,
	}
}

func (c *Config) HeaderPropagator() (*header.Propagator, error) {
	var filter header.FilterStrategy
	switch strings.ToLower(c.Headers.Filter) {
	case "", "default":
		filter = header.DefaultFilter()
	case "none":
		filter = header.NoneFilter()
	case "allow":
		filter = header.AllowPrefixes(c.Headers.Prefixes...)
	case "deny":
		filter = header.DenyKeys(c.Headers.Keys...)
	default:
		return nil, fmt.Errorf("headers.filter: unknown filter %q", c.Headers.Filter)
	}

	var deserializer header.Deserializer
	switch strings.ToLower(c.Headers.Deserializer) {
	case "", "string":
		deserializer = header.StringDeserializer()
	case "bytes":
		deserializer = header.BytesDeserializer()
	default:
		return nil, fmt.Errorf("headers.deserializer: unknown deserializer %q", c.Headers.Deserializer)
	}

	return header.NewPropagator(header.WithFilter(filter), header.WithDeserializer(deserializer)), nil
}

// RunnerOptions translates the consumption settings into supervisor options.
func (c *Config) RunnerOptions() ([]runner.Option, error) {
	headers, err := c.HeaderPropagator()
	if err != nil {
		return nil, err
	}

	opts := []runner.Option{
		runner.WithClientConfig(c.ClientConfig()),
		runner.WithTopicPattern(c.TopicIsPattern),
		runner.WithConsumersCount(c.ConsumersCount),
		runner.WithPollTimeout(c.PollTimeout),
		runner.WithCommitTimeout(c.CommitTimeout),
		runner.WithShutdownTimeout(c.ShutdownTimeout),
		runner.WithBreakOnFirstError(c.BreakOnFirstError),
		runner.WithPollOnError(c.PollOnError),
		runner.WithConsistencyMode(c.ConsistencyMode),
		runner.WithHeaderPropagator(headers),
		runner.WithReconnectBackoff(backoff.NewFixed(c.ReconnectBackoff)),
	}
	return opts, nil
}
