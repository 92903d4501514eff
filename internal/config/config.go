// Package config loads typed settings from viper (config file and
// PHISHNET_ environment variables) with fallbacks to the plain environment
// variables used by the deployment scripts.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/Veraticus/phishnet/internal/common"
	"github.com/Veraticus/phishnet/internal/evaluation"
	"github.com/Veraticus/phishnet/internal/generator"
	"github.com/Veraticus/phishnet/internal/kvstore"
	"github.com/Veraticus/phishnet/internal/notify"
	"github.com/Veraticus/phishnet/internal/queue"
	"github.com/Veraticus/phishnet/internal/risk"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment variables read through viper.
const EnvPrefix = "PHISHNET"

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// LoadEnv loads variables from .env files if present. Variables already set
// in the environment win.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Debug("No env file", "path", path)
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
		slog.Debug("Loaded env file", "path", path)
	}
	return nil
}

// SetDefaults registers default values for every key the loaders read.
func SetDefaults(v *viper.Viper) {
	rules := risk.DefaultRulesConfig()

	v.SetDefault("storage.backend", BackendSQLite)
	v.SetDefault("storage.path", DefaultDatabasePath())

	v.SetDefault("scoring.threshold", risk.DefaultThreshold)
	v.SetDefault("scoring.combine", string(risk.PolicyOr))
	v.SetDefault("scoring.high_risk_locations", rules.HighRiskLocations)
	v.SetDefault("scoring.location_points", rules.LocationRiskPoints)

	v.SetDefault("evaluation.threshold", evaluation.DefaultThreshold)
	v.SetDefault("evaluation.count", 100)
	v.SetDefault("evaluation.fraud_rate", generator.DefaultFraudRate)

	v.SetDefault("redis.addrs", []string{"localhost:6379"})
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", queue.DefaultTopic)
	v.SetDefault("kafka.group_id", queue.DefaultGroupID)

	v.SetDefault("notify.channels", []string{notify.ChannelLog})
	v.SetDefault("notify.sns.region", "us-east-2")

	v.SetDefault("processor.workers", 4)
}

// StorageConfig selects where transactions and users are kept.
type StorageConfig struct {
	Backend string
	Path    string
}

// LoadStorageConfig reads storage.* settings.
func LoadStorageConfig(v *viper.Viper) (StorageConfig, error) {
	cfg := StorageConfig{
		Backend: strings.ToLower(strings.TrimSpace(v.GetString("storage.backend"))),
		Path:    ExpandPath(v.GetString("storage.path")),
	}
	switch cfg.Backend {
	case BackendSQLite:
		if cfg.Path == "" {
			cfg.Path = DefaultDatabasePath()
		}
	case BackendRedis:
	default:
		return StorageConfig{}, fmt.Errorf("%w: unknown storage backend %q", common.ErrInvalidConfig, cfg.Backend)
	}
	return cfg, nil
}

type amountTier struct {
	Above  string `mapstructure:"above"`
	Points int    `mapstructure:"points"`
}

// LoadScoringConfig reads scoring.* settings into an engine config. The
// rule tables keep their production values unless overridden.
func LoadScoringConfig(v *viper.Viper) (risk.Config, error) {
	cfg := risk.DefaultConfig()

	cfg.Threshold = v.GetFloat64("scoring.threshold")
	if cfg.Threshold < 0 {
		return risk.Config{}, fmt.Errorf("%w: scoring threshold %v is negative", common.ErrInvalidConfig, cfg.Threshold)
	}

	policy, err := risk.ParseCombinePolicy(v.GetString("scoring.combine"))
	if err != nil {
		return risk.Config{}, err
	}
	cfg.Policy = policy

	if locs := v.GetStringSlice("scoring.high_risk_locations"); len(locs) > 0 {
		cfg.Rules.HighRiskLocations = locs
	}
	if v.IsSet("scoring.location_points") {
		cfg.Rules.LocationRiskPoints = v.GetInt("scoring.location_points")
	}

	if v.IsSet("scoring.amount_tiers") {
		var raw []amountTier
		if err := v.UnmarshalKey("scoring.amount_tiers", &raw); err != nil {
			return risk.Config{}, fmt.Errorf("%w: scoring.amount_tiers: %w", common.ErrInvalidConfig, err)
		}
		tiers := make([]risk.AmountTier, 0, len(raw))
		for _, t := range raw {
			above, err := decimal.NewFromString(t.Above)
			if err != nil {
				return risk.Config{}, fmt.Errorf("%w: amount tier %q: %w", common.ErrInvalidConfig, t.Above, err)
			}
			tiers = append(tiers, risk.AmountTier{Above: above, Points: t.Points})
		}
		cfg.Rules.AmountTiers = tiers
	}

	// Surface table errors at load time rather than on first use.
	if _, err := risk.NewRules(cfg.Rules); err != nil {
		return risk.Config{}, err
	}
	return cfg, nil
}

// ClassifierPath returns the configured classifier artifact, or "" when the
// engine should run on rules alone.
func ClassifierPath(v *viper.Viper) string {
	return ExpandPath(v.GetString("scoring.classifier_path"))
}

// EvaluationConfig controls accuracy runs.
type EvaluationConfig struct {
	Threshold float64
	Count     int
	FraudRate float64
	// Seed makes a run reproducible when Seeded is true. Any value,
	// zero included, may be used.
	Seed int64
	// Seeded is false when no seed was configured and the run seeds from
	// the clock.
	Seeded bool
}

// LoadEvaluationConfig reads evaluation.* settings.
func LoadEvaluationConfig(v *viper.Viper) (EvaluationConfig, error) {
	cfg := EvaluationConfig{
		Threshold: v.GetFloat64("evaluation.threshold"),
		Count:     v.GetInt("evaluation.count"),
		FraudRate: v.GetFloat64("evaluation.fraud_rate"),
		Seed:      v.GetInt64("evaluation.seed"),
		Seeded:    v.IsSet("evaluation.seed"),
	}
	if cfg.Count < 0 {
		return EvaluationConfig{}, fmt.Errorf("%w: evaluation count %d is negative", common.ErrInvalidConfig, cfg.Count)
	}
	if cfg.FraudRate < 0 || cfg.FraudRate > 1 {
		return EvaluationConfig{}, fmt.Errorf("%w: fraud rate %v outside [0, 1]", common.ErrInvalidConfig, cfg.FraudRate)
	}
	return cfg, nil
}

// LoadKafkaConfig reads kafka.* settings, falling back to KAFKA_BROKERS.
func LoadKafkaConfig(v *viper.Viper) (queue.Config, error) {
	cfg := queue.Config{
		Brokers: v.GetStringSlice("kafka.brokers"),
		Topic:   v.GetString("kafka.topic"),
		GroupID: v.GetString("kafka.group_id"),
	}
	if env := os.Getenv("KAFKA_BROKERS"); env != "" && !explicit(v, "kafka.brokers") {
		cfg.Brokers = splitList(env)
	}
	if err := cfg.Validate(); err != nil {
		return queue.Config{}, err
	}
	return cfg, nil
}

// LoadRedisConfig reads redis.* settings, falling back to REDIS_ADDR.
func LoadRedisConfig(v *viper.Viper) (kvstore.Config, error) {
	cfg := kvstore.Config{
		Addrs:    v.GetStringSlice("redis.addrs"),
		Password: v.GetString("redis.password"),
		DB:       v.GetInt("redis.db"),
		TTL:      v.GetDuration("redis.ttl"),
	}
	if env := os.Getenv("REDIS_ADDR"); env != "" && !explicit(v, "redis.addrs") {
		cfg.Addrs = splitList(env)
	}
	if cfg.Password == "" {
		cfg.Password = os.Getenv("REDIS_PASSWORD")
	}
	if len(cfg.Addrs) == 0 {
		return kvstore.Config{}, fmt.Errorf("%w: no redis address configured", common.ErrMissingConfig)
	}
	if cfg.TTL < 0 {
		return kvstore.Config{}, fmt.Errorf("%w: redis ttl %s is negative", common.ErrInvalidConfig, cfg.TTL)
	}
	return cfg, nil
}

// LoadNotifyConfig reads notify.* settings. Credentials fall back to the
// AWS and Twilio environment variables, which LoadEnv may populate from a
// .env file.
func LoadNotifyConfig(v *viper.Viper) (notify.Config, error) {
	cfg := notify.Config{
		Channels: v.GetStringSlice("notify.channels"),
		SNS: notify.SNSConfig{
			TopicARN:     firstNonEmpty(v.GetString("notify.sns.topic_arn"), os.Getenv("SNS_TOPIC_ARN")),
			Region:       firstNonEmpty(os.Getenv("AWS_REGION"), v.GetString("notify.sns.region")),
			DefaultEmail: v.GetString("notify.sns.default_email"),
		},
		Twilio: notify.TwilioConfig{
			AccountSID: firstNonEmpty(v.GetString("notify.twilio.account_sid"), os.Getenv("ACCOUNT_SID")),
			AuthToken:  firstNonEmpty(v.GetString("notify.twilio.auth_token"), os.Getenv("AUTH_TOKEN")),
			From:       firstNonEmpty(v.GetString("notify.twilio.from"), os.Getenv("TWILIO_FROM")),
			DefaultTo:  v.GetString("notify.twilio.default_to"),
		},
		Retry: common.DefaultRetryOptions(),
	}
	if v.IsSet("notify.retry.max_attempts") {
		cfg.Retry.MaxAttempts = v.GetInt("notify.retry.max_attempts")
	}
	if v.IsSet("notify.retry.initial_delay") {
		cfg.Retry.InitialDelay = v.GetDuration("notify.retry.initial_delay")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return notify.Config{}, fmt.Errorf("%w: notify.retry.max_attempts must be at least 1", common.ErrInvalidConfig)
	}

	for _, ch := range cfg.Channels {
		var err error
		switch strings.ToLower(strings.TrimSpace(ch)) {
		case notify.ChannelLog:
		case notify.ChannelSNS:
			err = cfg.SNS.Validate()
		case notify.ChannelSMS:
			err = cfg.Twilio.Validate()
		default:
			err = fmt.Errorf("%w: unknown alert channel %q", common.ErrInvalidConfig, ch)
		}
		if err != nil {
			return notify.Config{}, err
		}
	}
	return cfg, nil
}

// ProcessorWorkers is the number of transactions handled concurrently.
func ProcessorWorkers(v *viper.Viper) int {
	if n := v.GetInt("processor.workers"); n > 0 {
		return n
	}
	return 1
}

// MetricsAddr is where /metrics is served; empty disables it.
func MetricsAddr(v *viper.Viper) string {
	return v.GetString("metrics.addr")
}

// explicit reports whether key was set by the config file or its
// PHISHNET_ environment variable rather than a default.
func explicit(v *viper.Viper, key string) bool {
	env := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	return v.InConfig(key) || os.Getenv(env) != ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
