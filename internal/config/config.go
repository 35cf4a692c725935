/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 * - github.com/shopspring/decimal: Exact parsing of monetary defaults.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the ledger service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`

	SeedBalanceRaw      string `mapstructure:"SEED_BALANCE"`
	DefaultCardLimitRaw string `mapstructure:"DEFAULT_CARD_LIMIT"`
	MinCardLimitRaw     string `mapstructure:"MIN_CARD_LIMIT"`
	MaxCardLimitRaw     string `mapstructure:"MAX_CARD_LIMIT"`

	CardExpiryYears           int    `mapstructure:"CARD_EXPIRY_YEARS"`
	ChargeRateLimitPerMinute  int    `mapstructure:"CHARGE_RATE_LIMIT_PER_MINUTE"`
	CollectRateLimitPerMinute int    `mapstructure:"COLLECT_RATE_LIMIT_PER_MINUTE"`
	ExpirySweepSpec           string `mapstructure:"EXPIRY_SWEEP_SPEC"`

	// Parsed monetary values, populated by LoadConfig.
	SeedBalance      decimal.Decimal `mapstructure:"-"`
	DefaultCardLimit decimal.Decimal `mapstructure:"-"`
	MinCardLimit     decimal.Decimal `mapstructure:"-"`
	MaxCardLimit     decimal.Decimal `mapstructure:"-"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "ledger:rate_limit")
	viper.SetDefault("SEED_BALANCE", "1000.00")
	viper.SetDefault("DEFAULT_CARD_LIMIT", "50000.00")
	viper.SetDefault("MIN_CARD_LIMIT", "10000.00")
	viper.SetDefault("MAX_CARD_LIMIT", "500000.00")
	viper.SetDefault("CARD_EXPIRY_YEARS", 3)
	viper.SetDefault("CHARGE_RATE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("COLLECT_RATE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("EXPIRY_SWEEP_SPEC", "0 3 * * *")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "LEDGER_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("SEED_BALANCE")
	_ = viper.BindEnv("DEFAULT_CARD_LIMIT")
	_ = viper.BindEnv("MIN_CARD_LIMIT")
	_ = viper.BindEnv("MAX_CARD_LIMIT")
	_ = viper.BindEnv("CARD_EXPIRY_YEARS")
	_ = viper.BindEnv("CHARGE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("COLLECT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("EXPIRY_SWEEP_SPEC")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "ledger:rate_limit"
	}

	config.SeedBalance = parseMoneyOr(config.SeedBalanceRaw, "SEED_BALANCE", "1000.00")
	config.DefaultCardLimit = parseMoneyOr(config.DefaultCardLimitRaw, "DEFAULT_CARD_LIMIT", "50000.00")
	config.MinCardLimit = parseMoneyOr(config.MinCardLimitRaw, "MIN_CARD_LIMIT", "10000.00")
	config.MaxCardLimit = parseMoneyOr(config.MaxCardLimitRaw, "MAX_CARD_LIMIT", "500000.00")

	if config.MinCardLimit.GreaterThan(config.MaxCardLimit) {
		log.Printf("level=warn component=config msg=\"min card limit above max; swapping\" min=%s max=%s", config.MinCardLimit, config.MaxCardLimit)
		config.MinCardLimit, config.MaxCardLimit = config.MaxCardLimit, config.MinCardLimit
	}
	if config.DefaultCardLimit.LessThan(config.MinCardLimit) || config.DefaultCardLimit.GreaterThan(config.MaxCardLimit) {
		log.Printf("level=warn component=config msg=\"default card limit outside range; clamping to min\" default=%s", config.DefaultCardLimit)
		config.DefaultCardLimit = config.MinCardLimit
	}

	if config.CardExpiryYears <= 0 {
		config.CardExpiryYears = 3
	}
	if config.ChargeRateLimitPerMinute < 0 {
		config.ChargeRateLimitPerMinute = 0
	}
	if config.CollectRateLimitPerMinute < 0 {
		config.CollectRateLimitPerMinute = 0
	}
	if strings.TrimSpace(config.ExpirySweepSpec) == "" {
		config.ExpirySweepSpec = "0 3 * * *"
	}

	return
}

func parseMoneyOr(raw, key, fallback string) decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || value.IsNegative() {
		log.Printf("level=warn component=config msg=\"invalid monetary value; using default\" key=%s value=%q default=%s", key, raw, fallback)
		value = decimal.RequireFromString(fallback)
	}
	return value
}
