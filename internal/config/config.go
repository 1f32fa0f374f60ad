/**
 * @description
 * This file handles configuration management for the service. It loads
 * settings from environment variables, providing defaults for cron schedules
 * and settlement tuning, and fails fast on missing required settings.
 */
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	ServerPort            string `mapstructure:"SERVER_PORT"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	StripeAPIBaseURL      string `mapstructure:"STRIPE_API_BASE_URL"`
	StripeSecretKey       string `mapstructure:"STRIPE_SECRET_KEY"`
	JWTSecret             string `mapstructure:"JWT_SECRET"`
	InternalAPIKey        string `mapstructure:"INTERNAL_API_KEY"`
	Currency              string `mapstructure:"CURRENCY"`
	Timezone              string `mapstructure:"TIMEZONE"`
	MaxConcurrentCharges  int    `mapstructure:"MAX_CONCURRENT_CHARGES"`
	SettlementJobSchedule string `mapstructure:"SETTLEMENT_JOB_SCHEDULE"`
	BillingJobSchedule    string `mapstructure:"BILLING_JOB_SCHEDULE"`
	RetryJobSchedule      string `mapstructure:"RETRY_JOB_SCHEDULE"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("CURRENCY", "gbp")
	viper.SetDefault("TIMEZONE", "Europe/London")
	viper.SetDefault("MAX_CONCURRENT_CHARGES", 8)
	viper.SetDefault("SETTLEMENT_JOB_SCHEDULE", "0 10 * * *") // Every day at 10:00.
	viper.SetDefault("BILLING_JOB_SCHEDULE", "0 12 * * *")    // Every day at 12:00.
	viper.SetDefault("RETRY_JOB_SCHEDULE", "30 12 * * *")     // Every day at 12:30.
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("STRIPE_API_BASE_URL")
	_ = viper.BindEnv("STRIPE_SECRET_KEY")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("CURRENCY")
	_ = viper.BindEnv("TIMEZONE")
	_ = viper.BindEnv("MAX_CONCURRENT_CHARGES")
	_ = viper.BindEnv("SETTLEMENT_JOB_SCHEDULE")
	_ = viper.BindEnv("BILLING_JOB_SCHEDULE")
	_ = viper.BindEnv("RETRY_JOB_SCHEDULE")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if config.StripeSecretKey == "" {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if config.InternalAPIKey == "" {
		return nil, fmt.Errorf("INTERNAL_API_KEY is required")
	}

	return &config, nil
}
