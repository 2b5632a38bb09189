/**
 * @description
 * This file handles configuration management for the upsell service.
 * It loads settings from environment variables, providing defaults for the
 * tick cadence and timing windows.
 */
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds all configuration for the upsell service.
type Config struct {
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	ServerPort  string `mapstructure:"SERVER_PORT"`

	TickSchedule       string `mapstructure:"TICK_SCHEDULE"`
	OfferExpiryHours   int    `mapstructure:"OFFER_EXPIRY_HOURS"`
	SendTimeoutSeconds int    `mapstructure:"SEND_TIMEOUT_SECONDS"`

	ChatAPIURL    string `mapstructure:"CHAT_API_URL"`
	ChatAPIKey    string `mapstructure:"CHAT_API_KEY"`
	SMSGatewayURL string `mapstructure:"SMS_GATEWAY_URL"`
	SMSAPIKey     string `mapstructure:"SMS_API_KEY"`

	MessageWebhookSecret string `mapstructure:"MESSAGE_WEBHOOK_SECRET"`

	RabbitMQURL   string `mapstructure:"RABBITMQ_URL"`
	EventExchange string `mapstructure:"EVENT_EXCHANGE"`

	RedisURL                 string `mapstructure:"REDIS_URL"`
	WebhookRateLimit         int    `mapstructure:"WEBHOOK_RATE_LIMIT"`
	WebhookRateWindowSeconds int    `mapstructure:"WEBHOOK_RATE_WINDOW_SECONDS"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("TICK_SCHEDULE", "@every 3m") // coarse polling tick
	viper.SetDefault("OFFER_EXPIRY_HOURS", 24)
	viper.SetDefault("SEND_TIMEOUT_SECONDS", 5)
	viper.SetDefault("EVENT_EXCHANGE", "upsell.events")
	viper.SetDefault("WEBHOOK_RATE_LIMIT", 30)
	viper.SetDefault("WEBHOOK_RATE_WINDOW_SECONDS", 60)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("TICK_SCHEDULE")
	_ = viper.BindEnv("OFFER_EXPIRY_HOURS")
	_ = viper.BindEnv("SEND_TIMEOUT_SECONDS")
	_ = viper.BindEnv("CHAT_API_URL")
	_ = viper.BindEnv("CHAT_API_KEY")
	_ = viper.BindEnv("SMS_GATEWAY_URL")
	_ = viper.BindEnv("SMS_API_KEY")
	_ = viper.BindEnv("MESSAGE_WEBHOOK_SECRET")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENT_EXCHANGE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("WEBHOOK_RATE_LIMIT")
	_ = viper.BindEnv("WEBHOOK_RATE_WINDOW_SECONDS")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if config.MessageWebhookSecret == "" {
		return nil, fmt.Errorf("MESSAGE_WEBHOOK_SECRET is required")
	}

	return &config, nil
}
