package config

import (
	"fmt"
	"time"
)

type Notifications struct {
	RabbitMQURL      string
	ShutdownTimeout  time.Duration
	ExpiringSoonDays int
	DisplayLocation  *time.Location
}

func LoadNotifications() (Notifications, error) {
	cfg := Notifications{
		RabbitMQURL:     getEnv("RABBITMQ_URL", ""),
		ShutdownTimeout: defaultShutdownTimeout,
	}

	if cfg.RabbitMQURL == "" {
		return Notifications{}, fmt.Errorf("RABBITMQ_URL is required")
	}

	var err error
	if cfg.ExpiringSoonDays, err = expiringSoonDays(); err != nil {
		return Notifications{}, err
	}
	cfg.DisplayLocation, err = time.LoadLocation(getEnv("DISPLAY_TIMEZONE", defaultDisplayTimezone))
	if err != nil {
		return Notifications{}, fmt.Errorf("DISPLAY_TIMEZONE: %w", err)
	}

	return cfg, nil
}
