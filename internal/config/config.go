// Package config loads the core's environment-sourced configuration
// (spec.md §6). Unlike the teacher's per-service YAML-plus-env-override
// config, spec.md mandates pure environment configuration, so this
// package drops the YAML file layer and keeps only the teacher's
// defaulting/override idiom.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// BrokerConfig is the AMQP broker connection (spec.md §4.E).
type BrokerConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	VHost    string
	Exchange string
}

// StoreConfig holds the Mongo connection strings for both stores.
type StoreConfig struct {
	ItemStoreURL  string
	OrderStoreURL string
}

// ReservationConfig holds the Reservation Engine's timing knobs.
type ReservationConfig struct {
	DefaultTTL    time.Duration
	SweepInterval time.Duration
}

// Config is the fully-resolved application configuration.
type Config struct {
	Broker            BrokerConfig
	Store             StoreConfig
	Reservation       ReservationConfig
	TaxRateBasisPoints int64
	EventDedupWindow   time.Duration
	StoreTimeout       time.Duration
	PublishTimeout     time.Duration
	HTTPAddress        string
}

// Load resolves Config entirely from the environment, applying the
// defaults spec.md §6 names. BROKER_{HOST,PORT,USERNAME,PASSWORD,VHOST,
// EXCHANGE}, ITEM_STORE_URL and ORDER_STORE_URL have no default and are
// required.
func Load() (*Config, error) {
	cfg := &Config{
		Reservation: ReservationConfig{
			DefaultTTL:    15 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		TaxRateBasisPoints: 825,
		EventDedupWindow:   24 * time.Hour,
		StoreTimeout:       5 * time.Second,
		PublishTimeout:     10 * time.Second,
		HTTPAddress:        "0.0.0.0:8080",
	}

	required := map[string]*string{
		"BROKER_HOST":     &cfg.Broker.Host,
		"BROKER_PORT":     &cfg.Broker.Port,
		"BROKER_USERNAME": &cfg.Broker.Username,
		"BROKER_PASSWORD": &cfg.Broker.Password,
		"BROKER_VHOST":    &cfg.Broker.VHost,
		"BROKER_EXCHANGE": &cfg.Broker.Exchange,
		"ITEM_STORE_URL":  &cfg.Store.ItemStoreURL,
		"ORDER_STORE_URL": &cfg.Store.OrderStoreURL,
	}
	for name, dest := range required {
		value := os.Getenv(name)
		if value == "" {
			return nil, fmt.Errorf("config: required environment variable %s is not set", name)
		}
		*dest = value
	}

	if err := overrideDuration("RESERVATION_DEFAULT_TTL_MINUTES", &cfg.Reservation.DefaultTTL, time.Minute); err != nil {
		return nil, err
	}
	if err := overrideDuration("RESERVATION_SWEEP_INTERVAL_MINUTES", &cfg.Reservation.SweepInterval, time.Minute); err != nil {
		return nil, err
	}
	if err := overrideDuration("EVENT_DEDUP_WINDOW_HOURS", &cfg.EventDedupWindow, time.Hour); err != nil {
		return nil, err
	}
	if value := os.Getenv("TAX_RATE_BASIS_POINTS"); value != "" {
		bps, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: invalid TAX_RATE_BASIS_POINTS: %w", err)
		}
		cfg.TaxRateBasisPoints = bps
	}
	if value := os.Getenv("HTTP_ADDRESS"); value != "" {
		cfg.HTTPAddress = value
	}

	return cfg, nil
}

// overrideDuration reads an integer-valued env var expressed in unit
// (minutes/hours) and overrides *dest if present.
func overrideDuration(name string, dest *time.Duration, unit time.Duration) error {
	value := os.Getenv(name)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("config: invalid %s: %w", name, err)
	}
	*dest = time.Duration(n) * unit
	return nil
}
