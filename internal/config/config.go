package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker"   validate:"required"`
	Scanner  ScannerConfig  `mapstructure:"scanner"  validate:"required"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// QueueConfig contains settings for the durable job queue.
type QueueConfig struct {
	// Size is the delivery channel buffer; enqueues beyond it fail fast
	// rather than block producers.
	Size int `mapstructure:"size" validate:"required,gt=0"`
}

// WorkerConfig contains settings for the job consumer pool.
type WorkerConfig struct {
	// Concurrency bounds the number of jobs processed simultaneously.
	Concurrency int `mapstructure:"concurrency" validate:"required,gt=0"`
}

// ScannerConfig contains settings for the overdue task scanner.
type ScannerConfig struct {
	// Interval is the fixed recurring schedule on which scans run.
	Interval time.Duration `mapstructure:"interval" validate:"required,gt=0"`
}
