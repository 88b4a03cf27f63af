// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
type Repository interface {
	// Prediction history
	SavePrediction(ctx context.Context, p *Prediction) error
	GetPrediction(ctx context.Context, id string) (*Prediction, error)
	ListPredictions(ctx context.Context, filter PredictionFilter) ([]*Prediction, error)
	CountPredictions(ctx context.Context, domain ScoringDomain, since time.Time) (int64, error)

	// Rule table configuration
	SaveRuleTable(ctx context.Context, table *RuleTable) error
	GetRuleTable(ctx context.Context, domain ScoringDomain) (*RuleTable, error)
	ListRuleTables(ctx context.Context) ([]*RuleTable, error)

	// Simulated training jobs
	SaveTrainingJob(ctx context.Context, job *TrainingJob) error
	GetTrainingJob(ctx context.Context, id string) (*TrainingJob, error)
	ListTrainingJobs(ctx context.Context) ([]*TrainingJob, error)
	SaveTrainingMetrics(ctx context.Context, jobID string, metrics []EpochMetric) error
	GetTrainingMetrics(ctx context.Context, jobID string) ([]EpochMetric, error)

	// Datasets
	SaveDataset(ctx context.Context, ds *Dataset) error
	GetDataset(ctx context.Context, id string) (*Dataset, error)
	ListDatasets(ctx context.Context) ([]*Dataset, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// PredictionFilter narrows a prediction history listing.
type PredictionFilter struct {
	Domain ScoringDomain
	Limit  int
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" envconfig:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" envconfig:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" envconfig:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" envconfig:"postgres_port"`
	PostgresUser     string `json:"postgresUser" envconfig:"postgres_user"`
	PostgresPassword string `json:"-" envconfig:"postgres_password"`
	PostgresDB       string `json:"postgresDb" envconfig:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" envconfig:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" envconfig:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" envconfig:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" envconfig:"conn_max_lifetime"`
}
