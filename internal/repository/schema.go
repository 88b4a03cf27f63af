package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaPredictions = `
CREATE TABLE IF NOT EXISTS predictions (
    id TEXT PRIMARY KEY,
    domain TEXT NOT NULL,
    score DOUBLE PRECISION NOT NULL,
    label TEXT NOT NULL,
    input TEXT NOT NULL,
    output TEXT NOT NULL,
    source TEXT NOT NULL,
    process_ms BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_predictions_domain ON predictions(domain, created_at);
CREATE INDEX IF NOT EXISTS idx_predictions_created ON predictions(created_at);
`

const schemaRuleTables = `
CREATE TABLE IF NOT EXISTS rule_tables (
    domain TEXT PRIMARY KEY,
    version TEXT NOT NULL,
    definition TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaTrainingJobs = `
CREATE TABLE IF NOT EXISTS training_jobs (
    id TEXT PRIMARY KEY,
    model_name TEXT NOT NULL,
    model_type TEXT NOT NULL,
    status TEXT NOT NULL,
    progress INTEGER NOT NULL DEFAULT 0,
    epochs INTEGER NOT NULL DEFAULT 0,
    accuracy DOUBLE PRECISION NOT NULL DEFAULT 0,
    loss DOUBLE PRECISION NOT NULL DEFAULT 0,
    dataset_size BIGINT NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    start_time TIMESTAMP NOT NULL,
    estimated_completion TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_training_jobs_status ON training_jobs(status);
`

const schemaTrainingMetrics = `
CREATE TABLE IF NOT EXISTS training_metrics (
    job_id TEXT NOT NULL,
    epoch INTEGER NOT NULL,
    train_loss DOUBLE PRECISION NOT NULL,
    val_loss DOUBLE PRECISION NOT NULL,
    train_accuracy DOUBLE PRECISION NOT NULL,
    val_accuracy DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (job_id, epoch)
);
`

const schemaDatasets = `
CREATE TABLE IF NOT EXISTS datasets (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    size BIGINT NOT NULL,
    features INTEGER NOT NULL,
    missing_values BIGINT NOT NULL,
    duplicates BIGINT NOT NULL,
    outliers BIGINT NOT NULL,
    status TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaPredictions,
		schemaRuleTables,
		schemaTrainingJobs,
		schemaTrainingMetrics,
		schemaDatasets,
	}
}
