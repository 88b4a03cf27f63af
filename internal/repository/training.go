package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SaveTrainingJob upserts a training job.
func (r *SQLRepository) SaveTrainingJob(ctx context.Context, job *domain.TrainingJob) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("%w: job id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	query := `
		INSERT INTO training_jobs (
			id, model_name, model_type, status, progress, epochs, accuracy, loss,
			dataset_size, error, start_time, estimated_completion, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			model_name = excluded.model_name,
			model_type = excluded.model_type,
			status = excluded.status,
			progress = excluded.progress,
			epochs = excluded.epochs,
			accuracy = excluded.accuracy,
			loss = excluded.loss,
			dataset_size = excluded.dataset_size,
			error = excluded.error,
			start_time = excluded.start_time,
			estimated_completion = excluded.estimated_completion,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		job.ID, job.ModelName, job.ModelType, job.Status, job.Progress, job.Epochs,
		job.Accuracy, job.Loss, job.DatasetSize, job.Error,
		job.StartTime.UTC(), job.EstimatedCompletion.UTC(),
		job.CreatedAt.UTC(), job.UpdatedAt,
	)
	return err
}

const trainingJobColumns = `
	id, model_name, model_type, status, progress, epochs, accuracy, loss,
	dataset_size, error, start_time, estimated_completion, created_at, updated_at
`

// GetTrainingJob retrieves a training job by ID.
func (r *SQLRepository) GetTrainingJob(ctx context.Context, id string) (*domain.TrainingJob, error) {
	query := `SELECT ` + trainingJobColumns + ` FROM training_jobs WHERE id = ?`

	job, err := scanTrainingJob(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// ListTrainingJobs returns every job, oldest first.
func (r *SQLRepository) ListTrainingJobs(ctx context.Context) ([]*domain.TrainingJob, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+trainingJobColumns+` FROM training_jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*domain.TrainingJob{}
	for rows.Next() {
		job, err := scanTrainingJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanTrainingJob(row rowScanner) (*domain.TrainingJob, error) {
	var job domain.TrainingJob
	if err := row.Scan(
		&job.ID, &job.ModelName, &job.ModelType, &job.Status, &job.Progress, &job.Epochs,
		&job.Accuracy, &job.Loss, &job.DatasetSize, &job.Error,
		&job.StartTime, &job.EstimatedCompletion, &job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &job, nil
}

// SaveTrainingMetrics replaces the epoch metrics of a job.
func (r *SQLRepository) SaveTrainingMetrics(ctx context.Context, jobID string, metrics []domain.EpochMetric) error {
	if jobID == "" {
		return fmt.Errorf("%w: job id is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM training_metrics WHERE job_id = ?`), jobID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO training_metrics (job_id, epoch, train_loss, val_loss, train_accuracy, val_accuracy)
		VALUES (?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range metrics {
		if _, err := stmt.ExecContext(ctx, jobID, m.Epoch, m.TrainLoss, m.ValLoss, m.TrainAccuracy, m.ValAccuracy); err != nil {
			return fmt.Errorf("failed to insert epoch %d: %w", m.Epoch, err)
		}
	}

	return tx.Commit()
}

// GetTrainingMetrics returns the epoch metrics of a job in epoch order.
func (r *SQLRepository) GetTrainingMetrics(ctx context.Context, jobID string) ([]domain.EpochMetric, error) {
	query := `
		SELECT epoch, train_loss, val_loss, train_accuracy, val_accuracy
		FROM training_metrics
		WHERE job_id = ?
		ORDER BY epoch
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metrics := []domain.EpochMetric{}
	for rows.Next() {
		var m domain.EpochMetric
		if err := rows.Scan(&m.Epoch, &m.TrainLoss, &m.ValLoss, &m.TrainAccuracy, &m.ValAccuracy); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// SaveDataset upserts a dataset.
func (r *SQLRepository) SaveDataset(ctx context.Context, ds *domain.Dataset) error {
	if ds == nil || ds.ID == "" {
		return fmt.Errorf("%w: dataset id is required", ErrInvalidInput)
	}
	if ds.UpdatedAt.IsZero() {
		ds.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO datasets (
			id, name, size, features, missing_values, duplicates, outliers, status, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			size = excluded.size,
			features = excluded.features,
			missing_values = excluded.missing_values,
			duplicates = excluded.duplicates,
			outliers = excluded.outliers,
			status = excluded.status,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		ds.ID, ds.Name, ds.Size, ds.Features, ds.MissingValues,
		ds.Duplicates, ds.Outliers, ds.Status, ds.UpdatedAt.UTC(),
	)
	return err
}

const datasetColumns = `id, name, size, features, missing_values, duplicates, outliers, status, updated_at`

// GetDataset retrieves a dataset by ID.
func (r *SQLRepository) GetDataset(ctx context.Context, id string) (*domain.Dataset, error) {
	query := `SELECT ` + datasetColumns + ` FROM datasets WHERE id = ?`

	ds, err := scanDataset(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ds, err
}

// ListDatasets returns every dataset ordered by name.
func (r *SQLRepository) ListDatasets(ctx context.Context) ([]*domain.Dataset, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+datasetColumns+` FROM datasets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	datasets := []*domain.Dataset{}
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, ds)
	}
	return datasets, rows.Err()
}

func scanDataset(row rowScanner) (*domain.Dataset, error) {
	var ds domain.Dataset
	if err := row.Scan(
		&ds.ID, &ds.Name, &ds.Size, &ds.Features, &ds.MissingValues,
		&ds.Duplicates, &ds.Outliers, &ds.Status, &ds.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ds, nil
}
