package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/noise"
	"github.com/opensource-finance/kestrel/internal/worker"
)

var demoDatasets = []domain.Dataset{
	{ID: "netflix-viewership", Name: "Netflix Viewership Data", Size: 15000000, Features: 47, Status: domain.DatasetCleaned},
	{ID: "user-behavior", Name: "User Behavior Dataset", Size: 8500000, Features: 32, MissingValues: 89000, Duplicates: 12000, Outliers: 28000, Status: domain.DatasetRaw},
	{ID: "content-metadata", Name: "Content Metadata", Size: 2100000, Features: 28, MissingValues: 15000, Duplicates: 3200, Outliers: 8500, Status: domain.DatasetRaw},
}

var demoJobs = []worker.TrainingSpec{
	{ModelName: "LSTM Viewership Predictor", ModelType: "LSTM", DatasetSize: 2500000},
	{ModelName: "Content Success Predictor", ModelType: "XGBoost", DatasetSize: 950000},
}

// seedDemo fills an empty store with sample datasets and training jobs.
// One job is stored finished; the rest are queued for the worker and the
// user behavior dataset is sent for preprocessing.
func seedDemo(ctx context.Context, repo domain.Repository, bus domain.EventBus, src noise.Source) error {
	datasets, err := repo.ListDatasets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list datasets: %w", err)
	}
	if len(datasets) == 0 {
		now := time.Now().UTC()
		for _, ds := range demoDatasets {
			ds.UpdatedAt = now
			if err := repo.SaveDataset(ctx, &ds); err != nil {
				return fmt.Errorf("failed to seed dataset %s: %w", ds.ID, err)
			}
		}
		if _, err := worker.RequestPreprocess(ctx, repo, bus, "user-behavior"); err != nil {
			return err
		}
		slog.Info("seeded demo datasets", "count", len(demoDatasets))
	}

	jobs, err := repo.ListTrainingJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list training jobs: %w", err)
	}
	if len(jobs) > 0 {
		return nil
	}

	if err := seedCompletedJob(ctx, repo, src); err != nil {
		return err
	}
	for _, spec := range demoJobs {
		if _, err := worker.QueueTraining(ctx, repo, bus, spec); err != nil {
			return err
		}
	}
	slog.Info("seeded demo training jobs", "count", len(demoJobs)+1)
	return nil
}

func seedCompletedJob(ctx context.Context, repo domain.Repository, src noise.Source) error {
	metrics := worker.Metrics(worker.DefaultEpochs, src)
	last := metrics[len(metrics)-1]
	finished := time.Now().UTC().Add(-30 * time.Minute)

	job := &domain.TrainingJob{
		ID:                  "job-churn-random-forest",
		ModelName:           "Random Forest Churn Model",
		ModelType:           "Random Forest",
		Status:              domain.JobCompleted,
		Progress:            100,
		Epochs:              len(metrics),
		Accuracy:            last.ValAccuracy,
		Loss:                last.ValLoss,
		DatasetSize:         1800000,
		StartTime:           finished.Add(-90 * time.Minute),
		EstimatedCompletion: finished,
		CreatedAt:           finished.Add(-90 * time.Minute),
		UpdatedAt:           finished,
	}
	if err := repo.SaveTrainingJob(ctx, job); err != nil {
		return fmt.Errorf("failed to seed training job: %w", err)
	}
	return repo.SaveTrainingMetrics(ctx, job.ID, metrics)
}
