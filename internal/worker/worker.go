// Package worker runs the asynchronous training and preprocessing jobs
// requested over the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/noise"
)

// DefaultEpochs is the length of a training run when none is configured.
const DefaultEpochs = 50

// Recorder observes finished training jobs.
type Recorder interface {
	ObserveTrainingJob(status string)
}

// Worker consumes training and preprocessing requests from the EventBus.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	source   noise.Source
	recorder Recorder
	cfg      domain.TrainingConfig

	mu            sync.Mutex
	stopped       bool
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async worker. recorder may be nil.
func NewWorker(eventBus domain.EventBus, repo domain.Repository, source noise.Source, recorder Recorder, cfg domain.TrainingConfig) *Worker {
	if cfg.Epochs <= 0 {
		cfg.Epochs = DefaultEpochs
	}
	if source == nil {
		source = noise.Zero
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      eventBus,
		repo:     repo,
		source:   source,
		recorder: recorder,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the training, preprocessing and status topics.
func (w *Worker) Start() error {
	handlers := map[string]domain.MessageHandler{
		domain.TopicTrainingRequested: w.handleTraining,
		domain.TopicDatasetPreprocess: w.handlePreprocess,
		domain.TopicTrainingStatus:    w.handleStatus,
	}

	for _, topic := range []string{domain.TopicTrainingRequested, domain.TopicDatasetPreprocess, domain.TopicTrainingStatus} {
		sub, err := w.bus.Subscribe(w.ctx, topic, w.track(handlers[topic]))
		if err != nil {
			w.Stop()
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
	}

	slog.Info("worker started",
		"epochs", w.cfg.Epochs,
		"epoch_delay", w.cfg.EpochDelay,
	)
	return nil
}

// track counts in-flight handlers and cancels them when the worker stops.
func (w *Worker) track(h domain.MessageHandler) domain.MessageHandler {
	return func(ctx context.Context, msg *domain.Message) error {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return context.Canceled
		}
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(w.ctx, cancel)
		defer stop()

		return h(ctx, msg)
	}
}

func (w *Worker) handleTraining(ctx context.Context, msg *domain.Message) error {
	var req domain.TrainingRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse training request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	return w.Train(ctx, req.JobID)
}

// handleStatus answers a status request with the summary of stored jobs.
func (w *Worker) handleStatus(ctx context.Context, msg *domain.Message) error {
	jobs, err := w.repo.ListTrainingJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list training jobs: %w", err)
	}
	payload, err := json.Marshal(Summarize(jobs))
	if err != nil {
		return err
	}
	return bus.Reply(ctx, w.bus, msg, payload)
}

// Train runs the simulated training for a stored job: it marks the job
// running, produces one metric per epoch, then stores the metrics and
// marks the job completed with the final validation accuracy and loss.
func (w *Worker) Train(ctx context.Context, jobID string) error {
	start := time.Now()

	job, err := w.repo.GetTrainingJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load training job %s: %w", jobID, err)
	}
	if job.Status == domain.JobCompleted || job.Status == domain.JobRunning {
		slog.Warn("training job already handled", "job_id", job.ID, "status", job.Status)
		return nil
	}

	job.Status = domain.JobRunning
	job.Progress = 0
	job.Epochs = w.cfg.Epochs
	job.Error = ""
	job.StartTime = start.UTC()
	job.EstimatedCompletion = start.Add(time.Duration(w.cfg.Epochs) * w.cfg.EpochDelay).UTC()
	if err := w.repo.SaveTrainingJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	slog.Info("training started",
		"job_id", job.ID,
		"model_type", job.ModelType,
	)

	metrics := make([]domain.EpochMetric, 0, w.cfg.Epochs)
	for epoch := 1; epoch <= w.cfg.Epochs; epoch++ {
		if err := w.wait(ctx); err != nil {
			return w.fail(ctx, job, fmt.Errorf("training interrupted at epoch %d: %w", epoch, err))
		}
		metrics = append(metrics, EpochMetric(epoch, w.source))

		progress := epoch * 100 / w.cfg.Epochs
		if w.cfg.EpochDelay > 0 && progress != job.Progress {
			job.Progress = progress
			if err := w.repo.SaveTrainingJob(ctx, job); err != nil {
				slog.Warn("failed to save training progress", "job_id", job.ID, "error", err)
			}
		}
	}

	if err := w.repo.SaveTrainingMetrics(ctx, job.ID, metrics); err != nil {
		return w.fail(ctx, job, fmt.Errorf("failed to save metrics: %w", err))
	}

	final := metrics[len(metrics)-1]
	job.Status = domain.JobCompleted
	job.Progress = 100
	job.Accuracy = final.ValAccuracy
	job.Loss = final.ValLoss
	if err := w.repo.SaveTrainingJob(ctx, job); err != nil {
		return w.fail(ctx, job, fmt.Errorf("failed to mark job completed: %w", err))
	}
	w.observe(job.Status)
	w.publishCompleted(ctx, job)

	slog.Info("training completed",
		"job_id", job.ID,
		"accuracy", job.Accuracy,
		"loss", job.Loss,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) wait(ctx context.Context) error {
	if w.cfg.EpochDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(w.cfg.EpochDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// fail marks the job as errored. The update uses a context that survives
// cancellation of ctx so interrupted jobs are still recorded.
func (w *Worker) fail(ctx context.Context, job *domain.TrainingJob, cause error) error {
	job.Status = domain.JobError
	job.Error = cause.Error()
	if err := w.repo.SaveTrainingJob(context.WithoutCancel(ctx), job); err != nil {
		slog.Error("failed to mark job failed", "job_id", job.ID, "error", err)
	}
	w.observe(job.Status)
	w.publishCompleted(context.WithoutCancel(ctx), job)

	slog.Error("training failed", "job_id", job.ID, "error", cause)
	return cause
}

func (w *Worker) observe(status string) {
	if w.recorder != nil {
		w.recorder.ObserveTrainingJob(status)
	}
}

func (w *Worker) publishCompleted(ctx context.Context, job *domain.TrainingJob) {
	payload, err := json.Marshal(job)
	if err != nil {
		slog.Error("failed to encode training job", "job_id", job.ID, "error", err)
		return
	}
	if err := w.bus.Publish(ctx, domain.TopicTrainingCompleted, payload); err != nil {
		slog.Error("failed to publish training completion",
			"job_id", job.ID,
			"error", err,
		)
	}
}

// EpochMetric simulates the losses and accuracies after one epoch:
//
//	trainLoss = 0.8e^(−0.1·epoch) + 0.1u
//	valLoss   = trainLoss + 0.05 + 0.05u
//	trainAcc  = 1 − trainLoss + 0.05u
//	valAcc    = trainAcc − 0.02 + 0.03u
//
// Losses are floored at 0 and accuracies clamped to [0, 1].
func EpochMetric(epoch int, src noise.Source) domain.EpochMetric {
	trainLoss := 0.8*math.Exp(-0.1*float64(epoch)) + 0.1*src.Float64()
	valLoss := trainLoss + 0.05 + 0.05*src.Float64()
	trainAcc := 1 - trainLoss + 0.05*src.Float64()
	valAcc := trainAcc - 0.02 + 0.03*src.Float64()

	return domain.EpochMetric{
		Epoch:         epoch,
		TrainLoss:     math.Max(0, trainLoss),
		ValLoss:       math.Max(0, valLoss),
		TrainAccuracy: clamp01(trainAcc),
		ValAccuracy:   clamp01(valAcc),
	}
}

// Metrics simulates a full run of epochs.
func Metrics(epochs int, src noise.Source) []domain.EpochMetric {
	out := make([]domain.EpochMetric, epochs)
	for i := range out {
		out[i] = EpochMetric(i+1, src)
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

func (w *Worker) handlePreprocess(ctx context.Context, msg *domain.Message) error {
	var req domain.PreprocessRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse preprocess request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	_, err := w.Preprocess(ctx, req.DatasetID)
	return err
}

// Preprocess cleans a dataset: missing values are imputed, duplicate and
// outlier rows are dropped and the dataset is marked cleaned.
func (w *Worker) Preprocess(ctx context.Context, datasetID string) (*domain.Dataset, error) {
	ds, err := w.repo.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", datasetID, err)
	}
	if ds.Status == domain.DatasetCleaned {
		return ds, nil
	}

	removed := ds.Duplicates + ds.Outliers
	imputed := ds.MissingValues

	ds.Size = max(0, ds.Size-removed)
	ds.MissingValues = 0
	ds.Duplicates = 0
	ds.Outliers = 0
	ds.Status = domain.DatasetCleaned
	ds.UpdatedAt = time.Now().UTC()
	if err := w.repo.SaveDataset(ctx, ds); err != nil {
		return nil, fmt.Errorf("failed to save dataset %s: %w", datasetID, err)
	}

	slog.Info("dataset preprocessed",
		"dataset_id", ds.ID,
		"rows_removed", removed,
		"values_imputed", imputed,
		"size", ds.Size,
	)
	return ds, nil
}

// Stop cancels running jobs, unsubscribes and waits for handlers to return.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	w.stopped = true
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
			errs = append(errs, err)
		}
	}

	w.wg.Wait()

	slog.Info("worker stopped")
	return errors.Join(errs...)
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
