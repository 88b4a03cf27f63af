package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// TrainingSpec describes a training job to queue.
type TrainingSpec struct {
	ModelName   string `json:"modelName" validate:"required,max=100"`
	ModelType   string `json:"modelType" validate:"required,max=50"`
	DatasetSize int64  `json:"datasetSize" validate:"gte=0"`
}

// QueueTraining stores a queued job and requests it over the bus.
func QueueTraining(ctx context.Context, repo domain.Repository, bus domain.EventBus, spec TrainingSpec) (*domain.TrainingJob, error) {
	now := time.Now().UTC()
	job := &domain.TrainingJob{
		ID:          "job-" + uuid.New().String(),
		ModelName:   spec.ModelName,
		ModelType:   spec.ModelType,
		Status:      domain.JobQueued,
		DatasetSize: spec.DatasetSize,
		CreatedAt:   now,
	}
	if err := repo.SaveTrainingJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save training job: %w", err)
	}

	payload, err := json.Marshal(domain.TrainingRequest{JobID: job.ID})
	if err != nil {
		return nil, err
	}
	if err := bus.Publish(ctx, domain.TopicTrainingRequested, payload); err != nil {
		return job, fmt.Errorf("failed to request training: %w", err)
	}
	return job, nil
}

// RequestPreprocess marks a dataset as processing and requests cleaning
// over the bus.
func RequestPreprocess(ctx context.Context, repo domain.Repository, bus domain.EventBus, datasetID string) (*domain.Dataset, error) {
	ds, err := repo.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	if ds.Status != domain.DatasetCleaned {
		ds.Status = domain.DatasetProcessing
		ds.UpdatedAt = time.Now().UTC()
		if err := repo.SaveDataset(ctx, ds); err != nil {
			return nil, fmt.Errorf("failed to save dataset: %w", err)
		}
	}

	payload, err := json.Marshal(domain.PreprocessRequest{DatasetID: ds.ID})
	if err != nil {
		return nil, err
	}
	if err := bus.Publish(ctx, domain.TopicDatasetPreprocess, payload); err != nil {
		return ds, fmt.Errorf("failed to request preprocessing: %w", err)
	}
	return ds, nil
}

// StatusIdle is the overall status when no job is queued, running or
// completed.
const StatusIdle = "idle"

// TrainingStatus summarizes all jobs.
type TrainingStatus struct {
	Status       string `json:"status"`
	ActiveModels int    `json:"activeModels"`
	Running      int    `json:"running"`
	Queued       int    `json:"queued"`
	Completed    int    `json:"completed"`
	Failed       int    `json:"failed"`
}

// Summarize reports running if any job runs, else queued if any waits,
// else completed if any finished, else idle.
func Summarize(jobs []*domain.TrainingJob) TrainingStatus {
	var st TrainingStatus
	for _, job := range jobs {
		switch job.Status {
		case domain.JobRunning:
			st.Running++
		case domain.JobQueued:
			st.Queued++
		case domain.JobCompleted:
			st.Completed++
		case domain.JobError:
			st.Failed++
		}
	}

	switch {
	case st.Running > 0:
		st.Status = domain.JobRunning
	case st.Queued > 0:
		st.Status = domain.JobQueued
	case st.Completed > 0:
		st.Status = domain.JobCompleted
	default:
		st.Status = StatusIdle
	}
	st.ActiveModels = st.Running + st.Queued
	return st
}

// RequestStatus asks a running worker for the training summary over the bus.
func RequestStatus(ctx context.Context, bus domain.EventBus) (TrainingStatus, error) {
	var st TrainingStatus
	reply, err := bus.Request(ctx, domain.TopicTrainingStatus, nil)
	if err != nil {
		return st, fmt.Errorf("training status request failed: %w", err)
	}
	if err := json.Unmarshal(reply, &st); err != nil {
		return st, fmt.Errorf("invalid training status reply: %w", err)
	}
	return st, nil
}
