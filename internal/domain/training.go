package domain

import "time"

// Training job states.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobError     = "error"
)

// TrainingJob is a simulated model training run.
type TrainingJob struct {
	ID                  string    `json:"id"`
	ModelName           string    `json:"modelName"`
	ModelType           string    `json:"modelType"`
	Status              string    `json:"status"`
	Progress            int       `json:"progress"`
	Epochs              int       `json:"epochs"`
	Accuracy            float64   `json:"accuracy"`
	Loss                float64   `json:"loss"`
	DatasetSize         int64     `json:"datasetSize"`
	Error               string    `json:"error,omitempty"`
	StartTime           time.Time `json:"startTime"`
	EstimatedCompletion time.Time `json:"estimatedCompletion"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// EpochMetric is the loss and accuracy after one training epoch.
type EpochMetric struct {
	Epoch         int     `json:"epoch"`
	TrainLoss     float64 `json:"trainLoss"`
	ValLoss       float64 `json:"valLoss"`
	TrainAccuracy float64 `json:"trainAccuracy"`
	ValAccuracy   float64 `json:"valAccuracy"`
}

// Dataset states.
const (
	DatasetRaw        = "raw"
	DatasetProcessing = "processing"
	DatasetCleaned    = "cleaned"
)

// Dataset describes a training dataset and its quality counters.
type Dataset struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	Features      int       `json:"features"`
	MissingValues int64     `json:"missingValues"`
	Duplicates    int64     `json:"duplicates"`
	Outliers      int64     `json:"outliers"`
	Status        string    `json:"status"`
	UpdatedAt     time.Time `json:"lastUpdated"`
}

// TrainingRequest is the payload of TopicTrainingRequested.
type TrainingRequest struct {
	JobID string `json:"jobId"`
}

// PreprocessRequest is the payload of TopicDatasetPreprocess.
type PreprocessRequest struct {
	DatasetID string `json:"datasetId"`
}
