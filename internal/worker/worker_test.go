package worker

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/noise"
	"github.com/opensource-finance/kestrel/internal/repository"
)

type statusRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *statusRecorder) ObserveTrainingJob(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[status]++
}

func (r *statusRecorder) count(status string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[status]
}

func newTestRepo(t *testing.T) *repository.SQLRepository {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worker-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEpochMetric(t *testing.T) {
	m := EpochMetric(1, noise.Zero)
	trainLoss := 0.8 * math.Exp(-0.1)
	if m.Epoch != 1 || !near(m.TrainLoss, trainLoss) || !near(m.ValLoss, trainLoss+0.05) {
		t.Errorf("unexpected losses: %+v", m)
	}
	if !near(m.TrainAccuracy, 1-trainLoss) || !near(m.ValAccuracy, 1-trainLoss-0.02) {
		t.Errorf("unexpected accuracies: %+v", m)
	}

	m = EpochMetric(50, noise.Fixed(1))
	trainLoss = 0.8*math.Exp(-5) + 0.1
	if !near(m.TrainLoss, trainLoss) || !near(m.ValLoss, trainLoss+0.1) {
		t.Errorf("unexpected losses at full noise: %+v", m)
	}
	if !near(m.TrainAccuracy, 1-trainLoss+0.05) || !near(m.ValAccuracy, 1-trainLoss+0.06) {
		t.Errorf("unexpected accuracies at full noise: %+v", m)
	}
}

func TestMetrics(t *testing.T) {
	metrics := Metrics(DefaultEpochs, noise.NewSeeded(7))
	if len(metrics) != 50 {
		t.Fatalf("expected 50 epochs, got %d", len(metrics))
	}
	for i, m := range metrics {
		if m.Epoch != i+1 {
			t.Errorf("metric %d has epoch %d", i, m.Epoch)
		}
		if m.TrainLoss < 0 || m.ValLoss < 0 {
			t.Errorf("epoch %d: negative loss %+v", m.Epoch, m)
		}
		if m.TrainAccuracy < 0 || m.TrainAccuracy > 1 || m.ValAccuracy < 0 || m.ValAccuracy > 1 {
			t.Errorf("epoch %d: accuracy out of range %+v", m.Epoch, m)
		}
	}

	smooth := Metrics(10, noise.Zero)
	for i := 1; i < len(smooth); i++ {
		if smooth[i].TrainLoss >= smooth[i-1].TrainLoss {
			t.Errorf("loss should decrease without noise: epoch %d", i+1)
		}
	}
}

func TestWorkerTraining(t *testing.T) {
	repo := newTestRepo(t)
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	recorder := &statusRecorder{}
	w := NewWorker(eventBus, repo, noise.NewSeeded(1), recorder, domain.TrainingConfig{Epochs: 10})
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if stats := w.GetStats(); stats.SubscriptionCount != 3 {
		t.Errorf("expected 3 subscriptions, got %d", stats.SubscriptionCount)
	}

	completed := make(chan domain.TrainingJob, 1)
	_, err := eventBus.Subscribe(context.Background(), domain.TopicTrainingCompleted, func(ctx context.Context, msg *domain.Message) error {
		var job domain.TrainingJob
		if err := json.Unmarshal(msg.Payload, &job); err != nil {
			return err
		}
		completed <- job
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ctx := context.Background()
	queued, err := QueueTraining(ctx, repo, eventBus, TrainingSpec{
		ModelName:   "LSTM Viewership Predictor",
		ModelType:   "LSTM",
		DatasetSize: 2500000,
	})
	if err != nil {
		t.Fatalf("QueueTraining failed: %v", err)
	}
	if queued.Status != domain.JobQueued || !strings.HasPrefix(queued.ID, "job-") {
		t.Errorf("unexpected queued job: %+v", queued)
	}

	select {
	case job := <-completed:
		if job.ID != queued.ID || job.Status != domain.JobCompleted {
			t.Errorf("unexpected completion event: %+v", job)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("training did not complete")
	}

	job, err := repo.GetTrainingJob(ctx, queued.ID)
	if err != nil {
		t.Fatalf("GetTrainingJob failed: %v", err)
	}
	if job.Status != domain.JobCompleted || job.Progress != 100 || job.Epochs != 10 {
		t.Errorf("unexpected stored job: %+v", job)
	}
	if job.StartTime.IsZero() || job.DatasetSize != 2500000 {
		t.Errorf("job lost fields: %+v", job)
	}

	metrics, err := repo.GetTrainingMetrics(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetTrainingMetrics failed: %v", err)
	}
	if len(metrics) != 10 {
		t.Fatalf("expected 10 metrics, got %d", len(metrics))
	}
	if !near(job.Accuracy, metrics[9].ValAccuracy) || !near(job.Loss, metrics[9].ValLoss) {
		t.Errorf("final accuracy/loss %v/%v do not match last epoch %+v", job.Accuracy, job.Loss, metrics[9])
	}
	if recorder.count(domain.JobCompleted) != 1 {
		t.Errorf("expected one completed observation, got %v", recorder.counts)
	}

	// A completed job is not trained again.
	if err := w.Train(ctx, job.ID); err != nil {
		t.Errorf("retraining completed job should be a no-op: %v", err)
	}
}

func TestTrainFailures(t *testing.T) {
	repo := newTestRepo(t)
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	t.Run("missing job", func(t *testing.T) {
		w := NewWorker(eventBus, repo, noise.Zero, nil, domain.TrainingConfig{Epochs: 3})
		err := w.Train(context.Background(), "job-missing")
		if !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("interrupted", func(t *testing.T) {
		ctx := context.Background()
		job := &domain.TrainingJob{ID: "job-slow", ModelName: "Slow", ModelType: "LSTM", Status: domain.JobQueued}
		if err := repo.SaveTrainingJob(ctx, job); err != nil {
			t.Fatalf("SaveTrainingJob failed: %v", err)
		}

		recorder := &statusRecorder{}
		w := NewWorker(eventBus, repo, noise.Zero, recorder, domain.TrainingConfig{Epochs: 5, EpochDelay: time.Hour})

		tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		err := w.Train(tctx, job.ID)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}

		stored, err := repo.GetTrainingJob(ctx, job.ID)
		if err != nil {
			t.Fatalf("GetTrainingJob failed: %v", err)
		}
		if stored.Status != domain.JobError || !strings.Contains(stored.Error, "interrupted at epoch 1") {
			t.Errorf("unexpected failed job: %+v", stored)
		}
		if recorder.count(domain.JobError) != 1 {
			t.Errorf("expected one error observation, got %v", recorder.counts)
		}
	})
}

func TestWorkerPreprocess(t *testing.T) {
	repo := newTestRepo(t)
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := NewWorker(eventBus, repo, noise.Zero, nil, domain.TrainingConfig{})
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	ctx := context.Background()
	if err := repo.SaveDataset(ctx, &domain.Dataset{
		ID:            "content-metadata",
		Name:          "Content Metadata",
		Size:          2100000,
		Features:      28,
		MissingValues: 15000,
		Duplicates:    3200,
		Outliers:      8500,
		Status:        domain.DatasetRaw,
	}); err != nil {
		t.Fatalf("SaveDataset failed: %v", err)
	}

	ds, err := RequestPreprocess(ctx, repo, eventBus, "content-metadata")
	if err != nil {
		t.Fatalf("RequestPreprocess failed: %v", err)
	}
	if ds.Status != domain.DatasetProcessing {
		t.Errorf("expected processing, got %s", ds.Status)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		ds, err = repo.GetDataset(ctx, "content-metadata")
		if err != nil {
			t.Fatalf("GetDataset failed: %v", err)
		}
		if ds.Status == domain.DatasetCleaned || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if ds.Status != domain.DatasetCleaned {
		t.Fatalf("dataset not cleaned: %+v", ds)
	}
	if ds.Size != 2100000-3200-8500 || ds.MissingValues != 0 || ds.Duplicates != 0 || ds.Outliers != 0 {
		t.Errorf("unexpected cleaned dataset: %+v", ds)
	}
	if ds.Features != 28 {
		t.Errorf("features changed: %d", ds.Features)
	}

	if _, err := RequestPreprocess(ctx, repo, eventBus, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	jobs := func(statuses ...string) []*domain.TrainingJob {
		out := make([]*domain.TrainingJob, len(statuses))
		for i, s := range statuses {
			out[i] = &domain.TrainingJob{Status: s}
		}
		return out
	}

	tests := []struct {
		name   string
		jobs   []*domain.TrainingJob
		status string
		active int
	}{
		{"no jobs", nil, StatusIdle, 0},
		{"only failed", jobs(domain.JobError), StatusIdle, 0},
		{"completed", jobs(domain.JobCompleted, domain.JobError), domain.JobCompleted, 0},
		{"queued", jobs(domain.JobCompleted, domain.JobQueued), domain.JobQueued, 1},
		{"running", jobs(domain.JobRunning, domain.JobQueued, domain.JobQueued, domain.JobCompleted), domain.JobRunning, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Summarize(tt.jobs)
			if st.Status != tt.status || st.ActiveModels != tt.active {
				t.Errorf("got %s/%d, want %s/%d", st.Status, st.ActiveModels, tt.status, tt.active)
			}
		})
	}
}

func TestWorkerStop(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	w := NewWorker(eventBus, newTestRepo(t), noise.Zero, nil, domain.TrainingConfig{})
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
	if stats := w.GetStats(); stats.SubscriptionCount != 0 {
		t.Errorf("expected no subscriptions after stop, got %d", stats.SubscriptionCount)
	}
}

func TestWorkerStatusRequest(t *testing.T) {
	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, job := range []*domain.TrainingJob{
		{ID: "job-done", ModelName: "Done", ModelType: "XGBoost", Status: domain.JobCompleted},
		{ID: "job-broken", ModelName: "Broken", ModelType: "LSTM", Status: domain.JobError},
	} {
		if err := repo.SaveTrainingJob(ctx, job); err != nil {
			t.Fatalf("SaveTrainingJob failed: %v", err)
		}
	}

	w := NewWorker(eventBus, repo, noise.Zero, nil, domain.TrainingConfig{})
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	st, err := RequestStatus(reqCtx, eventBus)
	if err != nil {
		t.Fatalf("RequestStatus failed: %v", err)
	}
	if st.Status != domain.JobCompleted || st.Completed != 1 || st.Failed != 1 || st.ActiveModels != 0 {
		t.Errorf("unexpected status: %+v", st)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	stopCtx, stopCancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer stopCancel()
	if _, err := RequestStatus(stopCtx, eventBus); err == nil {
		t.Error("expected an error once the worker stopped")
	}
}
