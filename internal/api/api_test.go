package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/activity"
	"github.com/opensource-finance/kestrel/internal/bulk"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/dashboard"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/noise"
	"github.com/opensource-finance/kestrel/internal/observability"
	"github.com/opensource-finance/kestrel/internal/predict"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/worker"
)

type testEnv struct {
	server *Server
	repo   *repository.SQLRepository
	engine *rules.Engine
	worker *worker.Worker
}

// createTestServer wires every service over a temporary SQLite database
// with unperturbed built-in rule tables stored and loaded.
func createTestServer(t *testing.T, opts Options) *testEnv {
	t.Helper()
	ctx := context.Background()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	for _, table := range rules.BuiltinTables() {
		if err := repo.SaveRuleTable(ctx, table); err != nil {
			t.Fatalf("failed to save rule table: %v", err)
		}
	}

	engine := rules.NewEngine(noise.Zero, rules.WithPerturbationScale(0))
	if err := engine.LoadTables(rules.BuiltinTables()); err != nil {
		t.Fatalf("failed to load rule tables: %v", err)
	}

	c := cache.NewLRUCache(1000)
	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	metrics := observability.NewMetrics()
	counter := activity.NewService(repo, c, time.Hour)
	svc := predict.NewService(engine, noise.Zero,
		predict.WithRepository(repo),
		predict.WithBus(b),
		predict.WithActivity(counter),
		predict.WithRecorder(metrics),
	)

	w := worker.NewWorker(b, repo, noise.Zero, metrics, domain.TrainingConfig{Epochs: 5})
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	t.Cleanup(func() { w.Stop() })

	if opts.Version == "" {
		opts.Version = "test-v1"
	}
	server := NewServer(opts, Dependencies{
		Repo:      repo,
		Cache:     c,
		Bus:       b,
		Engine:    engine,
		Predict:   svc,
		Bulk:      bulk.NewProcessor(svc, b, opts.Bulk),
		Dashboard: dashboard.NewService(c, noise.Zero, time.Minute, counter),
		Metrics:   metrics,
	})

	return &testEnv{server: server, repo: repo, engine: engine, worker: w}
}

func (e *testEnv) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

var churnBody = []byte(`{
	"subscriptionMonths": 24,
	"monthlyUsage": 45,
	"avgSessionDuration": 60,
	"supportTickets": 2,
	"paymentFailures": 1,
	"contentRating": 3.5,
	"ageGroup": "26-35",
	"subscriptionTier": "standard"
}`)

func TestHealthEndpoints(t *testing.T) {
	env := createTestServer(t, Options{})

	t.Run("Health", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/health", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp struct {
			Status     string            `json:"status"`
			Version    string            `json:"version"`
			RuleTables int               `json:"ruleTables"`
			Checks     map[string]string `json:"checks"`
		}
		decode(t, rec, &resp)
		if resp.Status != "healthy" || resp.Version != "test-v1" || resp.RuleTables != 4 {
			t.Errorf("unexpected health: %+v", resp)
		}
		if resp.Checks["repository"] != "ok" || resp.Checks["cache"] != "ok" || resp.Checks["eventBus"] != "ok" {
			t.Errorf("unexpected checks: %v", resp.Checks)
		}
	})

	t.Run("Ready", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/ready", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("NotReadyWithoutTables", func(t *testing.T) {
		server := NewServer(Options{}, Dependencies{Engine: rules.NewEngine(noise.Zero)})
		rec := httptest.NewRecorder()
		server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
	})

	t.Run("SecurityHeaders", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/health", nil)
		if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
			t.Errorf("X-Frame-Options = %q", got)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header")
		}
	})
}

func TestPredictEndpoints(t *testing.T) {
	env := createTestServer(t, Options{})

	t.Run("Churn", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/predict/churn", churnBody)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var out predict.ChurnPrediction
		decode(t, rec, &out)
		if out.ChurnProbability != 26 || out.RiskLevel != "Low" {
			t.Errorf("churnProbability = %d, riskLevel = %s", out.ChurnProbability, out.RiskLevel)
		}
		if out.ID == "" || out.Domain != domain.DomainChurn {
			t.Errorf("meta not populated: %+v", out.Meta)
		}
	})

	t.Run("MissingFieldsDefaulted", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/predict/viewership", []byte(`{"genre": "action"}`))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var out predict.ViewershipPrediction
		decode(t, rec, &out)
		if len(out.Defaulted) == 0 {
			t.Error("expected defaulted fields to be reported")
		}
	})

	t.Run("NonObjectBody", func(t *testing.T) {
		for _, body := range []string{`[1, 2]`, `"churn"`, `null`, `{bad`} {
			rec := env.do(http.MethodPost, "/predict/revenue", []byte(body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("body %s: expected 400, got %d", body, rec.Code)
			}
		}
	})

	t.Run("NoTableLoaded", func(t *testing.T) {
		engine := rules.NewEngine(noise.Zero)
		server := NewServer(Options{}, Dependencies{
			Engine:  engine,
			Predict: predict.NewService(engine, noise.Zero),
		})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/predict/churn", bytes.NewReader(churnBody))
		server.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
	})
}

func TestPredictionHistory(t *testing.T) {
	env := createTestServer(t, Options{})

	rec := env.do(http.MethodPost, "/predict/churn", churnBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("prediction failed: %d", rec.Code)
	}
	var made predict.ChurnPrediction
	decode(t, rec, &made)

	t.Run("List", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/predictions?domain=churn&limit=10", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp struct {
			Predictions []domain.Prediction `json:"predictions"`
			Count       int                 `json:"count"`
		}
		decode(t, rec, &resp)
		if resp.Count != 1 || resp.Predictions[0].ID != made.ID {
			t.Errorf("unexpected history: %+v", resp)
		}
	})

	t.Run("OtherDomainEmpty", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/predictions?domain=revenue", nil)
		var resp struct {
			Count int `json:"count"`
		}
		decode(t, rec, &resp)
		if resp.Count != 0 {
			t.Errorf("expected no revenue predictions, got %d", resp.Count)
		}
	})

	t.Run("BadQuery", func(t *testing.T) {
		for _, q := range []string{"?domain=weather", "?limit=0", "?limit=abc"} {
			rec := env.do(http.MethodGet, "/predictions"+q, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d", q, rec.Code)
			}
		}
	})

	t.Run("Get", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/predictions/"+made.ID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var p domain.Prediction
		decode(t, rec, &p)
		if p.Domain != domain.DomainChurn || p.Label != "Low" || p.Source != domain.SourceAPI {
			t.Errorf("unexpected prediction: %+v", p)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/predictions/does-not-exist", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("DefaultAndMaxLimit", func(t *testing.T) {
		for i := 0; i < 24; i++ {
			if rec := env.do(http.MethodPost, "/predict/churn", churnBody); rec.Code != http.StatusOK {
				t.Fatalf("prediction %d failed: %d", i, rec.Code)
			}
		}

		var resp struct {
			Count int `json:"count"`
		}
		decode(t, env.do(http.MethodGet, "/predictions", nil), &resp)
		if resp.Count != 20 {
			t.Errorf("expected default page of 20, got %d", resp.Count)
		}

		decode(t, env.do(http.MethodGet, "/predictions?limit=1000", nil), &resp)
		if resp.Count != 25 {
			t.Errorf("expected all 25 predictions under the cap, got %d", resp.Count)
		}
	})
}

func TestBulkEndpoints(t *testing.T) {
	env := createTestServer(t, Options{})

	var template bytes.Buffer
	if err := bulk.Template(&template); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}

	t.Run("Template", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/predictions/bulk/template", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
			t.Errorf("Content-Type = %q", ct)
		}
		if !strings.HasPrefix(rec.Body.String(), "content_type,genre,") {
			t.Errorf("unexpected template: %q", rec.Body.String())
		}
	})

	t.Run("RawBody", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/predictions/bulk", bytes.NewReader(template.Bytes()))
		req.Header.Set("Content-Type", "text/csv")
		rec := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var result bulk.Result
		decode(t, rec, &result)
		if result.TotalRows != 3 || result.ProcessedRows != 3 || len(result.Predictions) != 6 {
			t.Errorf("unexpected result: total=%d processed=%d predictions=%d",
				result.TotalRows, result.ProcessedRows, len(result.Predictions))
		}
		if len(result.Errors) != 0 {
			t.Errorf("unexpected errors: %v", result.Errors)
		}
	})

	t.Run("Multipart", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		fw, err := mw.CreateFormFile("file", "titles.csv")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		fw.Write(template.Bytes())
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/predictions/bulk?format=csv", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
			t.Errorf("Content-Type = %q", ct)
		}
		lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
		if len(lines) != 7 || lines[0] != "id,type,prediction,confidence" {
			t.Errorf("unexpected export: %q", rec.Body.String())
		}
	})

	t.Run("MissingFileField", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		mw.WriteField("name", "titles.csv")
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/predictions/bulk", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("EmptyFile", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/predictions/bulk", []byte{})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("TooLarge", func(t *testing.T) {
		small := createTestServer(t, Options{Bulk: domain.BulkConfig{MaxBytes: 64}})
		req := httptest.NewRequest(http.MethodPost, "/predictions/bulk", bytes.NewReader(template.Bytes()))
		req.Header.Set("Content-Type", "text/csv")
		rec := httptest.NewRecorder()
		small.server.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("expected 413, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestRuleTableEndpoints(t *testing.T) {
	env := createTestServer(t, Options{})

	t.Run("List", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/rule-tables", nil)
		var resp struct {
			Count int `json:"count"`
		}
		decode(t, rec, &resp)
		if rec.Code != http.StatusOK || resp.Count != 4 {
			t.Errorf("status=%d count=%d", rec.Code, resp.Count)
		}
	})

	t.Run("Get", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/rule-tables/churn", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp struct {
			Table  domain.RuleTable `json:"table"`
			Loaded bool             `json:"loaded"`
		}
		decode(t, rec, &resp)
		if !resp.Loaded || resp.Table.Domain != domain.DomainChurn {
			t.Errorf("unexpected response: loaded=%v domain=%s", resp.Loaded, resp.Table.Domain)
		}
	})

	t.Run("GetUnknown", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/rule-tables/weather", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("PutRejectsInvalid", func(t *testing.T) {
		mismatch := rules.ChurnTable()
		mismatch.Domain = domain.DomainRevenue

		noRules := rules.ChurnTable()
		noRules.Rules = nil

		badExpr := rules.ChurnTable()
		badExpr.Rules[0].Expression = "subscriptionMonths <"

		for name, table := range map[string]*domain.RuleTable{
			"mismatch": mismatch,
			"noRules":  noRules,
			"badExpr":  badExpr,
		} {
			body, _ := json.Marshal(table)
			rec := env.do(http.MethodPut, "/rule-tables/churn", body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d: %s", name, rec.Code, rec.Body.String())
			}
		}
	})

	t.Run("PutThenReload", func(t *testing.T) {
		table := rules.ChurnTable()
		table.Version = "2.0.0"
		body, _ := json.Marshal(table)

		rec := env.do(http.MethodPut, "/rule-tables/churn", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		loaded, _ := env.engine.GetTable(domain.DomainChurn)
		if loaded.Version == "2.0.0" {
			t.Fatal("table applied before reload")
		}

		rec = env.do(http.MethodPost, "/rule-tables/reload", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("reload: expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Count int `json:"count"`
		}
		decode(t, rec, &resp)
		if resp.Count != 4 {
			t.Errorf("reloaded %d tables, want 4", resp.Count)
		}

		loaded, _ = env.engine.GetTable(domain.DomainChurn)
		if loaded.Version != "2.0.0" {
			t.Errorf("version = %s after reload", loaded.Version)
		}
	})
}

func TestDashboardEndpoints(t *testing.T) {
	env := createTestServer(t, Options{})

	t.Run("Overview", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/dashboard", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var overview map[string]json.RawMessage
		decode(t, rec, &overview)
		for _, name := range []string{dashboard.DatasetStats, dashboard.DatasetViewingTrends, dashboard.DatasetRevenueForecasting} {
			if _, ok := overview[name]; !ok {
				t.Errorf("overview missing %s", name)
			}
		}
	})

	t.Run("Dataset", func(t *testing.T) {
		env.do(http.MethodPost, "/predict/churn", churnBody)

		rec := env.do(http.MethodGet, "/dashboard/stats", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var stats dashboard.Stats
		decode(t, rec, &stats)
		if stats.TotalUsers == 0 || stats.PredictionsLast24h != 1 {
			t.Errorf("unexpected stats: %+v", stats)
		}
	})

	t.Run("UnknownDataset", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/dashboard/weather", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		var resp struct {
			Available []string `json:"available"`
		}
		decode(t, rec, &resp)
		if len(resp.Available) != 16 {
			t.Errorf("expected 16 available datasets, got %d", len(resp.Available))
		}
	})
}

func TestDatasetEndpoints(t *testing.T) {
	env := createTestServer(t, Options{})
	ctx := context.Background()

	ds := &domain.Dataset{
		ID:            "ds-viewing",
		Name:          "Viewing History",
		Size:          1000,
		Features:      12,
		MissingValues: 30,
		Duplicates:    20,
		Outliers:      5,
		Status:        domain.DatasetRaw,
		UpdatedAt:     time.Now().UTC(),
	}
	if err := env.repo.SaveDataset(ctx, ds); err != nil {
		t.Fatalf("failed to save dataset: %v", err)
	}

	t.Run("List", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/datasets", nil)
		var resp struct {
			Datasets []domain.Dataset `json:"datasets"`
		}
		decode(t, rec, &resp)
		if len(resp.Datasets) != 1 || resp.Datasets[0].ID != ds.ID {
			t.Errorf("unexpected datasets: %+v", resp.Datasets)
		}
	})

	t.Run("Preprocess", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/datasets/preprocess", []byte(`{"dataset": "ds-viewing"}`))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
		}

		eventually(t, func() bool {
			got, err := env.repo.GetDataset(ctx, ds.ID)
			return err == nil && got.Status == domain.DatasetCleaned
		})

		got, _ := env.repo.GetDataset(ctx, ds.ID)
		if got.Size != 975 || got.MissingValues != 0 || got.Duplicates != 0 || got.Outliers != 0 {
			t.Errorf("unexpected cleaned dataset: %+v", got)
		}
	})

	t.Run("PreprocessInvalid", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/datasets/preprocess", []byte(`{}`))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		rec = env.do(http.MethodPost, "/datasets/preprocess", []byte(`{"dataset": "missing"}`))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestTrainingEndpoints(t *testing.T) {
	env := createTestServer(t, Options{})

	t.Run("Idle", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/training/status", nil)
		var st worker.TrainingStatus
		decode(t, rec, &st)
		if st.Status != worker.StatusIdle || st.ActiveModels != 0 {
			t.Errorf("unexpected status: %+v", st)
		}
	})

	t.Run("StartAndComplete", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/training/jobs", []byte(`{"modelName": "Viewership LSTM", "modelType": "LSTM", "datasetSize": 5000}`))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			Success bool   `json:"success"`
			JobID   string `json:"jobId"`
			Message string `json:"message"`
		}
		decode(t, rec, &resp)
		if !resp.Success || resp.JobID == "" || resp.Message != "Training started for Viewership LSTM" {
			t.Fatalf("unexpected response: %+v", resp)
		}

		eventually(t, func() bool {
			rec := env.do(http.MethodGet, "/training/jobs/"+resp.JobID, nil)
			var job domain.TrainingJob
			json.NewDecoder(rec.Body).Decode(&job)
			return job.Status == domain.JobCompleted
		})

		rec = env.do(http.MethodGet, "/training/jobs/"+resp.JobID+"/metrics", nil)
		var metrics struct {
			Metrics []domain.EpochMetric `json:"metrics"`
		}
		decode(t, rec, &metrics)
		if len(metrics.Metrics) != 5 {
			t.Errorf("expected 5 epochs, got %d", len(metrics.Metrics))
		}

		rec = env.do(http.MethodGet, "/training/status", nil)
		var st worker.TrainingStatus
		decode(t, rec, &st)
		if st.Status != domain.JobCompleted || st.Completed != 1 {
			t.Errorf("unexpected status: %+v", st)
		}

		rec = env.do(http.MethodGet, "/training/jobs", nil)
		var list struct {
			Jobs []domain.TrainingJob `json:"jobs"`
		}
		decode(t, rec, &list)
		if len(list.Jobs) != 1 {
			t.Errorf("expected 1 job, got %d", len(list.Jobs))
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, body := range []string{`{"modelType": "LSTM"}`, `{"modelName": "x", "modelType": "LSTM", "datasetSize": -1}`, `not json`} {
			rec := env.do(http.MethodPost, "/training/jobs", []byte(body))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("%s: expected 400, got %d", body, rec.Code)
			}
		}
	})

	t.Run("Missing", func(t *testing.T) {
		for _, path := range []string{"/training/jobs/job-missing", "/training/jobs/job-missing/metrics"} {
			rec := env.do(http.MethodGet, path, nil)
			if rec.Code != http.StatusNotFound {
				t.Errorf("%s: expected 404, got %d", path, rec.Code)
			}
		}
	})

	t.Run("StatusWithoutWorker", func(t *testing.T) {
		if err := env.worker.Stop(); err != nil {
			t.Fatalf("failed to stop worker: %v", err)
		}
		rec := env.do(http.MethodGet, "/training/status", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var st worker.TrainingStatus
		decode(t, rec, &st)
		if st.Status != domain.JobCompleted || st.Completed != 1 {
			t.Errorf("expected repository summary, got %+v", st)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	env := createTestServer(t, Options{})
	env.do(http.MethodPost, "/predict/churn", churnBody)

	rec := env.do(http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`kestrel_predictions_total{domain="churn",label="Low"} 1`,
		`kestrel_http_requests_total{code="200",route="/predict/churn"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	env := createTestServer(t, Options{RateLimit: domain.RateLimitConfig{RequestsPerMinute: 2}})

	for i := range 2 {
		if rec := env.do(http.MethodGet, "/rule-tables", nil); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	if rec := env.do(http.MethodGet, "/rule-tables", nil); rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if rec := env.do(http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("health should not be rate limited, got %d", rec.Code)
	}
}
