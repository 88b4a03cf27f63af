// Package bulk scores uploaded CSV files of titles.
package bulk

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/predict"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrEmptyFile is returned for a file without a header or data rows.
	ErrEmptyFile = errors.New("file contains no data rows")
	// ErrTooManyRows is returned when a file exceeds the row limit.
	ErrTooManyRows = errors.New("file exceeds row limit")
)

// Columns is the header of the upload template.
var Columns = []string{
	"content_type",
	"genre",
	"budget",
	"marketing_budget",
	"cast_popularity",
	"director_experience",
	"release_hour",
	"duration",
}

var templateRows = [][]string{
	{"movie", "action", "150", "75", "8", "12", "20", "120"},
	{"series", "drama", "80", "40", "7", "8", "19", "45"},
	{"documentary", "educational", "25", "15", "5", "15", "14", "90"},
}

// Prediction types in a result.
const (
	TypeViewership     = "Viewership"
	TypeContentSuccess = "Content Success"
)

// Row is one parsed upload row. Budgets are in millions.
type Row struct {
	ContentType        string  `csv:"content_type" validate:"required"`
	Genre              string  `csv:"genre" validate:"required"`
	Budget             float64 `csv:"budget" validate:"gte=0,lte=1000"`
	MarketingBudget    float64 `csv:"marketing_budget" validate:"gte=0,lte=1000"`
	CastPopularity     float64 `csv:"cast_popularity" validate:"gte=0,lte=10"`
	DirectorExperience float64 `csv:"director_experience" validate:"gte=0,lte=60"`
	ReleaseHour        int     `csv:"release_hour" validate:"gte=0,lte=23"`
	Duration           float64 `csv:"duration" validate:"gte=0,lte=600"`
}

func (r Row) viewershipRequest() domain.ScoringRequest {
	return domain.ScoringRequest{
		"contentType":         r.ContentType,
		"genre":               r.Genre,
		"releaseHour":         r.ReleaseHour,
		"marketingBudget":     r.MarketingBudget,
		"leadActorPopularity": r.CastPopularity,
	}
}

func (r Row) contentRequest() domain.ScoringRequest {
	return domain.ScoringRequest{
		"budget":             r.Budget,
		"castPopularity":     r.CastPopularity,
		"directorExperience": r.DirectorExperience,
		"marketingBudget":    r.MarketingBudget,
		"genre":              r.Genre,
	}
}

// Prediction is one line of a bulk result.
type Prediction struct {
	ID           int    `json:"id"`
	Row          int    `json:"row"`
	Type         string `json:"type"`
	Prediction   string `json:"prediction"`
	Confidence   int    `json:"confidence"`
	Label        string `json:"label"`
	PredictionID string `json:"predictionId"`
}

// Result summarizes a processed file.
type Result struct {
	ID             string       `json:"id"`
	FileName       string       `json:"fileName"`
	TotalRows      int          `json:"totalRows"`
	ProcessedRows  int          `json:"processedRows"`
	Predictions    []Prediction `json:"predictions"`
	Errors         []string     `json:"errors"`
	ProcessingTime float64      `json:"processingTime"` // seconds
}

// CompletedEvent is published on domain.TopicBulkCompleted.
type CompletedEvent struct {
	ID            string `json:"id"`
	FileName      string `json:"fileName"`
	TotalRows     int    `json:"totalRows"`
	ProcessedRows int    `json:"processedRows"`
	Errors        int    `json:"errors"`
}

// Predictor scores a single title.
type Predictor interface {
	Viewership(ctx context.Context, req domain.ScoringRequest) (*predict.ViewershipPrediction, error)
	ContentSuccess(ctx context.Context, req domain.ScoringRequest) (*predict.ContentPrediction, error)
}

// Processor scores upload files.
type Processor struct {
	predictor   Predictor
	bus         domain.EventBus
	maxRows     int
	concurrency int
	validate    *validator.Validate
}

// NewProcessor creates a processor. bus may be nil.
func NewProcessor(p Predictor, bus domain.EventBus, cfg domain.BulkConfig) *Processor {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("csv")
	})

	return &Processor{
		predictor:   p,
		bus:         bus,
		maxRows:     cfg.MaxRows,
		concurrency: concurrency,
		validate:    v,
	}
}

// Template writes the upload template with sample rows.
func Template(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(templateRows); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	return nil
}

type rowOutcome struct {
	predictions []Prediction
	err         string
}

// Process parses and scores every data row of r. Row problems are
// collected in Result.Errors; only unreadable or empty input fails.
func (p *Processor) Process(ctx context.Context, fileName string, r io.Reader) (*Result, error) {
	started := time.Now()

	header, records, err := readRecords(r)
	if err != nil {
		return nil, err
	}
	if p.maxRows > 0 && len(records) > p.maxRows {
		return nil, fmt.Errorf("%w: %d rows, limit %d", ErrTooManyRows, len(records), p.maxRows)
	}

	ctx = predict.WithSource(ctx, domain.SourceBulk)
	outcomes := make([]rowOutcome, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, record := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = p.scoreRow(gctx, i+1, header, record)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("bulk processing interrupted: %w", err)
	}

	result := &Result{
		ID:          uuid.New().String(),
		FileName:    fileName,
		TotalRows:   len(records),
		Predictions: []Prediction{},
		Errors:      []string{},
	}
	for _, o := range outcomes {
		if o.err != "" {
			result.Errors = append(result.Errors, o.err)
			continue
		}
		result.ProcessedRows++
		for _, pred := range o.predictions {
			pred.ID = len(result.Predictions) + 1
			result.Predictions = append(result.Predictions, pred)
		}
	}
	result.ProcessingTime = math.Round(time.Since(started).Seconds()*100) / 100

	slog.Info("bulk file processed",
		"file", fileName,
		"total_rows", result.TotalRows,
		"processed_rows", result.ProcessedRows,
		"errors", len(result.Errors),
	)
	p.publish(ctx, result)

	return result, nil
}

func (p *Processor) scoreRow(ctx context.Context, n int, header map[string]int, record []string) rowOutcome {
	row, err := p.parseRow(header, record)
	if err != nil {
		return rowOutcome{err: fmt.Sprintf("Row %d: %v", n, err)}
	}

	views, err := p.predictor.Viewership(ctx, row.viewershipRequest())
	if err != nil {
		return rowOutcome{err: fmt.Sprintf("Row %d: %v", n, err)}
	}
	content, err := p.predictor.ContentSuccess(ctx, row.contentRequest())
	if err != nil {
		return rowOutcome{err: fmt.Sprintf("Row %d: %v", n, err)}
	}

	// Content success carries no confidence of its own; it shares the
	// row's viewership confidence.
	return rowOutcome{predictions: []Prediction{
		{
			Row:          n,
			Type:         TypeViewership,
			Prediction:   fmt.Sprintf("%dM views", int64(math.Round(float64(views.PredictedViews)/1_000_000))),
			Confidence:   views.Confidence,
			Label:        views.Tier,
			PredictionID: views.ID,
		},
		{
			Row:          n,
			Type:         TypeContentSuccess,
			Prediction:   fmt.Sprintf("%d%% success", content.SuccessScore),
			Confidence:   views.Confidence,
			Label:        content.SuccessLevel,
			PredictionID: content.ID,
		},
	}}
}

// parseRow maps a record onto a Row and validates it.
func (p *Processor) parseRow(header map[string]int, record []string) (Row, error) {
	get := func(col string) string {
		i, ok := header[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var row Row
	row.ContentType = strings.ToLower(get("content_type"))
	row.Genre = strings.ToLower(get("genre"))

	numbers := []struct {
		col  string
		dest *float64
	}{
		{"budget", &row.Budget},
		{"marketing_budget", &row.MarketingBudget},
		{"cast_popularity", &row.CastPopularity},
		{"director_experience", &row.DirectorExperience},
		{"duration", &row.Duration},
	}
	for _, n := range numbers {
		v, err := parseNumber(get(n.col))
		if err != nil {
			return row, fmt.Errorf("invalid %s value %q", n.col, get(n.col))
		}
		*n.dest = v
	}
	hour, err := parseNumber(get("release_hour"))
	if err != nil || hour != math.Trunc(hour) {
		return row, fmt.Errorf("invalid release_hour value %q", get("release_hour"))
	}
	row.ReleaseHour = int(hour)

	if err := p.validate.Struct(row); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return row, describe(verrs[0])
		}
		return row, err
	}
	return row, nil
}

func describe(fe validator.FieldError) error {
	if fe.Tag() == "required" {
		return fmt.Errorf("missing %s field", fe.Field())
	}
	return fmt.Errorf("%s value out of range", fe.Field())
}

// parseNumber treats an empty cell as zero.
func parseNumber(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return v, nil
}

// readRecords returns the header column positions and the non-blank data
// records.
func readRecords(r io.Reader) (map[string]int, [][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	all, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(all) == 0 {
		return nil, nil, ErrEmptyFile
	}

	header := make(map[string]int, len(all[0]))
	for i, col := range all[0] {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
		if _, dup := header[name]; !dup {
			header[name] = i
		}
	}

	records := make([][]string, 0, len(all)-1)
	for _, rec := range all[1:] {
		if blank(rec) {
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, nil, ErrEmptyFile
	}
	return header, records, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func (p *Processor) publish(ctx context.Context, result *Result) {
	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(CompletedEvent{
		ID:            result.ID,
		FileName:      result.FileName,
		TotalRows:     result.TotalRows,
		ProcessedRows: result.ProcessedRows,
		Errors:        len(result.Errors),
	})
	if err != nil {
		slog.Error("failed to encode bulk event", "error", err)
		return
	}
	if err := p.bus.Publish(ctx, domain.TopicBulkCompleted, payload); err != nil {
		slog.Warn("failed to publish bulk event", "id", result.ID, "error", err)
	}
}

// WriteCSV exports the predictions of result.
func WriteCSV(w io.Writer, result *Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "type", "prediction", "confidence"}); err != nil {
		return err
	}
	for _, p := range result.Predictions {
		if err := cw.Write([]string{
			strconv.Itoa(p.ID),
			p.Type,
			p.Prediction,
			strconv.Itoa(p.Confidence),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
