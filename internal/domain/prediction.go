package domain

import (
	"encoding/json"
	"time"
)

// Prediction is a persisted record of one scoring call.
type Prediction struct {
	ID        string          `json:"id"`
	Domain    ScoringDomain   `json:"domain"`
	Score     float64         `json:"score"`
	Label     string          `json:"label"`
	Input     ScoringRequest  `json:"input"`
	Output    json.RawMessage `json:"output"`
	Source    string          `json:"source"` // "api", "bulk"
	ProcessMs int64           `json:"processMs"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Prediction sources.
const (
	SourceAPI  = "api"
	SourceBulk = "bulk"
)
