package ai

import (
	"time"

	"github.com/Cyvadra/marketminds/internal/models"
)

// ChatResponse is the reply to a chat request
type ChatResponse struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// FileAnalysisResponse is the interpretation of an uploaded file
type FileAnalysisResponse struct {
	Analysis  string    `json:"analysis"`
	FileName  string    `json:"fileName"`
	FileType  string    `json:"fileType"`
	Timestamp time.Time `json:"timestamp"`
}

// MarketDataResponse is a model-written market snapshot
type MarketDataResponse struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Analysis  string    `json:"analysis"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note"`
}

// NewsAnalysisResponse is the market impact of a news item
type NewsAnalysisResponse struct {
	Analysis  string    `json:"analysis"`
	Symbols   []string  `json:"symbols"`
	Timestamp time.Time `json:"timestamp"`
}

// RiskManagementResponse combines computed sizing with model guidance.
// PositionSize and StopLossDistance are null unless entry and stop were given.
type RiskManagementResponse struct {
	AccountSize      float64   `json:"accountSize"`
	RiskPercentage   float64   `json:"riskPercentage"`
	MaxRiskAmount    float64   `json:"maxRiskAmount"`
	PositionSize     *float64  `json:"positionSize"`
	StopLossDistance *float64  `json:"stopLossDistance"`
	Guidance         string    `json:"guidance"`
	Timestamp        time.Time `json:"timestamp"`
}

// EducationResponse is an explanation of a trading topic
type EducationResponse struct {
	Topic     string                `json:"topic"`
	Level     models.EducationLevel `json:"level"`
	Content   string                `json:"content"`
	Timestamp time.Time             `json:"timestamp"`
}
