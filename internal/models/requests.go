package models

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Action names a logical operation routed through the message bus
type Action string

const (
	ActionChat           Action = "getChatResponse"
	ActionAnalyzeFile    Action = "analyzeFile"
	ActionMarketData     Action = "getMarketData"
	ActionAnalyzeNews    Action = "analyzeNews"
	ActionRiskManagement Action = "riskManagement"
	ActionEducation      Action = "education"
)

// ErrUnknownAction is returned when a payload names no known request variant
var ErrUnknownAction = errors.New("unknown action")

// Request is implemented by every request variant carried over the bus
type Request interface {
	Action() Action
}

// defaulter fills optional fields before validation
type defaulter interface {
	setDefaults()
}

// checker runs validation that struct tags cannot express
type checker interface {
	check() error
}

// ChatContext is the conversational context sent with a chat request
type ChatContext struct {
	PreviousMessages []ChatMessage `json:"previousMessages,omitempty" binding:"omitempty,dive"`
	TradingContext   bool          `json:"tradingContext,omitempty"`
	Symbol           string        `json:"symbol,omitempty"`
	Timeframe        string        `json:"timeframe,omitempty"`
}

// ChatRequest asks the model for a conversational reply
type ChatRequest struct {
	Message string      `json:"message" binding:"required"`
	Context ChatContext `json:"context"`
}

func (*ChatRequest) Action() Action { return ActionChat }

// FileAnalysisRequest asks the model to interpret an uploaded file
type FileAnalysisRequest struct {
	File     string `json:"file" binding:"required"` // base64, optionally as a data URL
	Type     string `json:"type" binding:"required"`
	FileName string `json:"fileName,omitempty"`

	decoded []byte
}

func (*FileAnalysisRequest) Action() Action { return ActionAnalyzeFile }

// Bytes returns the decoded file payload
func (r *FileAnalysisRequest) Bytes() ([]byte, error) {
	if r.decoded != nil {
		return r.decoded, nil
	}
	data := r.File
	if i := strings.Index(data, ","); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+1:]
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, &ValidationError{Field: "file", Reason: "is not valid base64"}
	}
	r.decoded = decoded
	return decoded, nil
}

// IsImage reports whether the payload is an image
func (r *FileAnalysisRequest) IsImage() bool {
	return strings.Contains(r.Type, "image")
}

func (r *FileAnalysisRequest) check() error {
	if err := CheckFileType(r.Type); err != nil {
		return err
	}
	// Bound the encoded length before decoding anything.
	if n := base64.StdEncoding.DecodedLen(len(r.File)); n > MaxFileSize+base64.StdEncoding.DecodedLen(256) {
		return CheckFileSize(n)
	}
	data, err := r.Bytes()
	if err != nil {
		return err
	}
	return CheckFileSize(len(data))
}

// MarketDataRequest asks for a market snapshot of a symbol
type MarketDataRequest struct {
	Symbol    string `json:"symbol" binding:"required"`
	Timeframe string `json:"timeframe"`
}

func (*MarketDataRequest) Action() Action { return ActionMarketData }

func (r *MarketDataRequest) setDefaults() {
	if r.Timeframe == "" {
		r.Timeframe = "1h"
	}
}

// NewsAnalysisRequest asks the model for the market impact of a news item
type NewsAnalysisRequest struct {
	NewsText string   `json:"newsText" binding:"required"`
	Symbols  []string `json:"symbols,omitempty"`
}

func (*NewsAnalysisRequest) Action() Action { return ActionAnalyzeNews }

// RiskManagementRequest describes an account for risk guidance
type RiskManagementRequest struct {
	AccountSize    float64  `json:"accountSize" binding:"gt=0"`
	RiskPercentage float64  `json:"riskPercentage" binding:"min=0.1,max=10"`
	TradeType      string   `json:"tradeType" binding:"required"`
	EntryPrice     *float64 `json:"entryPrice,omitempty" binding:"omitempty,gt=0"`
	StopLoss       *float64 `json:"stopLoss,omitempty" binding:"omitempty,gt=0"`
}

func (*RiskManagementRequest) Action() Action { return ActionRiskManagement }

// EducationLevel is the depth of an education request
type EducationLevel string

const (
	LevelBeginner     EducationLevel = "beginner"
	LevelIntermediate EducationLevel = "intermediate"
	LevelAdvanced     EducationLevel = "advanced"
)

// EducationRequest asks for an explanation of a trading topic
type EducationRequest struct {
	Topic string         `json:"topic" binding:"required"`
	Level EducationLevel `json:"level" binding:"oneof=beginner intermediate advanced"`
}

func (*EducationRequest) Action() Action { return ActionEducation }

func (r *EducationRequest) setDefaults() {
	if r.Level == "" {
		r.Level = LevelIntermediate
	}
}

// NewRequest returns an empty request variant for an action
func NewRequest(action Action) (Request, error) {
	switch action {
	case ActionChat:
		return &ChatRequest{}, nil
	case ActionAnalyzeFile:
		return &FileAnalysisRequest{}, nil
	case ActionMarketData:
		return &MarketDataRequest{}, nil
	case ActionAnalyzeNews:
		return &NewsAnalysisRequest{}, nil
	case ActionRiskManagement:
		return &RiskManagementRequest{}, nil
	case ActionEducation:
		return &EducationRequest{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// DecodeRequest decodes and validates the payload of an action
func DecodeRequest(action Action, payload []byte) (Request, error) {
	req, err := NewRequest(action)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, req); err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("malformed payload: %v", err)}
		}
	}
	if err := Validate(req); err != nil {
		return nil, err
	}
	return req, nil
}
