package ai

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/Cyvadra/marketminds/internal/models"
)

// Fallback texts used when the model returns no usable content
const (
	FallbackChat      = "I apologize, but I couldn't generate a response. Please try again."
	FallbackFile      = "Unable to analyze the file."
	FallbackNews      = "Unable to analyze the news."
	FallbackRisk      = "Risk management calculation completed."
	fallbackMarket    = "Analysis for %s (%s) is currently unavailable."
	fallbackEducation = "Educational content for %s is currently being prepared."

	// MarketDataNote accompanies every market snapshot until a data provider is wired
	MarketDataNote = "Market data integration requires additional API setup. Please configure your preferred data provider."

	defaultFileName = "uploaded_file"
)

// Config tunes generation calls
type Config struct {
	Model           string        `yaml:"model"`
	FastModel       string        `yaml:"fast_model"`
	Temperature     float32       `yaml:"temperature"`
	MaxOutputTokens int32         `yaml:"max_output_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the generation settings used for unset fields
func DefaultConfig() Config {
	return Config{
		Model:           "gemini-2.5-pro",
		FastModel:       "gemini-2.5-flash",
		Temperature:     0.7,
		MaxOutputTokens: 1000,
		Timeout:         60 * time.Second,
	}
}

// Orchestrator builds prompts, issues exactly one model call per request
// and turns the outcome into a result or a readable error
type Orchestrator struct {
	model  Model
	config Config
	now    func() time.Time
	logger *log.Logger
}

// NewOrchestrator creates an orchestrator over model
func NewOrchestrator(model Model, config Config) *Orchestrator {
	defaults := DefaultConfig()
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.FastModel == "" {
		config.FastModel = defaults.FastModel
	}
	if config.Temperature == 0 {
		config.Temperature = defaults.Temperature
	}
	if config.MaxOutputTokens == 0 {
		config.MaxOutputTokens = defaults.MaxOutputTokens
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	return &Orchestrator{
		model:  model,
		config: config,
		now:    time.Now,
		logger: log.New(log.Writer(), "[AI] ", log.LstdFlags),
	}
}

// SetLogger sets the logger for the orchestrator
func (o *Orchestrator) SetLogger(logger *log.Logger) {
	o.logger = logger
}

// SetClock replaces the timestamp source
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Chat answers a conversational message
func (o *Orchestrator) Chat(ctx context.Context, req *models.ChatRequest) (*ChatResponse, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, &models.ValidationError{Field: "message", Reason: "is blank", Err: ErrEmptyPrompt}
	}

	temperature := o.config.Temperature
	text, err := o.generate(ctx, "Chat request", GenerateRequest{
		Model:             o.config.Model,
		SystemInstruction: ChatInstruction(req.Context),
		Temperature:       &temperature,
		MaxOutputTokens:   o.config.MaxOutputTokens,
		Parts:             []Part{TextPart(req.Message)},
	})
	if err != nil {
		return nil, err
	}
	return &ChatResponse{
		Text:      orFallback(text, FallbackChat),
		Timestamp: o.now(),
	}, nil
}

// AnalyzeFile interprets an uploaded chart, document or media file
func (o *Orchestrator) AnalyzeFile(ctx context.Context, req *models.FileAnalysisRequest) (*FileAnalysisResponse, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}
	data, err := req.Bytes()
	if err != nil {
		return nil, err
	}

	text, err := o.generate(ctx, "File analysis", GenerateRequest{
		Model: o.config.Model,
		Parts: []Part{
			BlobPart(data, req.Type),
			TextPart(FileInstruction(req.Type)),
		},
	})
	if err != nil {
		return nil, err
	}

	name := req.FileName
	if name == "" {
		name = defaultFileName
	}
	return &FileAnalysisResponse{
		Analysis:  orFallback(text, FallbackFile),
		FileName:  name,
		FileType:  req.Type,
		Timestamp: o.now(),
	}, nil
}

// MarketData returns a brief model-written snapshot of a symbol
func (o *Orchestrator) MarketData(ctx context.Context, req *models.MarketDataRequest) (*MarketDataResponse, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}

	text, err := o.generate(ctx, "Market data request", GenerateRequest{
		Model: o.config.FastModel,
		Parts: []Part{TextPart(MarketPrompt(req.Symbol, req.Timeframe))},
	})
	if err != nil {
		return nil, err
	}
	return &MarketDataResponse{
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Analysis:  orFallback(text, fmt.Sprintf(fallbackMarket, req.Symbol, req.Timeframe)),
		Timestamp: o.now(),
		Note:      MarketDataNote,
	}, nil
}

// AnalyzeNews explains the market impact of a news item
func (o *Orchestrator) AnalyzeNews(ctx context.Context, req *models.NewsAnalysisRequest) (*NewsAnalysisResponse, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}

	text, err := o.generate(ctx, "News analysis", GenerateRequest{
		Model: o.config.Model,
		Parts: []Part{TextPart(NewsPrompt(req.NewsText, req.Symbols))},
	})
	if err != nil {
		return nil, err
	}

	symbols := req.Symbols
	if symbols == nil {
		symbols = []string{}
	}
	return &NewsAnalysisResponse{
		Analysis:  orFallback(text, FallbackNews),
		Symbols:   symbols,
		Timestamp: o.now(),
	}, nil
}

// RiskManagement computes position sizing locally and asks the model for guidance
func (o *Orchestrator) RiskManagement(ctx context.Context, req *models.RiskManagementRequest) (*RiskManagementResponse, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}

	plan := ComputeRiskPlan(req)
	text, err := o.generate(ctx, "Risk management", GenerateRequest{
		Model: o.config.Model,
		Parts: []Part{TextPart(RiskPrompt(req, plan))},
	})
	if err != nil {
		return nil, err
	}
	return &RiskManagementResponse{
		AccountSize:      req.AccountSize,
		RiskPercentage:   req.RiskPercentage,
		MaxRiskAmount:    plan.MaxRiskAmount,
		PositionSize:     plan.PositionSize,
		StopLossDistance: plan.StopLossDistance,
		Guidance:         orFallback(text, FallbackRisk),
		Timestamp:        o.now(),
	}, nil
}

// Education explains a trading topic
func (o *Orchestrator) Education(ctx context.Context, req *models.EducationRequest) (*EducationResponse, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}

	text, err := o.generate(ctx, "Education request", GenerateRequest{
		Model: o.config.Model,
		Parts: []Part{TextPart(EducationPrompt(req.Topic, req.Level))},
	})
	if err != nil {
		return nil, err
	}
	return &EducationResponse{
		Topic:     req.Topic,
		Level:     req.Level,
		Content:   orFallback(text, fmt.Sprintf(fallbackEducation, req.Topic)),
		Timestamp: o.now(),
	}, nil
}

// RiskPlan is the locally computed part of a risk management answer
type RiskPlan struct {
	MaxRiskAmount    float64
	PositionSize     *float64
	StopLossDistance *float64
}

// ComputeRiskPlan derives the dollar risk and, when both prices are known,
// the stop distance and position size
func ComputeRiskPlan(req *models.RiskManagementRequest) RiskPlan {
	plan := RiskPlan{MaxRiskAmount: req.AccountSize * req.RiskPercentage / 100}
	if req.EntryPrice == nil || req.StopLoss == nil {
		return plan
	}
	distance := math.Abs(*req.EntryPrice - *req.StopLoss)
	if distance == 0 {
		return plan
	}
	size := plan.MaxRiskAmount / distance
	plan.StopLossDistance = &distance
	plan.PositionSize = &size
	return plan
}

func (o *Orchestrator) generate(ctx context.Context, op string, req GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := o.model.Generate(ctx, req)
	if err != nil {
		o.logger.Printf("%s failed after %v: %v", op, time.Since(start), err)
		return "", &UpstreamError{Op: op, Err: err}
	}
	if resp == nil {
		return "", nil
	}
	return resp.Text, nil
}

func orFallback(text, fallback string) string {
	if strings.TrimSpace(text) == "" {
		return fallback
	}
	return text
}
