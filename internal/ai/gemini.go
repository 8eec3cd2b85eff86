package ai

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/genai"
)

// GeminiModel calls the Gemini API
type GeminiModel struct {
	client *genai.Client
}

// NewGeminiModel creates a Gemini client for apiKey
func NewGeminiModel(ctx context.Context, apiKey string) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiModel{client: client}, nil
}

func (m *GeminiModel) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	parts := make([]*genai.Part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.Data != nil {
			parts = append(parts, genai.NewPartFromBytes(p.Data, p.MIMEType))
		} else {
			parts = append(parts, genai.NewPartFromText(p.Text))
		}
	}
	if len(parts) == 0 {
		return nil, ErrEmptyPrompt
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := &genai.GenerateContentConfig{
		Temperature:     req.Temperature,
		MaxOutputTokens: req.MaxOutputTokens,
	}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	resp, err := m.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &GenerateResponse{}, nil
	}
	return &GenerateResponse{Text: resp.Text()}, nil
}

// KeyResolver returns the API key to use for a request
type KeyResolver func(ctx context.Context) string

// ModelFactory builds a model bound to one API key
type ModelFactory func(ctx context.Context, apiKey string) (Model, error)

// KeyedModel picks a client per API key, so an installation that stores
// its own key in settings is served with that key.
type KeyedModel struct {
	resolve KeyResolver
	factory ModelFactory

	mu     sync.Mutex
	models map[string]Model
}

// NewKeyedModel creates a Gemini-backed model that resolves its key on every call
func NewKeyedModel(resolve KeyResolver) *KeyedModel {
	return NewKeyedModelWithFactory(resolve, func(ctx context.Context, apiKey string) (Model, error) {
		return NewGeminiModel(ctx, apiKey)
	})
}

// NewKeyedModelWithFactory is NewKeyedModel with a custom client constructor
func NewKeyedModelWithFactory(resolve KeyResolver, factory ModelFactory) *KeyedModel {
	return &KeyedModel{
		resolve: resolve,
		factory: factory,
		models:  make(map[string]Model),
	}
}

func (m *KeyedModel) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model, err := m.model(ctx)
	if err != nil {
		return nil, err
	}
	return model.Generate(ctx, req)
}

func (m *KeyedModel) model(ctx context.Context) (Model, error) {
	key := m.resolve(ctx)
	if key == "" {
		return nil, ErrMissingAPIKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if model, ok := m.models[key]; ok {
		return model, nil
	}
	model, err := m.factory(ctx, key)
	if err != nil {
		return nil, err
	}
	m.models[key] = model
	return model, nil
}
