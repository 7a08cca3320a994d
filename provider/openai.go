package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for hosted OpenAI-shaped chat APIs
type OpenAIProvider struct {
	client              *openai.Client
	model               string
	embeddingModel      string
	maxTokens           int
	temperature         float64
	embedTimeout        time.Duration
	availabilityTimeout time.Duration
	logger              zerolog.Logger
}

// OpenAIConfig contains OpenAI provider configuration
type OpenAIConfig struct {
	APIKey         string
	Organization   string
	BaseURL        string
	Model          string
	EmbeddingModel string
	MaxTokens      int
	Temperature    float64
	Timeout        time.Duration
	EmbedTimeout        time.Duration
	AvailabilityTimeout time.Duration
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(cfg OpenAIConfig, logger zerolog.Logger) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	availabilityTimeout := cfg.AvailabilityTimeout
	if availabilityTimeout == 0 {
		availabilityTimeout = 5 * time.Second
	}

	embedTimeout := cfg.EmbedTimeout
	if embedTimeout == 0 {
		embedTimeout = timeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if cfg.Organization != "" {
		clientCfg.OrgID = cfg.Organization
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIProvider{
		client:              openai.NewClientWithConfig(clientCfg),
		model:               cfg.Model,
		embeddingModel:      cfg.EmbeddingModel,
		maxTokens:           cfg.MaxTokens,
		temperature:         cfg.Temperature,
		embedTimeout:        embedTimeout,
		availabilityTimeout: availabilityTimeout,
		logger:              logger.With().Str("provider", "openai").Logger(),
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks if OpenAI is available
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.availabilityTimeout)
	defer cancel()

	if _, err := p.client.ListModels(ctx); err != nil {
		p.logger.Debug().Err(err).Msg("OpenAI availability check failed")
		return false
	}
	return true
}

func (p *OpenAIProvider) buildMessages(req *CompletionRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return messages
}

func (p *OpenAIProvider) buildChatRequest(req *CompletionRequest, stream bool) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.temperature
	}

	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    p.buildMessages(req),
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
		TopP:        float32(req.TopP),
		Stop:        req.StopSequences,
		Stream:      stream,
	}
}

// Complete generates a completion
func (p *OpenAIProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	resp, err := p.client.CreateChatCompletion(ctx, p.buildChatRequest(req, false))
	if err != nil {
		return nil, p.translateError(err)
	}

	content := ""
	finishReason := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		finishReason = string(resp.Choices[0].FinishReason)
	}

	return &CompletionResponse{
		Content:      content,
		Model:        resp.Model,
		FinishReason: finishReason,
		Provider:     p.Name(),
		LatencyMs:    time.Since(start).Milliseconds(),
		Usage: TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// CompleteStream generates a streaming completion
func (p *OpenAIProvider) CompleteStream(ctx context.Context, req *CompletionRequest) (CompletionStream, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildChatRequest(req, true))
	if err != nil {
		return nil, p.translateError(err)
	}

	return &openAIStream{stream: stream, provider: p.Name()}, nil
}

// openAIStream implements CompletionStream for OpenAI
type openAIStream struct {
	stream   *openai.ChatCompletionStream
	provider string
	usage    *TokenUsage
}

func (s *openAIStream) Recv() (*CompletionChunk, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &CompletionChunk{IsFinal: true, Usage: s.usage}, io.EOF
		}
		return nil, err
	}

	content := ""
	finishReason := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Delta.Content
		finishReason = string(resp.Choices[0].FinishReason)
	}

	if resp.Usage != nil {
		s.usage = &TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	return &CompletionChunk{
		Content:      content,
		IsFinal:      finishReason != "",
		FinishReason: finishReason,
		Usage:        s.usage,
	}, nil
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}

// GenerateEmbedding generates embeddings for text
func (p *OpenAIProvider) GenerateEmbedding(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	batchReq := &EmbeddingBatchRequest{
		Texts:    []string{req.Text},
		Model:    req.Model,
		Metadata: req.Metadata,
	}

	batchResp, err := p.GenerateEmbeddingBatch(ctx, batchReq)
	if err != nil {
		return nil, err
	}

	if len(batchResp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return &EmbeddingResponse{
		Embedding: batchResp.Embeddings[0],
		Model:     batchResp.Model,
		Usage:     batchResp.Usage,
		Provider:  batchResp.Provider,
		LatencyMs: batchResp.LatencyMs,
	}, nil
}

// GenerateEmbeddingBatch generates embeddings for multiple texts
func (p *OpenAIProvider) GenerateEmbeddingBatch(ctx context.Context, req *EmbeddingBatchRequest) (*EmbeddingBatchResponse, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.embedTimeout)
	defer cancel()

	model := req.Model
	if model == "" {
		model = p.embeddingModel
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: req.Texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, p.translateError(err)
	}

	embeddings := make([][]float64, len(req.Texts))
	for _, d := range resp.Data {
		if d.Index < len(embeddings) {
			vec := make([]float64, len(d.Embedding))
			for i, f := range d.Embedding {
				vec[i] = float64(f)
			}
			embeddings[d.Index] = vec
		}
	}

	return &EmbeddingBatchResponse{
		Embeddings: embeddings,
		Model:      string(resp.Model),
		Provider:   p.Name(),
		LatencyMs:  time.Since(start).Milliseconds(),
		Usage: TokenUsage{
			PromptTokens: resp.Usage.PromptTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

// translateError converts go-openai errors to ProviderError
func (p *OpenAIProvider) translateError(err error) *ProviderError {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:  p.Name(),
			Code:      ErrCodeTimeout,
			Message:   err.Error(),
			Retryable: true,
		}
	}

	code := ErrCodeServerError
	retryable := false

	switch apiErr.HTTPStatusCode {
	case http.StatusTooManyRequests:
		code = ErrCodeRateLimited
		retryable = true
	case http.StatusUnauthorized:
		code = ErrCodeAuthentication
	case http.StatusBadRequest:
		code = ErrCodeInvalidRequest
		if apiErr.Code != nil {
			if codeStr, ok := apiErr.Code.(string); ok && strings.Contains(codeStr, "context_length") {
				code = ErrCodeContextLength
			}
		}
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		code = ErrCodeUnavailable
		retryable = true
	case http.StatusInternalServerError:
		code = ErrCodeServerError
		retryable = true
	}

	message := apiErr.Message
	if message == "" {
		message = fmt.Sprintf("HTTP %d", apiErr.HTTPStatusCode)
	}

	return &ProviderError{
		Provider:   p.Name(),
		StatusCode: apiErr.HTTPStatusCode,
		Code:       code,
		Message:    message,
		Retryable:  retryable,
	}
}
