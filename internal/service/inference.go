package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/novachat/novachat/internal/config"
	"github.com/novachat/novachat/internal/domain"
)

// InferenceService is the stateless gateway to an OpenAI-compatible chat
// completions endpoint (LM Studio and friends). It never retries; retry
// policy belongs to the caller.
type InferenceService struct {
	endpoint    string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

func NewInferenceService(cfg *config.Config) *InferenceService {
	return &InferenceService{
		endpoint:    cfg.BackendURL(),
		model:       cfg.BackendModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.BackendTimeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends the ordered conversation context and returns the assistant's
// reply. It blocks the calling turn until a response or the configured
// timeout.
func (s *InferenceService) Complete(ctx context.Context, history []domain.Message) (domain.Message, error) {
	msgs := make([]chatMessage, len(history))
	for i, m := range history {
		msgs[i] = chatMessage{Role: m.Role, Content: m.Content}
	}

	payload, err := json.Marshal(chatRequest{
		Model:       s.model,
		Messages:    msgs,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.Message{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.Message{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Message{}, classifyTransportError(err)
	}

	var chatResp chatResponse
	if resp.StatusCode != http.StatusOK {
		message := http.StatusText(resp.StatusCode)
		if json.Unmarshal(body, &chatResp) == nil && chatResp.Error != nil && chatResp.Error.Message != "" {
			message = chatResp.Error.Message
		}
		return domain.Message{}, &domain.BackendError{Status: resp.StatusCode, Message: message}
	}

	if err := json.Unmarshal(body, &chatResp); err != nil {
		return domain.Message{}, &domain.BackendError{Status: resp.StatusCode, Message: "malformed completion response"}
	}
	if len(chatResp.Choices) == 0 {
		return domain.Message{}, &domain.BackendError{Status: resp.StatusCode, Message: "completion response had no choices"}
	}

	return domain.Message{
		Role:    domain.RoleAssistant,
		Content: chatResp.Choices[0].Message.Content,
	}, nil
}

// Ping probes the backend once so startup can warn the operator when the
// assistant is offline. Any HTTP answer counts as reachable.
func (s *InferenceService) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, config.PingTimeout)
	defer cancel()

	payload, _ := json.Marshal(chatRequest{Model: s.model, Messages: []chatMessage{{Role: "system", Content: "ping"}}, MaxTokens: 1})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	resp.Body.Close()
	return nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrBackendTimeout, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return fmt.Errorf("%w: %w", domain.ErrBackendTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrBackendUnreachable, err)
}
