// Package aiclient talks to the recipe AI microservice: URL extraction,
// time and difficulty analysis, tag suggestions, and chat.
package aiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/kiranshivaraju/recipebox/internal/metrics"
	"github.com/kiranshivaraju/recipebox/pkg/models"
	"github.com/sony/gobreaker/v2"
)

// Sentinel errors for AI service failures.
var (
	ErrServiceUnavailable = errors.New("ai service unavailable")
	ErrTimeout            = errors.New("ai service timeout")
	ErrUpstreamStatus     = errors.New("ai service error status")
	ErrInvalidResponse    = errors.New("ai service invalid response")
)

// maxResponseBytes caps how much of an AI response is read into memory.
const maxResponseBytes = 4 << 20

// UpstreamError is a non-2xx answer from the AI service. Body holds the raw
// response so HTTP handlers can relay it unchanged.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	var detail struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(e.Body, &detail) == nil {
		if s, ok := detail.Detail.(string); ok && s != "" {
			return fmt.Sprintf("ai service returned status %d: %s", e.StatusCode, s)
		}
		if detail.Error != "" {
			return fmt.Sprintf("ai service returned status %d: %s", e.StatusCode, detail.Error)
		}
	}
	return fmt.Sprintf("ai service returned status %d", e.StatusCode)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstreamStatus }

// Client is the interface to the AI service.
type Client interface {
	ImportRecipe(ctx context.Context, url string) (*models.ImportedRecipe, error)
	AnalyzeRecipe(ctx context.Context, req models.AnalysisRequest) (*models.RecipeAnalysis, error)
	AutoCategory(ctx context.Context, req models.CategoryRequest) ([]string, error)
	Chat(ctx context.Context, question string) (*ChatResponse, error)
	Health(ctx context.Context) error
}

type ChatResponse struct {
	Answer  string            `json:"answer"`
	Recipes []json.RawMessage `json:"recipes"`
}

// HTTPClient implements Client over the AI service's JSON HTTP API.
// Every call goes through one circuit breaker; 4xx answers do not count as
// failures because they describe the request, not the service.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[[]byte]
}

// NewHTTPClient creates a client for the service at baseURL. timeout bounds a
// single request; zero means no client-side limit.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	const cbName = "ai-service"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var upErr *UpstreamError
			if errors.As(err, &upErr) {
				return upErr.StatusCode < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		cb:      cb,
	}
}

func (c *HTTPClient) ImportRecipe(ctx context.Context, url string) (*models.ImportedRecipe, error) {
	body, err := c.post(ctx, "/import-recipe", map[string]string{"url": url})
	if err != nil {
		return nil, err
	}

	var recipe models.ImportedRecipe
	if err := json.Unmarshal(body, &recipe); err != nil {
		return nil, fmt.Errorf("%w: decoding import response: %v", ErrInvalidResponse, err)
	}
	if recipe.Title == "" {
		return nil, fmt.Errorf("%w: extracted recipe has no title", ErrInvalidResponse)
	}
	return &recipe, nil
}

func (c *HTTPClient) AnalyzeRecipe(ctx context.Context, req models.AnalysisRequest) (*models.RecipeAnalysis, error) {
	body, err := c.post(ctx, "/analyze-recipe", req)
	if err != nil {
		return nil, err
	}

	var analysis models.RecipeAnalysis
	if err := json.Unmarshal(body, &analysis); err != nil {
		return nil, fmt.Errorf("%w: decoding analysis response: %v", ErrInvalidResponse, err)
	}
	if analysis.EstimatedTime == nil || *analysis.EstimatedTime == "" ||
		analysis.Difficulty == nil || *analysis.Difficulty == "" {
		return nil, fmt.Errorf("%w: analysis is missing estimatedTime or difficulty", ErrInvalidResponse)
	}
	return &analysis, nil
}

func (c *HTTPClient) AutoCategory(ctx context.Context, req models.CategoryRequest) ([]string, error) {
	body, err := c.post(ctx, "/auto-category", req)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding category response: %v", ErrInvalidResponse, err)
	}
	if resp.Categories == nil {
		return []string{}, nil
	}
	return resp.Categories, nil
}

func (c *HTTPClient) Chat(ctx context.Context, question string) (*ChatResponse, error) {
	body, err := c.post(ctx, "/chat", map[string]string{"question": question})
	if err != nil {
		return nil, err
	}

	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decoding chat response: %v", ErrInvalidResponse, err)
	}
	return &resp, nil
}

// Health checks the service's /health endpoint. It bypasses the breaker so a
// health check never keeps the circuit open.
func (c *HTTPClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrServiceUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	start := time.Now()
	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.do(ctx, path, reqBody)
	})
	metrics.AIRequestDuration.WithLabelValues(path, outcome(err)).Observe(time.Since(start).Seconds())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit open", ErrServiceUnavailable)
	}
	return body, err
}

func (c *HTTPClient) do(ctx context.Context, path string, reqBody []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: body}
	}
	return body, nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
}

func outcome(err error) string {
	var upErr *UpstreamError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &upErr):
		return fmt.Sprintf("status_%d", upErr.StatusCode)
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "rejected"
	default:
		return "error"
	}
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
