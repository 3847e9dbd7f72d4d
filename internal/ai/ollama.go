package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const defaultOllamaBaseURL = "http://127.0.0.1:11434"

// ollamaProvider drives a local Ollama chat endpoint with a schema-constrained
// prompt. The payload is shortlisted because small models drift on full graphs.
type ollamaProvider struct {
	httpClient *http.Client
	chatURL    string
	model      string
	timeout    time.Duration
	apiKey     string
}

func newOllamaProvider(cfg Config) *ollamaProvider {
	baseURL := cfg.OllamaBaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "llama3.1:8b"
	}

	return &ollamaProvider{
		httpClient: &http.Client{},
		chatURL:    resolveOllamaChatURL(baseURL),
		model:      modelName,
		timeout:    cfg.Timeout,
		apiKey:     cfg.OllamaAPIKey,
	}
}

func (p *ollamaProvider) Model() string { return p.model }

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Stream   bool                `json:"stream"`
	Format   any                 `json:"format"`
	Options  ollamaChatOptions   `json:"options"`
	Messages []ollamaChatMessage `json:"messages"`
}

type ollamaChatOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatResponse struct {
	Error   string `json:"error"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

func (p *ollamaProvider) AnalyzeNode(ctx context.Context, pctx Context) (*Recommendation, error) {
	payload, err := json.Marshal(buildShortlistPayload(pctx))
	if err != nil {
		return nil, fmt.Errorf("marshal shortlist payload: %w", err)
	}

	body, err := json.Marshal(ollamaChatRequest{
		Model:   p.model,
		Stream:  false,
		Format:  recommendationSchema,
		Options: ollamaChatOptions{Temperature: 0},
		Messages: []ollamaChatMessage{
			{
				Role: "system",
				Content: strings.Join([]string{
					systemPrompt,
					"Use heuristicTopChoice only as a tie-breaker or sanity check, not as an absolute requirement.",
					"Return a JSON object that exactly matches the provided schema.",
					"Do not wrap the JSON in markdown or add extra text.",
				}, "\n"),
			},
			{Role: "user", Content: string(payload)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, p.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, classifyOllamaTransportError(ctx, callCtx, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{
			Kind:    ErrorKindConnection,
			Message: fmt.Sprintf("read ollama response: %v", err),
		}
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(rawBody, &chatResp); err != nil {
		return nil, &ProviderError{
			Kind:    ErrorKindBadResponse,
			Message: "ollama returned an invalid JSON response",
		}
	}

	if resp.StatusCode != http.StatusOK {
		message := strings.TrimSpace(chatResp.Error)
		if message == "" {
			message = fmt.Sprintf("ollama request failed with status %d", resp.StatusCode)
		}
		return nil, &ProviderError{
			Kind:    ErrorKindStatus,
			Status:  resp.StatusCode,
			Message: message,
		}
	}

	content := strings.TrimSpace(chatResp.Message.Content)
	if content == "" {
		return nil, &ProviderError{
			Kind:    ErrorKindBadResponse,
			Message: "ollama did not return a structured enrichment payload",
		}
	}

	var rec Recommendation
	if err := json.Unmarshal([]byte(stripMarkdownFences(content)), &rec); err != nil {
		return nil, &ProviderError{
			Kind:    ErrorKindBadResponse,
			Message: "ollama returned invalid JSON for node enrichment",
		}
	}
	if err := rec.Validate(); err != nil {
		return nil, &ProviderError{
			Kind:    ErrorKindBadResponse,
			Message: fmt.Sprintf("ollama recommendation failed validation: %v", err),
		}
	}
	return &rec, nil
}

func classifyOllamaTransportError(parent, call context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		if parent.Err() == nil && call.Err() != nil {
			return &ProviderError{
				Kind:    ErrorKindTimeout,
				Status:  http.StatusRequestTimeout,
				Message: "ollama request timed out",
			}
		}
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &ProviderError{
			Kind:    ErrorKindTimeout,
			Status:  http.StatusRequestTimeout,
			Message: "ollama request timed out",
		}
	}

	return &ProviderError{
		Kind:    ErrorKindConnection,
		Message: fmt.Sprintf("ollama request failed: %v", err),
	}
}

var (
	fenceOpenPattern  = regexp.MustCompile(`(?i)^` + "```" + `(?:json)?\s*`)
	fenceClosePattern = regexp.MustCompile(`\s*` + "```" + `$`)
)

// stripMarkdownFences unwraps content some models insist on fencing despite
// instructions.
func stripMarkdownFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = fenceOpenPattern.ReplaceAllString(trimmed, "")
	trimmed = fenceClosePattern.ReplaceAllString(trimmed, "")
	return strings.TrimSpace(trimmed)
}

func resolveOllamaChatURL(baseURL string) string {
	normalized := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(normalized, "/api/chat") {
		return normalized
	}
	if strings.HasSuffix(normalized, "/api") {
		return normalized + "/chat"
	}
	return normalized + "/api/chat"
}
