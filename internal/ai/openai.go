package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const systemPrompt = `You place discussion nodes into a constrained debate tree.
Follow these rules exactly:
- Root node must use parentNodeId=null and branchKind=main.
- Non-root nodes must choose a parentNodeId from validParentCandidates only.
- branchKind=main means the node continues the primary line under that parent.
- branchKind=side means the node should be attached as a side branch under that parent.
- Classifications must be one of claim, support, counter, question.
- Return only valid structured output.
- Keep rationale short and concrete.`

// recommendationWire mirrors Recommendation with schema annotations for
// structured output.
type recommendationWire struct {
	ParentNodeID   *int    `json:"parentNodeId" jsonschema:"anyof_type=integer;null"`
	BranchKind     string  `json:"branchKind" jsonschema:"enum=main,enum=side"`
	Classification string  `json:"classification" jsonschema:"enum=claim,enum=support,enum=counter,enum=question"`
	Confidence     float64 `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	Rationale      string  `json:"rationale" jsonschema:"minLength=1,maxLength=240"`
}

func generateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var recommendationSchema = generateSchema[recommendationWire]()

// openaiProvider asks an OpenAI chat model for a placement using strict
// structured output.
type openaiProvider struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

func newOpenAIProvider(cfg Config) *openaiProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.OpenAIAPIKey)}
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	return &openaiProvider{
		client:  openai.NewClient(opts...),
		model:   modelName,
		timeout: cfg.Timeout,
	}
}

func (p *openaiProvider) Model() string { return p.model }

func (p *openaiProvider) AnalyzeNode(ctx context.Context, pctx Context) (*Recommendation, error) {
	userPrompt, err := json.Marshal(pctx)
	if err != nil {
		return nil, fmt.Errorf("marshal provider context: %w", err)
	}

	callCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(string(userPrompt)),
		},
		MaxTokens:   openai.Int(1000),
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "node_enrichment",
					Description: openai.String("Placement recommendation for a discussion node"),
					Schema:      recommendationSchema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}

	resp, err := p.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		return nil, classifyOpenAIError(ctx, callCtx, err)
	}

	if len(resp.Choices) == 0 {
		return nil, &ProviderError{
			Kind:    ErrorKindBadResponse,
			Message: "openai returned no choices for node enrichment",
		}
	}

	var rec Recommendation
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &rec); err != nil {
		return nil, &ProviderError{
			Kind:    ErrorKindBadResponse,
			Message: fmt.Sprintf("openai returned invalid JSON for node enrichment: %v", err),
		}
	}
	if err := rec.Validate(); err != nil {
		return nil, &ProviderError{
			Kind:    ErrorKindBadResponse,
			Message: fmt.Sprintf("openai recommendation failed validation: %v", err),
		}
	}
	return &rec, nil
}

// classifyOpenAIError folds openai-go failures into the provider error
// taxonomy. A deadline hit on the per-call context is a timeout; the parent
// context expiring is surfaced as-is so callers see their own cancellation.
func classifyOpenAIError(parent, call context.Context, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Kind:    ErrorKindStatus,
			Status:  apiErr.StatusCode,
			Message: apiErr.Message,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		if parent.Err() == nil && call.Err() != nil {
			return &ProviderError{
				Kind:    ErrorKindTimeout,
				Message: "openai request timed out",
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
			Message: "openai request timed out",
		}
	}

	return &ProviderError{
		Kind:    ErrorKindConnection,
		Message: fmt.Sprintf("openai request failed: %v", err),
	}
}
