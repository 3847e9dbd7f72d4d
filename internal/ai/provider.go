package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"mindgraph.app/grove/internal/graph"
	"mindgraph.app/grove/internal/model"
)

// Provider names accepted by New.
const (
	ProviderLocal  = "local"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// TargetNode is the node being classified and placed.
type TargetNode struct {
	NodeID    int       `json:"nodeId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// GraphNode is the slice of a node the provider is allowed to see.
type GraphNode struct {
	NodeID         int                   `json:"nodeId"`
	ParentID       *int                  `json:"parentId"`
	BranchType     model.BranchType      `json:"branchType"`
	Text           string                `json:"text"`
	Classification *model.Classification `json:"classification"`
}

// Context carries everything a provider needs to place one node: the target,
// the full visible graph, and the precomputed valid parent candidates.
type Context struct {
	StreamID   string                  `json:"streamId"`
	TargetNode TargetNode              `json:"targetNode"`
	Graph      []GraphNode             `json:"currentGraph"`
	Candidates []graph.ParentCandidate `json:"validParentCandidates"`
}

// Recommendation is a provider's placement proposal. ParentNodeID is nil only
// for the root; BranchKind is coarse and resolved to a concrete slot by the
// caller.
type Recommendation struct {
	ParentNodeID   *int                 `json:"parentNodeId"`
	BranchKind     model.BranchKind     `json:"branchKind"`
	Classification model.Classification `json:"classification"`
	Confidence     float64              `json:"confidence"`
	Rationale      string               `json:"rationale"`
}

// Validate rejects recommendations that fall outside the wire contract.
func (r *Recommendation) Validate() error {
	if r.ParentNodeID != nil && *r.ParentNodeID < 1 {
		return fmt.Errorf("parentNodeId must be positive, got %d", *r.ParentNodeID)
	}
	switch r.BranchKind {
	case model.BranchKindMain, model.BranchKindSide:
	default:
		return fmt.Errorf("invalid branchKind %q", r.BranchKind)
	}
	switch r.Classification {
	case model.ClassificationClaim, model.ClassificationSupport,
		model.ClassificationCounter, model.ClassificationQuestion:
	default:
		return fmt.Errorf("invalid classification %q", r.Classification)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range", r.Confidence)
	}
	r.Rationale = strings.TrimSpace(r.Rationale)
	if r.Rationale == "" || utf8.RuneCountInString(r.Rationale) > 240 {
		return errors.New("rationale must be 1-240 characters")
	}
	return nil
}

// Provider is the single classification capability the core consumes. All
// variants — local heuristic mirror and network-backed — satisfy this one
// contract and are interchangeable.
type Provider interface {
	AnalyzeNode(ctx context.Context, pctx Context) (*Recommendation, error)
	Model() string
}

// ErrorKind partitions provider failures for retry decisions.
type ErrorKind int

const (
	// ErrorKindTimeout is a provider call aborted by the per-call timeout.
	ErrorKindTimeout ErrorKind = iota
	// ErrorKindConnection is a transport-level failure before any response.
	ErrorKindConnection
	// ErrorKindStatus is an upstream HTTP status failure.
	ErrorKindStatus
	// ErrorKindBadResponse is a malformed or schema-invalid response.
	ErrorKindBadResponse
)

// ProviderError is the failure surface of every provider variant.
type ProviderError struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Kind == ErrorKindStatus {
		return fmt.Sprintf("provider status %d: %s", e.Status, e.Message)
	}
	return e.Message
}

// Retryable reports whether the failure is worth another attempt. Timeouts
// and connection errors are; upstream statuses 408/409/425/429 and 5xx are;
// malformed responses and all other statuses are terminal.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ErrorKindTimeout, ErrorKindConnection:
		return true
	case ErrorKindStatus:
		s := e.Status
		return s == 408 || s == 409 || s == 425 || s == 429 || s >= 500
	default:
		return false
	}
}

// IsRetryable classifies any error returned by a Provider.
func IsRetryable(err error) bool {
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr.Retryable()
	}
	return false
}

// Config selects and parameterizes a provider variant.
type Config struct {
	Provider string
	Model    string
	Timeout  time.Duration

	OpenAIAPIKey  string
	OpenAIBaseURL string

	OllamaBaseURL string
	OllamaAPIKey  string
}

// New builds the configured provider variant. An openai selection without an
// API key yields a disabled provider whose calls fail terminally, so the
// service still boots and surfaces the misconfiguration per node.
func New(cfg Config) Provider {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return &disabledProvider{message: "OPENAI_API_KEY is not configured"}
		}
		return newOpenAIProvider(cfg)
	case ProviderOllama:
		return newOllamaProvider(cfg)
	default:
		return newLocalProvider(cfg.Model)
	}
}

type disabledProvider struct {
	message string
}

func (p *disabledProvider) Model() string { return "disabled" }

func (p *disabledProvider) AnalyzeNode(context.Context, Context) (*Recommendation, error) {
	return nil, &ProviderError{Kind: ErrorKindBadResponse, Message: p.message}
}
