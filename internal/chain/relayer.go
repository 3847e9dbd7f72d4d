package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultRelayerTimeout = 30 * time.Second

// RelayerConfig points at the HTTP relayer fronting the ledger.
type RelayerConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// relayerClient talks to a ledger relayer over JSON HTTP. The relayer owns
// keys and transaction submission; this client only shuttles intents and
// receipts.
type relayerClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewRelayer builds the HTTP ledger client.
func NewRelayer(cfg RelayerConfig) (Ledger, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("ledger relayer base URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRelayerTimeout
	}

	return &relayerClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
	}, nil
}

type createStreamRequest struct {
	Metadata string `json:"metadata"`
}

type createStreamResponse struct {
	StreamID string `json:"streamId"`
	TxRef    string `json:"txRef"`
}

type commitSnapshotRequest struct {
	StreamID      string `json:"streamId"`
	SnapshotIndex int    `json:"snapshotIndex"`
	SnapshotHash  string `json:"snapshotHash"`
}

type commitSnapshotResponse struct {
	TxRef string `json:"txRef"`
}

type relayerErrorResponse struct {
	Error string `json:"error"`
}

func (c *relayerClient) CreateStream(ctx context.Context, metadata string) (*StreamReceipt, error) {
	var resp createStreamResponse
	if err := c.post(ctx, OpCreateStream, "/v1/streams", createStreamRequest{Metadata: metadata}, &resp); err != nil {
		return nil, fmt.Errorf("create stream on ledger: %w", err)
	}
	if resp.StreamID == "" {
		return nil, fmt.Errorf("create stream on ledger: %w", &Error{
			Op:      OpCreateStream,
			Kind:    ErrorKindUnavailable,
			Message: "relayer returned no stream id",
		})
	}
	return &StreamReceipt{StreamID: resp.StreamID, TxRef: resp.TxRef}, nil
}

func (c *relayerClient) CommitSnapshot(ctx context.Context, streamID string, snapshotIndex int, snapshotHash string) (*CommitReceipt, error) {
	req := commitSnapshotRequest{
		StreamID:      streamID,
		SnapshotIndex: snapshotIndex,
		SnapshotHash:  snapshotHash,
	}
	var resp commitSnapshotResponse
	if err := c.post(ctx, OpCommitSnapshot, "/v1/snapshots", req, &resp); err != nil {
		return nil, fmt.Errorf("commit snapshot on ledger: %w", err)
	}
	if resp.TxRef == "" {
		return nil, fmt.Errorf("commit snapshot on ledger: %w", &Error{
			Op:      OpCommitSnapshot,
			Kind:    ErrorKindUnavailable,
			Message: "relayer returned no tx ref",
		})
	}
	return &CommitReceipt{TxRef: resp.TxRef}, nil
}

func (c *relayerClient) post(ctx context.Context, op Op, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Kind: ErrorKindUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, Kind: ErrorKindUnavailable, Message: "read response: " + err.Error()}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		kind := ErrorKindRejected
		if resp.StatusCode >= http.StatusInternalServerError {
			kind = ErrorKindUnavailable
		}
		ledgerErr := &Error{Op: op, Kind: kind, Status: resp.StatusCode}
		var relayerErr relayerErrorResponse
		if json.Unmarshal(raw, &relayerErr) == nil && relayerErr.Error != "" {
			ledgerErr.Message = relayerErr.Error
		}
		return ledgerErr
	}

	if err := json.Unmarshal(raw, result); err != nil {
		return &Error{Op: op, Kind: ErrorKindUnavailable, Message: "decode response: " + err.Error()}
	}
	return nil
}
