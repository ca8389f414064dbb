package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPExecutor talks to a remote sandbox service over its JSON API.
type HTTPExecutor struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

// HTTPConfig holds remote sandbox configuration.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// NewHTTPExecutor creates a client for a remote sandbox service.
func NewHTTPExecutor(cfg *HTTPConfig, logger *zap.Logger) (*HTTPExecutor, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("sandbox endpoint is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Minute
	}

	return &HTTPExecutor{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}, nil
}

var _ Executor = (*HTTPExecutor)(nil)

// Run executes code against the requested scope via POST /v1/execute.
func (e *HTTPExecutor) Run(ctx context.Context, req *RunRequest) (*RunResult, error) {
	if err := req.Scope.Validate(); err != nil {
		return nil, err
	}

	var result RunResult
	if err := e.post(ctx, "/v1/execute", req, &result); err != nil {
		return nil, fmt.Errorf("sandbox run failed: %w", err)
	}

	e.logger.Debug("sandbox run completed",
		zap.String("scope", string(req.Scope.Type)),
		zap.Int64("rows_affected", result.RowsAffected),
		zap.Int64("rows_failed", result.RowsFailed))

	return &result, nil
}

type snapshotRequest struct {
	Asset string `json:"asset"`
}

type snapshotResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

// Snapshot captures a rollback checkpoint via POST /v1/snapshot.
func (e *HTTPExecutor) Snapshot(ctx context.Context, asset string) (string, error) {
	var resp snapshotResponse
	if err := e.post(ctx, "/v1/snapshot", &snapshotRequest{Asset: asset}, &resp); err != nil {
		return "", fmt.Errorf("sandbox snapshot failed: %w", err)
	}
	return resp.SnapshotID, nil
}

// Close implements Executor. The HTTP client holds no resources worth freeing.
func (e *HTTPExecutor) Close(_ context.Context) error {
	e.client.CloseIdleConnections()
	return nil
}

func (e *HTTPExecutor) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sandbox returned %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncateBody(b []byte) string {
	const maxLen = 500
	if len(b) <= maxLen {
		return string(b)
	}
	return string(b[:maxLen]) + "..."
}
