package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	extism "github.com/extism/go-sdk"
	"go.uber.org/zap"
)

// WasmExecutor runs transformation code through a local Extism plugin. The
// plugin module implements the actual data access; the WASM boundary is what
// provides the sandboxing.
type WasmExecutor struct {
	mu     sync.Mutex // extism plugins are not goroutine-safe
	plugin *extism.Plugin
	logger *zap.Logger
}

// NewWasmExecutor loads the transformation runner module from disk. The
// module must export "run" and "snapshot" functions speaking the same JSON
// contract as the remote sandbox service.
func NewWasmExecutor(ctx context.Context, modulePath string, logger *zap.Logger) (*WasmExecutor, error) {
	manifest := extism.Manifest{
		Wasm: []extism.Wasm{
			extism.WasmFile{Path: modulePath},
		},
	}

	plugin, err := extism.NewPlugin(ctx, manifest, extism.PluginConfig{
		EnableWasi: true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load sandbox wasm module: %w", err)
	}

	return &WasmExecutor{plugin: plugin, logger: logger}, nil
}

var _ Executor = (*WasmExecutor)(nil)

// Run executes code against the requested scope inside the plugin.
func (e *WasmExecutor) Run(ctx context.Context, req *RunRequest) (*RunResult, error) {
	if err := req.Scope.Validate(); err != nil {
		return nil, err
	}

	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run request: %w", err)
	}

	e.mu.Lock()
	exit, output, err := e.plugin.CallWithContext(ctx, "run", input)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("sandbox run failed: %w", err)
	}
	if exit != 0 {
		return nil, fmt.Errorf("sandbox run exited with code %d", exit)
	}

	var result RunResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("failed to decode sandbox output: %w", err)
	}

	e.logger.Debug("wasm sandbox run completed",
		zap.String("scope", string(req.Scope.Type)),
		zap.Int64("rows_affected", result.RowsAffected))

	return &result, nil
}

// Snapshot captures a rollback checkpoint through the plugin.
func (e *WasmExecutor) Snapshot(ctx context.Context, asset string) (string, error) {
	input, err := json.Marshal(snapshotRequest{Asset: asset})
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot request: %w", err)
	}

	e.mu.Lock()
	exit, output, err := e.plugin.CallWithContext(ctx, "snapshot", input)
	e.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("sandbox snapshot failed: %w", err)
	}
	if exit != 0 {
		return "", fmt.Errorf("sandbox snapshot exited with code %d", exit)
	}

	var resp snapshotResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return "", fmt.Errorf("failed to decode snapshot response: %w", err)
	}
	return resp.SnapshotID, nil
}

// Close releases the underlying plugin.
func (e *WasmExecutor) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.plugin.Close(ctx)
}
