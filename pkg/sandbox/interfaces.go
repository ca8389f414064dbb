// Package sandbox provides clients for the sandboxed transformation executor.
package sandbox

import (
	"context"
	"fmt"
)

// ScopeType discriminates the two execution scopes.
type ScopeType string

const (
	ScopeTypeSample ScopeType = "sample"
	ScopeTypeFull   ScopeType = "full"
)

// Scope is a tagged union: sample runs carry a bounded size, full runs do not.
type Scope struct {
	Type       ScopeType `json:"type"`
	SampleSize int       `json:"sample_size,omitempty"`
}

// SampleScope returns a bounded sample scope.
func SampleScope(size int) Scope {
	return Scope{Type: ScopeTypeSample, SampleSize: size}
}

// FullScope returns the full-dataset scope.
func FullScope() Scope {
	return Scope{Type: ScopeTypeFull}
}

// Validate checks scope consistency.
func (s Scope) Validate() error {
	switch s.Type {
	case ScopeTypeSample:
		if s.SampleSize < 1 {
			return fmt.Errorf("sample scope requires a positive size, got %d", s.SampleSize)
		}
	case ScopeTypeFull:
		if s.SampleSize != 0 {
			return fmt.Errorf("full scope must not carry a sample size")
		}
	default:
		return fmt.Errorf("unknown scope type %q", s.Type)
	}
	return nil
}

// RunRequest asks the executor to run transformation code against an asset.
type RunRequest struct {
	Code        string `json:"code"`
	TargetAsset string `json:"target_asset"`
	Scope       Scope  `json:"scope"`
}

// RunResult reports what the executor did. ErrorMessage is set for row-level
// problems the executor survived; transport/executor-level failures surface
// as Go errors from Run instead.
type RunResult struct {
	Output        string `json:"output"`
	RowsAffected  int64  `json:"rows_affected"`
	RowsSucceeded int64  `json:"rows_succeeded"`
	RowsFailed    int64  `json:"rows_failed"`
	ErrorMessage  string `json:"error,omitempty"`

	// SampleBefore/SampleAfter are row snapshots returned for sample runs so
	// reviewers can inspect what the candidate code actually did.
	SampleBefore []map[string]any `json:"sample_before,omitempty"`
	SampleAfter  []map[string]any `json:"sample_after,omitempty"`
}

// Executor runs transformation code in a sandbox. Implementations must honor
// context cancellation; callers bound every invocation with a deadline.
type Executor interface {
	// Run executes code against the requested scope.
	Run(ctx context.Context, req *RunRequest) (*RunResult, error)

	// Snapshot captures a rollback checkpoint for an asset and returns its
	// reference. Implementations that cannot snapshot return an empty string.
	Snapshot(ctx context.Context, asset string) (string, error)

	// Close releases executor resources.
	Close(ctx context.Context) error
}
