package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// PoolProvider supplies the raw tiered question pool the selector draws from.
type PoolProvider interface {
	LoadPool(ctx context.Context) (TierPool, error)
}

// FilePool reads the bank from a JSON file on disk. Fits the offline
// deployment; an HTTP-backed provider can replace it without touching the
// selector or the ledger.
type FilePool struct {
	Path string
}

func (f FilePool) LoadPool(_ context.Context) (TierPool, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return TierPool{}, fmt.Errorf("read question bank: %w", err)
	}
	var pool TierPool
	if err := json.Unmarshal(raw, &pool); err != nil {
		return TierPool{}, fmt.Errorf("parse question bank: %w", err)
	}
	return pool, nil
}
