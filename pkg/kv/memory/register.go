package memory

import (
	"context"
	"time"

	"github.com/leafsii/relkv/pkg/kv"
)

func init() {
	kv.RegisterBackend(kv.BackendMemory, func(_ context.Context, cfg kv.Config) (kv.Store, error) {
		return New(cfg.JanitorInterval), nil
	})
}

// NewStore creates a new in-memory store with default janitor interval
func NewStore() kv.Store {
	return New(30 * time.Second)
}
