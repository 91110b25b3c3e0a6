package postgres

import (
	"context"

	"github.com/leafsii/relkv/pkg/kv"
)

func init() {
	kv.RegisterBackend(kv.BackendPostgres, func(ctx context.Context, cfg kv.Config) (kv.Store, error) {
		return Open(ctx, cfg)
	})
}
