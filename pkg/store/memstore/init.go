package memstore

import (
	"context"

	"github.com/ajitpratap0/tablepool/pkg/config"
	"github.com/ajitpratap0/tablepool/pkg/store/registry"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

func init() {
	_ = registry.Register(&registry.BackendInfo{
		Name:         "memory",
		Description:  "In-process store seeded with synthetic user rows",
		Capabilities: []string{"get", "bulk_get", "scan", "ping"},
		Required:     []string{"table"},
	}, func(_ context.Context, cfg *config.BackendConfig) (table.ReaderFactory, error) {
		store := New()
		if err := store.Seed(cfg.Table, cfg.Rows); err != nil {
			return nil, err
		}
		return store.Factory(cfg.Table, 0), nil
	})
}
