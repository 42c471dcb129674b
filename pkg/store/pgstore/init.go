package pgstore

import (
	"context"

	"github.com/ajitpratap0/tablepool/pkg/config"
	"github.com/ajitpratap0/tablepool/pkg/store/registry"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

func init() {
	_ = registry.Register(&registry.BackendInfo{
		Name:         "postgres",
		Description:  "PostgreSQL cell relation, one pgx connection per reader",
		Capabilities: []string{"get", "bulk_get", "scan", "ping"},
		Required:     []string{"table", "dsn"},
	}, func(_ context.Context, cfg *config.BackendConfig) (table.ReaderFactory, error) {
		return NewFactory(cfg.DSN, cfg.Table)
	})
}
