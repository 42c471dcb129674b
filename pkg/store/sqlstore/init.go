package sqlstore

import (
	"context"

	"github.com/ajitpratap0/tablepool/pkg/config"
	"github.com/ajitpratap0/tablepool/pkg/store/registry"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

func init() {
	_ = registry.Register(&registry.BackendInfo{
		Name:         "mysql",
		Description:  "MySQL cell relation, one pinned connection per reader",
		Capabilities: []string{"get", "bulk_get", "scan", "ping"},
		Required:     []string{"table", "dsn"},
	}, func(_ context.Context, cfg *config.BackendConfig) (table.ReaderFactory, error) {
		return NewFactory(cfg.DSN, cfg.Table)
	})
}
