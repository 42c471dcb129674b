package gcsstore

import (
	"context"

	"github.com/ajitpratap0/tablepool/pkg/config"
	"github.com/ajitpratap0/tablepool/pkg/store/registry"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

func init() {
	_ = registry.Register(&registry.BackendInfo{
		Name:         "gcs",
		Description:  "One object per row in a Cloud Storage bucket, one client per reader",
		Capabilities: []string{"get", "bulk_get", "scan", "ping", "compression"},
		Required:     []string{"table", "bucket"},
	}, func(_ context.Context, cfg *config.BackendConfig) (table.ReaderFactory, error) {
		return NewFactory(Options{
			Table:    cfg.Table,
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			Endpoint: cfg.Endpoint,
			Codec:    cfg.Codec,
		})
	})
}
