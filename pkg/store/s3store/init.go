package s3store

import (
	"context"

	"github.com/ajitpratap0/tablepool/pkg/config"
	"github.com/ajitpratap0/tablepool/pkg/store/registry"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

func init() {
	_ = registry.Register(&registry.BackendInfo{
		Name:         "s3",
		Description:  "One object per row in an S3 bucket, one client per reader",
		Capabilities: []string{"get", "bulk_get", "scan", "ping", "compression"},
		Required:     []string{"table", "bucket"},
	}, func(ctx context.Context, cfg *config.BackendConfig) (table.ReaderFactory, error) {
		return NewFactory(ctx, Options{
			Table:    cfg.Table,
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
			Codec:    cfg.Codec,
		})
	})
}
