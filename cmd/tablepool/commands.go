package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/tablepool/internal/bench"
	"github.com/ajitpratap0/tablepool/pkg/logger"
	"github.com/ajitpratap0/tablepool/pkg/table"
)

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.loadConfig(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	})

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), format, cfg)
		},
	}
	show.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (yaml, json, toml)")
	cmd.AddCommand(show)
	return cmd
}

func (a *app) getCommand() *cobra.Command {
	var columns []string
	cmd := &cobra.Command{
		Use:   "get ID...",
		Short: "Borrow a reader and print rows by entity id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			reader, err := s.pool.Borrow(ctx)
			if err != nil {
				return err
			}
			defer reader.Close()

			ids := make([]table.EntityID, len(args))
			for i, arg := range args {
				ids[i] = table.EntityID(arg)
			}
			rows, err := reader.BulkGet(ctx, ids, table.NewDataRequest(columns...))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, row := range rows {
				if err := enc.Encode(printable(row)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Columns to read (family or family:qualifier)")
	return cmd
}

func (a *app) scanCommand() *cobra.Command {
	var (
		columns     []string
		start, stop string
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Borrow a reader and print a range of rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			reader, err := s.pool.Borrow(ctx)
			if err != nil {
				return err
			}
			defer reader.Close()

			scanner, err := reader.Scanner(ctx, table.NewDataRequest(columns...), table.ScannerOptions{
				StartRow: table.EntityID(start),
				StopRow:  table.EntityID(stop),
				Limit:    limit,
			})
			if err != nil {
				return err
			}
			defer scanner.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			n := 0
			for scanner.Next(ctx) {
				if err := enc.Encode(printable(scanner.Row())); err != nil {
					return err
				}
				n++
			}
			s.log.Debug("scan finished", zap.Int("rows", n))
			return scanner.Err()
		},
	}
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Columns to read (family or family:qualifier)")
	cmd.Flags().StringVar(&start, "start", "", "First entity id (inclusive)")
	cmd.Flags().StringVar(&stop, "stop", "", "Last entity id (exclusive)")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum rows to print; 0 prints all")
	return cmd
}

func (a *app) benchCommand() *cobra.Command {
	cfg := bench.DefaultConfig()
	var format string
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive the pool with concurrent borrowers and report latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := bench.Run(ctx, s.pool, cfg, s.log)
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), format, res)
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&cfg.Workers, "workers", cfg.Workers, "Concurrent borrowers")
	flags.IntVar(&cfg.Operations, "operations", cfg.Operations, "Reads to perform; 0 runs for --duration")
	flags.DurationVar(&cfg.Duration, "duration", 0, "Run length; 0 stops after --operations")
	flags.Float64Var(&cfg.Rate, "rate", 0, "Reads per second across all workers; 0 is unlimited")
	flags.IntVar(&cfg.Keys, "keys", cfg.Keys, "Distinct rows to read from")
	flags.StringSliceVar(&cfg.Columns, "columns", nil, "Columns to read")
	flags.DurationVar(&cfg.Hold, "hold", 0, "Extra time each reader stays borrowed")
	flags.StringVarP(&format, "format", "f", "yaml", "Output format (yaml, json, toml)")
	return cmd
}

// signalContext is canceled on SIGINT or SIGTERM and carries a fresh request
// id, so every log line of one command run can be correlated.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	parent = logger.WithRequestID(parent, uuid.NewString())
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func write(out io.Writer, format string, v interface{}) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "toml":
		return toml.NewEncoder(out).Encode(v)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

type printedCell struct {
	Column    string      `json:"column"`
	Timestamp int64       `json:"timestamp"`
	Value     interface{} `json:"value"`
}

type printedRow struct {
	EntityID string        `json:"entity_id"`
	Cells    []printedCell `json:"cells"`
}

// printable renders decoded cells as their native value and raw cells as
// text.
func printable(row *table.RowData) printedRow {
	out := printedRow{EntityID: string(row.EntityID), Cells: []printedCell{}}
	for _, c := range row.Cells {
		var value interface{} = string(c.Value)
		if c.Decoded != nil {
			value = c.Decoded
		}
		out.Cells = append(out.Cells, printedCell{
			Column:    table.Column{Family: c.Family, Qualifier: c.Qualifier}.String(),
			Timestamp: c.Timestamp,
			Value:     value,
		})
	}
	return out
}
