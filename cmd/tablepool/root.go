package main

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/tablepool/pkg/store/registry"

	// Register every backend
	_ "github.com/ajitpratap0/tablepool/pkg/store/gcsstore"
	_ "github.com/ajitpratap0/tablepool/pkg/store/memstore"
	_ "github.com/ajitpratap0/tablepool/pkg/store/mongostore"
	_ "github.com/ajitpratap0/tablepool/pkg/store/pgstore"
	_ "github.com/ajitpratap0/tablepool/pkg/store/s3store"
	_ "github.com/ajitpratap0/tablepool/pkg/store/sqlstore"
)

// app carries state shared by every command: the config file path and a
// viper instance holding flag and TABLEPOOL_* environment overrides.
type app struct {
	cfgFile string
	v       *viper.Viper
}

func newRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	a.v.SetEnvPrefix("TABLEPOOL")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "tablepool",
		Short: "tablepool - bounded pools of table readers",
		Long: `tablepool lends out table readers from a bounded pool. Each reader holds an
expensive handle to its store (a database connection or a storage client), and the
pool caps how many are open, reuses idle ones and evicts those left idle too long.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "Path to a YAML or TOML configuration file")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("backend", "", "Backend type, overriding the configuration file")
	flags.String("table", "", "Table name, overriding the configuration file")
	flags.Int("max-active", 0, "Cap on open readers; 0 keeps the configured value")
	flags.String("policy", "", "Exhaustion policy (block, fail, grow)")
	flags.Duration("max-wait", 0, "Longest a blocked borrow waits; 0 keeps the configured value")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	for key, flag := range map[string]string{
		"logging.level":              "log-level",
		"backend.type":               "backend",
		"backend.table":              "table",
		"pool.max_active":            "max-active",
		"pool.exhaustion_policy":     "policy",
		"pool.max_wait":              "max-wait",
		"observability.metrics_addr": "metrics-addr",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		versionCommand(),
		backendsCommand(),
		a.configCommand(),
		a.getCommand(),
		a.scanCommand(),
		a.benchCommand(),
	)
	return root
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tablepool v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func backendsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List available backends",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, name := range registry.List() {
				info, _ := registry.Info(name)
				fmt.Fprintf(out, "  - %-8s %s (requires: %s)\n",
					name, info.Description, strings.Join(info.Required, ", "))
			}
		},
	}
}
