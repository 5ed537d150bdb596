package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	warden "github.com/wardenproc/warden"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds the persistent CLI flags.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

func buildRoot() *cobra.Command {
	gf := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "warden",
		Short: "Supervisor for agent worker processes",
		Long: `warden spawns, monitors and enforces resource limits on agent worker
processes. It keeps a durable registry of everything it manages and
restarts crashed workers within a bounded budget.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&gf.ConfigPath, "config", "c", "", "path to TOML config file")
	root.PersistentFlags().StringVar(&gf.LogLevel, "log-level", "", "override log level (debug|info|warn|error)")
	root.PersistentFlags().StringVar(&gf.LogFormat, "log-format", "", "override log format (text|color|json)")

	root.AddCommand(newServeCmd(gf))
	root.AddCommand(newValidateCmd(gf))
	root.AddCommand(newVersionCmd())
	return root
}

// loadConfig resolves the effective configuration for a command.
func loadConfig(gf *GlobalFlags) (warden.Config, error) {
	cfg := warden.DefaultConfig()
	if gf.ConfigPath != "" {
		var err error
		cfg, err = warden.LoadConfig(gf.ConfigPath)
		if err != nil {
			return cfg, err
		}
	}
	if gf.LogLevel != "" {
		cfg.Log.Level = gf.LogLevel
	}
	if gf.LogFormat != "" {
		cfg.Log.Format = gf.LogFormat
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("warden %s\n", warden.Version)
		},
	}
}

func newValidateCmd(gf *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if gf.ConfigPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := loadConfig(gf)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			cmd.Println("configuration is valid")
			return nil
		},
	}
}
