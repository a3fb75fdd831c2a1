package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/splax/slaguard/pkg/client"
	"github.com/splax/slaguard/pkg/config"
)

var buildVersion = "dev"

type globalFlags struct {
	configPath string
	apiBase    string
	token      string
	timeout    time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "slactl",
		Short:         "Operate the slaguard SLA and alerting engine",
		Version:       strings.TrimSpace(buildVersion),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to a slaguard YAML config file")
	root.PersistentFlags().StringVar(&flags.apiBase, "api", "", "Admin API base URL (overrides api.url)")
	root.PersistentFlags().StringVar(&flags.token, "token", "", "Admin token (overrides admin.token)")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", time.Minute, "Request timeout")

	root.AddCommand(
		newEvaluateCommand(&flags),
		newRulesCommand(&flags),
		newSLACommand(&flags),
		newSnapshotsCommand(&flags),
		newMigrateCommand(&flags),
	)
	return root
}

func (f *globalFlags) loadConfig() (config.CLIConfig, error) {
	cfg, err := config.LoadCLIConfig(f.configPath)
	if err != nil {
		return config.CLIConfig{}, err
	}
	if v := strings.TrimSpace(f.apiBase); v != "" {
		cfg.APIBaseURL = v
	}
	if v := strings.TrimSpace(f.token); v != "" {
		cfg.AdminToken = v
	}
	return cfg, nil
}

func (f *globalFlags) client() (*client.Client, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.AdminToken == "" {
		return nil, fmt.Errorf("admin token required: set --token or %s_ADMIN_TOKEN", config.EnvPrefix)
	}
	return client.New(cfg.APIBaseURL, client.WithToken(cfg.AdminToken))
}

func (f *globalFlags) context(parent context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, f.timeout)
}

func newEvaluateCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Run one alert evaluation pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := flags.client()
			if err != nil {
				return err
			}
			ctx, cancel := flags.context(cmd.Context())
			defer cancel()

			run, err := cli.RunEvaluation(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "evaluated: %d\tbreached: %d\tincidents created: %d\n",
				run.Result.Evaluated, run.Result.Breached, run.Result.IncidentsCreated)
			for _, id := range run.Result.IncidentIDs {
				fmt.Fprintf(out, "incident\t%s\n", id)
			}
			if run.Error != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", run.Error)
			}
			return nil
		},
	}
}
