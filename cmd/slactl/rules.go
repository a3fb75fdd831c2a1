package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/service/alerting"
)

func newRulesCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and manage alert rules",
	}

	var format string
	get := &cobra.Command{
		Use:   "get",
		Short: "Print the active alert rule set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := flags.client()
			if err != nil {
				return err
			}
			ctx, cancel := flags.context(cmd.Context())
			defer cancel()

			resp, err := cli.GetRules(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "# source: %s\n", resp.Source)
			return writeRuleSet(cmd.OutOrStdout(), resp.RuleSet, format)
		},
	}
	get.Flags().StringVarP(&format, "output", "o", "yaml", "Output format (yaml|json)")

	apply := &cobra.Command{
		Use:   "apply FILE",
		Short: "Replace the configured rule set from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read rules file: %w", err)
			}
			set, err := parseRuleFile(raw)
			if err != nil {
				return err
			}
			cli, err := flags.client()
			if err != nil {
				return err
			}
			ctx, cancel := flags.context(cmd.Context())
			defer cancel()

			resp, err := cli.PutRules(ctx, set)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d rules (version %d)\n", len(resp.Rules), resp.Version)
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Remove the configured rule set so the built-in defaults apply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := flags.client()
			if err != nil {
				return err
			}
			ctx, cancel := flags.context(cmd.Context())
			defer cancel()

			if err := cli.ResetRules(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "alert rules reset to defaults")
			return nil
		},
	}

	cmd.AddCommand(get, apply, reset)
	return cmd
}

// parseRuleFile accepts a versioned rule document or a bare list of rules.
// JSON input parses as YAML.
func parseRuleFile(raw []byte) (alerting.RuleSet, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return alerting.RuleSet{}, fmt.Errorf("parse rules file: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return alerting.RuleSet{}, fmt.Errorf("parse rules file: empty document")
	}
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var rules []domain.AlertRule
		if err := root.Decode(&rules); err != nil {
			return alerting.RuleSet{}, fmt.Errorf("parse rules file: %w", err)
		}
		return alerting.RuleSet{Version: alerting.RuleSetVersion, Rules: rules}, nil
	case yaml.MappingNode:
		var set alerting.RuleSet
		if err := root.Decode(&set); err != nil {
			return alerting.RuleSet{}, fmt.Errorf("parse rules file: %w", err)
		}
		if set.Version == 0 {
			set.Version = alerting.RuleSetVersion
		}
		return set, nil
	default:
		return alerting.RuleSet{}, fmt.Errorf("parse rules file: expected a list of rules or a rule document")
	}
}

func writeRuleSet(w io.Writer, set alerting.RuleSet, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(set)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(set); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
