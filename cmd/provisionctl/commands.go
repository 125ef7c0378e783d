package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Kamar-Folarin/repo-provisioner/internal/app"
	"github.com/Kamar-Folarin/repo-provisioner/internal/config"
	"github.com/Kamar-Folarin/repo-provisioner/internal/spec"
)

type options struct {
	logLevel      string
	scaffoldsFile string
	token         string
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "provisionctl",
		Short:         "Provision assessment repositories from project specs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.scaffoldsFile, "scaffolds", os.Getenv("SCAFFOLDS_FILE"), "Scaffold registry file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.token, "token", "", "GitHub token (defaults to GITHUB_TOKEN)")

	cmd.AddCommand(validateCmd(opts), buildCmd(opts), forkCmd(opts), scaffoldsCmd(opts), runsCmd(opts))
	return cmd
}

func validateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <spec.json>",
		Short: "Validate a project spec",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := config.LoadRegistryOrDefault(opts.scaffoldsFile)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read spec: %w", err)
			}

			validator := spec.NewValidator(registry, spec.WithLogger(opts.logger()))
			validated, err := validator.ValidateJSON(data)
			if err != nil {
				if vErr, ok := spec.AsValidationError(err); ok {
					printViolations(cmd.OutOrStdout(), vErr)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid: %s (%s, %d files, %d commits, %d issues)\n",
				validated.ProjectName, validated.ScaffoldID, len(validated.Files), len(validated.CommitHistory), len(validated.Issues))
			return nil
		},
	}
}

func buildCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "build <scenario-id> <spec.json>",
		Short: "Validate a spec and build its scenario repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app()
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read spec: %w", err)
			}
			var candidate map[string]any
			if err := json.Unmarshal(data, &candidate); err != nil {
				return fmt.Errorf("failed to parse spec: %w", err)
			}

			ctx := cmd.Context()
			validated, err := a.Service.ValidateSpec(ctx, candidate)
			if err != nil {
				if vErr, ok := spec.AsValidationError(err); ok {
					printViolations(cmd.OutOrStdout(), vErr)
				}
				return err
			}
			url, err := a.Service.BuildFromSpec(ctx, args[0], validated, opts.token)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}

func forkCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "fork <assessment-id> <source-repo-url>",
		Short: "Copy a scenario repository with its history into an assessment repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app()
			if err != nil {
				return err
			}
			defer a.Close()

			url, err := a.Service.ForkWithHistory(cmd.Context(), args[0], args[1], opts.token)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}

func scaffoldsCmd(opts *options) *cobra.Command {
	var match string
	cmd := &cobra.Command{
		Use:   "scaffolds",
		Short: "List scaffolds, or pick one for a tech stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := config.LoadRegistryOrDefault(opts.scaffoldsFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if match != "" {
				s, ok := registry.Match(match)
				if !ok {
					return fmt.Errorf("no scaffold matches %q", match)
				}
				fmt.Fprintln(out, s.ID)
				return nil
			}
			for _, s := range registry.List() {
				fmt.Fprintf(out, "%-16s %-40s %s\n", s.ID, s.Template, commandList(s.Commands))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&match, "match", "", "Tech stack description to match against scaffold keywords")
	return cmd
}

func runsCmd(opts *options) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded provisioning runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.app()
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.Tracker.List(cmd.Context(), subject)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Only runs for this scenario, assessment or generation id")
	return cmd
}

func (o *options) app() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if o.scaffoldsFile != "" {
		cfg.ScaffoldsFile = o.scaffoldsFile
	}
	logger := o.logger()
	if o.token == "" && cfg.GitHub.Token == "" {
		logger.WithField("hint", "--token or GITHUB_TOKEN").Warn("No GitHub token configured")
	}
	return app.New(cfg, logger)
}

// logger keeps logs on stderr so stdout carries only results.
func (o *options) logger() *logrus.Logger {
	logger := app.NewLogger(o.logLevel)
	logger.SetOutput(os.Stderr)
	return logger
}

func printViolations(w io.Writer, vErr *spec.ValidationError) {
	fmt.Fprintf(w, "invalid (%s phase):\n", vErr.Phase)
	for _, v := range vErr.Violations {
		fmt.Fprintf(w, "  [%s] %s: %s\n", v.Rule, v.Entity, v.Message)
	}
}

func commandList(commands map[string]string) string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+commands[name])
	}
	return strings.Join(parts, " ")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
