package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy"
	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/domain"
	"github.com/prabaj-wq/allinonecompdev-sub004/modules/hierarchy/services"
	"github.com/prabaj-wq/allinonecompdev-sub004/pkg/configuration"
	"github.com/prabaj-wq/allinonecompdev-sub004/pkg/constants"
	"github.com/prabaj-wq/allinonecompdev-sub004/pkg/logging"
)

type globalOptions struct {
	axis     string
	apiURL   string
	token    string
	company  string
	envFile  string
	logLevel string

	logger *logrus.Logger
}

// serviceLoader is swapped in tests.
type serviceLoader func(ctx context.Context, opts *globalOptions) (*services.HierarchyService, error)

func newRootCmd() *cobra.Command {
	return newRootCmdWith(loadService)
}

func newRootCmdWith(load serviceLoader) *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "hierarchy-data",
		Short:         "Hierarchy export/import/assignment tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(opts.logLevel)
			if err != nil {
				return withCode(exitUsage, fmt.Errorf("invalid --log-level: %w", err))
			}
			opts.logger = logging.ConsoleLogger(level)
			cmd.SetContext(context.WithValue(cmd.Context(), constants.LoggerKey, opts.logger))
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.axis, "axis", "entity", "Element axis (entity|account)")
	pf.StringVar(&opts.apiURL, "api-url", "", "Backend API base URL (overrides HIERARCHY_API_URL)")
	pf.StringVar(&opts.token, "token", "", "Bearer token (overrides HIERARCHY_API_TOKEN)")
	pf.StringVar(&opts.company, "company", "", "Company scope (overrides HIERARCHY_COMPANY_NAME)")
	pf.StringVar(&opts.envFile, "env-file", ".env", "Env file loaded before reading the environment")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "Log level for stderr output")

	cmd.AddCommand(newHierarchiesCmd(opts, load))
	cmd.AddCommand(newTreeCmd(opts, load))
	cmd.AddCommand(newExportCmd(opts, load))
	cmd.AddCommand(newImportCmd(opts, load))
	cmd.AddCommand(newAssignCmd(opts, load))
	cmd.AddCommand(newUnassignCmd(opts, load))
	cmd.AddCommand(newMoveCmd(opts, load))
	cmd.AddCommand(newFieldsCmd(opts, load))
	return cmd
}

func loadService(ctx context.Context, opts *globalOptions) (*services.HierarchyService, error) {
	axis, err := domain.ParseAxis(opts.axis)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	if strings.TrimSpace(opts.envFile) != "" {
		if _, err := configuration.LoadEnv([]string{opts.envFile}); err != nil {
			return nil, withCode(exitUsage, fmt.Errorf("load %s: %w", opts.envFile, err))
		}
	}
	conf, err := configuration.Parse()
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("configuration: %w", err))
	}
	if v := strings.TrimSpace(opts.apiURL); v != "" {
		conf.HierarchyAPI.URL = v
	}
	if v := strings.TrimSpace(opts.token); v != "" {
		conf.HierarchyAPI.Token = v
	}
	if v := strings.TrimSpace(opts.company); v != "" {
		conf.HierarchyAPI.CompanyName = v
	}

	set, err := hierarchy.BuildServices(ctx, conf, opts.logger, axis)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	svc, ok := set.Get(axis)
	if !ok {
		return nil, withCode(exitUsage, fmt.Errorf("axis %s is not configured", axis))
	}
	return svc, nil
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
