package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/etabotai/etabot/internal/infrastructure/config"
	"github.com/etabotai/etabot/internal/infrastructure/logging"
	"github.com/etabotai/etabot/internal/infrastructure/wiring"
	"github.com/etabotai/etabot/pkg/metrics"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "etabot",
	Version: Version,
	Short:   "Estimate completion dates and send hierarchical status reports",
	Long: `etabot reads projects, tasks and teams from a task-management system,
estimates when open work will land, and reports the status of every project,
team and member by email.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() error {
	err := RootCmd.Execute()
	if err != nil {
		printError(RootCmd.ErrOrStderr(), err)
	}
	return err
}

func init() {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	RootCmd.PersistentFlags().String("config", config.DefaultPath, "path to etabot.yaml")
	RootCmd.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")
	RootCmd.PersistentFlags().String("metrics-addr", "", "serve Prometheus metrics on this address while the command runs")
	_ = viper.BindPFlag("config", RootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log-level", RootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("metrics-addr", RootCmd.PersistentFlags().Lookup("metrics-addr"))
}

// session holds what a command needs for one invocation.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	services *wiring.AppServices
	closers  []io.Closer
	cancel   context.CancelFunc
}

// openSession loads the config and wires the services. Call close when done.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, NewCLIError("cannot load configuration", "Check the file passed with --config", err)
	}
	if lvl := viper.GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if addr := viper.GetString("metrics-addr"); addr != "" {
		cfg.Metrics.Addr = addr
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return nil, NewCLIError("invalid log settings", "Check the log section of your config", err)
	}
	s := &session{cfg: cfg, logger: logger, closers: []io.Closer{closer}}

	ctx, cancel := context.WithCancel(cmd.Context())
	s.cancel = cancel
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				logger.Error("metrics listener stopped", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
	}

	services, err := wiring.BuildAppServices(ctx, cfg, logger)
	if err != nil {
		s.close()
		return nil, MapError(err)
	}
	s.services = services
	s.closers = append(s.closers, services)
	return s, nil
}

func (s *session) close() {
	if s.cancel != nil {
		s.cancel()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if cliErr, ok := err.(*CLIError); ok && cliErr.Hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", cliErr.Hint)
	}
}

// exitCode returns the process exit status for err.
func exitCode(err error) int {
	if cliErr, ok := err.(*CLIError); ok && cliErr.ExitCode != 0 {
		return cliErr.ExitCode
	}
	return 1
}

// Main runs the CLI and exits with the mapped status.
func Main() {
	if err := Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}
