package cli

import (
	"fmt"

	"github.com/dyah/lintas/internal/config"
	"github.com/dyah/lintas/internal/daemon"
	"github.com/dyah/lintas/internal/logger"
	"github.com/dyah/lintas/pkg/protocol"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <session> [session...]",
	Short: "Run the Lintas daemon with the named sessions",
	Long: `Start the daemon and connect the named sessions. Sessions without a
stored authorization are authorized first; already-authorized sessions go
straight to their event loop. The command runs in the foreground until a
termination signal arrives or the last session is evicted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(daemon.Options{
		Config:       cfg,
		Logger:       log,
		Factory:      protocol.NewLoopbackClient,
		ConfigLoader: loader,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	if err := d.Connect(args); err != nil {
		log.Warn().Err(err).Msg("Some sessions failed to connect")
	}
	if len(d.Status().Sessions) == 0 {
		d.Stop()
		return fmt.Errorf("no sessions could be connected")
	}

	return d.Wait()
}
