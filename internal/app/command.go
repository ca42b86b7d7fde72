package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/llehouerou/wavebot/internal/config"
	"github.com/llehouerou/wavebot/internal/lastfm"
	"github.com/llehouerou/wavebot/internal/logging"
	"github.com/llehouerou/wavebot/internal/state"
	"github.com/llehouerou/wavebot/internal/stderr"
)

type flags struct {
	config   string
	logLevel string
}

// NewCommand returns the wavebot root command.
func NewCommand() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "wavebot",
		Short: "Queue songs from local folders, Subsonic and YouTube and play them",
		Long: `wavebot plays a queue of songs from several providers. When the queue
runs dry it keeps playing suggestions from the configured provider.

The configuration is read from $XDG_CONFIG_HOME/wavebot/config.toml and
./config.toml unless --config is given.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), f)
		},
	}
	cmd.PersistentFlags().StringVarP(&f.config, "config", "c", "", "config file path")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	cmd.AddCommand(lastfmCommand(&f))
	return cmd
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewCommand().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func loadConfig(f flags) (*config.Config, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	return cfg, nil
}

func run(ctx context.Context, f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logCfg := cfg.GetLogConfig()
	logger, closer, err := logging.New(logCfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	// C audio libraries write to fd 2 behind the TUI
	if logCfg.File != logging.Console {
		capture, err := stderr.Start(logger)
		if err != nil {
			logger.Warn().Err(err).Msg("capturing stderr failed")
		} else {
			defer capture.Stop()
		}
	}

	st, err := state.Open()
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer st.Close()

	a, err := New(ctx, Options{Config: cfg, State: st, Logger: logger})
	if err != nil {
		return err
	}
	logger.Info().Strs("providers", a.Providers().Names()).Str("suggestions", cfg.Provider).Msg("starting")

	err = a.Run(ctx)
	if cerr := a.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		logger.Error().Err(err).Msg("stopped")
	}
	return err
}

func lastfmCommand(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lastfm",
		Short: "Manage the Last.fm session used for scrobbling",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Authorize wavebot in the browser and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLastfm(*f, func(client *lastfm.Client, st *state.Manager) error {
				username, err := lastfm.Login(cmd.Context(), client, st, lastfm.LoginOptions{
					Out: cmd.OutOrStdout(),
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", username)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLastfm(*f, func(_ *lastfm.Client, st *state.Manager) error {
				if err := st.DeleteLastfmSession(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
				return nil
			})
		},
	})
	return cmd
}

var errNoLastfm = errors.New("lastfm api_key and api_secret are not configured")

func withLastfm(f flags, fn func(*lastfm.Client, *state.Manager) error) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	if !cfg.HasLastfmConfig() {
		return errNoLastfm
	}
	st, err := state.Open()
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer st.Close()
	return fn(lastfm.New(cfg.Lastfm.APIKey, cfg.Lastfm.APISecret), st)
}
