package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-sync/internal/config"
	"github.com/vovakirdan/wirechat-sync/internal/log"
)

type rootFlags struct {
	configPath string
	overrides  config.Config
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "chatsync",
		Short:         "Keep a wirechat session in sync from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to config file (default chatsync.yaml)")
	pf.StringVar(&flags.overrides.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	pf.StringVar(&flags.overrides.Token, "token", "", "bearer credential")
	pf.StringVar(&flags.overrides.ServerURL, "server", "", "event stream websocket URL")
	pf.StringVar(&flags.overrides.APIURL, "api", "", "record API base URL")
	pf.Int64Var(&flags.overrides.UserID, "user-id", 0, "local user id (default: read from token)")
	pf.StringVar(&flags.overrides.DatabasePath, "db", "", "chat snapshot database path")

	root.AddCommand(newListenCmd(flags), newSendCmd(flags), newChatsCmd(flags))
	return root
}

// load resolves configuration: defaults < file < env < flags.
func (f *rootFlags) load() (config.Config, *zerolog.Logger, error) {
	boot := log.New("info")
	cfg, path, err := config.Load(boot, f.configPath)
	if err != nil {
		return cfg, boot, err
	}
	cfg.UpdateFrom(f.overrides)

	logger := log.New(cfg.LogLevel)
	logger.Debug().Str("config", path).Str("server", cfg.ServerURL).Str("api", cfg.APIURL).Msg("configuration loaded")
	return cfg, logger, nil
}
