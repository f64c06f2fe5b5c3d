package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kakioki/internal/app"
	"kakioki/internal/domain"
)

var (
	cfgPath  string
	home     string
	relayURL string
	redisURL string
	userID   int64
	logLevel string
	password string

	wire *app.Wire
	log  *zap.Logger
)

func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:          "kakioki",
		Short:        "End-to-end encrypted chat CLI",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Load(cfgPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("home") {
				cfg.Home = home
			}
			if flags.Changed("relay") {
				cfg.RelayURL = relayURL
			}
			if flags.Changed("redis") {
				cfg.RedisAddr = redisURL
			}
			if flags.Changed("user") {
				cfg.UserID = domain.UserID(userID)
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
				return err
			}

			log, err = app.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			wire, err = app.NewWire(cfg, log)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			defer func() { _ = log.Sync() }()
			return wire.Close()
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(), "config file")
	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.kakioki)")
	root.PersistentFlags().StringVar(&relayURL, "relay", "", "relay base URL (e.g. http://127.0.0.1:8080)")
	root.PersistentFlags().StringVar(&redisURL, "redis", "", "redis address for realtime events and session storage")
	root.PersistentFlags().Int64Var(&userID, "user", 0, "your user id")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	root.PersistentFlags().StringVarP(&password, "password", "p", "", "password protecting the private key")

	root.AddCommand(
		keygenCmd(),
		fingerprintCmd(),
		unlockCmd(),
		sendCmd(),
		retryCmd(),
		historyCmd(),
		listenCmd(),
		blockCmd(),
		unblockCmd(),
		removeCmd(),
		logoutCmd(),
	)
	return root.ExecuteContext(ctx)
}

func defaultConfigPath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, ".kakioki", "config.yaml")
}

func parseFriend(arg string) (domain.UserID, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid friend id %q", arg)
	}
	return domain.UserID(id), nil
}
