// Package cmd provides the Louyass admin command-line interface.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"louyass/config"
	"louyass/notify"
	"louyass/service"
	"louyass/storage"

	"github.com/fatih/color"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags for admin commands
var (
	outputJSON bool
	configFile string
	noColor    bool
	quiet      bool
)

const (
	maxImportFileSize = 10 * 1024 * 1024
	defaultTimeout    = 5 * time.Minute
)

// Overridden in tests
var (
	loadConfig                 = config.LoadConfig
	cliClock   clockwork.Clock = clockwork.NewRealClock()
)

// validateFilePath rejects paths that climb out of their directory, encoded or not.
func validateFilePath(filename string) error {
	if filename == "" {
		return fmt.Errorf("file path is required")
	}
	decoded, err := url.QueryUnescape(filename)
	if err != nil {
		decoded = filename
	}
	for _, p := range []string{filename, decoded} {
		for _, part := range strings.Split(filepath.ToSlash(p), "/") {
			if part == ".." {
				return fmt.Errorf("path traversal detected: '..' not allowed in file path")
			}
		}
	}
	return nil
}

// NewAdminCmd creates the root admin command with all subcommands.
func NewAdminCmd() *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Louyass administration",
		Long: `Administrative tasks for a Louyass deployment: database migrations,
account bootstrap, fixture loading and payment follow-up.

Configuration is read from config.yaml and LOUYASS_* environment variables,
the same way the server does.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
			if configFile != "" {
				viper.SetConfigFile(configFile)
			}
		},
	}

	adminCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	adminCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path")
	adminCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	adminCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")

	adminCmd.AddCommand(newMigrateCmd())
	adminCmd.AddCommand(newUserCmd())
	adminCmd.AddCommand(newSeedCmd())
	adminCmd.AddCommand(newPaymentsCmd())
	adminCmd.AddCommand(newConfigCmd())

	return adminCmd
}

// adminEnv is the storage and services a command works with
type adminEnv struct {
	cfg      *config.Config
	db       *storage.SQLite
	users    *storage.SQLiteUserStorage
	payments *storage.SQLitePaymentStorage
	userSvc  *service.UserService
	houseSvc *service.HouseService
	roomSvc  *service.RoomService
	paySvc   *service.PaymentService
	logger   *zap.SugaredLogger
}

func cliLogger() *zap.SugaredLogger {
	if quiet || outputJSON {
		return zap.NewNop().Sugar()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// openDatabase opens the configured database. migrate=false leaves the
// schema alone for the migrate subcommands.
func openDatabase(migrate bool) (*config.Config, *storage.SQLite, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := cliLogger()
	open := storage.OpenSQLite
	if migrate {
		open = storage.NewSQLite
	}
	db, err := open(cfg.DataPaths.SQLitePath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database %s: %w", cfg.DataPaths.SQLitePath, err)
	}
	return cfg, db, nil
}

// initEnv opens the migrated database and builds the services. Events are
// discarded: the CLI sends no notifications.
func initEnv() (*adminEnv, func(), error) {
	cfg, db, err := openDatabase(true)
	if err != nil {
		return nil, nil, err
	}
	logger := cliLogger()

	users := storage.NewSQLiteUserStorage(db, logger)
	users.SetBcryptCost(cfg.Auth.BcryptCost)
	houses := storage.NewSQLiteHouseStorage(db, logger)
	rooms := storage.NewSQLiteRoomStorage(db, logger)
	contracts := storage.NewSQLiteContractStorage(db, logger)
	payments := storage.NewSQLitePaymentStorage(db, logger)

	lockout := service.LockoutPolicy{Threshold: cfg.Auth.LockoutThreshold, Duration: cfg.Auth.LockoutDuration}
	env := &adminEnv{
		cfg:      cfg,
		db:       db,
		users:    users,
		payments: payments,
		userSvc:  service.NewUserService(users, lockout, cfg.Auth.MFAIssuer, cliClock, logger),
		houseSvc: service.NewHouseService(houses, cliClock, logger),
		roomSvc:  service.NewRoomService(rooms, houses, contracts, cliClock, logger),
		paySvc:   service.NewPaymentService(payments, contracts, users, notify.Discard{}, cliClock, logger),
		logger:   logger,
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Warnw("Failed to close database", "error", err)
		}
	}
	return env, cleanup, nil
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), defaultTimeout)
}

// describeError prefers the French detail of business errors
func describeError(err error) string {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		return svcErr.Detail
	}
	return err.Error()
}

func outputAsJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), config.MaskSensitiveSettings(cfg))
			}
			out, err := config.RedactedYAML(cfg)
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return configCmd
}
