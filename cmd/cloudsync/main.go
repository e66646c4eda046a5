package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/cloudsync/internal/client"
	"github.com/openmined/cloudsync/internal/client/config"
	"github.com/openmined/cloudsync/internal/utils"
	"github.com/openmined/cloudsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
	logLevel       = new(slog.LevelVar)
)

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:     "cloudsync",
	Short:   "CloudSync CLI",
	Version: version.Detailed(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			logLevel.Set(slog.LevelDebug)
		}
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().SortFlags = false
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "CloudSync config file")
	rootCmd.PersistentFlags().StringP("datadir", "d", config.DefaultDataDir, "CloudSync data directory")
	rootCmd.PersistentFlags().StringP("server", "s", config.DefaultServerURL, "CloudSync server")
	rootCmd.PersistentFlags().StringSliceP("providers", "p", config.DefaultProviders, "Enabled providers, in login check order")
	rootCmd.PersistentFlags().StringP("user", "u", "", "Account email passed as login hint")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Debug logging")
}

func main() {
	// ignore missing .env
	_ = godotenv.Load()

	logFile := config.DefaultLogFilePath
	if err := utils.EnsureParent(logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	// one-shot commands share the log with a running daemon
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	logLevel.Set(slog.LevelInfo)
	stdoutHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	logInterceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// Do not include time as it is added by the log interceptor.
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".cloudsync"))
		viper.AddConfigPath(filepath.Join(home, ".config", "cloudsync"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("data_dir", cmd.Flags().Lookup("datadir"))
	viper.BindPFlag("server_url", cmd.Flags().Lookup("server"))
	viper.BindPFlag("providers", cmd.Flags().Lookup("providers"))
	viper.BindPFlag("user", cmd.Flags().Lookup("user"))

	// CLOUDSYNC_S3_BUCKET for s3.bucket
	viper.SetEnvPrefix("CLOUDSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	return nil
}

// readConfig builds and validates the client config from viper.
func readConfig(cmd *cobra.Command) (*config.Config, error) {
	path := viper.ConfigFileUsed()
	if path == "" {
		path, _ = cmd.Flags().GetString("config")
	}

	cfg := &config.Config{
		Path:         path,
		DataDir:      viper.GetString("data_dir"),
		Providers:    viper.GetStringSlice("providers"),
		ServerURL:    viper.GetString("server_url"),
		ClientID:     viper.GetString("client_id"),
		RedirectURL:  viper.GetString("redirect_url"),
		User:         viper.GetString("user"),
		SyncInterval: viper.GetString("sync_interval"),
	}
	cfg.S3.Bucket = viper.GetString("s3.bucket")
	cfg.S3.Region = viper.GetString("s3.region")
	cfg.S3.Endpoint = viper.GetString("s3.endpoint")
	cfg.S3.AccessKey = viper.GetString("s3.access_key")
	cfg.S3.SecretKey = viper.GetString("s3.secret_key")
	cfg.S3.Prefix = viper.GetString("s3.prefix")
	cfg.Folder.Path = viper.GetString("folder.path")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newClient is shared by every command that touches the workspace.
func newClient(cmd *cobra.Command, opts ...client.Option) (*client.Client, error) {
	cfg, err := readConfig(cmd)
	if err != nil {
		return nil, err
	}
	cmd.SilenceUsage = true
	opts = append([]client.Option{client.WithNotifier(client.NewConsoleNotifier(cmd.OutOrStdout()))}, opts...)
	return client.New(cmd.Context(), cfg, opts...)
}

func showCloudSyncHeader() {
	color.New(color.FgHiCyan, color.Bold).
		Print(utils.CloudSyncArt + "\n")
}
