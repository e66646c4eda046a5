package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/cloudsync/internal/server"
	"github.com/openmined/cloudsync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultDBPath = ".data/cloudsync-server.db"

func main() {
	_ = godotenv.Load()

	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:     "cloudsync-server",
		Short:   "CloudSync Server CLI",
		Version: version.Detailed(),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			srv, err := server.New(cfg)
			if err != nil {
				return err
			}
			slog.Info("cloudsync server", "version", version.Version, "revision", version.Revision, "auth", cfg.Auth.Enabled)
			defer slog.Info("Bye!")
			return srv.Start(cmd.Context())
		},
	}

	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("config", "f", "", "Path to a server config file")
	rootCmd.Flags().StringP("bind", "b", server.DefaultAddr, "Address to bind the server")
	rootCmd.Flags().StringP("cert", "c", "", "Path to the certificate file")
	rootCmd.Flags().StringP("key", "k", "", "Path to the key file")
	rootCmd.Flags().String("db", defaultDBPath, "Path to the sqlite database")
	rootCmd.Flags().String("rate-limit", server.DefaultRateLimit, "Per client rate limit, e.g. 600-M; empty disables")
	rootCmd.Flags().String("jwt-secret", "", "Access token signing secret; enables auth")
	rootCmd.Flags().Duration("token-expiry", 24*time.Hour, "Access token lifetime")

	return rootCmd
}

// loadConfig merges flags, CLOUDSYNC_SERVER_* env vars and the optional config file.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*server.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config read '%s': %w", path, err)
		}
	}

	v.BindPFlag("http.addr", cmd.Flags().Lookup("bind"))
	v.BindPFlag("http.cert_file", cmd.Flags().Lookup("cert"))
	v.BindPFlag("http.key_file", cmd.Flags().Lookup("key"))
	v.BindPFlag("http.rate_limit", cmd.Flags().Lookup("rate-limit"))
	v.BindPFlag("db_path", cmd.Flags().Lookup("db"))
	v.BindPFlag("auth.access_token_secret", cmd.Flags().Lookup("jwt-secret"))
	v.BindPFlag("auth.access_token_expiry", cmd.Flags().Lookup("token-expiry"))
	v.SetDefault("auth.token_issuer", "cloudsync")

	v.SetEnvPrefix("CLOUDSYNC_SERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &server.Config{
		HTTP: server.HTTPConfig{
			Addr:      v.GetString("http.addr"),
			CertFile:  v.GetString("http.cert_file"),
			KeyFile:   v.GetString("http.key_file"),
			RateLimit: v.GetString("http.rate_limit"),
		},
		DBPath: v.GetString("db_path"),
	}
	cfg.Auth.TokenIssuer = v.GetString("auth.token_issuer")
	cfg.Auth.AccessTokenSecret = v.GetString("auth.access_token_secret")
	cfg.Auth.AccessTokenExpiry = v.GetDuration("auth.access_token_expiry")
	cfg.Auth.ClientIDs = v.GetStringSlice("auth.client_ids")
	cfg.Auth.Enabled = cfg.Auth.AccessTokenSecret != ""

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Auth.Enabled {
		slog.Warn("auth disabled, every request acts as the local user")
	}
	if cfg.Auth.Enabled && len(cfg.Auth.AccessTokenSecret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 characters")
	}
	return cfg, nil
}
