package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ticketops/tickctl/internal/api"
	"github.com/ticketops/tickctl/internal/auth"
	"github.com/ticketops/tickctl/internal/config"
	"github.com/ticketops/tickctl/internal/history"
	"github.com/ticketops/tickctl/internal/notify"
)

var rootCmd = &cobra.Command{
	Use:   "tickctl",
	Short: "tickctl - ticket automation pipeline CLI",
	Long: `tickctl drives the ticket-tracking automation backend: submit draft-PR
jobs, watch them run, approve or revise their plans, and browse the
artifacts they produce.`,
	SilenceUsage:      true,
	PersistentPreRunE: initApp,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	cfgFile string
	baseURL string

	cfg      *config.Config
	client   *api.Client
	authMgr  *auth.Manager
	notifier notify.Notifier
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default <user config dir>/tickctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&baseURL, "api", "", "Backend base URL (overrides config)")

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(prCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(tuiCmd)
}

func initApp(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}
	if baseURL != "" {
		cfg.API.BaseURL = baseURL
	}

	setupLogging(cfg.Log.Level)

	dir, err := config.Dir()
	if err != nil {
		return err
	}

	authMgr, err = auth.NewManager(dir, auth.Credentials{
		Username: cfg.Auth.Username,
		Password: cfg.Auth.Password,
	})
	if err != nil {
		return err
	}

	notifier = notify.LogNotifier{}
	client = api.NewClient(cfg.API.BaseURL,
		api.WithCredentials(authMgr),
		api.WithTimeout(cfg.API.Timeout()),
	)
	client.OnAuthInvalidated(authMgr.InvalidationHandler(notifier))

	return nil
}

func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// openHistory opens the local history database. History is best-effort:
// callers treat a nil store as "history disabled".
func openHistory() *history.Store {
	if cfg.History.DBPath == "" {
		return nil
	}
	s, err := history.New(cfg.History.DBPath)
	if err != nil {
		slog.Warn("job history unavailable", "error", err)
		return nil
	}
	return s
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
