package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vcanalyst/internal/config"
	"vcanalyst/internal/transport"
)

var (
	flagBaseURL string
	flagAPIKey  string
)

var rootCmd = &cobra.Command{
	Use:           "analyst",
	Short:         "Research companies and chat about them from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "backend base URL (overrides API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "backend API key (overrides API_KEY)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if v := strings.TrimSpace(flagBaseURL); v != "" {
		cfg.Client.BaseURL = v
	}
	if v := strings.TrimSpace(flagAPIKey); v != "" {
		cfg.Client.APIKey = v
	}
	return cfg, nil
}

func newClient(cfg *config.Config) *transport.Client {
	return transport.New(transport.Options{
		BaseURL:       cfg.Client.BaseURL,
		APIKey:        cfg.Client.APIKey,
		FallbackAfter: cfg.Client.FallbackAfter,
		HTTPTimeout:   cfg.Client.HTTPTimeout,
	})
}
