package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"parley/internal/config"
	"parley/internal/gateway/local"
	"parley/internal/model"
	anthropicprovider "parley/internal/model/anthropic"
	"parley/internal/session"
	"parley/internal/tui"
)

var errUnsupportedProvider = errors.New("unsupported provider")

func main() {
	if err := execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	var configPath string
	var sessionKey string

	cmd := &cobra.Command{
		Use:   "parley",
		Short: "parley is a streaming chat TUI for Anthropic models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(config.LoadOptions{Path: strings.TrimSpace(configPath)})
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if key := strings.TrimSpace(sessionKey); key != "" {
				cfg.Chat.SessionKey = key
			}

			provider, modelName, err := buildProviderFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("build provider: %w", err)
			}

			store, err := session.NewStore(cfg.SessionsDir())
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}

			gw, err := local.New(local.Config{
				Store:         store,
				Provider:      provider,
				Model:         modelName,
				System:        cfg.Chat.System,
				MaxTokens:     cfg.Chat.MaxTokens,
				ThinkingLevel: cfg.Chat.ThinkingLevel,
			})
			if err != nil {
				return fmt.Errorf("start gateway: %w", err)
			}
			defer gw.Close()

			app := tui.NewApp(tui.AppConfig{
				Version:       "v0.1.0",
				ModelName:     modelName,
				SessionKey:    cfg.Chat.SessionKey,
				ThemeName:     cfg.TUI.Theme,
				ThinkingLevel: cfg.Chat.ThinkingLevel,
				Bell:          cfg.TUI.Bell,
				Client:        gw,
				Events:        gw,
				Store:         store,
			})

			program := tea.NewProgram(app, tea.WithAltScreen())
			if _, err := program.Run(); err != nil {
				return fmt.Errorf("run tui: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file")
	cmd.Flags().StringVar(&sessionKey, "session", "", "Session key to open")
	return cmd
}

func buildProviderFromConfig(cfg config.Config) (model.Provider, string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider.Default)) {
	case "", "anthropic":
		settings, err := cfg.AnthropicSettings()
		if err != nil {
			return nil, "", fmt.Errorf("resolve anthropic settings: %w", err)
		}
		if strings.TrimSpace(settings.APIKey) == "" {
			return nil, "", model.ErrMissingAPIKey
		}

		provider := anthropicprovider.New(anthropicprovider.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Version: settings.Version,
			Retry: model.RetryPolicy{
				MaxRetries: settings.Retry.MaxRetries,
				BaseDelay:  settings.Retry.BaseDelay,
				MaxDelay:   settings.Retry.MaxDelay,
			},
			Pricing: buildPricing(cfg),
		})
		return provider, settings.Model, nil
	default:
		return nil, "", fmt.Errorf("%w: %s", errUnsupportedProvider, cfg.Provider.Default)
	}
}

func buildPricing(cfg config.Config) map[string]model.Pricing {
	if len(cfg.Provider.Anthropic.Pricing) == 0 {
		return nil
	}
	pricing := make(map[string]model.Pricing, len(cfg.Provider.Anthropic.Pricing))
	for name, entry := range cfg.Provider.Anthropic.Pricing {
		pricing[name] = model.Pricing{
			InputPerMTokUSD:      entry.InputPerMTok,
			OutputPerMTokUSD:     entry.OutputPerMTok,
			CacheReadPerMTokUSD:  entry.CacheReadPerMTok,
			CacheWritePerMTokUSD: entry.CacheWritePerMTok,
		}
	}
	return pricing
}
