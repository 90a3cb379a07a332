package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/blackmesalabs/ash/classify"
	"github.com/blackmesalabs/ash/config"
	"github.com/blackmesalabs/ash/history"
	"github.com/blackmesalabs/ash/provider"
	"github.com/blackmesalabs/ash/session"
	"github.com/blackmesalabs/ash/term"
)

const version = "1.0.2"

func main() {
	versionFlag := flag.Bool("v", false, "Show version and configuration information")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}

	if *versionFlag {
		printVersion(cfg)
		return
	}

	vocab, err := classify.LoadVocabulary(filepath.Join(cfg.Dir, "vocab.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using built-in vocabulary\n", err)
		vocab = classify.Default()
	}

	factory, err := providerFactory(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
		os.Exit(1)
	}
	mgr := session.New(cfg, factory)
	ctx := context.Background()

	// One-shot mode: treat the arguments as a single AI request.
	if args := flag.Args(); len(args) > 0 {
		oneShot(ctx, mgr, strings.Join(args, " "))
		return
	}

	hist := history.New(history.DefaultLimit)
	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, ".ash_history")
	if err := hist.Load(histPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load history: %v\n", err)
	}

	// The loop decides per line when a SIGINT matters; a stray Ctrl+C
	// should not kill the wrapper mid-accounting.
	signal.Ignore(os.Interrupt)

	t := term.New(cfg, mgr, vocab, hist, term.NewShellRunner())
	if err := t.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
	}
	if err := hist.Save(histPath); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save history: %v\n", err)
	}
}

func oneShot(ctx context.Context, mgr *session.Manager, prompt string) {
	if err := mgr.Open(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize AI session: %+v\n", err)
		os.Exit(1)
	}
	text, warnings, err := mgr.Ask(ctx, prompt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	} else {
		fmt.Println(text)
		for _, w := range warnings {
			fmt.Printf("[warning] %s\n", w)
		}
	}
	if mgr.Active() {
		fmt.Println(mgr.Status())
		if cost, err := mgr.Close(ctx); err == nil && cost != "" {
			fmt.Println(cost)
		}
	}
}

func providerFactory(cfg *config.Config) (session.Factory, error) {
	switch cfg.Provider {
	case "gemini":
		return func() provider.Provider { return provider.NewGemini(cfg) }, nil
	case "azure_gateway":
		return func() provider.Provider { return provider.NewAzureGateway(cfg) }, nil
	case "anthropic":
		return func() provider.Provider { return provider.NewAnthropic(cfg) }, nil
	case "bedrock":
		return func() provider.Provider { return provider.NewBedrock(cfg) }, nil
	case "mock":
		return func() provider.Provider { return &provider.Mock{} }, nil
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", cfg.Provider)
	}
}

func printVersion(cfg *config.Config) {
	keyState := "<not set>"
	if cfg.APIKey != "" {
		keyState = "<set>"
	}
	fmt.Printf(`Ash - AI-Enabled EDA Assistant
Version: %s

Ash is a command-line tool for natural-language analysis of EDA files.
It operates using a site-assigned API key and a configurable AI model.

Current Configuration
  ASH_DIR:          %s
  ASH_PROVIDER:     %s
  ASH_MODEL:        %s
  ASH_ENDPOINT:     %s
  ASH_API_VERSION:  %s
  ASH_API_KEY:      %s
  ASH_LOG_DIR:      %s
  ASH_LOG_IDENTITY: %s
`, version, cfg.Dir, cfg.Provider, cfg.Model, cfg.Endpoint, cfg.APIVersion,
		keyState, cfg.LogDir, cfg.LogIdentity)

	for _, site := range []struct{ header, file string }{
		{"Billing Information (site_billing.txt)", "site_billing.txt"},
		{"Site Restrictions (site_restrictions.txt)", "site_restrictions.txt"},
	} {
		if text := cfg.SiteText(site.file); text != "" {
			fmt.Printf("\n%s\n%s\n", site.header, text)
		}
	}
}
