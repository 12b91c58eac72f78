package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"
	"github.com/mattn/go-isatty"

	"github.com/marcin-skalski/pr-monitor/internal/config"
	"github.com/marcin-skalski/pr-monitor/internal/credentials"
	"github.com/marcin-skalski/pr-monitor/internal/daemon"
	"github.com/marcin-skalski/pr-monitor/internal/fetch"
	"github.com/marcin-skalski/pr-monitor/internal/github"
	"github.com/marcin-skalski/pr-monitor/internal/logging"
	"github.com/marcin-skalski/pr-monitor/internal/pool"
	"github.com/marcin-skalski/pr-monitor/internal/settings"
	"github.com/marcin-skalski/pr-monitor/internal/tui"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (defaults when empty)")
	repoFilter := flag.String("repo_search_filter", "", "only show repositories whose name contains this text")
	askPAT := flag.Bool("pat", false, "ask for a new GitHub personal access token")
	noTUI := flag.Bool("no-tui", false, "disable TUI mode")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Auto-detect TUI capability
	enableTUI := !*noTUI && os.Getenv("PR_MONITOR_TUI") != "0" &&
		isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())

	logger, logFile, err := logging.SetupLogger(cfg.LogFile, cfg.Log.Level, enableTUI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	settingsPath, err := settings.DefaultPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	store, err := settings.Open(settingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	creds := credentials.New()

	newClient := func(token string) fetch.API {
		return github.NewClient(token,
			github.WithLogger(logger),
			github.WithBaseURL(cfg.GitHub.APIURL),
			github.WithRetry(cfg.GitHub.RetryAttempts, cfg.GitHub.RetryDelay),
			github.WithCacheTTL(cfg.GitHub.CacheTTL),
			github.WithTimeout(cfg.GitHub.Timeout),
		)
	}
	workers := pool.New(cfg.GitHub.MaxWorkers)
	orchestrator := fetch.New(newClient, workers, logger)

	var opts []daemon.Option
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "repo_search_filter" {
			opts = append(opts, daemon.WithFilterOverride(strings.ToLower(strings.TrimSpace(*repoFilter))))
		}
	})
	d := daemon.New(cfg, orchestrator, creds, store, logger, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("pr-monitor starting",
		"config", *configPath,
		"settings", store.Path(),
		"max_workers", workers.Size(),
		"tui", enableTUI)

	if enableTUI {
		// TUI mode: run daemon in background, TUI in foreground
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := d.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("daemon error", "err", err)
			}
		}()

		var tuiOpts []tui.Option
		if *askPAT {
			tuiOpts = append(tuiOpts, tui.WithTokenPrompt())
		}
		m := tui.NewModel(d, cfg.TUI.RefreshInterval, tuiOpts...)
		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

		_, runErr := p.Run()
		stop()
		<-done
		if runErr != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", runErr)
			os.Exit(1)
		}
		return
	}

	// Headless mode
	token, err := creds.Token()
	if err != nil {
		logger.Warn("read token failed", "err", err)
	}
	if *askPAT || token == "" {
		if err := promptToken(d); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon error", "err", err)
		os.Exit(1)
	}
}

// promptToken reads a token from stdin until the daemon accepts one.
func promptToken(d *daemon.Daemon) error {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "GitHub personal access token: ")

		var input string
		if term.IsTerminal(os.Stdin.Fd()) {
			b, err := term.ReadPassword(os.Stdin.Fd())
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("read token: %w", err)
			}
			input = string(b)
		} else {
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read token: %w", err)
			}
			input = line
		}

		if err := d.SetToken(input); err != nil {
			fmt.Fprintf(os.Stderr, "invalid token: %v\n", err)
			continue
		}
		return nil
	}
}
