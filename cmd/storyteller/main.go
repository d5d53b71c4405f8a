package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"Storyteller/internal/backend"
	"Storyteller/internal/chatclient"
	"Storyteller/internal/command"
	"Storyteller/internal/config"
	"Storyteller/internal/history"
	"Storyteller/internal/render"
	"Storyteller/internal/repl"
	"Storyteller/internal/telemetry"
	"Storyteller/internal/tui"
)

var _ chatclient.Recorder = (*history.Store)(nil)

// markdownWidth is the word-wrap column for terminal markdown.
const markdownWidth = 80

// options holds the raw flag values; loadConfig only applies the ones the user set.
type options struct {
	configPath  string
	backendURL  string
	target      string
	level       string
	native      string
	timeout     time.Duration
	plain       bool
	noMarkdown  bool
	debug       bool
	logDir      string
	historyDB   string
	watchConfig bool
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&options{})
}

func newRootCmdWith(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "storyteller",
		Short: "Interactive language-learning adventures in your terminal",
		Long: `storyteller talks to a Storyteller backend and plays a story with you in the
language you are learning. Pick a target language, a CEFR level and your native
language, start an adventure, and reply to the story as it unfolds.

Run without arguments to open the full-screen interface, or with --plain for a
line-by-line prompt.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd, opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML settings file")
	pf.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	pf.StringVar(&opts.logDir, "log-dir", "", "Directory for log, trace and metric files (default logs)")
	pf.StringVar(&opts.historyDB, "history-db", "", "SQLite file for the conversation history log")

	f := root.Flags()
	f.StringVar(&opts.backendURL, "backend-url", config.DefaultBackendURL, "Storyteller backend address (or set "+config.EnvBackendURL+")")
	f.StringVar(&opts.target, "target", "", "Language to learn")
	f.StringVar(&opts.level, "level", "", "Proficiency level (A1..C2)")
	f.StringVar(&opts.native, "native", "", "Language for explanations")
	f.DurationVar(&opts.timeout, "timeout", 60*time.Second, "Per-request timeout (0 disables)")
	f.BoolVar(&opts.plain, "plain", false, "Use the line-mode prompt instead of the full-screen interface")
	f.BoolVar(&opts.noMarkdown, "no-markdown", false, "Show story text literally")
	f.BoolVar(&opts.watchConfig, "watch-config", false, "Reload the language selection when the settings file changes")

	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newStubCmd(opts))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, the settings file, the environment and explicitly
// set flags, in that order.
func loadConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	changed := func(name string) bool {
		fl := flags.Lookup(name)
		return fl != nil && fl.Changed
	}
	if changed("backend-url") {
		cfg.BackendURL = opts.backendURL
	}
	if changed("target") {
		cfg.Selection.TargetLanguage = opts.target
	}
	if changed("level") {
		cfg.Selection.Level = opts.level
	}
	if changed("native") {
		cfg.Selection.NativeLanguage = opts.native
	}
	if changed("timeout") {
		cfg.Timeout = opts.timeout
	}
	if changed("no-markdown") {
		cfg.Markdown = !opts.noMarkdown
	}
	if changed("debug") {
		cfg.Debug = opts.debug
	}
	if changed("log-dir") {
		cfg.LogDir = opts.logDir
	}
	if changed("history-db") {
		cfg.HistoryDB = opts.historyDB
	}
	if changed("watch-config") {
		cfg.WatchConfig = opts.watchConfig
	}
	cfg.Plain = opts.plain

	if cfg.WatchConfig && cfg.Path == "" {
		return cfg, fmt.Errorf("--watch-config needs --config")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runClient(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer shutdown()

	be, err := backend.NewClient(cfg.BackendURL, cfg.Timeout,
		backend.WithLogger(logger),
		backend.WithTracer(tracer),
		backend.WithMeter(meter),
	)
	if err != nil {
		return err
	}
	defer be.Close()

	settings := config.NewSettings(cfg.Selection)
	settings.OnChange(func(sel config.Selection) {
		logger.Info("selection changed",
			"target_language", sel.TargetLanguage,
			"level", sel.Level,
			"native_language", sel.NativeLanguage)
	})

	clientOpts := []chatclient.Option{chatclient.WithLogger(logger)}
	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()
		clientOpts = append(clientOpts, chatclient.WithRecorder(store))
	}

	if cfg.WatchConfig {
		w, err := config.NewWatcher(cfg.Path, settings, logger)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	logger.Info("storyteller starting",
		"backend_url", cfg.BackendURL,
		"plain", cfg.Plain,
		"markdown", cfg.Markdown,
		"history", cfg.HistoryDB != "")

	if cfg.Plain {
		return runREPL(ctx, cmd, cfg, be, settings, logger, clientOpts)
	}
	return runTUI(ctx, cfg, be, settings, logger, clientOpts)
}

func markdownOption(cfg config.Config, style string, logger *slog.Logger) []chatclient.Option {
	if !cfg.Markdown {
		return nil
	}
	md, err := render.NewTerminal(style, markdownWidth)
	if err != nil {
		logger.Warn("markdown disabled", "error", err)
		return nil
	}
	return []chatclient.Option{chatclient.WithMarkdown(md)}
}

func runREPL(ctx context.Context, cmd *cobra.Command, cfg config.Config, be chatclient.Backend,
	settings *config.Settings, logger *slog.Logger, opts []chatclient.Option) error {
	r := repl.New(cmd.InOrStdin(), cmd.OutOrStdout(), logger)
	opts = append(opts, markdownOption(cfg, "notty", logger)...)
	client := chatclient.New(be, settings, r, opts...)
	cmds := command.NewDispatcher(client, settings, render.NewHTML(), logger)
	return r.Run(ctx, client, cmds)
}

func runTUI(ctx context.Context, cfg config.Config, be chatclient.Backend,
	settings *config.Settings, logger *slog.Logger, opts []chatclient.Option) error {
	view := tui.NewView()
	opts = append(opts, markdownOption(cfg, "dark", logger)...)
	client := chatclient.New(be, settings, view, opts...)
	cmds := command.NewDispatcher(client, settings, render.NewHTML(), logger)
	return tui.Run(ctx, tui.NewModel(ctx, client, cmds, settings, view, logger))
}
