package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/bastiangx/codeserve/internal/cli"
	"github.com/bastiangx/codeserve/internal/logger"
	"github.com/bastiangx/codeserve/internal/utils"
	"github.com/bastiangx/codeserve/pkg/config"
	"github.com/bastiangx/codeserve/pkg/learning"
	"github.com/bastiangx/codeserve/pkg/patterns"
	"github.com/bastiangx/codeserve/pkg/predict"
	"github.com/bastiangx/codeserve/pkg/report"
	"github.com/bastiangx/codeserve/pkg/server"
	"github.com/bastiangx/codeserve/pkg/snippets"
	"github.com/bastiangx/codeserve/pkg/storage"
	"github.com/bastiangx/codeserve/pkg/syntax"
	"github.com/bastiangx/codeserve/pkg/workspace"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	configPath    string
	debugMode     bool
	dataDir       string
	minConfidence float64
	typingPause   int
	minFragment   int
	maxPatterns   int

	watchDir     string
	cliLanguage  string
	reportFormat string
)

var rootCmd = &cobra.Command{
	Use:   AppName,
	Short: "Learns code patterns and predicts what you type next",
	Long: `CodeServe learns recurring JavaScript and TypeScript structures from
the files you edit and serves predictions, completions and snippets to an
editor over MessagePack on stdin/stdout.

Run without a subcommand to start the IPC server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetDebug(debugMode)
	},
	RunE: runServe,
}

var cliCmd = &cobra.Command{
	Use:   "cli",
	Short: "Type lines of code and see predictions [DBG]",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := buildEngine(ctx, cmd)
		if err != nil {
			return err
		}
		defer eng.close(context.Background())

		log.SetReportTimestamp(false)
		h := cli.NewInputHandler(eng.predictor, eng.controller, cliLanguage, eng.cfg.CLI.DefaultContextLines)
		if err := h.Start(ctx); err != nil {
			log.Errorf("CLI error: %v", err)
			return err
		}
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report <dir>",
	Short: "Print function and class structure of a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if reportFormat != "md" && reportFormat != "yaml" {
			return fmt.Errorf("unknown format %q (want md or yaml)", reportFormat)
		}
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		r, err := report.Scan(cmd.Context(), args[0], syntax.NewParser(), cfg.Report)
		if err != nil {
			return err
		}
		if reportFormat == "md" {
			fmt.Fprint(cmd.OutOrStdout(), report.Markdown(r))
			return nil
		}
		out, err := report.YAML(r)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var learnCmd = &cobra.Command{
	Use:   "learn <files...>",
	Short: "Learn patterns from source files and store them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := buildEngine(ctx, cmd)
		if err != nil {
			return err
		}

		h := cli.NewInputHandler(eng.predictor, eng.controller, "", eng.cfg.CLI.DefaultContextLines)
		var errs []error
		for _, path := range args {
			pass, err := h.LearnFile(ctx, path)
			if err != nil && !learning.IsParseFailure(err) {
				log.Warn("skipped", "file", path, "error", err)
				errs = append(errs, err)
				continue
			}
			log.Info("learned", "file", utils.GetAbsolutePath(path), "accepted", pass.Accepted, "inserted", pass.Inserted,
				"reinforced", pass.Reinforced, "rejected", pass.Rejected)
		}
		st := eng.store.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "%s patterns stored (capacity %d)\n",
			utils.FormatWithCommas(st.Patterns), st.Capacity)
		if err := eng.close(ctx); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show current version",
	Run: func(cmd *cobra.Command, args []string) {
		showVersion()
	},
}

func init() {
	defaults := config.DefaultConfig()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to a TOML config file")
	pf.BoolVarP(&debugMode, "debug", "d", false, "Toggle debug mode")
	pf.StringVar(&dataDir, "data", "", "Directory holding the pattern database")
	pf.Float64Var(&minConfidence, "min-confidence", defaults.Engine.MinConfidence, "Hide predictions below this confidence")
	pf.IntVar(&typingPause, "pause", defaults.Engine.TypingPauseMs, "Typing pause in ms before buffered edits are learned")
	pf.IntVar(&minFragment, "min-fragment", defaults.Engine.MinFragmentLength, "Minimum fragment length worth learning")
	pf.IntVar(&maxPatterns, "max-patterns", defaults.Engine.MaxPatterns, "Pattern store capacity")

	rootCmd.Flags().StringVar(&watchDir, "watch", "", "Also learn from files saved under this directory")
	cliCmd.Flags().StringVar(&cliLanguage, "lang", "javascript", "Language tag of typed lines")
	reportCmd.Flags().StringVar(&reportFormat, "format", "md", "Output format: md or yaml")

	rootCmd.AddCommand(cliCmd, reportCmd, learnCmd, versionCmd)
}

// loadConfig loads the config file and applies every flag the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	cfg, path, err := config.LoadConfigWithPriority(configPath)
	if err != nil {
		return nil, "", err
	}

	var o config.Overrides
	flags := cmd.Flags()
	if flags.Changed("min-confidence") {
		o.MinConfidence = &minConfidence
	}
	if flags.Changed("pause") {
		o.TypingPauseMs = &typingPause
	}
	if flags.Changed("min-fragment") {
		o.MinFragmentLength = &minFragment
	}
	if flags.Changed("max-patterns") {
		o.MaxPatterns = &maxPatterns
	}
	if flags.Changed("data") {
		o.DataPath = &dataDir
	}
	cfg.Apply(o)
	log.Debugf("Using config file: (%s)", path)
	return cfg, path, nil
}

// engine bundles every component a command may need.
type engine struct {
	cfg        *config.Config
	dataDir    string
	parser     *syntax.Parser
	kv         storage.KV
	store      *patterns.Store
	controller *learning.Controller
	predictor  *predict.Engine
	snippets   *snippets.Store
}

func buildEngine(ctx context.Context, cmd *cobra.Command) (*engine, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	eng := &engine{cfg: cfg, parser: syntax.NewParser()}
	var db *storage.Badger
	if cfg.Store.InMemory {
		eng.dataDir = "(memory)"
		db, err = storage.OpenInMemory()
	} else {
		pathResolver, perr := utils.NewPathResolver()
		if perr != nil {
			log.Error("Either env is not set or system is not supported")
			return nil, fmt.Errorf("init path resolver: %w", perr)
		}
		eng.dataDir, err = pathResolver.GetDataDir(cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("resolve data dir: %w", err)
		}
		sc := storage.DefaultConfig(eng.dataDir)
		sc.SyncWrites = cfg.Store.SyncWrites
		db, err = storage.Open(sc)
	}
	if err != nil {
		return nil, err
	}
	eng.kv = db
	log.Debugf("Using data dir at: %s", eng.dataDir)

	eng.store = patterns.New(db, patterns.WithCapacity(cfg.Engine.MaxPatterns))
	if err := eng.store.Load(ctx); err != nil {
		log.Warn("starting with an empty pattern store", "error", err)
	}
	eng.controller = learning.New(cfg.Engine, eng.parser, eng.store)
	eng.predictor = predict.New(eng.store, eng.parser, cfg.Engine)
	eng.snippets = snippets.NewStore(db)
	return eng, nil
}

// close persists the pattern store and closes the database.
func (e *engine) close(ctx context.Context) error {
	return errors.Join(e.store.Persist(ctx), e.kv.Close())
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	eng, err := buildEngine(ctx, cmd)
	if err != nil {
		return err
	}

	var watcher *workspace.Watcher
	if watchDir != "" {
		if watcher, err = startWatcher(ctx, eng, watchDir); err != nil {
			return err
		}
	}

	srv := server.NewStdioServer(server.Deps{
		Config:     eng.cfg,
		Parser:     eng.parser,
		Controller: eng.controller,
		Engine:     eng.predictor,
		Snippets:   eng.snippets,
		KV:         eng.kv,
	})

	if addr := eng.cfg.Server.MetricsAddr; addr != "" {
		go func() {
			if err := server.ServeMetrics(ctx, addr); err != nil {
				log.Errorf("Metrics server: %v", err)
			}
		}()
	}


	shutdown := func() {
		cancel()
		if watcher != nil {
			watcher.Stop()
		}
		if err := srv.Stop(context.Background()); err != nil {
			log.Errorf("Shutdown: %v", err)
		}
	}
	sigHandler(shutdown)

	showStartupInfo(eng.dataDir, eng.store.Len())
	log.Debug("spawning IPC")
	if err := srv.Start(ctx); err != nil {
		log.Errorf("Server stopped: %v", err)
		shutdown()
		return err
	}
	shutdown()
	return nil
}


// startWatcher learns from files saved under root. On failure the engine
// is closed so the database lock and pending patterns are released.
func startWatcher(ctx context.Context, eng *engine, root string) (*workspace.Watcher, error) {
	w, err := workspace.NewWatcher(root, eng.controller, 0)
	if err == nil {
		if err = w.Start(ctx); err != nil {
			w.Stop()
		}
	}
	if err != nil {
		return nil, errors.Join(fmt.Errorf("watch %s: %w", root, err), eng.close(context.Background()))
	}
	return w, nil
}
