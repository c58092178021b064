package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/repoindex/internal/config"
	"github.com/dshills/repoindex/internal/embedder"
	"github.com/dshills/repoindex/internal/logging"
	"github.com/dshills/repoindex/internal/service"
)

// app carries state shared by every subcommand. The service is built on
// first use so commands like version and config never touch the stores.
type app struct {
	configPath string
	loader     *config.Loader
	cfg        *config.Config
	logger     zerolog.Logger
	svc        *service.Service
}

// persistent flag name -> config key
var boundFlags = map[string]string{
	"data-dir":   "data_dir",
	"log-level":  "log.level",
	"log-format": "log.format",
	"embedder":   "embedder.provider",
}

// execute runs the command line in args and releases whatever the run opened
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	a := &app{loader: config.NewLoader(), logger: zerolog.Nop()}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.close())
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repoindex",
		Short: "Incremental hybrid code search over local repositories",
		Long: `repoindex keeps a searchable index of local repositories. Files are
indexed incrementally by content hash and searched by keyword (full-text),
by meaning (embeddings) or by both at once.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ~/.repoindex/config.yaml)")
	flags.String("data-dir", "", "directory holding the index databases (default ~/.repoindex)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: console or json")
	flags.String("embedder", "", "embedding provider: local, ollama or openai")

	cmd.AddCommand(
		newIndexCmd(a),
		newSearchCmd(a),
		newListCmd(a),
		newReconcileCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// setup resolves the configuration and builds the logger
func (a *app) setup(cmd *cobra.Command) error {
	for name, key := range boundFlags {
		if err := a.loader.BindFlag(key, cmd.Root().PersistentFlags().Lookup(name)); err != nil {
			return err
		}
	}

	cfg, err := a.loader.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	a.logger = logger

	if used := a.loader.ConfigFileUsed(); used != "" {
		a.logger.Debug().Str("file", used).Msg("configuration loaded")
	}
	return nil
}

// service returns the application service, creating it on first use
func (a *app) service() (*service.Service, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	if a.cfg == nil {
		return nil, errors.New("configuration not loaded")
	}

	emb, err := embedder.New(a.cfg.Embedder.EmbedderSettings())
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	a.logger.Debug().
		Str("provider", emb.Provider()).
		Str("model", emb.Model()).
		Msg("embedder ready")

	a.svc = service.New(a.cfg.DataDir, emb,
		service.WithLogger(a.logger),
		service.WithSearchDefaults(a.cfg.Search.Limit, a.cfg.Search.KeywordWeight, a.cfg.Search.SemanticWeight),
		service.WithIndexDefaults(a.cfg.Index.Include, a.cfg.Index.Exclude),
	)
	return a.svc, nil
}

func (a *app) close() error {
	if a.svc == nil {
		return nil
	}
	return a.svc.Close()
}
