package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"comexexport/internal/config"
	"comexexport/internal/logging"
	"comexexport/internal/pipeline"
	"comexexport/internal/providers/comexstat"
	"comexexport/internal/store"
	"comexexport/internal/store/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "exporter:", err)
		stop()
		os.Exit(1)
	}
}

type app struct {
	configPath string
	cfg        config.Config
	logger     *zap.Logger

	baseURL   string
	language  string
	startYear int
	endYear   int
	perPage   int
	output    string
	cacheDB   string
	cacheTTL  string
	verbose   bool
	strict    bool
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "exporter",
		Short: "Export yearly FOB totals by HS2 chapter from ComexStat",
		Long: `exporter looks up the destination country in the ComexStat country list,
queries yearly export totals grouped by HS2 chapter and writes them to CSV.

Run without a subcommand to perform the export.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: a.runExport,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&a.baseURL, "base-url", "", "ComexStat API root (default https://api-comexstat.mdic.gov.br)")
	flags.StringVar(&a.language, "language", config.DefaultLanguage, "response language")
	flags.IntVar(&a.startYear, "start-year", config.DefaultStartYear, "first year to query")
	flags.IntVar(&a.endYear, "end-year", config.DefaultEndYear, "last year to query")
	flags.IntVar(&a.perPage, "per-page", config.DefaultPerPage, "page size of the single query page")
	flags.StringVar(&a.output, "out", config.DefaultOutput, "CSV output path")
	flags.StringVar(&a.cacheDB, "cache-db", "", "sqlite path for caching the country list (empty disables)")
	flags.StringVar(&a.cacheTTL, "cache-ttl", config.DefaultCacheTTL, "maximum age of cached country entries (0 = no expiry)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging on stderr")
	flags.BoolVar(&a.strict, "strict", false, "exit with status 1 when the export does not complete")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Fetch, resolve, query and write the CSV export",
			Args:  cobra.NoArgs,
			RunE:  a.runExport,
		},
		&cobra.Command{
			Use:   "countries [term...]",
			Short: "List country filter entries, optionally only those matching terms",
			RunE:  a.listCountries,
		},
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Verbose)
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL = a.baseURL
	}
	if flags.Changed("language") {
		cfg.Language = a.language
	}
	if flags.Changed("start-year") {
		cfg.StartYear = a.startYear
	}
	if flags.Changed("end-year") {
		cfg.EndYear = a.endYear
	}
	if flags.Changed("per-page") {
		cfg.PerPage = a.perPage
	}
	if flags.Changed("out") {
		cfg.Output = a.output
	}
	if flags.Changed("cache-db") {
		cfg.CacheDB = a.cacheDB
	}
	if flags.Changed("cache-ttl") {
		cfg.CacheTTL = a.cacheTTL
	}
	if flags.Changed("verbose") {
		cfg.Verbose = a.verbose
	}
	if flags.Changed("strict") {
		cfg.Strict = a.strict
	}
}

func (a *app) runExport(cmd *cobra.Command, args []string) error {
	runner, closeStore, err := a.buildRunner(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	outcome, err := runner.Run(cmd.Context())
	if err != nil {
		a.logger.Debug("export did not complete",
			zap.String("run_id", outcome.RunID),
			zap.Stringer("stage", outcome.Stage),
			zap.Error(err),
		)
		if a.cfg.Strict {
			return fmt.Errorf("%s: %w", outcome.Stage, err)
		}
	}
	return nil
}

func (a *app) listCountries(cmd *cobra.Command, args []string) error {
	runner, closeStore, err := a.buildRunner(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	entries, err := runner.Entries(cmd.Context(), args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, entry := range entries {
		fmt.Fprintf(out, "%-8s %s\n", entry.ValueString(), entry.DisplayText())
	}
	fmt.Fprintf(out, "%s entries\n", humanize.Comma(int64(len(entries))))
	return nil
}

func (a *app) buildRunner(cmd *cobra.Command) (*pipeline.Runner, func(), error) {
	providerConfig, err := comexstat.ConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(a.cfg.BaseURL) != "" {
		providerConfig.BaseURL = a.cfg.BaseURL
	}
	provider, err := comexstat.NewWithConfig(providerConfig)
	if err != nil {
		return nil, nil, err
	}

	st, err := openStore(a.cfg.CacheDB)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}
	closeStore := func() {
		if err := st.Close(); err != nil {
			a.logger.Warn("closing cache failed", zap.Error(err))
		}
	}

	maxAge, err := a.cfg.CacheMaxAge()
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	runner := pipeline.New(provider, st, a.logger, cmd.OutOrStdout(), pipeline.Options{
		Dimension:   a.cfg.Dimension,
		Language:    a.cfg.Language,
		Terms:       a.cfg.Terms,
		StartYear:   a.cfg.StartYear,
		EndYear:     a.cfg.EndYear,
		PerPage:     a.cfg.PerPage,
		Output:      a.cfg.Output,
		PreviewRows: a.cfg.PreviewRows,
		CacheMaxAge: maxAge,
	})
	return runner, closeStore, nil
}

func openStore(path string) (store.Store, error) {
	if strings.TrimSpace(path) == "" {
		return &store.NopStore{}, nil
	}
	return sqlite.New(path)
}
