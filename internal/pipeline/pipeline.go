// Package pipeline runs the export workflow: fetch the filter list, resolve the
// target entry, query the aggregation endpoint, normalize the response and
// write it to CSV. Each step runs once, in order, and any failure ends the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"comexexport/internal/model"
	"comexexport/internal/normalize"
	"comexexport/internal/providers"
	"comexexport/internal/providers/comexstat"
	"comexexport/internal/resolve"
	"comexexport/internal/sink"
	"comexexport/internal/store"
)

var ErrNoMatch = errors.New("pipeline: no matching filter entry")

type Stage int

const (
	StageFetch Stage = iota
	StageResolve
	StageQuery
	StageNormalize
	StagePersist
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageFetch:
		return "fetch"
	case StageResolve:
		return "resolve"
	case StageQuery:
		return "query"
	case StageNormalize:
		return "normalize"
	case StagePersist:
		return "persist"
	case StageDone:
		return "done"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

type Options struct {
	Dimension   string
	Language    string
	Terms       []string
	StartYear   int
	EndYear     int
	PerPage     int
	Output      string
	PreviewRows int
	CacheMaxAge time.Duration
}

// Outcome describes how far a run got. Stage is the step that failed, or
// StageDone.
type Outcome struct {
	RunID     string
	Stage     Stage
	Entry     model.FilterEntry
	FromCache bool
	Envelope  normalize.Envelope
	Response  model.RawResponse
	Result    sink.Result
}

type Runner struct {
	provider providers.Provider
	store    store.Store
	logger   *zap.Logger
	out      io.Writer
	opts     Options
}

func New(provider providers.Provider, st store.Store, logger *zap.Logger, out io.Writer, opts Options) *Runner {
	if st == nil {
		st = &store.NopStore{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	if opts.Dimension == "" {
		opts.Dimension = comexstat.DimensionCountry
	}
	if len(opts.Terms) == 0 {
		opts.Terms = resolve.DefaultTerms
	}
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = sink.DefaultPreviewRows
	}
	return &Runner{provider: provider, store: st, logger: logger, out: out, opts: opts}
}

// Run executes the workflow once. Progress and diagnostics are printed to the
// runner's writer; the returned error carries the cause of the first failure.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	outcome := Outcome{RunID: uuid.NewString(), Stage: StageFetch}
	logger := r.logger.With(zap.String("run_id", outcome.RunID), zap.String("provider", r.provider.Name()))
	started := time.Now()

	r.printf("1) Retrieving %s filter values from %s API...\n", r.opts.Dimension, r.provider.Name())
	set, fromCache, err := r.loadEntries(ctx, logger)
	if err != nil {
		r.printf("Error fetching %s list: %v\n", r.opts.Dimension, err)
		return outcome, fmt.Errorf("fetch %s list: %w", r.opts.Dimension, err)
	}
	outcome.FromCache = fromCache
	if len(set.Raw) > 0 {
		r.printf("Unrecognised %s list payload: %s\n", r.opts.Dimension, set.Raw)
	}
	r.printf("Retrieved %s %s entries (sample): %s\n", humanize.Comma(int64(len(set.Entries))), r.opts.Dimension, sample(set.Entries, 3))

	outcome.Stage = StageResolve
	entry, ok := resolve.FindEntry(set.Entries, r.opts.Terms)
	if !ok {
		r.printf("Could not detect the %s entry automatically. Inspect the %s list and pick the correct 'value' manually.\n",
			strings.Join(r.opts.Terms, " / "), r.opts.Dimension)
		for _, candidate := range resolve.Candidates(set.Entries, r.hints()) {
			r.printf("Candidate: %s\n", candidate)
		}
		logger.Warn("no filter entry matched", zap.Strings("terms", r.opts.Terms), zap.Int("entries", len(set.Entries)))
		return outcome, ErrNoMatch
	}
	outcome.Entry = entry
	r.printf("Detected %s entry: %s\n", r.opts.Dimension, entry)
	logger.Debug("resolved filter entry", zap.String("text", entry.DisplayText()), zap.String("value", entry.ValueString()))

	outcome.Stage = StageQuery
	r.printf("2) Querying export data (this may take a few seconds)...\n")
	spec := comexstat.NewExportQuery(r.opts.Dimension, entry, r.opts.StartYear, r.opts.EndYear, r.opts.PerPage, r.opts.Language)
	raw, err := r.provider.QueryGeneral(ctx, spec)
	outcome.Response = raw
	if err != nil {
		r.printf("Error querying exports: %v\n", err)
		return outcome, fmt.Errorf("query exports: %w", err)
	}
	logger.Debug("query response received", zap.Int("bytes", len(raw)))

	outcome.Stage = StageNormalize
	r.printf("3) Normalizing response into records...\n")
	normalized, err := normalize.Decode(raw)
	outcome.Envelope = normalized.Envelope
	if err != nil {
		r.printf("Error normalizing response: %v\n", err)
		r.printf("Full response preview: %s\n", raw)
		return outcome, fmt.Errorf("normalize response: %w", err)
	}
	logger.Debug("response normalized", zap.Stringer("envelope", normalized.Envelope), zap.Int("records", len(normalized.Records)))

	outcome.Stage = StagePersist
	result, err := sink.WriteCSV(r.opts.Output, normalized.Records)
	outcome.Result = result
	if errors.Is(err, sink.ErrNoRows) {
		r.printf("No rows returned. Inspect the raw response:\n%s\n", raw)
		return outcome, err
	}
	if err != nil {
		r.printf("Error saving results: %v\n", err)
		return outcome, err
	}

	r.printf("Saved %s rows (%s) to %s. Preview:\n", humanize.Comma(int64(result.Rows)), humanize.Bytes(uint64(result.Bytes)), result.Path)
	if err := sink.Preview(r.out, normalized.Records, r.opts.PreviewRows); err != nil {
		logger.Warn("preview failed", zap.Error(err))
	}

	outcome.Stage = StageDone
	logger.Info("export complete",
		zap.String("output", result.Path),
		zap.Int("rows", result.Rows),
		zap.Strings("columns", result.Columns),
		zap.Duration("elapsed", time.Since(started)),
	)
	return outcome, nil
}

// Entries returns the filter entries whose display text contains any of terms,
// or all entries when terms is empty.
func (r *Runner) Entries(ctx context.Context, terms []string) ([]model.FilterEntry, error) {
	set, _, err := r.loadEntries(ctx, r.logger)
	if err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return set.Entries, nil
	}
	return resolve.Candidates(set.Entries, terms), nil
}

func (r *Runner) loadEntries(ctx context.Context, logger *zap.Logger) (model.FilterSet, bool, error) {
	cached, err := r.store.ListFilterEntries(ctx, r.opts.Dimension, r.opts.Language, r.opts.CacheMaxAge)
	if err != nil {
		logger.Warn("filter cache read failed", zap.Error(err))
	} else if len(cached) > 0 {
		logger.Debug("using cached filter entries", zap.Int("entries", len(cached)))
		return model.FilterSet{Entries: cached}, true, nil
	}

	set, err := r.provider.ListFilterValues(ctx, r.opts.Dimension, r.opts.Language)
	if err != nil {
		return set, false, err
	}
	if len(set.Entries) > 0 {
		if err := r.store.SaveFilterEntries(ctx, r.opts.Dimension, r.opts.Language, set.Entries); err != nil {
			logger.Warn("filter cache write failed", zap.Error(err))
		}
	}
	return set, false, nil
}

func (r *Runner) hints() []string {
	hints := make([]string, 0, len(resolve.DefaultHints)+len(r.opts.Terms))
	hints = append(hints, resolve.DefaultHints...)
	hints = append(hints, r.opts.Terms...)
	return hints
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

func sample(entries []model.FilterEntry, n int) string {
	if n > len(entries) {
		n = len(entries)
	}
	parts := make([]string, 0, n)
	for _, entry := range entries[:n] {
		parts = append(parts, entry.String())
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
