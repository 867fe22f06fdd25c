// Package pipeline sequences collection, rendering and merging for one day.
package pipeline

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/browsediary/internal/config"
	"github.com/hpungsan/browsediary/internal/diary"
	"github.com/hpungsan/browsediary/internal/errors"
	"github.com/hpungsan/browsediary/internal/history"
	"github.com/hpungsan/browsediary/internal/record"
	"github.com/hpungsan/browsediary/internal/render"
)

// Options controls a single run.
type Options struct {
	Date  string // YYYY-MM-DD; empty means yesterday
	Force bool   // accepted and logged; does not change behavior
}

// Result summarizes a run. It is returned alongside the error on failure.
type Result struct {
	RunID        string `json:"run_id"`
	Date         string `json:"date"`
	Path         string `json:"path,omitempty"`
	Records      int    `json:"records"`
	LinesWritten int    `json:"lines_written"`
	Created      bool   `json:"created"`
	NoOp         bool   `json:"no_op"`
	State        State  `json:"state"`
}

// Pipeline runs collect, render and merge for one day.
type Pipeline struct {
	Collector *Collector
	Renderer  *render.Renderer
	Merger    *diary.Merger
	logger    *slog.Logger
}

// New builds a Pipeline from a validated configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	collector, err := NewCollector(cfg, logger)
	if err != nil {
		return nil, err
	}
	renderer, err := render.New(cfg.Header, cfg.LineTemplate)
	if err != nil {
		return nil, err
	}
	merger, err := diary.NewMerger(cfg.DiaryPath)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Collector: collector,
		Renderer:  renderer,
		Merger:    merger,
		logger:    logger,
	}, nil
}

// run tracks the state of one invocation.
type run struct {
	state  State
	logger *slog.Logger
	result *Result
}

func (r *run) enter(to State) {
	if !CanTransition(r.state, to) {
		panic(fmt.Sprintf("pipeline: invalid transition %s -> %s", r.state, to))
	}
	r.state = to
	r.result.State = to
	r.logger.Info("stage started", "stage", to)
}

func (r *run) ok(attrs ...any) {
	r.logger.Info("stage finished", append([]any{"stage", r.state, "outcome", "ok"}, attrs...)...)
}

func (r *run) fail(err error) (*Result, error) {
	r.logger.Error("stage finished",
		"stage", r.state, "outcome", "failed", "code", errors.CodeOf(err), "retryable", errors.IsRetryable(err), "err", err)
	r.state = StateFailed
	r.result.State = StateFailed
	return r.result, err
}

// checkpoint fails the run if ctx was cancelled before the next stage.
func (r *run) checkpoint(ctx context.Context, stage State) error {
	if ctx.Err() != nil {
		return errors.NewCancelled(string(stage))
	}
	return nil
}

// Run executes the pipeline for opts.Date. The workspace is removed on every
// exit path. Running twice for the same day appends the block twice.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	runID := newRunID()
	r := &run{
		state:  StateIdle,
		logger: p.logger.With("run_id", runID),
		result: &Result{RunID: runID, State: StateIdle},
	}

	day, err := p.Collector.ResolveDay(opts.Date)
	if err != nil {
		return r.fail(err)
	}
	date := day.Format(history.DateLayout)
	r.result.Date = date
	r.logger = r.logger.With("date", date)
	r.logger.Info("pipeline started", "force", opts.Force)
	start := time.Now()

	ws, err := AcquireWorkspace(p.Collector.WorkRoot, runID)
	if err != nil {
		return r.fail(err)
	}
	defer func() {
		if err := ws.Release(); err != nil {
			r.logger.Warn("workspace cleanup failed", "path", ws.Dir, "err", err)
		}
	}()

	// Collecting
	r.enter(StateCollecting)
	records, err := p.Collector.CollectInto(ctx, day, ws.Dir)
	if err != nil {
		return r.fail(err)
	}
	if err := writeRecords(ws.RecordsPath(), records); err != nil {
		return r.fail(err)
	}
	r.result.Records = len(records)
	r.ok("records", len(records))

	// Formatting
	if err := r.checkpoint(ctx, StateFormatting); err != nil {
		return r.fail(err)
	}
	r.enter(StateFormatting)
	collected, err := readRecords(ws.RecordsPath(), r.logger)
	if err != nil {
		return r.fail(err)
	}
	block := p.Renderer.Render(collected)
	r.ok("lines", len(block.Lines))

	// Merging
	if err := r.checkpoint(ctx, StateMerging); err != nil {
		return r.fail(err)
	}
	r.enter(StateMerging)
	merged, err := p.Merger.Merge(day, block)
	if err != nil {
		return r.fail(err)
	}
	r.result.Path = merged.Path
	r.result.LinesWritten = merged.LinesWritten
	r.result.Created = merged.Created
	r.result.NoOp = merged.NoOp
	r.ok("path", merged.Path, "lines_written", merged.LinesWritten, "no_op", merged.NoOp)

	r.enter(StateDone)
	r.logger.Info("pipeline finished", "duration", time.Since(start))
	return r.result, nil
}

// writeRecords stores records as JSONL at path.
func writeRecords(path string, records []record.ActivityRecord) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("create records file: %w", err))
	}
	if err := record.WriteJSONL(f, records); err != nil {
		f.Close()
		return errors.NewInternal(fmt.Errorf("write records file: %w", err))
	}
	if err := f.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("close records file: %w", err))
	}
	return nil
}

// readRecords loads the JSONL records written by the collecting stage.
func readRecords(path string, logger *slog.Logger) ([]record.ActivityRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("open records file: %w", err))
	}
	defer f.Close()
	return record.ReadJSONL(f, logger)
}

// newRunID returns a fresh ULID string.
func newRunID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
