package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/hpungsan/browsediary/internal/config"
	"github.com/hpungsan/browsediary/internal/errors"
	"github.com/hpungsan/browsediary/internal/history"
	"github.com/hpungsan/browsediary/internal/record"
)

// Collector reads one day of visits from the history store and validates them
// into records.
type Collector struct {
	source    string
	conv      history.Converter
	patterns  []string
	minCount  int
	sourceTag string
	logger    *slog.Logger

	// WorkRoot is where temporary workspaces are created. Empty means the
	// system temp dir.
	WorkRoot string
}

// NewCollector builds a Collector from cfg. The diary path is not needed.
func NewCollector(cfg *config.Config, logger *slog.Logger) (*Collector, error) {
	if err := cfg.ValidateSource(); err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &Collector{
		source:    cfg.SourcePath,
		conv:      history.NewConverter(loc),
		patterns:  cfg.Patterns(),
		minCount:  cfg.MinVisitCount,
		sourceTag: cfg.SourceTag,
		logger:    logger,
	}, nil
}

// Converter returns the converter bound to the configured timezone.
func (c *Collector) Converter() history.Converter {
	return c.conv
}

// ResolveDay parses date, or returns yesterday in the configured timezone
// when date is empty.
func (c *Collector) ResolveDay(date string) (time.Time, error) {
	if date == "" {
		return c.conv.Yesterday(timeNow()), nil
	}
	return c.conv.ParseDate(date)
}

// Collect gathers records for day using a workspace of its own.
func (c *Collector) Collect(ctx context.Context, day time.Time) ([]record.ActivityRecord, error) {
	ws, err := AcquireWorkspace(c.WorkRoot, newRunID())
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Release(); err != nil {
			c.logger.Warn("workspace cleanup failed", "path", ws.Dir, "err", err)
		}
	}()
	return c.CollectInto(ctx, day, ws.Dir)
}

// CollectInto snapshots the store into dir and gathers records for day from
// the copy. Malformed rows are logged and skipped.
func (c *Collector) CollectInto(ctx context.Context, day time.Time, dir string) ([]record.ActivityRecord, error) {
	if ctx.Err() != nil {
		return nil, errors.NewCancelled(string(StateCollecting))
	}

	snapshot, err := history.Snapshot(c.source, dir)
	if err != nil {
		return nil, err
	}

	store, err := history.Open(snapshot)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	rows, err := store.Aggregate(ctx, c.conv, history.AggregateInput{
		Day:             day,
		ExcludePatterns: c.patterns,
		MinVisitCount:   c.minCount,
	})
	if err != nil {
		return nil, err
	}

	date := day.Format(history.DateLayout)
	records := record.Validate(rows, date, c.sourceTag, c.logger)
	c.logger.Debug("collected", "date", date, "rows", len(rows), "records", len(records))
	return records, nil
}
