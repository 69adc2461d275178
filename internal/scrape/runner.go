package scrape

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/menu-scraper/internal/metrics"
)

// TargetScraper processes a single target.
type TargetScraper interface {
	Scrape(ctx context.Context, target string) (*Outcome, error)
}

// RunnerConfig controls Runner behavior.
type RunnerConfig struct {
	Policy Policy
	Delay  time.Duration
	RunID  string
}

// Runner walks a target list strictly in order, one target at a time.
type Runner struct {
	scraper TargetScraper
	spool   Spool
	sleeper Sleeper
	cfg     RunnerConfig
	logger  *zap.Logger
	summary Summary
}

// NewRunner constructs a Runner. spool may be nil.
func NewRunner(scraper TargetScraper, spool Spool, sleeper Sleeper, cfg RunnerConfig, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyAbort
	}
	return &Runner{
		scraper: scraper,
		spool:   spool,
		sleeper: sleeper,
		cfg:     cfg,
		logger:  logger.With(zap.String("run_id", cfg.RunID)),
		summary: Summary{RunID: cfg.RunID},
	}
}

// Run scrapes targets in order.
//
// Under PolicyAbort the first failed target stops the run and its Outcome is
// returned to the caller, who owns it. Under PolicyContinue failures are
// logged, spooled when a spool is configured, released, and the run goes on.
// A fetch failure is fatal under both policies. Cancellation is observed
// between targets only.
func (r *Runner) Run(ctx context.Context, targets []string) (*Outcome, error) {
	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch interrupted before %s: %w", target, err)
		}
		r.summary.Attempted++

		outcome, err := r.scraper.Scrape(ctx, target)
		if err != nil {
			r.summary.Failed++
			r.logger.Error("aborting batch on fatal target failure", zap.String("target", target), zap.Error(err))
			return nil, err
		}

		if outcome != nil {
			r.summary.Failed++
			if r.cfg.Policy == PolicyAbort {
				r.logger.Error("aborting batch",
					zap.String("target", target),
					zap.String("outcome", string(outcome.Kind)),
				)
				return outcome, nil
			}
			r.warnDataLoss(ctx, outcome)
			continue
		}

		r.summary.Succeeded++
		r.logger.Info("successfully scraped target",
			zap.String("target", target),
			zap.Int("done", i+1),
			zap.Int("total", len(targets)),
		)
		if i == len(targets)-1 || r.cfg.Delay <= 0 || r.sleeper == nil {
			continue
		}
		start := time.Now()
		if err := r.sleeper.Sleep(ctx, r.cfg.Delay); err != nil {
			return nil, fmt.Errorf("politeness wait: %w", err)
		}
		metrics.ObservePolitenessDelay(time.Since(start))
	}
	return nil, nil
}

// Summary returns counters for the targets processed so far.
func (r *Runner) Summary() Summary {
	s := r.summary
	s.Spooled = append([]string(nil), r.summary.Spooled...)
	return s
}

func (r *Runner) warnDataLoss(ctx context.Context, outcome *Outcome) {
	defer outcome.Release()

	fields := []zap.Field{
		zap.String("target", outcome.Target),
		zap.String("outcome", string(outcome.Kind)),
		zap.Error(outcome.Err),
	}
	if r.spool == nil {
		r.logger.Warn("WARNING: proceeding to next target; possible data loss of input", fields...)
		return
	}
	uri, err := r.spool.Save(ctx, r.cfg.RunID, outcome)
	if err != nil {
		r.logger.Warn("WARNING: proceeding to next target; spool failed, possible data loss of input",
			append(fields, zap.NamedError("spool_error", err))...)
		return
	}
	r.summary.Spooled = append(r.summary.Spooled, uri)
	r.logger.Warn("WARNING: proceeding to next target; failed payload spooled",
		append(fields, zap.String("spool_uri", uri))...)
}
