package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/securitygate/securitygate/internal/telemetry"
)

// Orchestrator runs all configured scanners concurrently and aggregates
// their findings into a single verdict.
type Orchestrator struct {
	scanners []Scanner
}

// NewOrchestrator builds an orchestrator over the given adapters.
func NewOrchestrator(scanners ...Scanner) *Orchestrator {
	return &Orchestrator{scanners: scanners}
}

// Scanners returns the configured adapter names.
func (o *Orchestrator) Scanners() []string {
	names := make([]string, 0, len(o.scanners))
	for _, s := range o.scanners {
		names = append(names, s.Name())
	}
	return names
}

// RunAllScans runs every adapter against the checkout in parallel with a
// worker pool bounded to the adapter count. One adapter failing, hanging, or
// panicking never blocks or cancels the others; each slot is filled with that
// tool's Result (degraded on failure) before aggregation, so result order
// never affects the verdict.
func (o *Orchestrator) RunAllScans(ctx context.Context, checkoutPath string) Report {
	results := make([]Result, len(o.scanners))

	g := &errgroup.Group{}
	if n := len(o.scanners); n > 0 {
		g.SetLimit(n)
	}

	for i, s := range o.scanners {
		i, s := i, s
		g.Go(func() error {
			results[i] = o.runOne(ctx, s, checkoutPath)
			return nil
		})
	}
	// Adapters never return errors; failures arrive as degraded Results.
	_ = g.Wait()

	byTool := make(map[string]Result, len(results))
	for _, res := range results {
		byTool[res.Tool] = res
	}

	summary := Summarize(results)
	o.record(results, summary)

	log.Info().
		Str("path", checkoutPath).
		Int("findings", summary.TotalFindings).
		Str("verdict", string(summary.Verdict)).
		Str("severity", string(summary.OverallSeverity)).
		Msg("Scan cycle complete")

	return Report{Results: byTool, Summary: summary}
}

// runOne wraps a single adapter call so that a panic inside an adapter
// becomes a degraded Result instead of aborting the batch.
func (o *Orchestrator) runOne(ctx context.Context, s Scanner, checkoutPath string) (res Result) {
	start := time.Now()
	defer func() {
		telemetry.ScanDurationSeconds.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			log.Error().Str("tool", s.Name()).Interface("panic", r).Msg("Scanner panicked")
			res = degradedResult(s.Name(), fmt.Sprintf("%s scanner panicked: %v", s.Name(), r), SeverityError)
		}
	}()

	log.Debug().Str("tool", s.Name()).Str("path", checkoutPath).Msg("Running scanner")
	return s.Scan(ctx, checkoutPath)
}

func (o *Orchestrator) record(results []Result, summary Summary) {
	for _, res := range results {
		outcome := "ok"
		if res.Degraded() {
			outcome = "degraded"
		}
		telemetry.ScansTotal.WithLabelValues(res.Tool, outcome).Inc()
		for _, f := range res.Findings {
			telemetry.FindingsTotal.WithLabelValues(string(f.Severity.Bucket())).Inc()
		}
	}
	telemetry.VerdictsTotal.WithLabelValues(string(summary.Verdict)).Inc()
}
