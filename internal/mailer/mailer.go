// Package mailer runs one bulk send: it extracts the recipients, sends the
// configured message to each of them in order with a fixed pause between
// sends, records every outcome and finishes with a summary.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shineum/smtp-mailer-lite/internal/config"
	"github.com/shineum/smtp-mailer-lite/internal/email"
	"github.com/shineum/smtp-mailer-lite/internal/provider"
	"github.com/shineum/smtp-mailer-lite/internal/recipient"
	"github.com/shineum/smtp-mailer-lite/internal/runlog"
)

// Statuses recorded for dispatched recipients.
const (
	StatusSent   = "SENT"
	StatusFailed = "FAILED"
)

// Stats are the counters of one run. Total always equals Sent + Failed
// once the run has dispatched every recipient.
type Stats struct {
	Total      int
	Sent       int
	Failed     int
	Invalid    int
	Duplicates int
}

// Totals converts s for the run log summary.
func (s Stats) Totals() runlog.Totals {
	return runlog.Totals{
		Total:      s.Total,
		Sent:       s.Sent,
		Failed:     s.Failed,
		Invalid:    s.Invalid,
		Duplicates: s.Duplicates,
	}
}

// Options holds the collaborators of a Runner.
type Options struct {
	Config   *config.Config
	Provider provider.Provider
	Log      *runlog.Logger

	// Waiter defaults to Sleeper.
	Waiter Waiter

	// RunID tags diagnostics. A random UUID is used when empty.
	RunID string
}

// Runner performs a single run. It owns the run log from the moment Run is
// called and closes it before Run returns.
type Runner struct {
	cfg    *config.Config
	sender provider.Provider
	log    *runlog.Logger
	waiter Waiter
	runID  string
}

// New creates a Runner.
func New(opts Options) *Runner {
	if opts.Waiter == nil {
		opts.Waiter = Sleeper{}
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	return &Runner{
		cfg:    opts.Config,
		sender: opts.Provider,
		log:    opts.Log,
		waiter: opts.Waiter,
		runID:  opts.RunID,
	}
}

// RunID returns the identifier of this run.
func (r *Runner) RunID() string {
	return r.runID
}

// Run sends to every valid recipient in source. Per-recipient failures are
// recorded and never stop the run. The summary is logged and the run log
// closed on every path; a cancelled ctx stops the run after the in-flight
// send and Run returns ctx.Err().
func (r *Runner) Run(ctx context.Context, source string) (stats Stats, err error) {
	logger := slog.With("run_id", r.runID, "transport", r.sender.Name())
	logger.Info("mail run started", "source", source)

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			r.log.Error("Critical error during email processing: %v", p)
		}
		r.log.Summary(stats.Totals())
		if cerr := r.log.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close log file: %w", cerr)
		}
		logger.Info("mail run finished",
			"sent", stats.Sent,
			"failed", stats.Failed,
			"invalid", stats.Invalid,
			"duplicates", stats.Duplicates,
		)
	}()

	r.log.Info("=== Email Sending Process Started ===")
	r.log.Info("Using SMTP Host: %s", r.cfg.Addr())
	r.log.Info("Sender: %s", r.cfg.Username)
	r.log.Info("Delay between emails: %d seconds", r.cfg.DelaySeconds)

	extractor := recipient.NewExtractor(r.log)
	addrs, extractErr := extractor.ExtractFile(source)
	if extractErr != nil {
		logger.Warn("recipient source unreadable", "error", extractErr)
	}
	stats.Invalid = extractor.Invalid()
	stats.Duplicates = extractor.Duplicates()
	stats.Total = len(addrs)

	if len(addrs) == 0 {
		r.log.Info("No valid emails found to process")
		return stats, nil
	}

	for i, addr := range addrs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		r.log.Info("Processing email %d/%d: %s", i+1, len(addrs), addr)
		if r.dispatch(ctx, addr) {
			stats.Sent++
		} else {
			stats.Failed++
		}

		if i < len(addrs)-1 {
			r.log.Info("Waiting %d seconds before next email...", r.cfg.DelaySeconds)
			if err := r.waiter.Wait(ctx, r.cfg.Delay()); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return stats, err
				}
				r.log.Error("Critical error during email processing: %v", err)
				return stats, err
			}
		}
	}

	return stats, nil
}

// dispatch sends to one recipient and records the outcome. The send runs
// to completion even when ctx is cancelled meanwhile; the loop stops after
// it.
func (r *Runner) dispatch(ctx context.Context, addr string) bool {
	msg := email.Build(addr, r.cfg)
	if err := r.sender.Send(context.WithoutCancel(ctx), msg); err != nil {
		r.log.Status(addr, StatusFailed, Classify(err))
		return false
	}
	r.log.Status(addr, StatusSent, "")
	return true
}
