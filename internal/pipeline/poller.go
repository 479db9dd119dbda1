package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/weather-mail-etl/internal/domain"
	"github.com/couchcryptid/weather-mail-etl/internal/observability"
)

// Source yields the messages to process in one run.
type Source interface {
	FetchMessages(ctx context.Context) ([]domain.Message, error)
}

// Notifier announces a converted file. Nil disables notifications.
type Notifier interface {
	Notify(ctx context.Context, c domain.Conversion) error
}

// Poller runs every attachment of every fetched message through the
// dispatcher, one at a time. A failing attachment is recorded and never
// stops the run.
type Poller struct {
	source     Source
	dispatcher *Dispatcher
	notifier   Notifier
	logger     *slog.Logger
	metrics    *observability.Metrics
	delay      time.Duration

	fetched atomic.Bool
	mu      sync.Mutex
	status  domain.RunStatus
}

// New creates a Poller. delay is the pause between consecutive messages.
func New(src Source, d *Dispatcher, n Notifier, logger *slog.Logger, metrics *observability.Metrics, delay time.Duration) *Poller {
	return &Poller{
		source:     src,
		dispatcher: d,
		notifier:   n,
		logger:     logger,
		metrics:    metrics,
		delay:      delay,
	}
}

// CheckReadiness returns nil once the mailbox has been fetched.
func (p *Poller) CheckReadiness(_ context.Context) error {
	if !p.fetched.Load() {
		return errors.New("mailbox not fetched yet")
	}
	return nil
}

// Status returns a snapshot of the current run.
func (p *Poller) Status() domain.RunStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Run fetches the messages and converts their attachments in ascending
// message date order. The error is non-nil only when the mailbox could not be
// read or ctx was cancelled; attachment failures are in the Report.
func (p *Poller) Run(ctx context.Context) (*Report, error) {
	report := &Report{RunID: uuid.NewString()}
	logger := p.logger.With("run_id", report.RunID)

	p.setStatus(func(s *domain.RunStatus) {
		*s = domain.RunStatus{RunID: report.RunID, StartedAt: clock.Now()}
	})
	defer p.setStatus(func(s *domain.RunStatus) { s.Done = true })

	p.metrics.RunRunning.Set(1)
	defer p.metrics.RunRunning.Set(0)

	logger.Info("run started")
	messages, err := p.source.FetchMessages(ctx)
	if err != nil {
		logger.Error("fetch messages failed", "error", err)
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	p.fetched.Store(true)

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Date.Before(messages[j].Date)
	})
	logger.Info("messages fetched", "count", len(messages))

	for i, msg := range messages {
		if i > 0 && !p.pause(ctx) {
			logger.Info("run stopping", "reason", ctx.Err(), "remaining", len(messages)-i)
			return report, ctx.Err()
		}
		p.processMessage(ctx, logger, msg, report)
		report.Messages++
		p.metrics.MessagesProcessed.Inc()
		p.setStatus(func(s *domain.RunStatus) { s.Messages = report.Messages })
	}

	logger.Info("run finished",
		"messages", report.Messages,
		"converted", report.Converted,
		"failed", len(report.Failures),
		"skipped", report.Skipped,
	)
	return report, nil
}

func (p *Poller) processMessage(ctx context.Context, logger *slog.Logger, msg domain.Message, report *Report) {
	logger = logger.With("subject", msg.Subject, "message_date", msg.Date)

	if msg.Err != nil {
		logger.Error("message could not be decoded", "error", msg.Err)
		report.Failures = append(report.Failures, FileError{
			FileName:    fmt.Sprintf("message %q", msg.Subject),
			MessageDate: msg.Date,
			Err:         msg.Err,
		})
		p.setStatus(func(s *domain.RunStatus) { s.Failed = len(report.Failures) })
		return
	}

	for _, att := range msg.Attachments {
		conv, ok := p.dispatcher.Lookup(att)
		if !ok {
			logger.Debug("attachment skipped", "file", att.FileName)
			report.Skipped++
			p.metrics.AttachmentsSkipped.Inc()
			p.setStatus(func(s *domain.RunStatus) { s.Skipped = report.Skipped })
			continue
		}

		format := conv.Format()
		start := time.Now()
		res, err := convertSafely(ctx, conv, att)
		p.metrics.ConversionDuration.WithLabelValues(string(format)).Observe(time.Since(start).Seconds())

		if err != nil {
			logger.Error("attachment conversion failed", "file", att.FileName, "format", format, "error", err)
			report.Failures = append(report.Failures, FileError{
				FileName:    att.FileName,
				Format:      format,
				MessageDate: msg.Date,
				Err:         err,
			})
			p.metrics.AttachmentsFailed.WithLabelValues(string(format)).Inc()
			p.setStatus(func(s *domain.RunStatus) { s.Failed = len(report.Failures) })
			continue
		}

		logger.Info("attachment converted", "file", att.FileName, "format", format, "output", res.Output, "rows", res.Rows)
		report.Converted++
		p.metrics.AttachmentsConverted.WithLabelValues(string(format)).Inc()
		p.setStatus(func(s *domain.RunStatus) { s.Converted = report.Converted })

		p.notify(ctx, logger, domain.Conversion{
			RunID:       report.RunID,
			FileName:    att.FileName,
			Format:      format,
			Output:      res.Output,
			Rows:        res.Rows,
			MessageDate: msg.Date,
			ProcessedAt: clock.Now(),
		})
	}
}

// convertSafely runs the converter, turning a panic into an error that
// carries the stack.
func convertSafely(ctx context.Context, conv Converter, att domain.Attachment) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return conv.Convert(ctx, att)
}

func (p *Poller) notify(ctx context.Context, logger *slog.Logger, c domain.Conversion) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, c); err != nil {
		logger.Warn("conversion notification failed", "file", c.FileName, "error", err)
	}
}

// pause waits for the pacing delay. Returns false if ctx was cancelled.
func (p *Poller) pause(ctx context.Context) bool {
	if p.delay <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-clock.After(p.delay):
		return true
	}
}

func (p *Poller) setStatus(update func(*domain.RunStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	update(&p.status)
}
