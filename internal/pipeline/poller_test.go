package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/weather-mail-etl/internal/adapter/filestore"
	"github.com/couchcryptid/weather-mail-etl/internal/domain"
	"github.com/couchcryptid/weather-mail-etl/internal/observability"
	"github.com/couchcryptid/weather-mail-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validForecast  = "2 1_SOFIA\n3 DATE TIME T RH WS WD CLM RRR\n  010124 0000 1.5 80 3 270 5 0.0\n"
	brokenObserved = "2 1_SOFIA\n  010124 0000 1\n"
)

// --- mocks ---

type mockSource struct {
	messages []domain.Message
	err      error
}

func (m *mockSource) FetchMessages(_ context.Context) ([]domain.Message, error) {
	return m.messages, m.err
}

// recordingConverter records the attachments it sees and can fail or panic.
type recordingConverter struct {
	format domain.Format
	mu     sync.Mutex
	seen   []string
	seenCh chan string
	fail   map[string]error
	panics map[string]bool
}

func (r *recordingConverter) Format() domain.Format { return r.format }

func (r *recordingConverter) Convert(_ context.Context, att domain.Attachment) (pipeline.Result, error) {
	r.mu.Lock()
	r.seen = append(r.seen, att.FileName)
	r.mu.Unlock()
	if r.seenCh != nil {
		r.seenCh <- att.FileName
	}
	if r.panics[att.FileName] {
		var m map[string]int
		m["boom"]++ // nil map write
	}
	if err := r.fail[att.FileName]; err != nil {
		return pipeline.Result{}, err
	}
	return pipeline.Result{Output: "/out/" + att.FileName, Rows: 1}, nil
}

func (r *recordingConverter) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

type mockNotifier struct {
	err  error
	sent []domain.Conversion
}

func (m *mockNotifier) Notify(_ context.Context, c domain.Conversion) error {
	m.sent = append(m.sent, c)
	return m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func newStore(t *testing.T) (*filestore.Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := filestore.New(
		filepath.Join(root, "energyHistory"),
		filepath.Join(root, "weather"),
		filepath.Join(root, "weather_temp"),
	)
	require.NoError(t, err)
	return store, root
}

func fileConverters(store *filestore.Store) *pipeline.Dispatcher {
	return pipeline.NewDispatcher(
		pipeline.NewEnergyHistoryConverter(store),
		pipeline.NewForecastConverter(store),
		pipeline.NewObservedConverter(store),
	)
}

func message(date time.Time, atts ...domain.Attachment) domain.Message {
	return domain.Message{From: "provider@example.com", Date: date, Attachments: atts}
}

func att(name, payload string) domain.Attachment {
	return domain.Attachment{FileName: name, Payload: []byte(payload)}
}

var day = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

// --- tests ---

func TestPoller_Run_MiddleAttachmentFails(t *testing.T) {
	store, root := newStore(t)
	src := &mockSource{messages: []domain.Message{message(day,
		att("a.sn3", validForecast),
		att("b.sn1", brokenObserved),
		att("c.xlsx", "PK\x03\x04energy"),
	)}}

	p := pipeline.New(src, fileConverters(store), nil, discardLogger(), newTestMetrics(), 0)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Converted)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "b.sn1", report.Failures[0].FileName)
	assert.Equal(t, domain.FormatObserved, report.Failures[0].Format)
	assert.True(t, domain.IsParseError(report.Failures[0].Err))
	assert.Equal(t, 1, report.ExitCode())

	forecast, err := os.ReadFile(filepath.Join(root, "weather", "a.sn3.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(forecast), "sofia,01/01/2024 00:00,1.5")

	energy, err := os.ReadFile(filepath.Join(root, "energyHistory", "c.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, "PK\x03\x04energy", string(energy))

	// The failed raw payload stays staged; the converted one does not.
	_, err = os.Stat(filepath.Join(root, "weather_temp", "b.sn1"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "weather_temp", "a.sn3"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = os.Stat(filepath.Join(root, "weather", "b.sn1.csv"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestPoller_Run_UnknownExtensionSkipped(t *testing.T) {
	store, root := newStore(t)
	src := &mockSource{messages: []domain.Message{message(day,
		att("a.xlsx", "PK"),
		att("b.sn3", validForecast),
		att("c.unknown", "whatever"),
	)}}

	p := pipeline.New(src, fileConverters(store), nil, discardLogger(), newTestMetrics(), 0)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Converted)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 0, report.ExitCode())

	var outputs []string
	for _, dir := range []string{"energyHistory", "weather"} {
		entries, err := os.ReadDir(filepath.Join(root, dir))
		require.NoError(t, err)
		for _, e := range entries {
			outputs = append(outputs, e.Name())
		}
	}
	assert.ElementsMatch(t, []string{"a.xlsx", "b.sn3.csv"}, outputs)
}

func TestPoller_Run_ProcessesMessagesByDate(t *testing.T) {
	conv := &recordingConverter{format: domain.FormatForecast}
	src := &mockSource{messages: []domain.Message{
		message(day.Add(2*time.Hour), att("late.sn3", "")),
		message(day, att("early.sn3", ""), att("early2.SN3", "")),
		message(day.Add(time.Hour), att("middle.sn3", "")),
	}}

	p := pipeline.New(src, pipeline.NewDispatcher(conv), nil, discardLogger(), newTestMetrics(), 0)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"early.sn3", "early2.SN3", "middle.sn3", "late.sn3"}, conv.names())
	assert.Equal(t, 3, report.Messages)
	assert.Equal(t, 4, report.Converted)
}

func TestPoller_Run_RecoversPanics(t *testing.T) {
	conv := &recordingConverter{
		format: domain.FormatForecast,
		panics: map[string]bool{"bad.sn3": true},
	}
	src := &mockSource{messages: []domain.Message{message(day, att("bad.sn3", ""), att("good.sn3", ""))}}

	p := pipeline.New(src, pipeline.NewDispatcher(conv), nil, discardLogger(), newTestMetrics(), 0)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"bad.sn3", "good.sn3"}, conv.names())
	assert.Equal(t, 1, report.Converted)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Err.Error(), "panic:")
	assert.Contains(t, report.Failures[0].Err.Error(), "goroutine")
}

func TestPoller_Run_UndecodableMessageFails(t *testing.T) {
	store, _ := newStore(t)
	broken := domain.Message{Subject: "Daily reports", Date: day, Err: errors.New("no message body")}
	src := &mockSource{messages: []domain.Message{
		broken,
		message(day.Add(time.Hour), att("f.sn3", validForecast)),
	}}

	p := pipeline.New(src, fileConverters(store), nil, discardLogger(), newTestMetrics(), 0)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Messages)
	assert.Equal(t, 1, report.Converted)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, `message "Daily reports"`, report.Failures[0].FileName)
	assert.Equal(t, 1, report.ExitCode())

	var out bytes.Buffer
	report.Print(&out)
	assert.Contains(t, out.String(), "no message body")
}

func TestPoller_Run_FetchError(t *testing.T) {
	src := &mockSource{err: errors.New("connection refused")}

	p := pipeline.New(src, pipeline.NewDispatcher(), nil, discardLogger(), newTestMetrics(), 0)
	report, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, report)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Error(t, p.CheckReadiness(context.Background()))
	assert.True(t, p.Status().Done)
}

func TestPoller_Run_NoMessages(t *testing.T) {
	p := pipeline.New(&mockSource{}, pipeline.NewDispatcher(), nil, discardLogger(), newTestMetrics(), 0)
	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.ExitCode())
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPoller_Run_Notifies(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	pipeline.SetClock(clockwork.NewFakeClockAt(fixed))
	defer pipeline.SetClock(nil)

	conv := &recordingConverter{
		format: domain.FormatObserved,
		fail:   map[string]error{"bad.sn1": errors.New("broken")},
	}
	notifier := &mockNotifier{err: errors.New("broker down")}
	src := &mockSource{messages: []domain.Message{message(day, att("ok.sn1", ""), att("bad.sn1", ""))}}

	p := pipeline.New(src, pipeline.NewDispatcher(conv), notifier, discardLogger(), newTestMetrics(), 0)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	// A failed notification does not fail the attachment.
	assert.Equal(t, 1, report.Converted)
	require.Len(t, notifier.sent, 1)
	sent := notifier.sent[0]
	assert.Equal(t, report.RunID, sent.RunID)
	assert.Equal(t, "ok.sn1", sent.FileName)
	assert.Equal(t, domain.FormatObserved, sent.Format)
	assert.Equal(t, "/out/ok.sn1", sent.Output)
	assert.Equal(t, day, sent.MessageDate)
	assert.Equal(t, fixed, sent.ProcessedAt)
}

func TestPoller_Run_PacesBetweenMessages(t *testing.T) {
	fake := clockwork.NewFakeClock()
	pipeline.SetClock(fake)
	defer pipeline.SetClock(nil)

	conv := &recordingConverter{format: domain.FormatForecast, seenCh: make(chan string, 2)}
	src := &mockSource{messages: []domain.Message{
		message(day, att("first.sn3", "")),
		message(day.Add(time.Hour), att("second.sn3", "")),
	}}
	p := pipeline.New(src, pipeline.NewDispatcher(conv), nil, discardLogger(), newTestMetrics(), 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan *pipeline.Report, 1)
	go func() {
		report, err := p.Run(ctx)
		assert.NoError(t, err)
		done <- report
	}()

	assert.Equal(t, "first.sn3", <-conv.seenCh)
	require.NoError(t, fake.BlockUntilContext(ctx, 1))
	select {
	case name := <-conv.seenCh:
		t.Fatalf("%s converted before the pacing delay elapsed", name)
	default:
	}

	fake.Advance(5 * time.Second)
	assert.Equal(t, "second.sn3", <-conv.seenCh)

	report := <-done
	assert.Equal(t, 2, report.Messages)
}

func TestPoller_Run_CancelledDuringPause(t *testing.T) {
	fake := clockwork.NewFakeClock()
	pipeline.SetClock(fake)
	defer pipeline.SetClock(nil)

	conv := &recordingConverter{format: domain.FormatForecast}
	src := &mockSource{messages: []domain.Message{
		message(day, att("first.sn3", "")),
		message(day.Add(time.Hour), att("second.sn3", "")),
	}}
	p := pipeline.New(src, pipeline.NewDispatcher(conv), nil, discardLogger(), newTestMetrics(), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.Run(ctx)
		done <- err
	}()

	require.NoError(t, fake.BlockUntilContext(context.Background(), 1))
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []string{"first.sn3"}, conv.names())
}

func TestPoller_Status(t *testing.T) {
	conv := &recordingConverter{
		format: domain.FormatForecast,
		fail:   map[string]error{"b.sn3": errors.New("nope")},
	}
	src := &mockSource{messages: []domain.Message{message(day, att("a.sn3", ""), att("b.sn3", ""), att("c.txt", ""))}}

	p := pipeline.New(src, pipeline.NewDispatcher(conv), nil, discardLogger(), newTestMetrics(), 0)
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	status := p.Status()
	assert.Equal(t, report.RunID, status.RunID)
	assert.Equal(t, 1, status.Messages)
	assert.Equal(t, 1, status.Converted)
	assert.Equal(t, 1, status.Failed)
	assert.Equal(t, 1, status.Skipped)
	assert.True(t, status.Done)
}

func TestReport_Print(t *testing.T) {
	report := &pipeline.Report{Failures: []pipeline.FileError{
		{FileName: "b.sn1", Err: errors.New("parse observed: line 2: data row outside a city block")},
		{FileName: "d.csv", Err: errors.New("weather records for sofia: timeout")},
	}}

	var buf bytes.Buffer
	report.Print(&buf)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"Couldn't process b.sn1:",
		"parse observed: line 2: data row outside a city block",
		"Couldn't process d.csv:",
		"weather records for sofia: timeout",
	}, lines)
	assert.True(t, report.Failed())
	assert.Equal(t, 1, report.ExitCode())
}

func TestReport_PrintNothingWhenClean(t *testing.T) {
	var buf bytes.Buffer
	(&pipeline.Report{}).Print(&buf)
	assert.Empty(t, buf.String())
}
