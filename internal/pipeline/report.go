package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/couchcryptid/weather-mail-etl/internal/domain"
)

// FileError records an attachment whose conversion failed.
type FileError struct {
	FileName    string
	Format      domain.Format
	MessageDate time.Time
	Err         error
}

// Report summarizes a mailbox run.
type Report struct {
	RunID     string
	Messages  int
	Converted int
	Skipped   int
	Failures  []FileError
}

// Failed reports whether any attachment failed.
func (r *Report) Failed() bool { return len(r.Failures) > 0 }

// ExitCode is 1 when any attachment failed, 0 otherwise.
func (r *Report) ExitCode() int {
	if r.Failed() {
		return 1
	}
	return 0
}

// Print writes every failure with its full detail.
func (r *Report) Print(w io.Writer) {
	for _, f := range r.Failures {
		fmt.Fprintf(w, "Couldn't process %s:\n%v\n", f.FileName, f.Err)
	}
}

// panicError carries a recovered converter panic and its stack.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v\n%s", e.value, e.stack)
}
