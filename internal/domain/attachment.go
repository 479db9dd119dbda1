package domain

import (
	"strings"
	"time"
)

// Format identifies which conversion an attachment receives.
type Format string

const (
	FormatEnergyHistory Format = "energy_history"
	FormatIrradiance    Format = "irradiance"
	FormatForecast      Format = "forecast"
	FormatObserved      Format = "observed"
)

// Destination names an output directory.
type Destination int

const (
	DestinationEnergyHistory Destination = iota
	DestinationWeather
)

func (d Destination) String() string {
	switch d {
	case DestinationEnergyHistory:
		return "energy_history"
	case DestinationWeather:
		return "weather"
	default:
		return "unknown"
	}
}

// Attachment is a single file pulled from a message.
type Attachment struct {
	FileName string
	Payload  []byte
}

// Extension returns the lower-cased text after the last dot of the file name,
// or the whole lower-cased name when it has no dot.
func (a Attachment) Extension() string {
	name := strings.ToLower(a.FileName)
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Message is a mail message from the configured sender.
type Message struct {
	From        string
	Subject     string
	Date        time.Time
	Attachments []Attachment

	// Err is set when the message body could not be decoded. Such a
	// message has no attachments and counts as a failure.
	Err error
}

// Conversion describes a successfully converted attachment.
type Conversion struct {
	RunID       string    `json:"run_id"`
	FileName    string    `json:"file_name"`
	Format      Format    `json:"format"`
	Output      string    `json:"output"`
	Rows        int       `json:"rows"`
	MessageDate time.Time `json:"message_date"`
	ProcessedAt time.Time `json:"processed_at"`
}

// RunStatus is a snapshot of an in-progress or finished mailbox run.
type RunStatus struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Messages  int       `json:"messages"`
	Converted int       `json:"converted"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Done      bool      `json:"done"`
}
