package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	_ "github.com/emersion/go-message/charset" // decode non-UTF-8 headers and names
	"github.com/emersion/go-message/mail"

	"github.com/couchcryptid/weather-mail-etl/internal/domain"
)

// parseMessage decodes a raw RFC 5322 message and collects its attachments.
// Inline parts that carry a file name count as attachments too.
func parseMessage(raw []byte) (domain.Message, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return domain.Message{}, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	var msg domain.Message
	if date, err := mr.Header.Date(); err == nil {
		msg.Date = date
	}
	msg.Subject, _ = mr.Header.Subject()
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Message{}, fmt.Errorf("read part: %w", err)
		}

		var name string
		switch h := part.Header.(type) {
		case *mail.AttachmentHeader:
			name, _ = h.Filename()
		case *mail.InlineHeader:
			name = inlineFilename(h)
		}
		if name == "" {
			continue
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			return domain.Message{}, fmt.Errorf("read attachment %s: %w", name, err)
		}
		msg.Attachments = append(msg.Attachments, domain.Attachment{FileName: name, Payload: body})
	}
	return msg, nil
}

func inlineFilename(h *mail.InlineHeader) string {
	if _, params, err := h.ContentDisposition(); err == nil && params["filename"] != "" {
		return params["filename"]
	}
	if _, params, err := h.ContentType(); err == nil {
		return params["name"]
	}
	return ""
}
