package mailbox

import (
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reportMessage has a text body, a base64 forecast attachment, an inline
// part with a file name and a plain inline image without one.
var reportMessage = strings.ReplaceAll(`From: Weather Desk <provider@example.com>
To: reports@example.com
Subject: Daily reports
Date: Fri, 26 Apr 2024 06:30:00 +0000
MIME-Version: 1.0
Content-Type: multipart/mixed; boundary="BOUNDARY"

--BOUNDARY
Content-Type: text/plain; charset=utf-8

Reports attached.
--BOUNDARY
Content-Type: application/octet-stream; name="b.sn3"
Content-Disposition: attachment; filename="b.sn3"
Content-Transfer-Encoding: base64

MyBEQVRFIFRJTUUgVAoyIDFfU29maWEK
--BOUNDARY
Content-Type: text/csv; name="irr.csv"
Content-Disposition: inline; filename="irr.csv"

units
Date,Time,Sofia
--BOUNDARY
Content-Type: image/png

not really a png
--BOUNDARY--
`, "\n", "\r\n")

func TestParseMessage(t *testing.T) {
	msg, err := parseMessage([]byte(reportMessage))
	require.NoError(t, err)

	assert.Equal(t, "provider@example.com", msg.From)
	assert.Equal(t, "Daily reports", msg.Subject)
	assert.True(t, msg.Date.Equal(time.Date(2024, 4, 26, 6, 30, 0, 0, time.UTC)))

	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "b.sn3", msg.Attachments[0].FileName)
	assert.Equal(t, "3 DATE TIME T\n2 1_Sofia\n", string(msg.Attachments[0].Payload))
	assert.Equal(t, "irr.csv", msg.Attachments[1].FileName)
	assert.Contains(t, string(msg.Attachments[1].Payload), "Date,Time,Sofia")
}

func TestParseMessage_NoAttachments(t *testing.T) {
	raw := "From: provider@example.com\r\nSubject: hi\r\nContent-Type: text/plain\r\n\r\nnothing here\r\n"
	msg, err := parseMessage([]byte(raw))
	require.NoError(t, err)
	assert.Empty(t, msg.Attachments)
	assert.Equal(t, "hi", msg.Subject)
}

func TestFetchedMessage_EnvelopeOverridesHeaders(t *testing.T) {
	env := &imap.Envelope{
		Subject: "Reports for Friday",
		Date:    time.Date(2024, 4, 26, 7, 0, 0, 0, time.UTC),
		From:    []imap.Address{{Mailbox: "desk", Host: "example.com"}},
	}
	msg := fetchedMessage([]byte(reportMessage), env)
	require.NoError(t, msg.Err)
	assert.Equal(t, "Reports for Friday", msg.Subject)
	assert.Equal(t, "desk@example.com", msg.From)
	assert.True(t, msg.Date.Equal(env.Date))
	assert.Len(t, msg.Attachments, 2)
}

func TestFetchedMessage_UndecodableCarriesError(t *testing.T) {
	env := &imap.Envelope{Subject: "Daily reports", Date: time.Date(2024, 4, 26, 7, 0, 0, 0, time.UTC)}

	tests := map[string][]byte{
		"no body":        nil,
		"malformed head": []byte("this is not a header\r\n\r\nbody\r\n"),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			msg := fetchedMessage(raw, env)
			require.Error(t, msg.Err)
			assert.Empty(t, msg.Attachments)
			assert.Equal(t, "Daily reports", msg.Subject)
			assert.True(t, msg.Date.Equal(env.Date))
		})
	}
}
