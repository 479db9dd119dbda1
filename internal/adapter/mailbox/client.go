package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/couchcryptid/weather-mail-etl/internal/domain"
)

// Client reads report messages from an IMAP mailbox. It never changes
// flags or moves messages: the folder is selected read-only and bodies are
// fetched with PEEK.
type Client struct {
	host     string
	port     string
	username string
	password string
	tls      bool
	folder   string
	sender   string
	logger   *slog.Logger
}

// NewClient creates a mailbox client for messages from sender in folder.
func NewClient(host, port, username, password string, tls bool, folder, sender string, logger *slog.Logger) *Client {
	return &Client{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
		folder:   folder,
		sender:   sender,
		logger:   logger,
	}
}

func (c *Client) connect() (*imapclient.Client, error) {
	addr := c.host + ":" + c.port

	var client *imapclient.Client
	var err error
	if c.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("login as %s: %w", c.username, err)
	}
	return client, nil
}

// FetchMessages returns every seen message from the configured sender with
// its attachments decoded. A message that cannot be decoded is returned with
// Err set so the run reports it.
func (c *Client) FetchMessages(ctx context.Context) ([]domain.Message, error) {
	client, err := c.connect()
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	// imapclient commands are not context-aware; closing the connection
	// unblocks any pending Wait.
	stop := context.AfterFunc(ctx, func() { _ = client.Close() })
	defer stop()

	if _, err := client.Select(c.folder, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", c.folder, err)
	}

	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{Key: "From", Value: c.sender}},
		Flag:   []imap.Flag{imap.FlagSeen},
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	c.logger.Info("mailbox messages found", "folder", c.folder, "sender", c.sender, "count", len(uids))

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	var messages []domain.Message
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			return nil, fmt.Errorf("collecting message data: %w", err)
		}

		parsed := fetchedMessage(buf.FindBodySection(bodySection), buf.Envelope)
		if parsed.Err != nil {
			parsed.Err = fmt.Errorf("message uid %d: %w", buf.UID, parsed.Err)
			c.logger.Warn("undecodable message", "uid", buf.UID, "error", parsed.Err)
		}
		messages = append(messages, parsed)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}
	return messages, nil
}

// fetchedMessage decodes a fetched body. Envelope fields, when present, take
// precedence over the parsed headers.
func fetchedMessage(raw []byte, env *imap.Envelope) domain.Message {
	var msg domain.Message
	if raw == nil {
		msg.Err = errors.New("no message body")
	} else if parsed, err := parseMessage(raw); err != nil {
		msg.Err = err
	} else {
		msg = parsed
	}

	if env != nil {
		if env.Subject != "" {
			msg.Subject = env.Subject
		}
		if !env.Date.IsZero() {
			msg.Date = env.Date
		}
		if len(env.From) > 0 {
			msg.From = env.From[0].Addr()
		}
	}
	return msg
}
