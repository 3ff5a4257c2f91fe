package imap

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"emailfilter/internal/domain/mail"
)

const (
	junkDisplayName = "Junk"
	previewLimit    = 500
)

// session is the part of *client.Client the adapter uses.
type session interface {
	List(ref, name string, ch chan *goimap.MailboxInfo) error
	Select(name string, readOnly bool) (*goimap.MailboxStatus, error)
	Fetch(seqset *goimap.SeqSet, items []goimap.FetchItem, ch chan *goimap.Message) error
	UidStore(seqset *goimap.SeqSet, item goimap.StoreItem, value interface{}, ch chan *goimap.Message) error
	Expunge(ch chan uint32) error
	State() goimap.ConnState
	Logout() error
}

// Client is a MailSource over a single IMAP connection. The connection is
// opened on first use and is not safe for concurrent commands, so every
// operation holds mu. A connection that failed a command or was closed by
// the server is dropped and redialled on the next call.
type Client struct {
	log  *zap.SugaredLogger
	dial func() (session, error)

	mu   sync.Mutex
	conn session
}

func NewClient(addr, username, password string, log *zap.SugaredLogger) *Client {
	return &Client{
		log: log,
		dial: func() (session, error) {
			conn, err := client.DialTLS(addr, nil)
			if err != nil {
				return nil, fmt.Errorf("imap dial %s: %w", addr, err)
			}
			if err := conn.Login(username, password); err != nil {
				conn.Logout()
				return nil, fmt.Errorf("imap login: %w", err)
			}
			return conn, nil
		},
	}
}

func (c *Client) connect() (session, error) {
	if c.conn != nil && c.conn.State() != goimap.LogoutState {
		return c.conn, nil
	}
	if c.conn != nil {
		c.log.Infow("imap connection closed, reconnecting")
		c.conn = nil
	}
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

// drop discards the connection after a failed command.
func (c *Client) drop(err error) {
	if c.conn == nil {
		return
	}
	c.log.Warnw("dropping imap connection", "error", err)
	_ = c.conn.Logout()
	c.conn = nil
}

// Close logs out when a connection was opened.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Logout()
	c.conn = nil
	return err
}

// ListFolders lists every mailbox. Mailboxes flagged \Junk are reported as
// "Junk" so a server-specific name such as "Spam" still matches.
func (c *Client) ListFolders(ctx context.Context) ([]mail.Folder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connect()
	if err != nil {
		return nil, err
	}

	ch := make(chan *goimap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- conn.List("", "*", ch)
	}()

	var folders []mail.Folder
	for info := range ch {
		folders = append(folders, toFolder(info))
	}
	if err := <-done; err != nil {
		c.drop(err)
		return nil, fmt.Errorf("imap list: %w", err)
	}
	return folders, ctx.Err()
}

// ListMessages fetches the last limit messages of the mailbox by sequence
// number, which is arrival order.
func (c *Client) ListMessages(ctx context.Context, folderID string, limit int) ([]mail.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connect()
	if err != nil {
		return nil, err
	}

	status, err := conn.Select(folderID, true)
	if err != nil {
		c.drop(err)
		return nil, fmt.Errorf("imap select %s: %w", folderID, err)
	}
	if status.Messages == 0 {
		return nil, nil
	}

	from := uint32(1)
	if status.Messages > uint32(limit) {
		from = status.Messages - uint32(limit) + 1
	}
	seqset := new(goimap.SeqSet)
	seqset.AddRange(from, status.Messages)

	section := &goimap.BodySectionName{Peek: true}
	items := []goimap.FetchItem{goimap.FetchEnvelope, goimap.FetchUid, goimap.FetchInternalDate, section.FetchItem()}

	ch := make(chan *goimap.Message, limit)
	done := make(chan error, 1)
	go func() {
		done <- conn.Fetch(seqset, items, ch)
	}()

	var msgs []mail.Message
	for m := range ch {
		msg := toMessage(folderID, status.UidValidity, m)
		if body := m.GetBody(section); body != nil {
			preview, err := extractPreview(body)
			if err != nil {
				c.log.Debugw("could not read message body", "id", msg.ID, "error", err)
			}
			msg.Preview = preview
		}
		msgs = append(msgs, msg)
	}
	if err := <-done; err != nil {
		c.drop(err)
		return nil, fmt.Errorf("imap fetch: %w", err)
	}
	return msgs, ctx.Err()
}

// DeleteMessage flags the message \Deleted and expunges the mailbox. The
// expunge removes every message already flagged \Deleted in that mailbox.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	mailbox, validity, uid, err := parseID(messageID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connect()
	if err != nil {
		return err
	}

	status, err := conn.Select(mailbox, false)
	if err != nil {
		c.drop(err)
		return fmt.Errorf("imap select %s: %w", mailbox, err)
	}
	if status.UidValidity != validity {
		return fmt.Errorf("imap mailbox %s changed UIDVALIDITY (%d != %d)", mailbox, status.UidValidity, validity)
	}

	seqset := new(goimap.SeqSet)
	seqset.AddNum(uid)
	flags := []interface{}{goimap.DeletedFlag}
	if err := conn.UidStore(seqset, goimap.FormatFlagsOp(goimap.AddFlags, true), flags, nil); err != nil {
		c.drop(err)
		return fmt.Errorf("imap store: %w", err)
	}
	if err := conn.Expunge(nil); err != nil {
		c.drop(err)
		return fmt.Errorf("imap expunge: %w", err)
	}
	return nil
}

func toFolder(info *goimap.MailboxInfo) mail.Folder {
	for _, attr := range info.Attributes {
		if attr == goimap.JunkAttr {
			return mail.Folder{ID: info.Name, DisplayName: junkDisplayName}
		}
	}
	return mail.Folder{ID: info.Name, DisplayName: info.Name}
}

func toMessage(mailbox string, validity uint32, m *goimap.Message) mail.Message {
	msg := mail.Message{
		ID:         formatID(mailbox, validity, m.Uid),
		ReceivedAt: m.InternalDate.UTC(),
	}
	if env := m.Envelope; env != nil {
		msg.Subject = env.Subject
		if len(env.From) > 0 {
			msg.Sender = formatAddress(env.From[0])
		}
		if msg.ReceivedAt.IsZero() {
			msg.ReceivedAt = env.Date.UTC()
		}
	}
	return msg
}

func formatAddress(a *goimap.Address) string {
	addr := a.MailboxName + "@" + a.HostName
	if a.PersonalName == "" {
		return addr
	}
	return fmt.Sprintf("%s <%s>", a.PersonalName, addr)
}

// formatID builds "mailbox:uidvalidity:uid". Mailbox names may contain ':',
// so parseID splits from the right.
func formatID(mailbox string, validity, uid uint32) string {
	return fmt.Sprintf("%s:%d:%d", mailbox, validity, uid)
}

func parseID(id string) (mailbox string, validity, uid uint32, err error) {
	last := strings.LastIndex(id, ":")
	if last <= 0 {
		return "", 0, 0, fmt.Errorf("invalid imap message id %q", id)
	}
	mid := strings.LastIndex(id[:last], ":")
	if mid <= 0 {
		return "", 0, 0, fmt.Errorf("invalid imap message id %q", id)
	}

	v, err := strconv.ParseUint(id[mid+1:last], 10, 32)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid uidvalidity in %q: %w", id, err)
	}
	u, err := strconv.ParseUint(id[last+1:], 10, 32)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid uid in %q: %w", id, err)
	}
	return id[:mid], uint32(v), uint32(u), nil
}

// extractPreview returns the start of the first text/plain part.
func extractPreview(r io.Reader) (string, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil {
		return "", err
	}
	defer mr.Close()

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return "", nil
		}
		if err != nil {
			return "", err
		}

		h, ok := p.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		if ct != "" && ct != "text/plain" {
			continue
		}

		b, err := io.ReadAll(io.LimitReader(p.Body, previewLimit*4))
		if err != nil {
			return "", err
		}
		return preview(string(b)), nil
	}
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > previewLimit {
		return string(r[:previewLimit])
	}
	return s
}

