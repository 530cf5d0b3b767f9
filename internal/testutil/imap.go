package testutil

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	sortthread "github.com/emersion/go-imap-sortthread"
	"github.com/emersion/go-imap/backend"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
)

// TestIMAPServer is an in-memory IMAP server for tests.
// The memory backend has a single user "username" with password "password" and an INBOX.
type TestIMAPServer struct {
	Server   *server.Server
	Address  string
	Backend  *memory.Backend
	cleanup  func()
	username string
	password string
}

// NewTestIMAPServer starts a server on a random local port. It is closed when the test ends.
func NewTestIMAPServer(t *testing.T) *TestIMAPServer {
	t.Helper()

	be := memory.New()
	return startTestIMAPServer(t, be, be)
}

// NewTestIMAPServerWithSort starts a server that also advertises SORT (RFC 5256). It sorts on
// the internal date, which AddMessage sets from TestMessage.Date.
func NewTestIMAPServerWithSort(t *testing.T) *TestIMAPServer {
	t.Helper()

	be := memory.New()
	return startTestIMAPServer(t, be, sortBackend{be}, sortthread.NewSortExtension())
}

func startTestIMAPServer(t *testing.T, be *memory.Backend, served backend.Backend, extensions ...server.Extension) *TestIMAPServer {
	t.Helper()

	s := server.New(served)
	s.AllowInsecureAuth = true
	s.Enable(extensions...)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		if err := s.Serve(listener); err != nil {
			t.Logf("IMAP server error: %v", err)
		}
	}()

	srv := &TestIMAPServer{
		Server:   s,
		Address:  listener.Addr().String(),
		Backend:  be,
		cleanup:  func() { _ = s.Close() },
		username: "username",
		password: "password",
	}
	t.Cleanup(srv.Close)

	return srv
}

// Close shuts down the server. Safe to call twice.
func (s *TestIMAPServer) Close() {
	if s.cleanup != nil {
		s.cleanup()
		s.cleanup = nil
	}
}

// Username returns the default test username.
func (s *TestIMAPServer) Username() string {
	return s.username
}

// Password returns the default test password.
func (s *TestIMAPServer) Password() string {
	return s.password
}

// Host returns the host part of the listen address.
func (s *TestIMAPServer) Host() string {
	host, _, _ := net.SplitHostPort(s.Address)
	return host
}

// Port returns the port part of the listen address.
func (s *TestIMAPServer) Port() int {
	_, port, _ := net.SplitHostPort(s.Address)
	p, _ := strconv.Atoi(port)
	return p
}

// Connect opens a logged-in client connection.
func (s *TestIMAPServer) Connect(t *testing.T) (*imapclient.Client, func()) {
	t.Helper()

	client, err := imapclient.Dial(s.Address)
	if err != nil {
		t.Fatalf("Failed to connect to test server: %v", err)
	}

	if err := client.Login(s.username, s.password); err != nil {
		_ = client.Logout()
		t.Fatalf("Failed to login: %v", err)
	}

	return client, func() { _ = client.Logout() }
}

// CreateFolder creates a mailbox. Creating an existing mailbox is not an error.
func (s *TestIMAPServer) CreateFolder(t *testing.T, name string) {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	if _, err := client.Select(name, true); err == nil {
		return
	}
	if err := client.Create(name); err != nil {
		t.Fatalf("Failed to create folder %s: %v", name, err)
	}
}

// TestAttachment is a file part of a TestMessage.
type TestAttachment struct {
	Filename string
	MimeType string
	Content  string
	Inline   bool
}

// TestMessage describes a message to append.
type TestMessage struct {
	MessageID       string
	InReplyTo       string
	References      []string
	Subject         string
	From            string
	To              string
	Date            time.Time
	Body            string
	HTMLBody        string
	Seen            bool
	Flagged         bool
	ListUnsubscribe string
	AuthResults     string
	Attachments     []TestAttachment
}

// Build renders the message as RFC 822 text with CRLF line endings.
func (m TestMessage) Build() string {
	var b strings.Builder
	header := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\r\n", name, value)
		}
	}

	date := m.Date
	if date.IsZero() {
		date = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	}
	from := m.From
	if from == "" {
		from = "Sender <sender@example.com>"
	}
	to := m.To
	if to == "" {
		to = "me@example.com"
	}

	header("Message-ID", m.MessageID)
	header("In-Reply-To", m.InReplyTo)
	header("References", strings.Join(m.References, " "))
	header("Date", date.Format(time.RFC1123Z))
	header("From", from)
	header("To", to)
	header("Subject", m.Subject)
	header("List-Unsubscribe", m.ListUnsubscribe)
	header("Authentication-Results", m.AuthResults)
	header("MIME-Version", "1.0")

	body := m.Body
	if body == "" && m.HTMLBody == "" {
		body = "Test message body."
	}

	if len(m.Attachments) == 0 && m.HTMLBody == "" {
		header("Content-Type", "text/plain; charset=utf-8")
		b.WriteString("\r\n")
		b.WriteString(body)
		b.WriteString("\r\n")
		return b.String()
	}

	const boundary = "velo-test-boundary"
	header("Content-Type", fmt.Sprintf("multipart/mixed; boundary=%q", boundary))
	b.WriteString("\r\n")

	if body != "" {
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n", boundary, body)
	}
	if m.HTMLBody != "" {
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\n\r\n%s\r\n", boundary, m.HTMLBody)
	}
	for _, att := range m.Attachments {
		disposition := "attachment"
		if att.Inline {
			disposition = "inline"
		}
		mimeType := att.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		fmt.Fprintf(&b, "--%s\r\nContent-Type: %s; name=%q\r\nContent-Disposition: %s; filename=%q\r\n\r\n%s\r\n",
			boundary, mimeType, att.Filename, disposition, att.Filename, att.Content)
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return b.String()
}

// AddMessage appends a message to the folder and returns its UID.
func (s *TestIMAPServer) AddMessage(t *testing.T, folderName string, msg TestMessage) uint32 {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	var flags []string
	if msg.Seen {
		flags = append(flags, imap.SeenFlag)
	}
	if msg.Flagged {
		flags = append(flags, imap.FlaggedFlag)
	}

	received := msg.Date
	if received.IsZero() {
		received = time.Now()
	}

	if err := client.Append(folderName, flags, received, strings.NewReader(msg.Build())); err != nil {
		t.Fatalf("Failed to append message: %v", err)
	}

	status, err := client.Select(folderName, true)
	if err != nil {
		t.Fatalf("Failed to select folder: %v", err)
	}

	// The memory backend hands out UIDs in append order.
	return status.UidNext - 1
}

type sortBackend struct {
	*memory.Backend
}

func (b sortBackend) Login(info *imap.ConnInfo, username, password string) (backend.User, error) {
	user, err := b.Backend.Login(info, username, password)
	if err != nil {
		return nil, err
	}
	return sortUser{user}, nil
}

type sortUser struct {
	backend.User
}

func (u sortUser) GetMailbox(name string) (backend.Mailbox, error) {
	mbox, err := u.User.GetMailbox(name)
	if err != nil {
		return nil, err
	}
	if m, ok := mbox.(*memory.Mailbox); ok {
		return sortMailbox{m}, nil
	}
	return mbox, nil
}

type sortMailbox struct {
	*memory.Mailbox
}

// Sort supports a single ARRIVAL or DATE criterion, both on the internal date.
func (m sortMailbox) Sort(uid bool, sortCrit []sortthread.SortCriterion, searchCrit *imap.SearchCriteria) ([]uint32, error) {
	ids, err := m.SearchMessages(uid, searchCrit)
	if err != nil {
		return nil, err
	}

	dates := make(map[uint32]time.Time, len(m.Messages))
	for i, msg := range m.Messages {
		id := uint32(i + 1)
		if uid {
			id = msg.Uid
		}
		dates[id] = msg.Date
	}

	reverse := len(sortCrit) > 0 && sortCrit[0].Reverse
	sort.SliceStable(ids, func(i, j int) bool {
		if reverse {
			return dates[ids[i]].After(dates[ids[j]])
		}
		return dates[ids[i]].Before(dates[ids[j]])
	})
	return ids, nil
}
