package imap

import (
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/velomail/velo/backend/internal/testutil"
)

func fetchedMessage(uid uint32, flags []string, raw string) *imap.Message {
	msg := imap.NewMessage(1, []imap.FetchItem{imap.FetchUid, imap.FetchFlags, imap.FetchRFC822Size})
	msg.Uid = uid
	msg.Flags = flags
	msg.Size = uint32(len(raw))
	msg.Body = map[*imap.BodySectionName]imap.Literal{
		{}: strings.NewReader(raw),
	}
	return msg
}

func TestParseMessage(t *testing.T) {
	date := time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC)
	raw := testutil.TestMessage{
		MessageID:       "<reply@example.com>",
		InReplyTo:       "<root@example.com>",
		References:      []string{"<root@example.com>", "<mid@example.com>"},
		Subject:         "Re: Plans",
		From:            "Alice Example <alice@example.com>",
		To:              "Bob <bob@example.com>, carol@example.com",
		Date:            date,
		Body:            "Hello   there,\r\n\r\nsee attached.",
		ListUnsubscribe: "<mailto:unsub@example.com>",
		AuthResults:     "mx.example.com; spf=pass smtp.mailfrom=example.com; dkim=pass header.d=example.com",
		Attachments: []testutil.TestAttachment{
			{Filename: "report.pdf", MimeType: "application/pdf", Content: "PDFDATA"},
			{Filename: "logo.png", MimeType: "image/png", Content: "PNG", Inline: true},
		},
	}.Build()

	msg, err := parseMessage(fetchedMessage(42, []string{imap.SeenFlag, imap.FlaggedFlag}, raw), "INBOX")
	if err != nil {
		t.Fatalf("parseMessage returned error: %v", err)
	}

	t.Run("identity headers", func(t *testing.T) {
		if msg.UID != 42 || msg.Folder != "INBOX" {
			t.Errorf("Expected uid 42 in INBOX, got %d in %s", msg.UID, msg.Folder)
		}
		if msg.MessageID != "<reply@example.com>" {
			t.Errorf("Expected Message-ID, got %q", msg.MessageID)
		}
		if msg.InReplyTo != "<root@example.com>" {
			t.Errorf("Expected In-Reply-To, got %q", msg.InReplyTo)
		}
		if msg.References != "<root@example.com> <mid@example.com>" {
			t.Errorf("Expected space-joined References, got %q", msg.References)
		}
	})

	t.Run("addresses and date", func(t *testing.T) {
		if msg.FromAddress != "alice@example.com" || msg.FromName != "Alice Example" {
			t.Errorf("Unexpected sender %q / %q", msg.FromAddress, msg.FromName)
		}
		if len(msg.ToAddresses) != 2 || msg.ToAddresses[0] != "Bob <bob@example.com>" || msg.ToAddresses[1] != "carol@example.com" {
			t.Errorf("Unexpected recipients %v", msg.ToAddresses)
		}
		if len(msg.CCAddresses) != 0 {
			t.Errorf("Expected no Cc, got %v", msg.CCAddresses)
		}
		if msg.Date != date.Unix() {
			t.Errorf("Expected date %d, got %d", date.Unix(), msg.Date)
		}
		if msg.Subject != "Re: Plans" {
			t.Errorf("Expected subject, got %q", msg.Subject)
		}
	})

	t.Run("flags", func(t *testing.T) {
		if !msg.IsRead || !msg.IsStarred || msg.IsDraft {
			t.Errorf("Unexpected flags read=%v starred=%v draft=%v", msg.IsRead, msg.IsStarred, msg.IsDraft)
		}
		if msg.RawSize != int64(len(raw)) {
			t.Errorf("Expected raw size %d, got %d", len(raw), msg.RawSize)
		}
	})

	t.Run("body and snippet", func(t *testing.T) {
		if !strings.Contains(msg.BodyText, "see attached.") {
			t.Errorf("Expected text body, got %q", msg.BodyText)
		}
		if msg.Snippet != "Hello there, see attached." {
			t.Errorf("Expected collapsed snippet, got %q", msg.Snippet)
		}
	})

	t.Run("list and auth headers", func(t *testing.T) {
		if msg.ListUnsubscribe != "<mailto:unsub@example.com>" {
			t.Errorf("Expected List-Unsubscribe, got %q", msg.ListUnsubscribe)
		}
		if !strings.Contains(msg.AuthResults, "spf=pass") {
			t.Errorf("Expected Authentication-Results, got %q", msg.AuthResults)
		}
		if len(msg.AuthHeaders) != 1 || msg.AuthHeaders[0].Name != "Authentication-Results" {
			t.Errorf("Expected one auth header, got %v", msg.AuthHeaders)
		}
	})

	t.Run("attachments", func(t *testing.T) {
		if len(msg.Attachments) != 2 {
			t.Fatalf("Expected 2 attachments, got %d", len(msg.Attachments))
		}
		byName := make(map[string]int)
		for i, a := range msg.Attachments {
			byName[a.Filename] = i
			if a.PartID == "" {
				t.Errorf("Expected part id for %s", a.Filename)
			}
		}
		report := msg.Attachments[byName["report.pdf"]]
		if report.MimeType != "application/pdf" || report.Size != int64(len("PDFDATA")) || report.IsInline {
			t.Errorf("Unexpected report attachment %+v", report)
		}
		logo := msg.Attachments[byName["logo.png"]]
		if !logo.IsInline {
			t.Errorf("Expected inline logo, got %+v", logo)
		}
	})
}

func TestParseMessageErrors(t *testing.T) {
	if _, err := parseMessage(nil, "INBOX"); err == nil {
		t.Error("Expected error for nil message")
	}

	empty := imap.NewMessage(1, nil)
	empty.Uid = 7
	if _, err := parseMessage(empty, "INBOX"); err == nil {
		t.Error("Expected error for message without body")
	}
}

func TestMakeSnippet(t *testing.T) {
	long := strings.Repeat("a", 250)

	tests := []struct {
		name string
		text string
		html string
		want string
	}{
		{"collapses whitespace", "  one\n\ttwo   three ", "", "one two three"},
		{"truncates long text", long, "", strings.Repeat("a", 200) + "..."},
		{"exactly at the limit", strings.Repeat("b", 200), "", strings.Repeat("b", 200)},
		{"falls back to stripped html", "", "<p>Hello <b>world</b> &amp; friends</p>", "Hello world & friends"},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := makeSnippet(tt.text, tt.html); got != tt.want {
				t.Errorf("makeSnippet() = %q, want %q", got, tt.want)
			}
		})
	}

	t.Run("counts characters, not bytes", func(t *testing.T) {
		got := makeSnippet(strings.Repeat("é", 201), "")
		if got != strings.Repeat("é", 200)+"..." {
			t.Errorf("Unexpected snippet %q", got)
		}
	})
}

func TestFormatAddress(t *testing.T) {
	tests := []struct {
		name    string
		address *mail.Address
		want    string
	}{
		{"with name", &mail.Address{Name: "John Doe", Address: "john@example.com"}, "John Doe <john@example.com>"},
		{"without name", &mail.Address{Address: "jane@example.com"}, "jane@example.com"},
		{"nil", nil, ""},
		{"empty address", &mail.Address{Name: "Nobody"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatAddress(tt.address); got != tt.want {
				t.Errorf("formatAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageDate(t *testing.T) {
	internal := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	if got := messageDate("Mon, 04 Mar 2024 10:30:00 +0000", internal); got != time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC).Unix() {
		t.Errorf("Expected Date header to win, got %d", got)
	}
	if got := messageDate("not a date", internal); got != internal.Unix() {
		t.Errorf("Expected internal date fallback, got %d", got)
	}
	if got := messageDate("", time.Time{}); got != 0 {
		t.Errorf("Expected 0 without any date, got %d", got)
	}
}
