package imap

import (
	"errors"
	"testing"

	"github.com/velomail/velo/backend/internal/testutil"
)

func TestFetchMessages(t *testing.T) {
	srv := testutil.NewTestIMAPServer(t)
	srv.CreateFolder(t, "Fetch")

	first := srv.AddMessage(t, "Fetch", testutil.TestMessage{
		MessageID: "<first@example.com>",
		Subject:   "First",
		Seen:      true,
	})
	second := srv.AddMessage(t, "Fetch", testutil.TestMessage{
		MessageID: "<second@example.com>",
		Subject:   "Second",
		Attachments: []testutil.TestAttachment{
			{Filename: "notes.txt", MimeType: "text/plain", Content: "remember the milk"},
		},
	})

	c, cleanup := srv.Connect(t)
	defer cleanup()

	t.Run("returns error for nil client", func(t *testing.T) {
		if _, err := fetchMessages(nil, "Fetch", []uint32{1}); err == nil {
			t.Error("Expected error for nil client")
		}
	})

	t.Run("fetches and parses messages", func(t *testing.T) {
		result, err := fetchMessages(c, "Fetch", []uint32{first, second})
		if err != nil {
			t.Fatalf("fetchMessages returned error: %v", err)
		}
		if len(result.Messages) != 2 {
			t.Fatalf("Expected 2 messages, got %d", len(result.Messages))
		}
		if result.FolderStatus.Exists != 2 || result.FolderStatus.UIDValidity == 0 {
			t.Errorf("Unexpected folder status %+v", result.FolderStatus)
		}

		byUID := make(map[uint32]int)
		for i, m := range result.Messages {
			byUID[m.UID] = i
		}
		one := result.Messages[byUID[first]]
		if one.Subject != "First" || !one.IsRead || one.Folder != "Fetch" {
			t.Errorf("Unexpected first message %+v", one)
		}
		two := result.Messages[byUID[second]]
		if two.IsRead {
			t.Error("Expected second message to be unread")
		}
		if len(two.Attachments) != 1 || two.Attachments[0].Filename != "notes.txt" {
			t.Errorf("Unexpected attachments %+v", two.Attachments)
		}
	})

	t.Run("fetching does not mark messages as read", func(t *testing.T) {
		result, err := fetchMessages(c, "Fetch", []uint32{second})
		if err != nil {
			t.Fatalf("fetchMessages returned error: %v", err)
		}
		if len(result.Messages) != 1 || result.Messages[0].IsRead {
			t.Errorf("Expected the message to stay unread, got %+v", result.Messages)
		}
	})

	t.Run("empty uid list still reports status", func(t *testing.T) {
		result, err := fetchMessages(c, "Fetch", nil)
		if err != nil {
			t.Fatalf("fetchMessages returned error: %v", err)
		}
		if len(result.Messages) != 0 {
			t.Errorf("Expected no messages, got %d", len(result.Messages))
		}
		if result.FolderStatus.Exists != 2 {
			t.Errorf("Expected status of 2 messages, got %d", result.FolderStatus.Exists)
		}
	})

	t.Run("missing folder", func(t *testing.T) {
		if _, err := fetchMessages(c, "Missing", []uint32{1}); !errors.Is(err, ErrNoSuchMailbox) {
			t.Errorf("Expected ErrNoSuchMailbox, got %v", err)
		}
	})
}

func TestFetchAttachment(t *testing.T) {
	srv := testutil.NewTestIMAPServer(t)
	srv.CreateFolder(t, "Files")
	uid := srv.AddMessage(t, "Files", testutil.TestMessage{
		MessageID: "<files@example.com>",
		Attachments: []testutil.TestAttachment{
			{Filename: "a.txt", MimeType: "text/plain", Content: "alpha"},
			{Filename: "b.txt", MimeType: "text/plain", Content: "bravo"},
		},
	})

	c, cleanup := srv.Connect(t)
	defer cleanup()

	result, err := fetchMessages(c, "Files", []uint32{uid})
	if err != nil {
		t.Fatalf("fetchMessages returned error: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(result.Messages))
	}

	for _, att := range result.Messages[0].Attachments {
		t.Run(att.Filename, func(t *testing.T) {
			data, err := fetchAttachment(c, "Files", uid, att.PartID)
			if err != nil {
				t.Fatalf("fetchAttachment returned error: %v", err)
			}
			want := map[string]string{"a.txt": "alpha", "b.txt": "bravo"}[att.Filename]
			if string(data) != want {
				t.Errorf("Expected %q, got %q", want, string(data))
			}
		})
	}

	t.Run("unknown part", func(t *testing.T) {
		if _, err := fetchAttachment(c, "Files", uid, "9"); err == nil {
			t.Error("Expected error for unknown part")
		}
	})

	t.Run("invalid part id", func(t *testing.T) {
		if _, err := fetchAttachment(c, "Files", uid, "1.2"); err == nil {
			t.Error("Expected error for non-numeric part id")
		}
	})

	t.Run("unknown uid", func(t *testing.T) {
		if _, err := fetchAttachment(c, "Files", uid+100, "1"); err == nil {
			t.Error("Expected error for unknown uid")
		}
	})
}
