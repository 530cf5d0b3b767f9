package imap

import (
	"errors"
	"testing"

	"github.com/emersion/go-imap"
	"github.com/velomail/velo/backend/internal/testutil"
)

func TestRemoteFolderFromInfo(t *testing.T) {
	tests := []struct {
		name           string
		info           imap.MailboxInfo
		wantName       string
		wantSpecialUse string
		wantSelectable bool
	}{
		{
			name:           "inbox without attributes",
			info:           imap.MailboxInfo{Name: "INBOX", Delimiter: "/"},
			wantName:       "INBOX",
			wantSpecialUse: `\Inbox`,
			wantSelectable: true,
		},
		{
			name:           "special-use attribute",
			info:           imap.MailboxInfo{Name: "[Gmail]/Sent Mail", Delimiter: "/", Attributes: []string{`\HasNoChildren`, `\Sent`}},
			wantName:       "Sent Mail",
			wantSpecialUse: `\Sent`,
			wantSelectable: true,
		},
		{
			name:           "attribute case is normalized",
			info:           imap.MailboxInfo{Name: "Junk", Delimiter: ".", Attributes: []string{`\junk`}},
			wantName:       "Junk",
			wantSpecialUse: `\Junk`,
			wantSelectable: true,
		},
		{
			name:           "noselect container",
			info:           imap.MailboxInfo{Name: "[Gmail]", Delimiter: "/", Attributes: []string{`\Noselect`, `\HasChildren`}},
			wantName:       "[Gmail]",
			wantSelectable: false,
		},
		{
			name:           "nonexistent folder",
			info:           imap.MailboxInfo{Name: "Gone", Delimiter: "/", Attributes: []string{`\NonExistent`}},
			wantName:       "Gone",
			wantSelectable: false,
		},
		{
			name:           "nested user folder with dot delimiter",
			info:           imap.MailboxInfo{Name: "INBOX.Projects.Velo", Delimiter: "."},
			wantName:       "Velo",
			wantSelectable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tt.info
			folder := remoteFolderFromInfo(&info)

			if folder.Path != tt.info.Name || folder.RawPath != tt.info.Name {
				t.Errorf("Expected path and raw path %q, got %q and %q", tt.info.Name, folder.Path, folder.RawPath)
			}
			if folder.Name != tt.wantName {
				t.Errorf("Expected name %q, got %q", tt.wantName, folder.Name)
			}
			if folder.SpecialUse != tt.wantSpecialUse {
				t.Errorf("Expected special use %q, got %q", tt.wantSpecialUse, folder.SpecialUse)
			}
			if folder.Selectable != tt.wantSelectable {
				t.Errorf("Expected selectable %v, got %v", tt.wantSelectable, folder.Selectable)
			}
		})
	}
}

func TestListFolders(t *testing.T) {
	t.Run("returns error for nil client", func(t *testing.T) {
		if _, err := listFolders(nil); err == nil {
			t.Error("Expected error for nil client")
		}
	})

	t.Run("lists folders with counts", func(t *testing.T) {
		srv := testutil.NewTestIMAPServer(t)
		srv.CreateFolder(t, "Projects")
		srv.CreateFolder(t, "Projects/Velo")
		srv.AddMessage(t, "Projects/Velo", testutil.TestMessage{MessageID: "<a@example.com>", Seen: true})
		srv.AddMessage(t, "Projects/Velo", testutil.TestMessage{MessageID: "<b@example.com>"})

		c, cleanup := srv.Connect(t)
		defer cleanup()

		folders, err := listFolders(c)
		if err != nil {
			t.Fatalf("listFolders returned error: %v", err)
		}

		byPath := make(map[string]int)
		for i, f := range folders {
			byPath[f.Path] = i
		}

		for _, path := range []string{"INBOX", "Projects", "Projects/Velo"} {
			if _, ok := byPath[path]; !ok {
				t.Fatalf("Expected folder %s in %v", path, folders)
			}
		}

		velo := folders[byPath["Projects/Velo"]]
		if velo.Name != "Velo" {
			t.Errorf("Expected name Velo, got %q", velo.Name)
		}
		if velo.Exists != 2 {
			t.Errorf("Expected 2 messages, got %d", velo.Exists)
		}

		if inbox := folders[byPath["INBOX"]]; inbox.SpecialUse != `\Inbox` {
			t.Errorf("Expected INBOX special use, got %q", inbox.SpecialUse)
		}
	})
}

func TestFolderStatus(t *testing.T) {
	srv := testutil.NewTestIMAPServer(t)
	srv.CreateFolder(t, "Status")
	uid := srv.AddMessage(t, "Status", testutil.TestMessage{MessageID: "<s@example.com>"})

	c, cleanup := srv.Connect(t)
	defer cleanup()

	t.Run("reports validity and next uid", func(t *testing.T) {
		status, err := folderStatus(c, "Status")
		if err != nil {
			t.Fatalf("folderStatus returned error: %v", err)
		}
		if status.UIDValidity == 0 {
			t.Error("Expected non-zero UID validity")
		}
		if status.UIDNext != uid+1 {
			t.Errorf("Expected UIDNext %d, got %d", uid+1, status.UIDNext)
		}
		if status.Exists != 1 {
			t.Errorf("Expected 1 message, got %d", status.Exists)
		}
	})

	t.Run("missing folder is ErrNoSuchMailbox", func(t *testing.T) {
		_, err := folderStatus(c, "Missing")
		if !errors.Is(err, ErrNoSuchMailbox) {
			t.Errorf("Expected ErrNoSuchMailbox, got %v", err)
		}
	})
}

func TestMailboxError(t *testing.T) {
	if err := mailboxError("X", errors.New("No such mailbox")); !errors.Is(err, ErrNoSuchMailbox) {
		t.Errorf("Expected ErrNoSuchMailbox, got %v", err)
	}
	if err := mailboxError("X", errors.New("Mailbox doesn't exist: X")); !errors.Is(err, ErrNoSuchMailbox) {
		t.Errorf("Expected ErrNoSuchMailbox, got %v", err)
	}
	if err := mailboxError("X", errors.New("server busy")); errors.Is(err, ErrNoSuchMailbox) {
		t.Errorf("Did not expect ErrNoSuchMailbox, got %v", err)
	}
}
