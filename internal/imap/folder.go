package imap

import (
	"fmt"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/rs/zerolog/log"
	"github.com/velomail/velo/backend/internal/models"
)

// Special-use attributes the server may report on LIST (RFC 6154).
var specialUseAttrs = map[string]struct{}{
	`\All`:       {},
	`\Archive`:   {},
	`\Drafts`:    {},
	`\Flagged`:   {},
	`\Junk`:      {},
	`\Sent`:      {},
	`\Trash`:     {},
	`\Important`: {},
}

// listFolders lists every folder with its message and unseen counts.
func listFolders(c *client.Client) ([]models.RemoteFolder, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.List("", "*", mailboxes)
	}()

	var infos []*imap.MailboxInfo
	for m := range mailboxes {
		infos = append(infos, m)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	folders := make([]models.RemoteFolder, 0, len(infos))
	for _, info := range infos {
		folder := remoteFolderFromInfo(info)
		if folder.Selectable {
			status, err := c.Status(info.Name, []imap.StatusItem{imap.StatusMessages, imap.StatusUnseen})
			if err != nil {
				log.Warn().Err(err).Str("folder", info.Name).Msg("failed to get folder status")
			} else {
				folder.Exists = status.Messages
				folder.Unseen = status.Unseen
			}
		}
		folders = append(folders, folder)
	}

	return folders, nil
}

// remoteFolderFromInfo converts a LIST response entry. The client has already decoded the
// modified UTF-7 name and encodes it again on SELECT, so the decoded name is also the path
// to send back.
func remoteFolderFromInfo(info *imap.MailboxInfo) models.RemoteFolder {
	folder := models.RemoteFolder{
		Path:       info.Name,
		RawPath:    info.Name,
		Name:       lastSegment(info.Name, info.Delimiter),
		Delimiter:  info.Delimiter,
		Attributes: info.Attributes,
		Selectable: true,
	}

	for _, attr := range info.Attributes {
		switch {
		case strings.EqualFold(attr, imap.NoSelectAttr), strings.EqualFold(attr, `\NonExistent`):
			folder.Selectable = false
		case folder.SpecialUse == "":
			if _, ok := specialUseAttrs[canonicalAttr(attr)]; ok {
				folder.SpecialUse = canonicalAttr(attr)
			}
		}
	}

	if strings.EqualFold(info.Name, "INBOX") && folder.SpecialUse == "" {
		folder.SpecialUse = `\Inbox`
	}

	return folder
}

// canonicalAttr returns attr with the case used by RFC 6154, e.g. "\sent" becomes "\Sent".
func canonicalAttr(attr string) string {
	for known := range specialUseAttrs {
		if strings.EqualFold(known, attr) {
			return known
		}
	}
	return attr
}

func lastSegment(name, delimiter string) string {
	if delimiter == "" {
		return name
	}
	if i := strings.LastIndex(name, delimiter); i >= 0 {
		return name[i+len(delimiter):]
	}
	return name
}

// folderStatus returns the UID validity, next UID and counts of a folder without selecting it.
func folderStatus(c *client.Client, folder string) (models.FolderStatus, error) {
	status, err := c.Status(folder, []imap.StatusItem{
		imap.StatusMessages,
		imap.StatusUidNext,
		imap.StatusUidValidity,
		imap.StatusUnseen,
	})
	if err != nil {
		return models.FolderStatus{}, mailboxError(folder, err)
	}

	return models.FolderStatus{
		UIDValidity: status.UidValidity,
		UIDNext:     status.UidNext,
		Exists:      status.Messages,
		Unseen:      status.Unseen,
	}, nil
}

// examineFolder opens a folder read-only so fetches never change flags.
func examineFolder(c *client.Client, folder string) (*imap.MailboxStatus, error) {
	mbox, err := c.Select(folder, true)
	if err != nil {
		return nil, mailboxError(folder, err)
	}
	return mbox, nil
}

// mailboxError wraps err with ErrNoSuchMailbox when the server says the folder is missing.
func mailboxError(folder string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "no such mailbox") ||
		strings.Contains(msg, "nonexistent") ||
		strings.Contains(msg, "doesn't exist") ||
		strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "unknown mailbox") {
		return fmt.Errorf("%w: %s: %v", ErrNoSuchMailbox, folder, err)
	}
	return fmt.Errorf("failed to open folder %s: %w", folder, err)
}
