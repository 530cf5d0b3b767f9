package imap

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/jhillyerd/enmime"
	"github.com/rs/zerolog/log"
	"github.com/velomail/velo/backend/internal/models"
)

// fetchMessages fetches and parses the given UIDs of a folder. Messages that fail to parse
// are logged and left out of the result.
func fetchMessages(c *client.Client, folder string, uids []uint32) (*models.FetchResult, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	status, err := folderStatus(c, folder)
	if err != nil {
		return nil, err
	}

	result := &models.FetchResult{
		Messages:     []models.RemoteMessage{},
		FolderStatus: status,
	}
	if len(uids) == 0 {
		return result, nil
	}

	if _, err := examineFolder(c, folder); err != nil {
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchUid,
		imap.FetchFlags,
		imap.FetchRFC822Size,
		imap.FetchInternalDate,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	for imapMsg := range messages {
		msg, err := parseMessage(imapMsg, folder)
		if err != nil {
			log.Warn().Err(err).Str("folder", folder).Uint32("uid", imapMsg.Uid).Msg("skipping unparseable message")
			continue
		}
		result.Messages = append(result.Messages, msg)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return result, nil
}

// fetchAttachment returns the content of one attachment, identified by the part id assigned
// when the message was parsed.
func fetchAttachment(c *client.Client, folder string, uid uint32, partID string) ([]byte, error) {
	index, err := strconv.Atoi(partID)
	if err != nil || index < 1 {
		return nil, fmt.Errorf("invalid part id %q", partID)
	}

	if _, err := examineFolder(c, folder); err != nil {
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.UidFetch(seqSet, []imap.FetchItem{imap.FetchUid, section.FetchItem()}, messages)
	}()

	var body []byte
	var readErr error
	for imapMsg := range messages {
		if r := messageBody(imapMsg); r != nil && body == nil {
			body, readErr = io.ReadAll(r)
		}
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", uid, err)
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read message %d: %w", uid, readErr)
	}
	if body == nil {
		return nil, fmt.Errorf("message %d not found in %s", uid, folder)
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message %d: %w", uid, err)
	}

	parts := attachmentParts(env)
	if index > len(parts) {
		return nil, fmt.Errorf("message %d has no part %s", uid, partID)
	}

	return parts[index-1].Content, nil
}
