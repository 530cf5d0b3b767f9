// Package translate converts provider-native messages into the stored and threadable projections.
package translate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/velomail/velo/backend/internal/authresults"
	"github.com/velomail/velo/backend/internal/folders"
	"github.com/velomail/velo/backend/internal/models"
	"github.com/velomail/velo/backend/internal/threading"
)

// SnippetLength is the number of characters of plain text kept when no snippet is supplied.
const SnippetLength = 200

// syntheticDomain is the namespace suffix for generated Message-ID headers.
const syntheticDomain = "velo.local"

// LocalMessageID returns the stable local id for a message. It depends only on the account,
// the folder and the UID, so re-fetching the same remote message always yields the same row.
func LocalMessageID(accountID, folder string, uid uint32) string {
	return fmt.Sprintf("imap-%s-%s-%d", accountID, folder, uid)
}

// SyntheticMessageID builds a Message-ID for messages that arrived without one.
func SyntheticMessageID(accountID, folder string, uid uint32) string {
	return fmt.Sprintf("synthetic-%s-%s-%d@%s", accountID, folder, uid, syntheticDomain)
}

// AttachmentID returns the stable id of an attachment row.
func AttachmentID(messageID, partID string) string {
	return messageID + "_" + partID
}

// ToParsedMessage builds both projections of a remote message. The parsed message has no
// thread id yet; it is assigned after threading.
func ToParsedMessage(raw models.RemoteMessage, accountID, folderLabelID string) (*models.ParsedMessage, models.ThreadableMessage) {
	id := LocalMessageID(accountID, raw.Folder, raw.UID)

	messageIDHeader := strings.TrimSpace(raw.MessageID)
	if messageIDHeader == "" {
		messageIDHeader = SyntheticMessageID(accountID, raw.Folder, raw.UID)
	}

	attachments := make([]models.ParsedAttachment, 0, len(raw.Attachments))
	for _, att := range raw.Attachments {
		attachments = append(attachments, models.ParsedAttachment{
			Filename:  att.Filename,
			MimeType:  att.MimeType,
			Size:      att.Size,
			PartID:    att.PartID,
			ContentID: att.ContentID,
			IsInline:  att.IsInline,
		})
	}

	parsed := &models.ParsedMessage{
		ID:                  id,
		AccountID:           accountID,
		FromAddress:         raw.FromAddress,
		FromName:            raw.FromName,
		ToAddresses:         nonNil(raw.ToAddresses),
		CCAddresses:         nonNil(raw.CCAddresses),
		BCCAddresses:        nonNil(raw.BCCAddresses),
		ReplyTo:             raw.ReplyTo,
		Subject:             raw.Subject,
		Snippet:             Snippet(raw.Snippet, raw.BodyText),
		Date:                raw.Date,
		IsRead:              raw.IsRead,
		IsStarred:           raw.IsStarred,
		UnsafeBodyHTML:      raw.BodyHTML,
		BodyText:            raw.BodyText,
		RawSize:             raw.RawSize,
		ListUnsubscribe:     raw.ListUnsubscribe,
		ListUnsubscribePost: raw.ListUnsubscribePost,
		AuthResults:         raw.AuthResults,
		AuthVerdict:         verdict(raw),
		LabelIDs:            folders.LabelsForMessage(folderLabelID, raw.IsRead, raw.IsStarred, raw.IsDraft),
		HasAttachments:      len(attachments) > 0,
		Attachments:         attachments,
		MessageIDHeader:     messageIDHeader,
		ReferencesHeader:    raw.References,
		InReplyToHeader:     raw.InReplyTo,
		IMAPUID:             raw.UID,
		IMAPFolder:          raw.Folder,
	}

	threadable := models.ThreadableMessage{
		ID:         id,
		MessageID:  messageIDHeader,
		InReplyTo:  raw.InReplyTo,
		References: raw.References,
		Subject:    raw.Subject,
		Date:       raw.Date,
	}

	parsed.ThreadHeaders = uniqueHeaders(threading.HeadersOf(threadable))

	return parsed, threadable
}

// Snippet returns the supplied snippet, or the first SnippetLength characters of the text body.
func Snippet(provided, bodyText string) string {
	if provided != "" {
		return provided
	}
	if utf8.RuneCountInString(bodyText) <= SnippetLength {
		return bodyText
	}
	return string([]rune(bodyText)[:SnippetLength])
}

func verdict(raw models.RemoteMessage) string {
	var result *authresults.Result
	if len(raw.AuthHeaders) > 0 {
		result = authresults.Parse(raw.AuthHeaders)
	} else {
		result = authresults.ParseRaw(raw.AuthResults)
	}
	if result == nil {
		return ""
	}
	return result.Aggregate
}

func uniqueHeaders(headers []string) []string {
	seen := make(map[string]struct{}, len(headers))
	result := make([]string, 0, len(headers))
	for _, h := range headers {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		result = append(result, h)
	}
	return result
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
