package imap

import (
	"fmt"
	"html"
	"io"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"
	"github.com/microcosm-cc/bluemonday"
	"github.com/velomail/velo/backend/internal/models"
)

const (
	snippetLength = 200

	defaultAttachmentName = "attachment"
	defaultAttachmentType = "application/octet-stream"
)

// authHeaderNames are copied onto the message so authentication results can be evaluated.
var authHeaderNames = []string{
	"Authentication-Results",
	"ARC-Authentication-Results",
	"Received-SPF",
}

var snippetPolicy = bluemonday.StrictPolicy()

// parseMessage converts a fetched message into the provider-native record. The full RFC 822
// body must have been fetched.
func parseMessage(imapMsg *imap.Message, folder string) (models.RemoteMessage, error) {
	if imapMsg == nil {
		return models.RemoteMessage{}, fmt.Errorf("imap message is nil")
	}

	msg := models.RemoteMessage{
		UID:     imapMsg.Uid,
		Folder:  folder,
		RawSize: int64(imapMsg.Size),
	}

	for _, flag := range imapMsg.Flags {
		switch flag {
		case imap.SeenFlag:
			msg.IsRead = true
		case imap.FlaggedFlag:
			msg.IsStarred = true
		case imap.DraftFlag:
			msg.IsDraft = true
		}
	}

	body := messageBody(imapMsg)
	if body == nil {
		return msg, fmt.Errorf("message %d has no body", imapMsg.Uid)
	}

	env, err := enmime.ReadEnvelope(body)
	if err != nil {
		return msg, fmt.Errorf("failed to parse message %d: %w", imapMsg.Uid, err)
	}

	fillFromEnvelope(&msg, env, imapMsg.InternalDate)
	return msg, nil
}

// messageBody returns the fetched BODY[] literal.
func messageBody(imapMsg *imap.Message) io.Reader {
	if r := imapMsg.GetBody(&imap.BodySectionName{Peek: true}); r != nil {
		return r
	}
	for _, literal := range imapMsg.Body {
		if literal != nil {
			return literal
		}
	}
	return nil
}

func fillFromEnvelope(msg *models.RemoteMessage, env *enmime.Envelope, internalDate time.Time) {
	msg.MessageID = strings.TrimSpace(env.GetHeader("Message-ID"))
	msg.InReplyTo = strings.TrimSpace(env.GetHeader("In-Reply-To"))
	msg.References = strings.Join(strings.Fields(env.GetHeader("References")), " ")
	msg.Subject = env.GetHeader("Subject")

	if from, _ := env.AddressList("From"); len(from) > 0 {
		msg.FromAddress = from[0].Address
		msg.FromName = from[0].Name
	}
	msg.ToAddresses = addressStrings(env, "To")
	msg.CCAddresses = addressStrings(env, "Cc")
	msg.BCCAddresses = addressStrings(env, "Bcc")
	if replyTo := addressStrings(env, "Reply-To"); len(replyTo) > 0 {
		msg.ReplyTo = replyTo[0]
	}

	msg.Date = messageDate(env.GetHeader("Date"), internalDate)

	msg.BodyText = env.Text
	msg.BodyHTML = env.HTML
	msg.Snippet = makeSnippet(env.Text, env.HTML)

	msg.ListUnsubscribe = env.GetHeader("List-Unsubscribe")
	msg.ListUnsubscribePost = env.GetHeader("List-Unsubscribe-Post")
	msg.AuthResults = env.GetHeader("Authentication-Results")
	for _, name := range authHeaderNames {
		for _, value := range env.GetHeaderValues(name) {
			msg.AuthHeaders = append(msg.AuthHeaders, models.Header{Name: name, Value: value})
		}
	}

	msg.Attachments = attachmentsOf(env)
}

// attachmentsOf lists attachments and inline parts. Part ids are 1-based positions in that
// order, which is also the order FetchAttachment resolves them in.
func attachmentsOf(env *enmime.Envelope) []models.RemoteAttachment {
	parts := attachmentParts(env)
	result := make([]models.RemoteAttachment, 0, len(parts))
	for i, part := range parts {
		filename := part.FileName
		if filename == "" {
			filename = defaultAttachmentName
		}
		mimeType := part.ContentType
		if mimeType == "" {
			mimeType = defaultAttachmentType
		}

		result = append(result, models.RemoteAttachment{
			PartID:    strconv.Itoa(i + 1),
			Filename:  filename,
			MimeType:  mimeType,
			Size:      int64(len(part.Content)),
			ContentID: strings.Trim(part.ContentID, "<>"),
			IsInline:  strings.EqualFold(part.Disposition, "inline"),
		})
	}
	return result
}

func attachmentParts(env *enmime.Envelope) []*enmime.Part {
	parts := make([]*enmime.Part, 0, len(env.Attachments)+len(env.Inlines))
	parts = append(parts, env.Attachments...)
	parts = append(parts, env.Inlines...)
	return parts
}

func addressStrings(env *enmime.Envelope, header string) []string {
	addresses, err := env.AddressList(header)
	if err != nil || len(addresses) == 0 {
		return []string{}
	}
	result := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if formatted := formatAddress(a); formatted != "" {
			result = append(result, formatted)
		}
	}
	return result
}

// formatAddress renders "Name <addr>", or just the address when there is no name.
func formatAddress(address *mail.Address) string {
	if address == nil || address.Address == "" {
		return ""
	}
	if address.Name != "" {
		return fmt.Sprintf("%s <%s>", address.Name, address.Address)
	}
	return address.Address
}

// messageDate parses the Date header, falling back to the server's internal date.
func messageDate(header string, internalDate time.Time) int64 {
	if header != "" {
		if t, err := mail.ParseDate(header); err == nil {
			return t.Unix()
		}
	}
	if !internalDate.IsZero() {
		return internalDate.Unix()
	}
	return 0
}

// makeSnippet collapses whitespace of the text body, or of the stripped HTML body when there
// is no text, and cuts it at snippetLength characters.
func makeSnippet(text, htmlBody string) string {
	source := text
	if strings.TrimSpace(source) == "" && htmlBody != "" {
		source = html.UnescapeString(snippetPolicy.Sanitize(htmlBody))
	}

	collapsed := strings.Join(strings.Fields(source), " ")
	if utf8.RuneCountInString(collapsed) <= snippetLength {
		return collapsed
	}
	return string([]rune(collapsed)[:snippetLength]) + "..."
}
