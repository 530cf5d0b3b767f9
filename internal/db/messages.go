package db

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/velomail/velo/backend/internal/models"
)

// ErrMessageNotFound is returned when a requested message cannot be found.
var ErrMessageNotFound = errors.New("message not found")

// UpsertMessage writes the full message row keyed by its deterministic id.
func UpsertMessage(ctx context.Context, q Querier, msg *models.ParsedMessage) error {
	threadHeaders := msg.ThreadHeaders
	if threadHeaders == nil {
		threadHeaders = []string{}
	}
	labelIDs := msg.LabelIDs
	if labelIDs == nil {
		labelIDs = []string{}
	}

	_, err := q.Exec(ctx, `
		INSERT INTO messages (
			account_id,
			id,
			thread_id,
			from_address,
			from_name,
			to_addresses,
			cc_addresses,
			bcc_addresses,
			reply_to,
			subject,
			snippet,
			date,
			is_read,
			is_starred,
			unsafe_body_html,
			body_text,
			raw_size,
			list_unsubscribe,
			list_unsubscribe_post,
			auth_results,
			auth_verdict,
			label_ids,
			has_attachments,
			message_id_header,
			references_header,
			in_reply_to_header,
			thread_headers,
			imap_uid,
			imap_folder
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, NULLIF($18, ''), NULLIF($19, ''), NULLIF($20, ''),
			NULLIF($21, ''), $22, $23, $24, NULLIF($25, ''), NULLIF($26, ''), $27, $28, $29
		)
		ON CONFLICT (account_id, id) DO UPDATE SET
			thread_id = EXCLUDED.thread_id,
			from_address = EXCLUDED.from_address,
			from_name = EXCLUDED.from_name,
			to_addresses = EXCLUDED.to_addresses,
			cc_addresses = EXCLUDED.cc_addresses,
			bcc_addresses = EXCLUDED.bcc_addresses,
			reply_to = EXCLUDED.reply_to,
			subject = EXCLUDED.subject,
			snippet = EXCLUDED.snippet,
			date = EXCLUDED.date,
			is_read = EXCLUDED.is_read,
			is_starred = EXCLUDED.is_starred,
			unsafe_body_html = COALESCE(EXCLUDED.unsafe_body_html, messages.unsafe_body_html),
			body_text = COALESCE(EXCLUDED.body_text, messages.body_text),
			raw_size = EXCLUDED.raw_size,
			list_unsubscribe = EXCLUDED.list_unsubscribe,
			list_unsubscribe_post = EXCLUDED.list_unsubscribe_post,
			auth_results = EXCLUDED.auth_results,
			auth_verdict = EXCLUDED.auth_verdict,
			label_ids = EXCLUDED.label_ids,
			has_attachments = EXCLUDED.has_attachments,
			message_id_header = EXCLUDED.message_id_header,
			references_header = EXCLUDED.references_header,
			in_reply_to_header = EXCLUDED.in_reply_to_header,
			thread_headers = EXCLUDED.thread_headers,
			imap_uid = EXCLUDED.imap_uid,
			imap_folder = EXCLUDED.imap_folder
	`,
		msg.AccountID,
		msg.ID,
		msg.ThreadID,
		msg.FromAddress,
		msg.FromName,
		nonNilStrings(msg.ToAddresses),
		nonNilStrings(msg.CCAddresses),
		nonNilStrings(msg.BCCAddresses),
		msg.ReplyTo,
		msg.Subject,
		msg.Snippet,
		msg.Date,
		msg.IsRead,
		msg.IsStarred,
		msg.UnsafeBodyHTML,
		msg.BodyText,
		msg.RawSize,
		msg.ListUnsubscribe,
		msg.ListUnsubscribePost,
		msg.AuthResults,
		msg.AuthVerdict,
		labelIDs,
		msg.HasAttachments,
		msg.MessageIDHeader,
		msg.ReferencesHeader,
		msg.InReplyToHeader,
		threadHeaders,
		int64(msg.IMAPUID),
		msg.IMAPFolder,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert message %s: %w", msg.ID, err)
	}

	return nil
}

// GetThreadIDsForHeaders maps each of the given normalized Message-IDs to the threads of the
// stored messages that own or reference it.
func GetThreadIDsForHeaders(ctx context.Context, q Querier, accountID string, headers []string) (map[string][]string, error) {
	result := make(map[string][]string)
	if len(headers) == 0 {
		return result, nil
	}

	wanted := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		wanted[h] = struct{}{}
	}

	rows, err := q.Query(ctx, `
		SELECT DISTINCT thread_id, thread_headers
		FROM messages
		WHERE account_id = $1 AND thread_headers && $2::text[]
	`, accountID, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to look up threads by header: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]map[string]struct{})
	for rows.Next() {
		var threadID string
		var threadHeaders []string
		if err := rows.Scan(&threadID, &threadHeaders); err != nil {
			return nil, fmt.Errorf("failed to scan thread header: %w", err)
		}
		for _, h := range threadHeaders {
			if _, ok := wanted[h]; !ok {
				continue
			}
			if seen[h] == nil {
				seen[h] = make(map[string]struct{})
			}
			if _, dup := seen[h][threadID]; dup {
				continue
			}
			seen[h][threadID] = struct{}{}
			result[h] = append(result[h], threadID)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thread headers: %w", err)
	}

	for h := range result {
		sort.Strings(result[h])
	}

	return result, nil
}

// MessageLocation is where a stored message lives on the server.
type MessageLocation struct {
	MessageID string
	Folder    string
	UID       uint32
}

// GetIMAPUIDsForMessages returns the server location of each stored message.
func GetIMAPUIDsForMessages(ctx context.Context, q Querier, accountID string, messageIDs []string) ([]MessageLocation, error) {
	if len(messageIDs) == 0 {
		return []MessageLocation{}, nil
	}

	rows, err := q.Query(ctx, `
		SELECT id, imap_folder, imap_uid
		FROM messages
		WHERE account_id = $1 AND id = ANY($2::text[]) AND imap_uid IS NOT NULL AND imap_folder IS NOT NULL
		ORDER BY imap_folder, imap_uid
	`, accountID, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get message locations: %w", err)
	}
	defer rows.Close()

	locations := make([]MessageLocation, 0, len(messageIDs))
	for rows.Next() {
		var loc MessageLocation
		var uid int64
		if err := rows.Scan(&loc.MessageID, &loc.Folder, &uid); err != nil {
			return nil, fmt.Errorf("failed to scan message location: %w", err)
		}
		loc.UID = uint32(uid)
		locations = append(locations, loc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message locations: %w", err)
	}

	return locations, nil
}

// GroupMessagesByFolder groups locations by folder so one SELECT serves many UIDs.
func GroupMessagesByFolder(locations []MessageLocation) map[string][]uint32 {
	grouped := make(map[string][]uint32)
	for _, loc := range locations {
		grouped[loc.Folder] = append(grouped[loc.Folder], loc.UID)
	}
	return grouped
}

// UpdateMessageIMAPFolder records that a message moved to another folder under a new UID.
func UpdateMessageIMAPFolder(ctx context.Context, q Querier, accountID, messageID, folder string, uid uint32) error {
	tag, err := q.Exec(ctx, `
		UPDATE messages
		SET imap_folder = $3, imap_uid = $4
		WHERE account_id = $1 AND id = $2
	`, accountID, messageID, folder, int64(uid))
	if err != nil {
		return fmt.Errorf("failed to update message folder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// GetMessage returns a stored message by id, without attachments.
func GetMessage(ctx context.Context, q Querier, accountID, messageID string) (*models.ParsedMessage, error) {
	var msg models.ParsedMessage
	var uid *int64

	err := q.QueryRow(ctx, `
		SELECT
			account_id::text,
			id,
			thread_id,
			from_address,
			from_name,
			to_addresses,
			cc_addresses,
			bcc_addresses,
			reply_to,
			subject,
			snippet,
			date,
			is_read,
			is_starred,
			COALESCE(unsafe_body_html, ''),
			COALESCE(body_text, ''),
			raw_size,
			COALESCE(list_unsubscribe, ''),
			COALESCE(list_unsubscribe_post, ''),
			COALESCE(auth_results, ''),
			COALESCE(auth_verdict, ''),
			label_ids,
			has_attachments,
			COALESCE(message_id_header, ''),
			COALESCE(references_header, ''),
			COALESCE(in_reply_to_header, ''),
			thread_headers,
			imap_uid,
			COALESCE(imap_folder, '')
		FROM messages
		WHERE account_id = $1 AND id = $2
	`, accountID, messageID).Scan(
		&msg.AccountID,
		&msg.ID,
		&msg.ThreadID,
		&msg.FromAddress,
		&msg.FromName,
		&msg.ToAddresses,
		&msg.CCAddresses,
		&msg.BCCAddresses,
		&msg.ReplyTo,
		&msg.Subject,
		&msg.Snippet,
		&msg.Date,
		&msg.IsRead,
		&msg.IsStarred,
		&msg.UnsafeBodyHTML,
		&msg.BodyText,
		&msg.RawSize,
		&msg.ListUnsubscribe,
		&msg.ListUnsubscribePost,
		&msg.AuthResults,
		&msg.AuthVerdict,
		&msg.LabelIDs,
		&msg.HasAttachments,
		&msg.MessageIDHeader,
		&msg.ReferencesHeader,
		&msg.InReplyToHeader,
		&msg.ThreadHeaders,
		&uid,
		&msg.IMAPFolder,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	if uid != nil {
		msg.IMAPUID = uint32(*uid)
	}

	return &msg, nil
}

// CountMessages returns the number of stored messages of an account.
func CountMessages(ctx context.Context, q Querier, accountID string) (int, error) {
	var count int
	if err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages WHERE account_id = $1
	`, accountID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
