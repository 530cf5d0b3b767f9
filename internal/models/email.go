package models

// LabelType distinguishes provider-defined labels from user folders.
type LabelType string

const (
	LabelTypeSystem LabelType = "system"
	LabelTypeUser   LabelType = "user"
)

// Well-known label ids.
const (
	LabelInbox     = "INBOX"
	LabelSent      = "SENT"
	LabelDraft     = "DRAFT"
	LabelTrash     = "TRASH"
	LabelSpam      = "SPAM"
	LabelArchive   = "archive"
	LabelStarred   = "STARRED"
	LabelAllMail   = "all-mail"
	LabelImportant = "IMPORTANT"
	LabelUnread    = "UNREAD"
)

// LabelMapping is the result of mapping a remote folder onto the label model.
type LabelMapping struct {
	LabelID   string    `json:"label_id"`
	LabelName string    `json:"label_name"`
	Type      LabelType `json:"type"`
}

// Label is a persisted, account-scoped label.
type Label struct {
	ID             string    `json:"id"`
	AccountID      string    `json:"account_id"`
	Name           string    `json:"name"`
	Type           LabelType `json:"type"`
	ImapFolderPath string    `json:"imap_folder_path,omitempty"`
	ImapSpecialUse string    `json:"imap_special_use,omitempty"`
	ThreadCount    int       `json:"thread_count"`
	UnreadCount    int       `json:"unread_count"`
}

// Thread is the persisted conversation row. Aggregates are re-derived from its messages.
type Thread struct {
	ID             string   `json:"id"`
	AccountID      string   `json:"account_id"`
	Subject        string   `json:"subject"`
	Snippet        string   `json:"snippet"`
	LastMessageAt  int64    `json:"last_message_at"`
	MessageCount   int      `json:"message_count"`
	IsRead         bool     `json:"is_read"`
	IsStarred      bool     `json:"is_starred"`
	HasAttachments bool     `json:"has_attachments"`
	LabelIDs       []string `json:"label_ids"`
	Category       string   `json:"category,omitempty"`
	FromAddress    string   `json:"from_address,omitempty"`
}

// ParsedMessage is the durable projection of a remote message.
// ID is a pure function of (account, folder, uid).
type ParsedMessage struct {
	ID                  string             `json:"id"`
	AccountID           string             `json:"account_id"`
	ThreadID            string             `json:"thread_id"`
	FromAddress         string             `json:"from_address"`
	FromName            string             `json:"from_name"`
	ToAddresses         []string           `json:"to_addresses"`
	CCAddresses         []string           `json:"cc_addresses"`
	BCCAddresses        []string           `json:"bcc_addresses"`
	ReplyTo             string             `json:"reply_to"`
	Subject             string             `json:"subject"`
	Snippet             string             `json:"snippet"`
	Date                int64              `json:"date"`
	IsRead              bool               `json:"is_read"`
	IsStarred           bool               `json:"is_starred"`
	UnsafeBodyHTML      string             `json:"unsafe_body_html"`
	BodyText            string             `json:"body_text"`
	RawSize             int64              `json:"raw_size"`
	ListUnsubscribe     string             `json:"list_unsubscribe,omitempty"`
	ListUnsubscribePost string             `json:"list_unsubscribe_post,omitempty"`
	AuthResults         string             `json:"auth_results,omitempty"`
	AuthVerdict         string             `json:"auth_verdict,omitempty"`
	LabelIDs            []string           `json:"label_ids"`
	HasAttachments      bool               `json:"has_attachments"`
	Attachments         []ParsedAttachment `json:"attachments,omitempty"`

	// Remote identity, stored for round-tripping.
	MessageIDHeader  string `json:"message_id_header"`
	ReferencesHeader string `json:"references_header,omitempty"`
	InReplyToHeader  string `json:"in_reply_to_header,omitempty"`
	IMAPUID          uint32 `json:"imap_uid"`
	IMAPFolder       string `json:"imap_folder"`

	// ThreadHeaders are the normalized own and referenced Message-IDs, used to attach later
	// messages to this message's thread.
	ThreadHeaders []string `json:"-"`
}

// ParsedAttachment describes one attachment part. PartID is the provider part identifier.
type ParsedAttachment struct {
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	PartID    string `json:"part_id"`
	ContentID string `json:"content_id,omitempty"`
	IsInline  bool   `json:"is_inline"`
}

// Attachment is a persisted attachment row.
type Attachment struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	AccountID string `json:"account_id"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	PartID    string `json:"part_id"`
	ContentID string `json:"content_id,omitempty"`
	IsInline  bool   `json:"is_inline"`
	LocalPath string `json:"-"`
}

// MessageSummary is the subset of a stored message needed to re-derive thread aggregates.
type MessageSummary struct {
	ID              string   `json:"id"`
	Subject         string   `json:"subject"`
	Snippet         string   `json:"snippet"`
	Date            int64    `json:"date"`
	IsRead          bool     `json:"is_read"`
	IsStarred       bool     `json:"is_starred"`
	HasAttachments  bool     `json:"has_attachments"`
	LabelIDs        []string `json:"label_ids"`
	FromAddress     string   `json:"from_address"`
	ListUnsubscribe string   `json:"list_unsubscribe,omitempty"`
}

// ThreadableMessage carries only what the thread builder needs.
type ThreadableMessage struct {
	ID         string
	MessageID  string
	InReplyTo  string
	References string
	Subject    string
	Date       int64
}

// ThreadGroup is one connected component produced by the thread builder.
// MergedThreadIDs lists previously persisted threads that the component absorbed.
type ThreadGroup struct {
	ThreadID        string
	MessageIDs      []string
	MergedThreadIDs []string
}
