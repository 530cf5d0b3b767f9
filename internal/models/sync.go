package models

// Header is a raw name/value pair from a message header block.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RemoteFolder is a snapshot of one folder as reported by the server.
type RemoteFolder struct {
	// Path is the decoded folder name, RawPath the name the server expects back.
	Path       string   `json:"path"`
	RawPath    string   `json:"raw_path"`
	Name       string   `json:"name"`
	Delimiter  string   `json:"delimiter"`
	SpecialUse string   `json:"special_use,omitempty"`
	Attributes []string `json:"attributes,omitempty"`
	Selectable bool     `json:"selectable"`
	Exists     uint32   `json:"exists"`
	Unseen     uint32   `json:"unseen"`
}

// FolderStatus is the state of a selected folder.
type FolderStatus struct {
	UIDValidity   uint32 `json:"uidvalidity"`
	UIDNext       uint32 `json:"uidnext"`
	Exists        uint32 `json:"exists"`
	Unseen        uint32 `json:"unseen"`
	HighestModSeq uint64 `json:"highest_modseq,omitempty"`
}

// RemoteAttachment is an attachment descriptor as parsed from the wire.
type RemoteAttachment struct {
	PartID    string `json:"part_id"`
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	Size      int64  `json:"size"`
	ContentID string `json:"content_id,omitempty"`
	IsInline  bool   `json:"is_inline"`
}

// RemoteMessage is a provider-native message record.
type RemoteMessage struct {
	UID                 uint32             `json:"uid"`
	Folder              string             `json:"folder"`
	MessageID           string             `json:"message_id,omitempty"`
	InReplyTo           string             `json:"in_reply_to,omitempty"`
	References          string             `json:"references,omitempty"`
	Subject             string             `json:"subject"`
	FromAddress         string             `json:"from_address"`
	FromName            string             `json:"from_name"`
	ToAddresses         []string           `json:"to_addresses"`
	CCAddresses         []string           `json:"cc_addresses"`
	BCCAddresses        []string           `json:"bcc_addresses"`
	ReplyTo             string             `json:"reply_to,omitempty"`
	Date                int64              `json:"date"`
	IsRead              bool               `json:"is_read"`
	IsStarred           bool               `json:"is_starred"`
	IsDraft             bool               `json:"is_draft"`
	BodyHTML            string             `json:"body_html"`
	BodyText            string             `json:"body_text"`
	Snippet             string             `json:"snippet,omitempty"`
	RawSize             int64              `json:"raw_size"`
	ListUnsubscribe     string             `json:"list_unsubscribe,omitempty"`
	ListUnsubscribePost string             `json:"list_unsubscribe_post,omitempty"`
	AuthResults         string             `json:"auth_results,omitempty"`
	AuthHeaders         []Header           `json:"auth_headers,omitempty"`
	Attachments         []RemoteAttachment `json:"attachments"`
}

// FetchResult is one batch of fetched messages plus the folder status at fetch time.
type FetchResult struct {
	Messages     []RemoteMessage `json:"messages"`
	FolderStatus FolderStatus    `json:"folder_status"`
}

// FolderSyncState is the persisted per-folder cursor. A nil UIDValidity means never synced.
type FolderSyncState struct {
	AccountID   string  `json:"account_id"`
	FolderPath  string  `json:"folder_path"`
	UIDValidity *uint32 `json:"uidvalidity"`
	LastUID     uint32  `json:"last_uid"`
	ModSeq      *uint64 `json:"modseq"`
	LastSyncAt  int64   `json:"last_sync_at"`
}

// PendingOperation records an unsynced local mutation against a resource.
type PendingOperation struct {
	ID            string `json:"id"`
	AccountID     string `json:"account_id"`
	ResourceID    string `json:"resource_id"`
	OperationType string `json:"operation_type"`
	CreatedAt     int64  `json:"created_at"`
}

// SyncPhase names a stage of a sync run.
type SyncPhase string

const (
	PhaseFolders   SyncPhase = "folders"
	PhaseMessages  SyncPhase = "messages"
	PhaseThreading SyncPhase = "threading"
	PhaseDone      SyncPhase = "done"
)

// SyncProgress is emitted while a sync runs.
type SyncProgress struct {
	Phase   SyncPhase `json:"phase"`
	Current int       `json:"current"`
	Total   int       `json:"total"`
	Folder  string    `json:"folder,omitempty"`
}

// SyncResult holds the messages stored by one sync pass.
type SyncResult struct {
	Messages []*ParsedMessage `json:"messages"`
}
