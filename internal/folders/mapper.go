// Package folders maps remote IMAP folders onto the normalized label model.
package folders

import (
	"strings"

	"github.com/velomail/velo/backend/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// RFC 6154 special-use attributes, plus the Gmail-only \Important.
const (
	SpecialUseInbox     = `\Inbox`
	SpecialUseSent      = `\Sent`
	SpecialUseDrafts    = `\Drafts`
	SpecialUseTrash     = `\Trash`
	SpecialUseJunk      = `\Junk`
	SpecialUseArchive   = `\Archive`
	SpecialUseFlagged   = `\Flagged`
	SpecialUseAll       = `\All`
	SpecialUseImportant = `\Important`
)

var specialUseLabels = map[string]models.LabelMapping{
	SpecialUseInbox:     {LabelID: models.LabelInbox, LabelName: "Inbox", Type: models.LabelTypeSystem},
	SpecialUseSent:      {LabelID: models.LabelSent, LabelName: "Sent", Type: models.LabelTypeSystem},
	SpecialUseDrafts:    {LabelID: models.LabelDraft, LabelName: "Drafts", Type: models.LabelTypeSystem},
	SpecialUseTrash:     {LabelID: models.LabelTrash, LabelName: "Trash", Type: models.LabelTypeSystem},
	SpecialUseJunk:      {LabelID: models.LabelSpam, LabelName: "Spam", Type: models.LabelTypeSystem},
	SpecialUseArchive:   {LabelID: models.LabelArchive, LabelName: "Archive", Type: models.LabelTypeSystem},
	SpecialUseFlagged:   {LabelID: models.LabelStarred, LabelName: "Starred", Type: models.LabelTypeSystem},
	SpecialUseAll:       {LabelID: models.LabelAllMail, LabelName: "All Mail", Type: models.LabelTypeSystem},
	SpecialUseImportant: {LabelID: models.LabelImportant, LabelName: "Important", Type: models.LabelTypeSystem},
}

// wellKnownNames covers servers that do not report special-use attributes.
// Keys are case-folded.
var wellKnownNames = map[string]string{
	"inbox": SpecialUseInbox,

	"sent":             SpecialUseSent,
	"sent items":       SpecialUseSent,
	"sent mail":        SpecialUseSent,
	"sent messages":    SpecialUseSent,
	"enviados":         SpecialUseSent,
	"gesendet":         SpecialUseSent,
	"éléments envoyés": SpecialUseSent,

	"drafts":     SpecialUseDrafts,
	"draft":      SpecialUseDrafts,
	"draftbox":   SpecialUseDrafts,
	"brouillons": SpecialUseDrafts,
	"borradores": SpecialUseDrafts,
	"entwürfe":   SpecialUseDrafts,

	"trash":              SpecialUseTrash,
	"deleted items":      SpecialUseTrash,
	"deleted messages":   SpecialUseTrash,
	"bin":                SpecialUseTrash,
	"corbeille":          SpecialUseTrash,
	"unsolbox":           SpecialUseTrash,
	"papelera":           SpecialUseTrash,
	"papierkorb":         SpecialUseTrash,
	"éléments supprimés": SpecialUseTrash,

	"junk":        SpecialUseJunk,
	"junk e-mail": SpecialUseJunk,
	"junk email":  SpecialUseJunk,
	"spam":        SpecialUseJunk,
	"bulk mail":   SpecialUseJunk,

	"archive":  SpecialUseArchive,
	"archives": SpecialUseArchive,

	"flagged": SpecialUseFlagged,
	"starred": SpecialUseFlagged,

	"all mail": SpecialUseAll,

	"[gmail]/all mail":        SpecialUseAll,
	"[gmail]/sent mail":       SpecialUseSent,
	"[gmail]/drafts":          SpecialUseDrafts,
	"[gmail]/spam":            SpecialUseJunk,
	"[gmail]/trash":           SpecialUseTrash,
	"[gmail]/bin":             SpecialUseTrash,
	"[gmail]/starred":         SpecialUseFlagged,
	"[gmail]/important":       SpecialUseImportant,
	"[google mail]/all mail":  SpecialUseAll,
	"[google mail]/sent mail": SpecialUseSent,
	"[google mail]/drafts":    SpecialUseDrafts,
	"[google mail]/spam":      SpecialUseJunk,
	"[google mail]/bin":       SpecialUseTrash,
	"[google mail]/trash":     SpecialUseTrash,
	"[google mail]/starred":   SpecialUseFlagged,
	"[google mail]/important": SpecialUseImportant,
}

// normalizeName NFC-normalizes and case-folds a folder name for dictionary lookup.
// A Caser is stateful, so each call gets its own.
func normalizeName(name string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(name)))
}

// MapFolderToLabel maps a folder to its label. It is pure: the same folder metadata always
// yields the same mapping.
func MapFolderToLabel(f models.RemoteFolder) models.LabelMapping {
	if f.SpecialUse != "" {
		if mapping, ok := specialUseLabels[f.SpecialUse]; ok {
			return mapping
		}
	}

	specialUse, ok := wellKnownNames[normalizeName(f.Path)]
	if !ok {
		specialUse, ok = wellKnownNames[normalizeName(f.Name)]
	}
	if ok {
		if mapping, found := specialUseLabels[specialUse]; found {
			return mapping
		}
	}

	name := f.Name
	if name == "" {
		name = f.Path
	}
	return models.LabelMapping{
		LabelID:   "folder-" + f.Path,
		LabelName: name,
		Type:      models.LabelTypeUser,
	}
}

// SpecialUseForFolder returns the special-use tag a folder reports or implies by name.
func SpecialUseForFolder(f models.RemoteFolder) string {
	if _, ok := specialUseLabels[f.SpecialUse]; ok {
		return f.SpecialUse
	}
	if specialUse, ok := wellKnownNames[normalizeName(f.Path)]; ok {
		return specialUse
	}
	return wellKnownNames[normalizeName(f.Name)]
}

// LabelsForMessage returns the label ids for a message in a folder. The folder label comes
// first; duplicates are dropped.
func LabelsForMessage(folderLabelID string, isRead, isStarred, isDraft bool) []string {
	labels := []string{folderLabelID}
	add := func(id string) {
		for _, existing := range labels {
			if existing == id {
				return
			}
		}
		labels = append(labels, id)
	}

	if !isRead {
		add(models.LabelUnread)
	}
	if isStarred {
		add(models.LabelStarred)
	}
	if isDraft {
		add(models.LabelDraft)
	}
	return labels
}

// SyncableFolders drops provider container folders and virtual namespaces that must never be
// synced as real mail folders.
func SyncableFolders(all []models.RemoteFolder) []models.RemoteFolder {
	result := make([]models.RemoteFolder, 0, len(all))
	for _, f := range all {
		if !f.Selectable {
			continue
		}
		lowerPath := normalizeName(f.Path)
		if lowerPath == "[gmail]" || lowerPath == "[google mail]" {
			continue
		}
		if strings.HasPrefix(lowerPath, "[nostromo]") {
			continue
		}
		result = append(result, f)
	}
	return result
}

// LabelsForFolders builds the label rows for a set of syncable folders, plus the UNREAD
// pseudo-label which always exists.
func LabelsForFolders(accountID string, syncable []models.RemoteFolder) []models.Label {
	labels := make([]models.Label, 0, len(syncable)+1)
	for _, f := range syncable {
		mapping := MapFolderToLabel(f)
		labels = append(labels, models.Label{
			ID:             mapping.LabelID,
			AccountID:      accountID,
			Name:           mapping.LabelName,
			Type:           mapping.Type,
			ImapFolderPath: f.RawPath,
			ImapSpecialUse: SpecialUseForFolder(f),
		})
	}
	labels = append(labels, models.Label{
		ID:        models.LabelUnread,
		AccountID: accountID,
		Name:      "Unread",
		Type:      models.LabelTypeSystem,
	})
	return labels
}
