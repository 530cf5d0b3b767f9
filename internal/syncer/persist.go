package syncer

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/velomail/velo/backend/internal/db"
	"github.com/velomail/velo/backend/internal/models"
	"github.com/velomail/velo/backend/internal/translate"
)

// StoreThreadsAndMessages persists each thread group in its own transaction and returns the
// messages that were stored. A group that fails is logged and skipped.
//
// A thread with pending local operations (on its id or on a thread it would absorb) keeps its
// metadata and labels for this pass. Its new messages are still stored.
func StoreThreadsAndMessages(
	ctx context.Context,
	store ThreadStore,
	accountID string,
	groups []models.ThreadGroup,
	parsedByID map[string]*models.ParsedMessage,
) []*models.ParsedMessage {
	stored := make([]*models.ParsedMessage, 0, len(parsedByID))

	for _, group := range groups {
		members := make([]*models.ParsedMessage, 0, len(group.MessageIDs))
		for _, id := range group.MessageIDs {
			if msg, ok := parsedByID[id]; ok {
				members = append(members, msg)
			}
		}
		if len(members) == 0 {
			continue
		}

		logger := log.With().Str("account_id", accountID).Str("thread_id", group.ThreadID).Logger()

		protected, err := isProtected(ctx, store, accountID, group)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to check pending operations, treating thread as protected")
			protected = true
		}

		if err := store.InTx(ctx, func(w db.ThreadWriter) error {
			return persistGroup(ctx, w, accountID, group, members, protected)
		}); err != nil {
			logger.Error().Err(err).Int("messages", len(members)).Msg("failed to store thread")
			continue
		}

		stored = append(stored, members...)
	}

	return stored
}

func isProtected(ctx context.Context, store ThreadStore, accountID string, group models.ThreadGroup) (bool, error) {
	ids := append([]string{group.ThreadID}, group.MergedThreadIDs...)
	for _, id := range ids {
		ops, err := store.GetPendingOpsForResource(ctx, accountID, id)
		if err != nil {
			return false, err
		}
		if len(ops) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func persistGroup(
	ctx context.Context,
	w db.ThreadWriter,
	accountID string,
	group models.ThreadGroup,
	members []*models.ParsedMessage,
	protected bool,
) error {
	batchIDs := make([]string, 0, len(members))
	summaries := make([]models.MessageSummary, 0, len(members))
	for _, msg := range members {
		msg.ThreadID = group.ThreadID
		batchIDs = append(batchIDs, msg.ID)
		summaries = append(summaries, summaryOf(msg))
	}

	if protected {
		// Only make sure the row exists so the messages can reference it.
		if err := w.InsertThreadIfMissing(ctx, AggregateThread(accountID, group.ThreadID, summaries)); err != nil {
			return err
		}
	} else {
		if err := w.MergeThreads(ctx, accountID, group.ThreadID, group.MergedThreadIDs); err != nil {
			return err
		}

		existing, err := w.GetThreadMemberSummaries(ctx, accountID, group.ThreadID, batchIDs)
		if err != nil {
			return err
		}

		thread := AggregateThread(accountID, group.ThreadID, append(existing, summaries...))
		if err := w.UpsertThread(ctx, thread); err != nil {
			return err
		}
		if err := w.SetThreadLabels(ctx, accountID, group.ThreadID, thread.LabelIDs); err != nil {
			return err
		}
	}

	for _, msg := range members {
		if err := w.UpsertMessage(ctx, msg); err != nil {
			return err
		}
		for _, att := range msg.Attachments {
			if err := w.UpsertAttachment(ctx, &models.Attachment{
				ID:        translate.AttachmentID(msg.ID, att.PartID),
				MessageID: msg.ID,
				AccountID: accountID,
				Filename:  att.Filename,
				MimeType:  att.MimeType,
				Size:      att.Size,
				PartID:    att.PartID,
				ContentID: att.ContentID,
				IsInline:  att.IsInline,
			}); err != nil {
				return fmt.Errorf("failed to store attachment %s of %s: %w", att.PartID, msg.ID, err)
			}
		}
	}

	return nil
}

// AggregateThread derives the thread row from its members. Subject comes from the earliest
// message and snippet from the latest. The thread is read only if every member is read,
// starred or with attachments if any member is, and carries the union of member labels.
func AggregateThread(accountID, threadID string, members []models.MessageSummary) *models.Thread {
	sorted := make([]models.MessageSummary, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Date != sorted[j].Date {
			return sorted[i].Date < sorted[j].Date
		}
		return sorted[i].ID < sorted[j].ID
	})

	thread := &models.Thread{
		ID:           threadID,
		AccountID:    accountID,
		MessageCount: len(sorted),
		IsRead:       true,
		LabelIDs:     []string{},
	}
	if len(sorted) == 0 {
		return thread
	}

	earliest, latest := sorted[0], sorted[len(sorted)-1]
	thread.Subject = earliest.Subject
	thread.Snippet = latest.Snippet
	thread.LastMessageAt = latest.Date
	thread.FromAddress = latest.FromAddress

	labels := make(map[string]struct{})
	for _, m := range sorted {
		thread.IsRead = thread.IsRead && m.IsRead
		thread.IsStarred = thread.IsStarred || m.IsStarred
		thread.HasAttachments = thread.HasAttachments || m.HasAttachments
		for _, label := range m.LabelIDs {
			labels[label] = struct{}{}
		}
	}
	for label := range labels {
		thread.LabelIDs = append(thread.LabelIDs, label)
	}
	sort.Strings(thread.LabelIDs)

	return thread
}

func summaryOf(msg *models.ParsedMessage) models.MessageSummary {
	return models.MessageSummary{
		ID:              msg.ID,
		Subject:         msg.Subject,
		Snippet:         msg.Snippet,
		Date:            msg.Date,
		IsRead:          msg.IsRead,
		IsStarred:       msg.IsStarred,
		HasAttachments:  msg.HasAttachments,
		LabelIDs:        msg.LabelIDs,
		FromAddress:     msg.FromAddress,
		ListUnsubscribe: msg.ListUnsubscribe,
	}
}
