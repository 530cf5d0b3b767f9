package imap

import (
	"fmt"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	sortthread "github.com/emersion/go-imap-sortthread"
	"github.com/emersion/go-imap/client"
)

// searchAllUIDs returns the UIDs of a folder received since the given day, newest first. A zero
// since matches every message. Servers advertising SORT order by message date; others get a
// plain UID SEARCH with the highest UIDs first.
func searchAllUIDs(c *client.Client, folder string, since time.Time) ([]uint32, error) {
	if _, err := examineFolder(c, folder); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	if !since.IsZero() {
		criteria.Since = since
	}

	sortClient := sortthread.NewSortClient(c)
	if supported, _ := sortClient.SupportSort(); supported {
		uids, err := sortClient.UidSort(
			[]sortthread.SortCriterion{{Field: sortthread.SortDate, Reverse: true}},
			criteria,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to sort folder %s: %w", folder, err)
		}
		return uniqueInOrder(uids), nil
	}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search folder %s: %w", folder, err)
	}

	uids = sortedUnique(uids)
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}
	return uids, nil
}

// fetchNewUIDs returns the UIDs of a folder greater than lastUID, ascending.
func fetchNewUIDs(c *client.Client, folder string, lastUID uint32) ([]uint32, error) {
	if _, err := examineFolder(c, folder); err != nil {
		return nil, err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddRange(lastUID+1, 0)

	criteria := imap.NewSearchCriteria()
	criteria.Uid = seqSet

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search new messages in %s: %w", folder, err)
	}

	// "n:*" always matches the highest UID, even when it is below n.
	filtered := uids[:0]
	for _, uid := range uids {
		if uid > lastUID {
			filtered = append(filtered, uid)
		}
	}

	return sortedUnique(filtered), nil
}

func uniqueInOrder(uids []uint32) []uint32 {
	result := make([]uint32, 0, len(uids))
	seen := make(map[uint32]struct{}, len(uids))
	for _, uid := range uids {
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		result = append(result, uid)
	}
	return result
}

func sortedUnique(uids []uint32) []uint32 {
	result := uniqueInOrder(uids)
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
