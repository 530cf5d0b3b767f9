// Package threading groups messages into conversations from their reference headers.
//
// The builder is a union-find over Message-ID headers: every message links its own header
// to each header in In-Reply-To and References. Headers that no fetched message owns still
// become nodes, so two replies to a missing parent land in the same thread. Subjects are
// never used for grouping.
package threading

import (
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/velomail/velo/backend/internal/models"
)

// threadNamespace scopes the name-based UUIDs used as thread ids.
var threadNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://velo.local/threads"))

var bracketedID = regexp.MustCompile(`<([^>]+)>`)

// seedPrefix marks union-find nodes that stand for persisted threads. Message-IDs never
// contain spaces, so the prefix cannot collide with a header.
const seedPrefix = "thread "

// NormalizeMessageID strips whitespace and angle brackets from a single Message-ID.
func NormalizeMessageID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return strings.TrimSpace(id)
}

// ParseReferences extracts the Message-IDs from a References or In-Reply-To value, in order.
// Values without angle brackets are split on whitespace.
func ParseReferences(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}

	matches := bracketedID.FindAllStringSubmatch(value, -1)
	ids := make([]string, 0, len(matches))
	if len(matches) > 0 {
		for _, m := range matches {
			if id := strings.TrimSpace(m[1]); id != "" {
				ids = append(ids, id)
			}
		}
		return ids
	}

	for _, field := range strings.Fields(value) {
		if id := NormalizeMessageID(field); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// ThreadIDFor returns the id of a new thread whose smallest member header is header.
func ThreadIDFor(header string) string {
	return uuid.NewSHA1(threadNamespace, []byte(header)).String()
}

// HeadersOf returns every normalized header a message touches: its own id first, then its
// parent and ancestors.
func HeadersOf(msg models.ThreadableMessage) []string {
	headers := make([]string, 0, 4)
	if own := NormalizeMessageID(msg.MessageID); own != "" {
		headers = append(headers, own)
	}
	headers = append(headers, ParseReferences(msg.InReplyTo)...)
	headers = append(headers, ParseReferences(msg.References)...)
	return headers
}

// unionFind is a disjoint set over header strings.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[string]string),
		rank:   make(map[string]int),
	}
}

func (u *unionFind) add(x string) {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
}

func (u *unionFind) find(x string) string {
	u.add(x)
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[x] != root {
		next := u.parent[x]
		u.parent[x] = root
		x = next
	}
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}

// BuildThreads groups msgs into connected components of the reference graph.
//
// seeds maps normalized headers of already-persisted messages to their thread ids. A component
// that contains seeded headers keeps the smallest existing thread id and lists the other
// existing ids in MergedThreadIDs. A component with no seeded header gets a thread id derived
// from its smallest header, so the same message set always produces the same ids.
//
// Groups are returned ordered by thread id; message ids inside a group by date, then id.
func BuildThreads(msgs []models.ThreadableMessage, seeds map[string][]string) []models.ThreadGroup {
	if len(msgs) == 0 {
		return []models.ThreadGroup{}
	}

	uf := newUnionFind()
	ownHeader := make(map[string]string, len(msgs))

	for _, msg := range msgs {
		own := NormalizeMessageID(msg.MessageID)
		if own == "" {
			own = "local:" + msg.ID
		}
		ownHeader[msg.ID] = own
		uf.add(own)

		for _, ref := range ParseReferences(msg.InReplyTo) {
			uf.union(own, ref)
		}
		for _, ref := range ParseReferences(msg.References) {
			uf.union(own, ref)
		}
	}

	// Headers already stored under the same thread are linked through a node for that
	// thread, so the batch cannot split a persisted conversation.
	for header, threadIDs := range seeds {
		if _, ok := uf.parent[header]; !ok {
			continue
		}
		for _, threadID := range threadIDs {
			if threadID != "" {
				uf.union(header, seedPrefix+threadID)
			}
		}
	}

	// Collect every header (including anonymous nodes) per component root.
	headersByRoot := make(map[string][]string)
	for header := range uf.parent {
		root := uf.find(header)
		headersByRoot[root] = append(headersByRoot[root], header)
	}

	byID := make(map[string]models.ThreadableMessage, len(msgs))
	membersByRoot := make(map[string][]string)
	for _, msg := range msgs {
		if _, seen := byID[msg.ID]; seen {
			continue
		}
		byID[msg.ID] = msg
		root := uf.find(ownHeader[msg.ID])
		membersByRoot[root] = append(membersByRoot[root], msg.ID)
	}

	groups := make([]models.ThreadGroup, 0, len(membersByRoot))
	for root, members := range membersByRoot {
		sort.Slice(members, func(i, j int) bool {
			a, b := byID[members[i]], byID[members[j]]
			if a.Date != b.Date {
				return a.Date < b.Date
			}
			return a.ID < b.ID
		})

		threadID, merged := resolveThreadID(headersByRoot[root])
		groups = append(groups, models.ThreadGroup{
			ThreadID:        threadID,
			MessageIDs:      members,
			MergedThreadIDs: merged,
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].ThreadID < groups[j].ThreadID
	})
	return groups
}

func resolveThreadID(headers []string) (string, []string) {
	var existing []string
	smallest := ""
	for _, h := range headers {
		if id, ok := strings.CutPrefix(h, seedPrefix); ok {
			existing = append(existing, id)
			continue
		}
		if smallest == "" || h < smallest {
			smallest = h
		}
	}

	if len(existing) == 0 {
		return ThreadIDFor(smallest), nil
	}

	sort.Strings(existing)
	if len(existing) == 1 {
		return existing[0], nil
	}
	return existing[0], existing[1:]
}
