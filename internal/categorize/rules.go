// Package categorize assigns inbox threads to one of the inbox tabs using sender and header
// rules.
package categorize

import (
	"strings"
)

// Category is an inbox tab.
type Category string

const (
	Primary     Category = "Primary"
	Updates     Category = "Updates"
	Promotions  Category = "Promotions"
	Social      Category = "Social"
	Newsletters Category = "Newsletters"
)

// Input is what the rules look at: the thread's labels and the latest message's sender and
// List-Unsubscribe header.
type Input struct {
	LabelIDs        []string
	FromAddress     string
	ListUnsubscribe string
}

// Gmail exposes its own tabs as labels. They win over every other rule.
var providerCategoryLabels = map[string]Category{
	"CATEGORY_SOCIAL":     Social,
	"CATEGORY_PROMOTIONS": Promotions,
	"CATEGORY_UPDATES":    Updates,
	"CATEGORY_FORUMS":     Newsletters,
	"CATEGORY_PERSONAL":   Primary,
}

var socialDomains = []string{
	"facebookmail.com",
	"facebook.com",
	"linkedin.com",
	"twitter.com",
	"x.com",
	"instagram.com",
	"pinterest.com",
	"reddit.com",
	"tiktok.com",
	"mastodon.social",
	"discord.com",
	"youtube.com",
}

var newsletterDomains = []string{
	"substack.com",
	"mailchimp.com",
	"mcsv.net",
	"beehiiv.com",
	"buttondown.email",
	"convertkit.com",
	"ghost.io",
	"revue.email",
}

var promotionLocalParts = []string{
	"deals",
	"offers",
	"promo",
	"promotions",
	"sales",
	"marketing",
	"shop",
	"store",
}

var updateLocalParts = []string{
	"noreply",
	"no-reply",
	"donotreply",
	"do-not-reply",
	"notifications",
	"notification",
	"notify",
	"alerts",
	"alert",
	"updates",
	"billing",
	"receipts",
	"security",
	"support",
	"account",
}

var newsletterLocalParts = []string{
	"newsletter",
	"newsletters",
	"digest",
	"weekly",
	"news",
}

// CategorizeByRules returns the category of a thread. Threads that match no rule are Primary.
func CategorizeByRules(in Input) Category {
	for _, label := range in.LabelIDs {
		if category, ok := providerCategoryLabels[strings.ToUpper(label)]; ok {
			return category
		}
	}

	local, domain := splitAddress(in.FromAddress)

	if matchesDomain(domain, socialDomains) {
		return Social
	}
	if matchesDomain(domain, newsletterDomains) || containsAny(local, newsletterLocalParts) {
		return Newsletters
	}
	if containsAny(local, promotionLocalParts) {
		return Promotions
	}
	if containsAny(local, updateLocalParts) {
		return Updates
	}

	// Bulk mail from an otherwise unknown sender.
	if strings.TrimSpace(in.ListUnsubscribe) != "" {
		return Promotions
	}

	return Primary
}

func splitAddress(address string) (string, string) {
	address = strings.ToLower(strings.TrimSpace(address))
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return address, ""
	}
	return address[:at], address[at+1:]
}

func matchesDomain(domain string, domains []string) bool {
	if domain == "" {
		return false
	}
	for _, d := range domains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

// containsAny reports whether one of the words is a dot, plus or underscore separated
// token of local, or local itself.
func containsAny(local string, words []string) bool {
	if local == "" {
		return false
	}
	tokens := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '+' || r == '_'
	})
	for _, w := range words {
		if local == w {
			return true
		}
		for _, tok := range tokens {
			if tok == w {
				return true
			}
		}
	}
	return false
}
