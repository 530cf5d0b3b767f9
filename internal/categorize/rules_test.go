package categorize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorizeByRules(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want Category
	}{
		{
			name: "personal sender",
			in:   Input{LabelIDs: []string{"INBOX"}, FromAddress: "alice@example.com"},
			want: Primary,
		},
		{
			name: "provider category label wins",
			in:   Input{LabelIDs: []string{"INBOX", "CATEGORY_PROMOTIONS"}, FromAddress: "alice@example.com"},
			want: Promotions,
		},
		{
			name: "social network domain",
			in:   Input{FromAddress: "notifications@facebookmail.com"},
			want: Social,
		},
		{
			name: "social network subdomain",
			in:   Input{FromAddress: "messages-noreply@bounce.linkedin.com"},
			want: Social,
		},
		{
			name: "newsletter platform",
			in:   Input{FromAddress: "writer@substack.com"},
			want: Newsletters,
		},
		{
			name: "newsletter local part",
			in:   Input{FromAddress: "weekly.digest@example.org"},
			want: Newsletters,
		},
		{
			name: "no-reply sender",
			in:   Input{FromAddress: "noreply@example.com"},
			want: Updates,
		},
		{
			name: "promotional sender",
			in:   Input{FromAddress: "deals@shop.example.com"},
			want: Promotions,
		},
		{
			name: "bulk mail from unknown sender",
			in:   Input{FromAddress: "team@startup.io", ListUnsubscribe: "<mailto:unsub@startup.io>"},
			want: Promotions,
		},
		{
			name: "case insensitive address",
			in:   Input{FromAddress: "NoReply@Example.com"},
			want: Updates,
		},
		{
			name: "empty input",
			in:   Input{},
			want: Primary,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeByRules(tt.in))
		})
	}
}
