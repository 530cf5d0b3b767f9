package authresults

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velomail/velo/backend/internal/models"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		headers   []models.Header
		spf       string
		dkim      string
		dmarc     string
		aggregate string
	}{
		{
			name: "full pass",
			headers: []models.Header{{
				Name:  "Authentication-Results",
				Value: "mx.google.com; spf=pass (google.com: domain of sender@example.com) smtp.mailfrom=sender@example.com; dkim=pass header.d=example.com; dmarc=pass (p=REJECT) header.from=example.com",
			}},
			spf: "pass", dkim: "pass", dmarc: "pass", aggregate: AggregatePass,
		},
		{
			name:    "dmarc fail wins",
			headers: []models.Header{{Name: "Authentication-Results", Value: "mx.google.com; spf=pass; dkim=pass; dmarc=fail (p=REJECT)"}},
			spf:     "pass", dkim: "pass", dmarc: "fail", aggregate: AggregateFail,
		},
		{
			name:    "spf and dkim fail",
			headers: []models.Header{{Name: "Authentication-Results", Value: "mx.google.com; spf=fail; dkim=fail"}},
			spf:     "fail", dkim: "fail", dmarc: "unknown", aggregate: AggregateFail,
		},
		{
			name:    "softfail is a warning",
			headers: []models.Header{{Name: "Authentication-Results", Value: "mx.google.com; spf=softfail; dkim=pass; dmarc=none"}},
			spf:     "softfail", dkim: "pass", dmarc: "none", aggregate: AggregateWarning,
		},
		{
			name:    "spf and dkim pass without dmarc",
			headers: []models.Header{{Name: "authentication-results", Value: "mx; spf=pass; dkim=pass"}},
			spf:     "pass", dkim: "pass", dmarc: "unknown", aggregate: AggregatePass,
		},
		{
			name:    "any passing dkim signature wins",
			headers: []models.Header{{Name: "Authentication-Results", Value: "mx; dkim=fail header.d=a.com;\r\n dkim=pass (good sig) header.d=b.com; spf=pass"}},
			spf:     "pass", dkim: "pass", dmarc: "unknown", aggregate: AggregatePass,
		},
		{
			name:    "ARC fallback",
			headers: []models.Header{{Name: "ARC-Authentication-Results", Value: "i=1; mx; spf=pass; dkim=pass; dmarc=pass"}},
			spf:     "pass", dkim: "pass", dmarc: "pass", aggregate: AggregatePass,
		},
		{
			name:    "Received-SPF only",
			headers: []models.Header{{Name: "Received-SPF", Value: "neutral (google.com: 1.2.3.4 is neither permitted nor denied)"}},
			spf:     "neutral", dkim: "unknown", dmarc: "unknown", aggregate: AggregateWarning,
		},
		{
			name:    "header without mechanisms",
			headers: []models.Header{{Name: "Authentication-Results", Value: "mx.example.com; none"}},
			spf:     "unknown", dkim: "unknown", dmarc: "unknown", aggregate: AggregateUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse(tt.headers)
			require.NotNil(t, result)
			assert.Equal(t, tt.spf, result.SPF.Result)
			assert.Equal(t, tt.dkim, result.DKIM.Result)
			assert.Equal(t, tt.dmarc, result.DMARC.Result)
			assert.Equal(t, tt.aggregate, result.Aggregate)
		})
	}
}

func TestParseDetails(t *testing.T) {
	result := Parse([]models.Header{{
		Name:  "Authentication-Results",
		Value: "mx; spf=pass (domain of a@b.com designates 1.2.3.4) smtp.mailfrom=a@b.com",
	}})
	require.NotNil(t, result)
	assert.Equal(t, "domain of a@b.com designates 1.2.3.4", result.SPF.Detail)
}

func TestParseNoHeaders(t *testing.T) {
	assert.Nil(t, Parse(nil))
	assert.Nil(t, Parse([]models.Header{{Name: "Subject", Value: "hi"}}))
	assert.Nil(t, ParseRaw("  "))
}

func TestParseRaw(t *testing.T) {
	result := ParseRaw("mx; dmarc=pass")
	require.NotNil(t, result)
	assert.Equal(t, AggregatePass, result.Aggregate)
}
