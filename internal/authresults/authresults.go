// Package authresults extracts SPF, DKIM and DMARC verdicts from message headers.
package authresults

import (
	"regexp"
	"strings"

	"github.com/velomail/velo/backend/internal/models"
)

// Aggregate verdicts.
const (
	AggregatePass    = "pass"
	AggregateWarning = "warning"
	AggregateFail    = "fail"
	AggregateUnknown = "unknown"
)

const resultUnknown = "unknown"

// Verdict is a single mechanism result such as spf=pass (detail).
type Verdict struct {
	Result string `json:"result"`
	Detail string `json:"detail,omitempty"`
}

// Result is the parsed authentication state of a message.
type Result struct {
	SPF       Verdict `json:"spf"`
	DKIM      Verdict `json:"dkim"`
	DMARC     Verdict `json:"dmarc"`
	Aggregate string  `json:"aggregate"`
}

var (
	foldedWhitespace = regexp.MustCompile(`\r?\n\s*`)
	spfPattern       = regexp.MustCompile(`(?i)\bspf\s*=\s*(\w+)(?:\s*\(([^)]+)\))?`)
	dkimPattern      = regexp.MustCompile(`(?i)\bdkim\s*=\s*(\w+)(?:\s*\(([^)]+)\))?`)
	dmarcPattern     = regexp.MustCompile(`(?i)\bdmarc\s*=\s*(\w+)(?:\s*\(([^)]+)\))?`)
	receivedSPF      = regexp.MustCompile(`(?i)^(\w+)(?:\s*\(([^)]+)\))?`)
)

func unknown() Verdict {
	return Verdict{Result: resultUnknown}
}

func unfold(value string) string {
	return foldedWhitespace.ReplaceAllString(value, " ")
}

func verdictFromMatch(match []string) Verdict {
	return Verdict{
		Result: strings.ToLower(match[1]),
		Detail: strings.TrimSpace(match[2]),
	}
}

func findHeader(headers []models.Header, name string) (string, bool) {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// Parse reads Authentication-Results, falling back to ARC-Authentication-Results and then
// Received-SPF for SPF only. It returns nil when no authentication header is present.
func Parse(headers []models.Header) *Result {
	value, found := findHeader(headers, "Authentication-Results")
	if !found {
		value, found = findHeader(headers, "ARC-Authentication-Results")
	}
	spfValue, hasReceivedSPF := findHeader(headers, "Received-SPF")

	if !found && !hasReceivedSPF {
		return nil
	}

	result := &Result{SPF: unknown(), DKIM: unknown(), DMARC: unknown()}

	if found {
		normalized := unfold(value)
		if m := spfPattern.FindStringSubmatch(normalized); m != nil {
			result.SPF = verdictFromMatch(m)
		}
		if m := dmarcPattern.FindStringSubmatch(normalized); m != nil {
			result.DMARC = verdictFromMatch(m)
		}

		// Multiple DKIM signatures are common; one passing signature is enough.
		dkims := dkimPattern.FindAllStringSubmatch(normalized, -1)
		if len(dkims) > 0 {
			result.DKIM = verdictFromMatch(dkims[0])
			for _, m := range dkims {
				if strings.EqualFold(m[1], "pass") {
					result.DKIM = verdictFromMatch(m)
					break
				}
			}
		}
	} else if m := receivedSPF.FindStringSubmatch(strings.TrimSpace(unfold(spfValue))); m != nil {
		result.SPF = verdictFromMatch(m)
	}

	result.Aggregate = aggregate(result.SPF.Result, result.DKIM.Result, result.DMARC.Result)
	return result
}

// ParseRaw parses a single raw Authentication-Results value.
func ParseRaw(value string) *Result {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return Parse([]models.Header{{Name: "Authentication-Results", Value: value}})
}

func aggregate(spf, dkim, dmarc string) string {
	switch dmarc {
	case "pass":
		return AggregatePass
	case "fail":
		return AggregateFail
	}

	failed := func(r string) bool { return r == "fail" || r == "hardfail" }
	if failed(spf) && failed(dkim) {
		return AggregateFail
	}

	if spf == resultUnknown && dkim == resultUnknown && dmarc == resultUnknown {
		return AggregateUnknown
	}

	if spf == "pass" && dkim == "pass" && dmarc == resultUnknown {
		return AggregatePass
	}

	return AggregateWarning
}
