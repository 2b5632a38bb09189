/**
 * @description
 * Free-text reply classification. Inbound guest messages are normalized and
 * matched against fixed multilingual keyword tables; anything that does not
 * match is not an upsell reply and is left for the caller to route elsewhere
 * (e.g. the conversational concierge).
 */

package app

import "strings"

// Verdict is the classification outcome for an inbound guest message.
type Verdict string

const (
	VerdictAccept  Verdict = "accept"
	VerdictDecline Verdict = "decline"
	VerdictNone    Verdict = "none"
)

// The keyword tables are deliberately explicit and finite so the matching is
// independently testable and extensible per language.
var acceptWords = map[string]struct{}{
	"YES":        {},
	"Y":          {},
	"YES PLEASE": {},
	"JA":         {},
	"SI":         {},
	"SÍ":         {},
	"OUI":        {},
	"OK":         {},
	"OKAY":       {},
	"ACCEPT":     {},
	"BOOK":       {},
	"SURE":       {},
}

var declineWords = map[string]struct{}{
	"NO":        {},
	"N":         {},
	"NO THANKS": {},
	"NEI":       {},
	"NON":       {},
	"NEIN":      {},
	"DECLINE":   {},
	"REJECT":    {},
	"PASS":      {},
}

// Classify maps a free-text guest message to a verdict. Pure and stateless.
func Classify(text string) Verdict {
	normalized := strings.ToUpper(strings.TrimSpace(text))
	normalized = strings.TrimRight(normalized, ".!?")
	normalized = strings.TrimSpace(normalized)

	if _, ok := acceptWords[normalized]; ok {
		return VerdictAccept
	}
	if _, ok := declineWords[normalized]; ok {
		return VerdictDecline
	}
	return VerdictNone
}
