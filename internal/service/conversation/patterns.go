package conversation

import (
	"regexp"
	"strconv"
	"strings"

	"market-voice-ledger/internal/models"
)

// Transition rules are an ordered list of (predicate, action) pairs evaluated
// against the normalized transcript for the current phase. The first matching
// rule fires; rules are plain data so each can be tested in isolation.

type rule struct {
	name string
	when func(cx *Context, ev *models.SpeechEvent, text string) bool
	then func(cx *Context, ev *models.SpeechEvent, text string) Phase
}

var (
	priceRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:cedis?|ghs|ghc|gh₵)\b`)
	quantityRe = regexp.MustCompile(`(\d+)\s*(?:kilos?|kgs?|kg|pieces?|balls?|tubers?|bags?|bunche?s?)\b`)
	productRe  = regexp.MustCompile(`(?:how much (?:is|for|be)|price of|do you have|i want|give me|looking for)\s+(?:the\s+|some\s+|your\s+)?([a-z][a-z ]*?)(?:\s+today)?\??$`)

	inquiryRe   = regexp.MustCompile(`how much|what('?s| is) the price|price of|do you have|how you dey sell`)
	negotiateRe = regexp.MustCompile(`reduce|too much|too high|too dear|bring it down|lower|last price|ebei`)
	agreeRe     = regexp.MustCompile(`\bfinal\b|i('| wi)ll take|i go take|\bdeal\b|agreed|okay take|wrap it`)
	paymentRe   = regexp.MustCompile(`here is|here you go|take the money|take your money|momo|i have paid|sending the money|money received`)
	ackRe       = regexp.MustCompile(`thank you|thanks|medaase|god bless|you are welcome|safe journey`)
)

// roleIs gates a rule on speaker role. Unknown speakers are let through so a
// failed identification degrades to needs_review instead of a stuck sale.
func roleIs(role, want models.SpeakerRole) bool {
	return role == want || role == models.RoleUnknown
}

// defaultRules is the transition table. Order matters: payment is checked
// before prices so "here is 50 cedis" counts as handing over money, not as a
// new quote.
func defaultRules() []rule {
	return []rule{
		{
			name: "payment",
			when: func(cx *Context, ev *models.SpeechEvent, text string) bool {
				switch cx.Phase {
				case PhasePriceQuote, PhaseNegotiation, PhaseAgreement:
					return paymentRe.MatchString(text)
				}
				return false
			},
			then: func(cx *Context, ev *models.SpeechEvent, text string) Phase {
				// Paying the quoted price settles the total even
				// without an explicit agreement utterance.
				if cx.TotalAmount == 0 && cx.UnitPrice > 0 {
					cx.TotalAmount = cx.UnitPrice * float64(cx.quantityOrDefault())
				}
				return PhasePayment
			},
		},
		{
			name: "acknowledgment",
			when: func(cx *Context, ev *models.SpeechEvent, text string) bool {
				return cx.Phase == PhasePayment && ackRe.MatchString(text)
			},
			then: func(cx *Context, ev *models.SpeechEvent, text string) Phase {
				return PhaseComplete
			},
		},
		{
			name: "price-quote",
			when: func(cx *Context, ev *models.SpeechEvent, text string) bool {
				return roleIs(ev.Role, models.RoleSeller) &&
					cx.Phase < PhasePayment &&
					priceRe.MatchString(text)
			},
			then: func(cx *Context, ev *models.SpeechEvent, text string) Phase {
				// The last price mentioned is authoritative; a later
				// quote overwrites an earlier one. A total settled by
				// an earlier agreement follows the new price.
				if p, ok := lastPrice(text); ok {
					cx.UnitPrice = p
					if cx.TotalAmount != 0 {
						cx.TotalAmount = cx.UnitPrice * float64(cx.quantityOrDefault())
					}
				}
				if agreeRe.MatchString(text) {
					cx.TotalAmount = cx.UnitPrice * float64(cx.quantityOrDefault())
					return PhaseAgreement
				}
				switch cx.Phase {
				case PhaseIdle, PhaseInquiry:
					return PhasePriceQuote
				case PhasePriceQuote:
					// A re-quote means the haggle is on.
					return PhaseNegotiation
				default:
					return cx.Phase
				}
			},
		},
		{
			name: "agreement",
			when: func(cx *Context, ev *models.SpeechEvent, text string) bool {
				switch cx.Phase {
				case PhasePriceQuote, PhaseNegotiation:
					return agreeRe.MatchString(text)
				}
				return false
			},
			then: func(cx *Context, ev *models.SpeechEvent, text string) Phase {
				cx.TotalAmount = cx.UnitPrice * float64(cx.quantityOrDefault())
				return PhaseAgreement
			},
		},
		{
			name: "negotiation",
			when: func(cx *Context, ev *models.SpeechEvent, text string) bool {
				return roleIs(ev.Role, models.RoleCustomer) &&
					(cx.Phase == PhasePriceQuote || cx.Phase == PhaseNegotiation) &&
					negotiateRe.MatchString(text)
			},
			then: func(cx *Context, ev *models.SpeechEvent, text string) Phase {
				return PhaseNegotiation
			},
		},
		{
			name: "inquiry",
			when: func(cx *Context, ev *models.SpeechEvent, text string) bool {
				return roleIs(ev.Role, models.RoleCustomer) &&
					cx.Phase == PhaseIdle &&
					inquiryRe.MatchString(text)
			},
			then: func(cx *Context, ev *models.SpeechEvent, text string) Phase {
				return PhaseInquiry
			},
		},
	}
}

// captureEntities lifts product and quantity mentions out of any event,
// regardless of which transition rule fires.
func captureEntities(cx *Context, text string) {
	if cx.Product == "" {
		if m := productRe.FindStringSubmatch(text); m != nil {
			cx.Product = strings.TrimSpace(m[1])
		}
	}
	if m := quantityRe.FindStringSubmatch(text); m != nil {
		if q, err := strconv.Atoi(m[1]); err == nil && q > 0 {
			cx.Quantity = q
		}
	}
}

// lastPrice returns the final price mentioned in the text, so "15 no, make
// it 13 cedis" resolves to 13.
func lastPrice(text string) (float64, bool) {
	matches := priceRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0, false
	}
	p, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
	if err != nil {
		return 0, false
	}
	return p, true
}

// normalize lowercases and trims a transcript for pattern matching.
func normalize(transcript string) string {
	return strings.ToLower(strings.TrimSpace(transcript))
}
