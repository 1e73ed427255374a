// Package conversation interprets ordered speech events as sale lifecycles
// and materializes transactions when a sale completes.
package conversation

import "fmt"

// Phase is the lifecycle state of one seller/customer exchange.
type Phase int

const (
	// PhaseIdle - No sale activity detected yet.
	PhaseIdle Phase = iota
	// PhaseInquiry - Customer asked about a product.
	PhaseInquiry
	// PhasePriceQuote - Seller quoted a price.
	PhasePriceQuote
	// PhaseNegotiation - Parties are haggling over the price.
	PhaseNegotiation
	// PhaseAgreement - A price has been settled on.
	PhaseAgreement
	// PhasePayment - Payment is changing hands.
	PhasePayment
	// PhaseComplete - Sale finished; a transaction is materialized.
	// Terminal: the context is destroyed on entry.
	PhaseComplete
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseInquiry:
		return "INQUIRY"
	case PhasePriceQuote:
		return "PRICE_QUOTE"
	case PhaseNegotiation:
		return "NEGOTIATION"
	case PhaseAgreement:
		return "AGREEMENT"
	case PhasePayment:
		return "PAYMENT"
	case PhaseComplete:
		return "COMPLETE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(p))
	}
}

// IsTerminal returns true when no further events can advance the phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete
}
