// Package events turns raw webhook bodies into canonical, validated events.
//
// Parsing happens in three steps: ParseEnvelope checks the outer {type, data}
// shape, Normalize maps the sender's kind string onto a closed set of Kinds,
// and Decode extracts the fields the entitlement pipeline needs.
package events

import "strings"

// Kind is the canonical event tag.
type Kind string

const (
	KindPaymentSucceeded      Kind = "payment_succeeded"
	KindInvoicePaid           Kind = "invoice_paid"
	KindInvoiceVoided         Kind = "invoice_voided"
	KindMembershipActivated   Kind = "membership_activated"
	KindMembershipDeactivated Kind = "membership_deactivated"
	KindUnknown               Kind = "unknown"
)

// kindTable lists every textual form the sender is known to emit. New
// variants are added here and nowhere else.
var kindTable = map[string]Kind{
	"payment_succeeded":       KindPaymentSucceeded,
	"payment.succeeded":       KindPaymentSucceeded,
	"invoice_paid":            KindInvoicePaid,
	"invoice.paid":            KindInvoicePaid,
	"invoice_voided":          KindInvoiceVoided,
	"invoice.voided":          KindInvoiceVoided,
	"membership_activated":    KindMembershipActivated,
	"membership.activated":    KindMembershipActivated,
	"membership_went_valid":   KindMembershipActivated,
	"membership.went_valid":   KindMembershipActivated,
	"membership_deactivated":  KindMembershipDeactivated,
	"membership.deactivated":  KindMembershipDeactivated,
	"membership_went_invalid": KindMembershipDeactivated,
	"membership.went_invalid": KindMembershipDeactivated,
}

// Normalize maps a raw kind string to its canonical Kind. Unrecognized
// strings, including the empty string, map to KindUnknown.
func Normalize(raw string) Kind {
	if k, ok := kindTable[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return k
	}
	return KindUnknown
}

// Known reports whether k is anything other than KindUnknown.
func (k Kind) Known() bool {
	return k != KindUnknown && k != ""
}

// Grants reports whether events of this kind create an entitlement.
func (k Kind) Grants() bool {
	switch k {
	case KindPaymentSucceeded, KindInvoicePaid, KindMembershipActivated:
		return true
	}
	return false
}

// Revokes reports whether events of this kind are subject to the
// revocation policy.
func (k Kind) Revokes() bool {
	return k == KindInvoiceVoided || k == KindMembershipDeactivated
}

// RecordsPurchase reports whether events of this kind append a purchase row.
func (k Kind) RecordsPurchase() bool {
	return k == KindPaymentSucceeded || k == KindInvoicePaid
}

// Variants returns every raw string that normalizes to k, for tests and docs.
func Variants(k Kind) []string {
	var out []string
	for raw, kind := range kindTable {
		if kind == k {
			out = append(out, raw)
		}
	}
	return out
}
