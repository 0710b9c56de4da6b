package queue

import "time"

// PayloadKind tags what a JobRecord's Payload field holds. Fetch dispatches
// on this rather than relying on type assertions or an inheritance
// hierarchy.
type PayloadKind int

const (
	// PayloadMarkup holds Star Document Markup text to be compiled.
	PayloadMarkup PayloadKind = iota
	// PayloadInvoiceRef holds an invoice identifier to be resolved to
	// markup text via the external resolver before compilation.
	PayloadInvoiceRef
	// PayloadHex holds printer-native bytes (hex-encoded in storage) that
	// bypass the compiler entirely.
	PayloadHex
)

// String implements fmt.Stringer for log lines and error messages.
func (k PayloadKind) String() string {
	switch k {
	case PayloadMarkup:
		return "markup"
	case PayloadInvoiceRef:
		return "invoice_ref"
	case PayloadHex:
		return "hex"
	default:
		return "unknown"
	}
}

// JobRecord is one queued print job for one printer.
type JobRecord struct {
	Token      string
	PrinterMAC string
	Kind       PayloadKind
	Payload    string // markup text, invoice id, or hex-encoded bytes
	MediaTypes []string
	CreatedAt  time.Time
	Fetched    bool
}
