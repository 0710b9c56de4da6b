// Package markup compiles Star Document Markup — a line-oriented, bracketed
// tag language for authoring receipts — into a Star Line Mode byte stream
// a printer can consume directly.
//
// The compiler is a straight pipeline: split into lines, tokenize each line
// into literal-text and tag tokens (tags.go), dispatch each tag to a byte
// emitter (this file, barcode.go, qrcode.go), and transcode literal text
// through the selected code page (codepage.go). There is no AST and no
// per-tag type hierarchy; a tag is a name plus a raw argument string, and a
// lookup happens through a plain switch.
package markup

import (
	"context"
	"errors"
	"strings"
)

// ErrRenderFailed is returned when compilation cannot produce a byte stream
// at all (as opposed to a single tag, such as [image:], being dropped).
var ErrRenderFailed = errors.New("markup: render failed")

// ImageRasterizer fetches and rasterizes an image referenced by a [image:]
// tag into a printer-native raster command. Implementations enforce their
// own fetch timeout; Compile does not retry on error, it drops the tag.
type ImageRasterizer interface {
	Rasterize(ctx context.Context, url string, paperWidthMM int) ([]byte, error)
}

// Options configures one compilation run.
type Options struct {
	// CodePage selects the text transcoding and document prologue.
	CodePage CodePage
	// ColumnWidth is the fixed character width for [column:] layout.
	// Zero means 48, the documented width for 80mm paper.
	ColumnWidth int
	// PaperWidthMM is passed through to Images.Rasterize so it can pick a
	// pixel width appropriate to the paper. Zero means 80.
	PaperWidthMM int
	// Images rasterizes [image:] tags. A nil Images silently drops every
	// [image:] tag, as if the fetch had failed.
	Images ImageRasterizer
}

func (o Options) columnWidth() int {
	if o.ColumnWidth <= 0 {
		return 48
	}
	return o.ColumnWidth
}

func (o Options) paperWidthMM() int {
	if o.PaperWidthMM <= 0 {
		return 80
	}
	return o.PaperWidthMM
}

// Compile renders markup text to a Star Line Mode byte stream. Compilation
// is deterministic: the same (text, Options) always produces the same
// bytes, except for the [image:] tag, whose output depends on the
// referenced image's current content.
//
// Compile never returns an error for malformed or unknown tags — those are
// stripped or ignored per the tag table, and the rest of the document still
// renders. It surfaces an error only for conditions the emitter itself
// cannot recover from.
func Compile(ctx context.Context, text string, opts Options) ([]byte, error) {
	var out []byte
	out = append(out, opts.CodePage.prologue()...)

	lines := strings.Split(text, "\n")
	for _, raw := range lines {
		emitted, err := compileLine(ctx, raw, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, emitted...)
	}
	return out, nil
}

func compileLine(ctx context.Context, raw string, opts Options) ([]byte, error) {
	line := strings.TrimSuffix(raw, "\r")

	continuation := false
	if strings.HasSuffix(line, "\\") {
		continuation = true
		line = line[:len(line)-1]
	}

	var buf []byte
	cutHit := false
	columnHit := false

	for _, tok := range tokenizeLine(line) {
		if !tok.isTag {
			buf = append(buf, opts.CodePage.encode(tok.text)...)
			continue
		}

		switch tok.name {
		case "align":
			buf = append(buf, alignCommand(tok.raw)...)

		case "bold":
			if strings.EqualFold(strings.TrimSpace(tok.raw), "off") {
				buf = append(buf, cmdEmphasisOff...)
			} else {
				buf = append(buf, cmdEmphasisOn...)
			}

		case "magnify":
			buf = append(buf, magnifyCommand(tok.raw)...)

		case "feed":
			buf = append(buf, feedCommand(tok.raw)...)

		case "cut":
			buf = append(buf, cutCommand(tok.raw)...)
			cutHit = true

		case "column":
			buf = append(buf, columnLine(tok.raw, opts)...)
			columnHit = true

		case "image":
			buf = append(buf, renderImage(ctx, tok.raw, opts)...)

		case "barcode":
			buf = append(buf, barcodeCommand(tok.raw)...)

		case "qrcode":
			buf = append(buf, qrCommand(tok.raw)...)

		case "buzzer":
			buf = append(buf, buzzerCommand(tok.raw)...)

		case "drawer":
			buf = append(buf, cmdOpenCashDrawer...)

		case "logo":
			buf = append(buf, logoCommand(tok.raw)...)

		case "spacing":
			buf = append(buf, spacingCommand(tok.raw)...)

		case "font":
			// Single font supported; acceptable to ignore per the tag table.

		default:
			// Unknown tag: stripped silently, surrounding text preserved.
		}

		if cutHit {
			break
		}
	}

	if !cutHit && !continuation && !columnHit {
		buf = append(buf, cmdLF...)
	}
	return buf, nil
}

func alignCommand(raw string) []byte {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "centre", "center":
		return cmdAlignCenter
	case "right":
		return cmdAlignRight
	default:
		return cmdAlignLeft
	}
}

func magnifyCommand(raw string) []byte {
	if raw == "" {
		return append(append([]byte{}, cmdFontMagPrefix...), 0x00, 0x00)
	}
	m := argMap(raw)
	w := parseIntDefault(m["width"], 1)
	h := parseIntDefault(m["height"], 1)
	out := append([]byte{}, cmdFontMagPrefix...)
	out = append(out, byte(clamp(w-1, 0, 5)), byte(clamp(h-1, 0, 5)))
	return out
}

func feedCommand(raw string) []byte {
	if raw == "" {
		return cmdLF
	}
	m := argMap(raw)
	mm := parseIntSuffix(m["length"], "mm", 0)
	n := mm / 3
	if n < 1 {
		n = 1
	}
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, cmdLF...)
	}
	return out
}

func cutCommand(raw string) []byte {
	m := argMap(raw)
	if strings.EqualFold(m["type"], "full") {
		return cmdFullCut
	}
	return cmdPartialCut
}

func columnLine(raw string, opts Options) []byte {
	m := argMap(raw)
	left, right := m["left"], m["right"]
	width := opts.columnWidth()

	total := len([]rune(left)) + len([]rune(right))
	pad := width - total
	if pad < 0 {
		pad = 0
	}

	var sb strings.Builder
	sb.WriteString(left)
	sb.WriteString(strings.Repeat(" ", pad))
	sb.WriteString(right)

	out := opts.CodePage.encode(sb.String())
	return append(out, cmdLF...)
}

func renderImage(ctx context.Context, raw string, opts Options) []byte {
	if opts.Images == nil {
		return nil
	}
	m := argMap(raw)
	url := m["url"]
	if url == "" {
		return nil
	}
	data, err := opts.Images.Rasterize(ctx, url, opts.paperWidthMM())
	if err != nil {
		return nil
	}
	return data
}

func barcodeCommand(raw string) []byte {
	m := argMap(raw)
	typeCode, ok := resolveBarcodeType(m["type"])
	if !ok {
		return nil
	}
	data := m["data"]
	if data == "" {
		return nil
	}
	_, hri := m["hri"]
	height := parseIntSuffix(m["height"], "mm", 24)
	module := parseIntDefault(m["module"], 2)
	return buildBarcodeCommand(typeCode, hri, module, height, data)
}

func qrCommand(raw string) []byte {
	m := argMap(raw)
	data := m["data"]
	if data == "" {
		return nil
	}
	ec := parseIntDefault(m["ec"], 1)
	cell := parseIntDefault(m["cell"], 4)
	return buildQRCommand(data, ec, cell)
}

func buzzerCommand(raw string) []byte {
	m := argMap(raw)
	circuit := parseIntDefault(m["circuit"], 1)
	pulse := parseIntSuffix(m["pulse"], "ms", 100)
	delay := parseIntSuffix(m["delay"], "ms", 0)
	out := append([]byte{}, cmdBuzzerPrefix...)
	return append(out, byte(clamp(circuit, 1, 2)), byte(clamp(pulse, 0, 255)), byte(clamp(delay, 0, 255)))
}

func logoCommand(raw string) []byte {
	m := argMap(raw)
	key := parseIntDefault(m["key"], 1)
	out := append([]byte{}, cmdNVLogoPrefix...)
	out = append(out, byte(clamp(key, 0, 255)), 0x00)
	return append(out, cmdLF...)
}

func spacingCommand(raw string) []byte {
	m := argMap(raw)
	n := parseIntDefault(m["lines"], 0)
	out := append([]byte{}, cmdLineSpacingPrefix...)
	return append(out, byte(clamp(n, 0, 255)))
}
