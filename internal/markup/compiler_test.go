package markup

import (
	"bytes"
	"context"
	"testing"
)

func mustCompile(t *testing.T, text string, opts Options) []byte {
	t.Helper()
	out, err := Compile(context.Background(), text, opts)
	if err != nil {
		t.Fatalf("Compile(%q): %v", text, err)
	}
	return out
}

func TestCompileDeterministic(t *testing.T) {
	t.Parallel()
	text := "[align: centre]\nHello\n[cut]"
	first := mustCompile(t, text, Options{})
	second := mustCompile(t, text, Options{})
	if !bytes.Equal(first, second) {
		t.Fatalf("compile not deterministic:\n%x\n%x", first, second)
	}
}

func TestCompileBeginsWithCodePageSelector(t *testing.T) {
	t.Parallel()
	out := mustCompile(t, "[align: centre]\nHello\n[cut]", Options{})
	want := []byte{0x1B, 0x1D, 0x74, 0x20}
	if !bytes.HasPrefix(out, want) {
		t.Fatalf("missing cp1252 selector prefix, got %x", out[:min(len(out), 8)])
	}
}

func TestCompileEndToEndJob(t *testing.T) {
	t.Parallel()
	out := mustCompile(t, "[align: centre]\nHello\n[cut]", Options{})

	centre := []byte{0x1B, 0x1D, 0x61, 0x01}
	hello := []byte("Hello")
	cut := []byte{0x1B, 0x64, 0x03}

	if !bytes.Contains(out, centre) {
		t.Errorf("missing centre align command")
	}
	if !bytes.Contains(out, hello) {
		t.Errorf("missing Hello text")
	}
	if !bytes.HasSuffix(out, cut) {
		t.Errorf("job must end with partial cut, got %x", out[max(0, len(out)-8):])
	}
}

func TestAlignCentre(t *testing.T) {
	t.Parallel()
	out := mustCompile(t, "[align: centre]", Options{})
	if !bytes.Contains(out, []byte{0x1B, 0x1D, 0x61, 0x01}) {
		t.Errorf("expected 1B1D6101, got %x", out)
	}
}

func TestEmphasisPairBracketsText(t *testing.T) {
	t.Parallel()
	out := mustCompile(t, "[bold: on]PAID[bold: off]", Options{})
	on := bytes.Index(out, cmdEmphasisOn)
	text := bytes.Index(out, []byte("PAID"))
	off := bytes.Index(out, cmdEmphasisOff)
	if on < 0 || text < 0 || off < 0 || !(on < text && text < off) {
		t.Fatalf("expected emphasis on, then text, then emphasis off; got %x", out)
	}
}

func TestFeedByLength(t *testing.T) {
	t.Parallel()
	cases := []struct {
		markup  string
		wantLFs int
	}{
		{"[feed: length 6mm]", 2},
		{"[feed: length 2mm]", 1},
	}
	for _, tc := range cases {
		out := mustCompile(t, tc.markup, Options{})
		// wantLFs is what the feed tag emits; the line's own terminating LF
		// follows it.
		if got, want := bytes.Count(out, cmdLF), tc.wantLFs+1; got != want {
			t.Errorf("%q: got %d LFs, want %d (%x)", tc.markup, got, want, out)
		}
	}
}

func TestCutIsTerminalAndLast(t *testing.T) {
	t.Parallel()
	out := mustCompile(t, "Total due[cut]trailing text ignored", Options{})
	if !bytes.HasSuffix(out, cmdPartialCut) {
		t.Fatalf("cut must be the last bytes on its line, got %x", out)
	}
	if bytes.Contains(out, []byte("ignored")) {
		t.Fatalf("text after [cut] must not be emitted, got %x", out)
	}
}

func TestTrailingBackslashSuppressesLF(t *testing.T) {
	t.Parallel()
	withBackslash := mustCompile(t, "no newline here\\", Options{})
	if bytes.Contains(withBackslash, cmdLF) {
		t.Errorf("trailing backslash must suppress LF, got %x", withBackslash)
	}

	withoutBackslash := mustCompile(t, "a plain line", Options{})
	if !bytes.HasSuffix(withoutBackslash, cmdLF) {
		t.Errorf("a line with no continuation marker must end in LF, got %x", withoutBackslash)
	}
}

func TestColumnLayoutWithinWidth(t *testing.T) {
	t.Parallel()
	out := mustCompile(t, "[column: left Grand Total:; right CHF 25.50]", Options{})

	left := "Grand Total:"
	right := "CHF 25.50"
	want := left + pad(48-len(left)-len(right)) + right

	if !bytes.Contains(out, []byte(want)) {
		t.Fatalf("column layout mismatch, want substring %q in %q", want, out)
	}
	if !bytes.HasSuffix(out, cmdLF) {
		t.Errorf("column line must end with LF")
	}
}

func TestColumnLayoutAtOrOverWidth(t *testing.T) {
	t.Parallel()
	left := "This left side alone is already forty nine chars!"
	out := mustCompile(t, "[column: left "+left+"; right X]", Options{})
	want := left + "X"
	if !bytes.Contains(out, []byte(want)) {
		t.Fatalf("expected zero padding when left+right >= width, got %q", out)
	}
}

func TestEncodeASCII(t *testing.T) {
	t.Parallel()
	out := mustCompile(t, "ABC", Options{})
	if !bytes.Contains(out, []byte{0x41, 0x42, 0x43}) {
		t.Errorf("expected ABC to encode to 414243, got %x", out)
	}
}

func TestEncodeEuroSignByCodePage(t *testing.T) {
	t.Parallel()

	cp1252 := mustCompile(t, "€", Options{CodePage: CodePageCP1252})
	if !bytes.Contains(cp1252, []byte{0x80}) {
		t.Errorf("cp1252 euro sign should encode to 80, got %x", cp1252)
	}

	utf8 := mustCompile(t, "€", Options{CodePage: CodePageUTF8})
	if !bytes.Contains(utf8, []byte{0xE2, 0x82, 0xAC}) {
		t.Errorf("utf-8 euro sign should encode to E282AC, got %x", utf8)
	}
}

func TestUnknownTagsAreStrippedSilently(t *testing.T) {
	t.Parallel()
	out := mustCompile(t, "before[nonsense: whatever]after", Options{})
	if !bytes.Contains(out, []byte("beforeafter")) {
		t.Errorf("unknown tag should be stripped leaving surrounding text intact, got %q", out)
	}
}

func TestBarcodeCommand(t *testing.T) {
	t.Parallel()
	out := mustCompile(t, "[barcode: type code128; data 12345; height 15mm; module 2; hri]", Options{})
	if !bytes.Contains(out, cmdBarcodePrefix) {
		t.Fatalf("missing barcode command prefix, got %x", out)
	}
	if !bytes.Contains(out, []byte("12345")) {
		t.Fatalf("barcode data missing, got %x", out)
	}
	if !bytes.HasSuffix(bytes.TrimSuffix(out, cmdLF), cmdBarcodeTerminator) {
		t.Fatalf("barcode command must terminate with 1E, got %x", out)
	}
}

func TestBarcodeUnknownTypeDropped(t *testing.T) {
	t.Parallel()
	out := mustCompile(t, "[barcode: type not-a-symbology; data 1]", Options{})
	if bytes.Contains(out, cmdBarcodePrefix) {
		t.Fatalf("unresolvable barcode type must be dropped, got %x", out)
	}
}

func TestQRCodeCommand(t *testing.T) {
	t.Parallel()
	out := mustCompile(t, "[qrcode: data https://example.test/r/1; ec 1; cell 4]", Options{})
	if !bytes.Contains(out, cmdQRSetModel) || !bytes.Contains(out, cmdQRPrint) {
		t.Fatalf("missing qr model/print commands, got %x", out)
	}
	if !bytes.Contains(out, []byte("https://example.test/r/1")) {
		t.Fatalf("qr data missing, got %x", out)
	}
}

func TestDrawerAndBuzzerAndLogoAndSpacing(t *testing.T) {
	t.Parallel()
	out := mustCompile(t, "[drawer][buzzer: circuit 1; pulse 50ms; delay 10ms][logo: key 1][spacing: lines 30]", Options{})
	if !bytes.Contains(out, cmdOpenCashDrawer) {
		t.Errorf("missing cash drawer command")
	}
	if !bytes.Contains(out, cmdBuzzerPrefix) {
		t.Errorf("missing buzzer command")
	}
	if !bytes.Contains(out, cmdNVLogoPrefix) {
		t.Errorf("missing logo command")
	}
	if !bytes.Contains(out, cmdLineSpacingPrefix) {
		t.Errorf("missing spacing command")
	}
}

func TestImageTagDroppedWithoutRasterizer(t *testing.T) {
	t.Parallel()
	out := mustCompile(t, "[image: url https://example.test/logo.png]", Options{})
	if len(out) == 0 {
		t.Fatalf("expected the document prologue to survive even with no rasterizer")
	}
}

type stubRasterizer struct {
	data []byte
	err  error
}

func (s stubRasterizer) Rasterize(_ context.Context, _ string, _ int) ([]byte, error) {
	return s.data, s.err
}

func TestImageTagEmbedsRasterizedBytes(t *testing.T) {
	t.Parallel()
	raster := []byte{0x1B, 0x2A, 0x01, 0x02, 0xFF}
	out := mustCompile(t, "[image: url https://example.test/logo.png]", Options{Images: stubRasterizer{data: raster}})
	if !bytes.Contains(out, raster) {
		t.Fatalf("expected rasterized image bytes embedded, got %x", out)
	}
}

func pad(n int) string {
	if n < 0 {
		n = 0
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

