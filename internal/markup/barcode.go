package markup

import "strconv"

// barcodeTypeNames maps the symbology names accepted by [barcode: type ...]
// to the numeric type codes the Star Line Mode barcode command expects.
// Printers that support barcodes document these as a fixed 0..13 table;
// this mirrors that table so markup authors can write "code128" instead of
// memorizing the numeric code.
var barcodeTypeNames = map[string]int{
	"upc-e":   0,
	"upce":    0,
	"upc-a":   1,
	"upca":    1,
	"ean8":    2,
	"jan8":    2,
	"ean13":   3,
	"jan13":   3,
	"code39":  4,
	"itf":     5,
	"codabar": 6,
	"nw7":     6,
	"code93":  7,
	"code128": 8,
	"gs1-128": 9,
	"gs1128":  9,
}

// resolveBarcodeType parses a [barcode:] "type" value, either a name from
// barcodeTypeNames or a literal 0..13 numeric code. It returns false if t
// doesn't resolve to a value in range.
func resolveBarcodeType(t string) (int, bool) {
	if n, ok := barcodeTypeNames[t]; ok {
		return n, true
	}
	n, err := strconv.Atoi(t)
	if err != nil || n < 0 || n > 13 {
		return 0, false
	}
	return n, true
}

// buildBarcodeCommand assembles the printer-native barcode command:
// 1B 62 <t> <h> <m> <y> <D...> 1E
// where h is 2 when HRI text is requested, else 1.
func buildBarcodeCommand(typeCode int, hri bool, module, heightMM int, data string) []byte {
	h := byte(1)
	if hri {
		h = 2
	}
	m := byte(clamp(module, 1, 3))
	y := byte(clamp(heightMM, 8, 255))

	out := make([]byte, 0, len(cmdBarcodePrefix)+4+len(data)+len(cmdBarcodeTerminator))
	out = append(out, cmdBarcodePrefix...)
	out = append(out, byte(typeCode), h, m, y)
	out = append(out, []byte(data)...)
	out = append(out, cmdBarcodeTerminator...)
	return out
}
