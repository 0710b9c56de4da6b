package markup

// Star Line Mode byte-level commands, bit-exact per the documented protocol.
// Kept as a dedicated table (rather than inlined in the emitter) so the
// byte sequences are auditable against the spec in one place.
var (
	cmdLF                = []byte{0x0A}
	cmdEmphasisOn        = []byte{0x1B, 0x45}
	cmdEmphasisOff       = []byte{0x1B, 0x46}
	cmdAlignLeft         = []byte{0x1B, 0x1D, 0x61, 0x00}
	cmdAlignCenter       = []byte{0x1B, 0x1D, 0x61, 0x01}
	cmdAlignRight        = []byte{0x1B, 0x1D, 0x61, 0x02}
	cmdPartialCut        = []byte{0x1B, 0x64, 0x03}
	cmdFullCut           = []byte{0x1B, 0x64, 0x02}
	cmdCodePagePrefix    = []byte{0x1B, 0x1D, 0x74}
	cmdUTF8EnablePart1   = []byte{0x1B, 0x1D, 0x29, 0x55, 0x02, 0x00, 0x30, 0x01}
	cmdUTF8EnablePart2   = []byte{0x1B, 0x1D, 0x29, 0x55, 0x02, 0x00, 0x40, 0x00}
	cmdOpenCashDrawer    = []byte{0x1B, 0x70, 0x00, 0x14, 0x50}
	cmdLineSpacingPrefix = []byte{0x1B, 0x33}
	cmdBarcodePrefix     = []byte{0x1B, 0x62}
	cmdBarcodeTerminator = []byte{0x1E}
	cmdQRSetModel        = []byte{0x1B, 0x1D, 0x79, 0x53, 0x30, 0x02}
	cmdQRSetECPrefix     = []byte{0x1B, 0x1D, 0x79, 0x53, 0x31}
	cmdQRSetCellPrefix   = []byte{0x1B, 0x1D, 0x79, 0x53, 0x32}
	cmdQRDataPrefix      = []byte{0x1B, 0x1D, 0x79, 0x44, 0x31, 0x00}
	cmdQRPrint           = []byte{0x1B, 0x1D, 0x79, 0x50}
	cmdRasterPrefix      = []byte{0x1B, 0x2A}
	cmdBuzzerPrefix      = []byte{0x1B, 0x1D, 0x07}
	cmdNVLogoPrefix      = []byte{0x1B, 0x1C, 0x70}
	cmdFontMagPrefix     = []byte{0x1B, 0x69}

	codePageWindows1252 byte = 0x20
)

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func u16le(n int) (lo, hi byte) {
	return byte(n % 256), byte((n / 256) % 256)
}
