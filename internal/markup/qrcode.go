package markup

// buildQRCommand assembles the multi-step QR code sequence: select model,
// error-correction level (0..3), cell size (1..8), load the data, then
// print. Each step is a distinct native command rather than one combined
// command.
func buildQRCommand(data string, ec, cell int) []byte {
	ec = clamp(ec, 0, 3)
	cell = clamp(cell, 1, 8)

	var out []byte
	out = append(out, cmdQRSetModel...)
	out = append(out, cmdQRSetECPrefix...)
	out = append(out, byte(ec))
	out = append(out, cmdQRSetCellPrefix...)
	out = append(out, byte(cell))

	out = append(out, cmdQRDataPrefix...)
	lenLo, lenHi := u16le(len(data))
	out = append(out, lenLo, lenHi)
	out = append(out, []byte(data)...)

	out = append(out, cmdQRPrint...)
	return out
}
