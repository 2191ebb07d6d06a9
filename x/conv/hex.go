package conv

const hexd = "0123456789abcdef"

// AppendHex8 appends b as two lowercase hex digits.
func AppendHex8(dst []byte, b byte) []byte {
	return append(dst, hexd[b>>4], hexd[b&0xF])
}

// AppendHex16 appends v as four lowercase hex digits.
func AppendHex16(dst []byte, v uint16) []byte {
	return AppendHex8(AppendHex8(dst, byte(v>>8)), byte(v))
}

// AppendDumpLine appends one hex dump line: "0010: 01 02 ff\n".
func AppendDumpLine(dst []byte, addr uint16, data []byte) []byte {
	dst = AppendHex16(dst, addr)
	dst = append(dst, ':')
	for _, b := range data {
		dst = append(dst, ' ')
		dst = AppendHex8(dst, b)
	}
	return append(dst, '\n')
}
