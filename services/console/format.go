package console

import (
	"eeparam-go/errcode"
	"eeparam-go/types"
	"eeparam-go/x/conv"
	"eeparam-go/x/strconvx"
)

// parseValue turns set arguments into size bytes:
//   - one integer for parameters of up to 4 bytes, stored little-endian
//   - one byte per argument when there are exactly size arguments
//   - a single non-numeric argument as text, zero padded
func parseValue(size int, args []string) ([]byte, error) {
	if len(args) == 1 && size <= 4 {
		v, err := strconvx.ParseUint(args[0], 0, 8*size)
		if err != nil {
			return nil, &errcode.E{C: errcode.InvalidPayload, Msg: "want a number that fits " + strconvx.Itoa(size) + " byte(s)"}
		}
		out := make([]byte, size)
		for i := range out {
			out[i] = byte(v >> (8 * i))
		}
		return out, nil
	}
	if len(args) == size {
		out := make([]byte, size)
		for i, a := range args {
			v, err := strconvx.ParseUint(a, 0, 8)
			if err != nil {
				return nil, &errcode.E{C: errcode.InvalidPayload, Msg: "byte " + strconvx.Itoa(i) + " is not 0..255"}
			}
			out[i] = byte(v)
		}
		return out, nil
	}
	if len(args) == 1 {
		if len(args[0]) > size {
			return nil, &errcode.E{C: errcode.SizeMismatch, Msg: "text longer than " + strconvx.Itoa(size) + " bytes"}
		}
		out := make([]byte, size)
		copy(out, args[0])
		return out, nil
	}
	return nil, &errcode.E{C: errcode.SizeMismatch, Msg: "want 1 or " + strconvx.Itoa(size) + " values"}
}

func formatValue(v types.ParamValue) string {
	s := v.Name + " ="
	if n := len(v.Data); n >= 1 && n <= 4 {
		u := uint64(v.Uint())
		hex := strconvx.FormatUint(u, 16)
		for len(hex) < 2*n {
			hex = "0" + hex
		}
		s += " " + strconvx.FormatUint(u, 10) + " (0x" + hex + ")"
	} else {
		var b []byte
		for _, x := range v.Data {
			b = append(b, ' ')
			b = conv.AppendHex8(b, x)
		}
		s += string(b)
		if t, ok := text(v.Data); ok {
			s += " \"" + t + "\""
		}
	}
	if v.Pending {
		s += " (pending)"
	}
	return s
}

// text returns data as a string when it is printable ASCII up to the first NUL.
func text(data []byte) (string, bool) {
	n := 0
	for n < len(data) && data[n] != 0 {
		if data[n] < 0x20 || data[n] > 0x7e {
			return "", false
		}
		n++
	}
	if n == 0 {
		return "", false
	}
	for _, b := range data[n:] {
		if b != 0 {
			return "", false
		}
	}
	return string(data[:n]), true
}

func formatStats(st types.ParamsStats) string {
	u := func(v uint32) string { return strconvx.FormatUint(uint64(v), 10) }
	busy := "no"
	if st.Busy {
		busy = "yes"
	}
	return "queued=" + u(st.Queued) +
		" skipped=" + u(st.Skipped) +
		" dropped=" + u(st.Dropped) +
		" committed=" + u(st.Committed) +
		" failed=" + u(st.Failed) +
		" bytes=" + u(st.BytesWritten) +
		" errors=" + u(st.WriteErrors) +
		" pending=" + strconvx.Itoa(st.Pending) +
		" busy=" + busy
}
