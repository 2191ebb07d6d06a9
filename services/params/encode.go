package params

import (
	"encoding/binary"

	"eeparam-go/errcode"
	"eeparam-go/nvstore"
	"eeparam-go/types"
)

// encodeValue turns a set payload into the parameter's stored bytes.
// Integers are stored little-endian and must fit the element size.
func encodeValue(d nvstore.Descriptor, p any) ([]byte, error) {
	n := int(d.ElementSize)
	switch v := p.(type) {
	case types.ParamSet:
		return block(n, v.Data)
	case *types.ParamSet:
		if v == nil {
			return nil, errcode.InvalidPayload
		}
		return block(n, v.Data)
	case []byte:
		return block(n, v)
	case uint8:
		return word(n, uint64(v))
	case uint16:
		return word(n, uint64(v))
	case uint32:
		return word(n, uint64(v))
	case int:
		if v < 0 {
			return nil, errcode.InvalidPayload
		}
		return word(n, uint64(v))
	case float64: // generic decoders (YAML/JSON numbers)
		if v < 0 || v != float64(uint64(v)) {
			return nil, errcode.InvalidPayload
		}
		return word(n, uint64(v))
	}
	return nil, errcode.InvalidPayload
}

func block(n int, data []byte) ([]byte, error) {
	if len(data) != n {
		return nil, &errcode.E{C: errcode.SizeMismatch, Op: "params.set", Msg: "value length differs from parameter size"}
	}
	return data, nil
}

func word(n int, v uint64) ([]byte, error) {
	if n > 8 || (n < 8 && v>>(8*uint(n)) != 0) {
		return nil, &errcode.E{C: errcode.InvalidPayload, Op: "params.set", Msg: "value does not fit parameter"}
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:n], nil
}
