package remote

import (
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// flagPacked marks a msgpack payload. Integers are stored as bare
// ASCII decimals with no flag so the backend can increment them
// natively; 0x02 never starts a valid decimal, so decoding stays
// unambiguous.
const flagPacked byte = 0x02

// encode serializes a value for the remote backend.
func encode(value any) ([]byte, error) {
	if n, isInt := asInt64(value); isInt {
		return strconv.AppendInt(nil, n, 10), nil
	}

	packed, err := msgpack.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode remote value: %w", err)
	}
	out := make([]byte, 0, len(packed)+1)
	out = append(out, flagPacked)
	return append(out, packed...), nil
}

// decode reverses encode. Integers come back as int64; everything else
// as the msgpack-decoded value.
func decode(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("decode remote value: empty payload")
	}
	if raw[0] == flagPacked {
		var value any
		if err := msgpack.Unmarshal(raw[1:], &value); err != nil {
			return nil, fmt.Errorf("decode remote value: %w", err)
		}
		return value, nil
	}

	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode remote value: not an integer payload: %w", err)
	}
	return n, nil
}

func asInt64(value any) (int64, bool) {
	switch n := value.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}
