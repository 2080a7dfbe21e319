// internal/decode/decode.go
package decode

import (
	"fmt"
	"math"

	"github.com/tamzrod/modbus-bridge/internal/schema"
)

// Raw assembles register words into the integer the table entry's type
// and byte order describe. Signed types reinterpret the bits as two's
// complement. Pure: no IO, no mutation.
func Raw(words []uint16, order schema.ByteOrder, typ schema.DataType) (int64, error) {
	if len(words) != int(typ.Words()) {
		return 0, fmt.Errorf("type %s needs %d word(s), got %d", typ, typ.Words(), len(words))
	}

	switch typ {
	case schema.TypeU16:
		return int64(words[0]), nil
	case schema.TypeS16:
		return int64(int16(words[0])), nil
	}

	var hi, lo uint16
	switch order {
	case schema.OrderAB, schema.OrderABCD:
		hi, lo = words[0], words[1]
	case schema.OrderCDAB:
		hi, lo = words[1], words[0]
	case schema.OrderBADC:
		hi, lo = swap(words[0]), swap(words[1])
	case schema.OrderDCBA:
		hi, lo = swap(words[1]), swap(words[0])
	default:
		return 0, fmt.Errorf("unknown byte order %v", order)
	}

	u := uint32(hi)<<16 | uint32(lo)
	if typ == schema.TypeS32 {
		return int64(int32(u)), nil
	}
	return int64(u), nil
}

// Value decodes the words for one entry and applies its scaling:
// raw*multiply + offset, rounded to the given number of decimals.
func Value(e schema.Entry, words []uint16, decimals int) (float64, error) {
	raw, err := Raw(words, e.ByteOrder, e.Type)
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", e.ID, err)
	}
	return Round(float64(raw)*e.Multiply+e.Offset, decimals), nil
}

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(v)
	}
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

func swap(w uint16) uint16 {
	return w<<8 | w>>8
}
