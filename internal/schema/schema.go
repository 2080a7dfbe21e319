// internal/schema/schema.go
package schema

import (
	"fmt"
	"strings"
)

// Function selects the register bank a read targets.
type Function uint8

const (
	FunctionHolding Function = iota // FC 3
	FunctionInput                   // FC 4
)

func (f Function) String() string {
	switch f {
	case FunctionHolding:
		return "holding"
	case FunctionInput:
		return "input"
	default:
		return fmt.Sprintf("function(%d)", uint8(f))
	}
}

// ParseFunction accepts the table spellings "holding" and "input".
func ParseFunction(s string) (Function, error) {
	switch strings.ToLower(s) {
	case "holding":
		return FunctionHolding, nil
	case "input":
		return FunctionInput, nil
	default:
		return 0, fmt.Errorf("unknown function %q", s)
	}
}

// DataType is the numeric interpretation of a register value.
type DataType uint8

const (
	TypeU16 DataType = iota
	TypeS16
	TypeU32
	TypeS32
)

func (t DataType) String() string {
	switch t {
	case TypeU16:
		return "uint16"
	case TypeS16:
		return "int16"
	case TypeU32:
		return "uint32"
	case TypeS32:
		return "int32"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Words is the register count the type occupies.
func (t DataType) Words() uint16 {
	if t == TypeU32 || t == TypeS32 {
		return 2
	}
	return 1
}

// ParseDataType accepts uint16, int16, uint32, int32.
func ParseDataType(s string) (DataType, error) {
	switch strings.ToLower(s) {
	case "uint16":
		return TypeU16, nil
	case "int16":
		return TypeS16, nil
	case "uint32":
		return TypeU32, nil
	case "int32":
		return TypeS32, nil
	default:
		return 0, fmt.Errorf("unknown type %q", s)
	}
}

// ByteOrder is the word/byte layout used to assemble multi-word values.
// Letters name the four bytes of a 32-bit value from most to least
// significant as they appear on the wire: A is the high byte of the
// first word read, D the low byte of the second.
type ByteOrder uint8

const (
	OrderAB   ByteOrder = iota // single word; identity for two words
	OrderABCD                  // first word high, straight bytes
	OrderCDAB                  // second word high, straight bytes
	OrderBADC                  // first word high, bytes swapped per word
	OrderDCBA                  // second word high, bytes swapped per word
)

func (o ByteOrder) String() string {
	switch o {
	case OrderAB:
		return "AB"
	case OrderABCD:
		return "ABCD"
	case OrderCDAB:
		return "CDAB"
	case OrderBADC:
		return "BADC"
	case OrderDCBA:
		return "DCBA"
	default:
		return fmt.Sprintf("order(%d)", uint8(o))
	}
}

// ParseByteOrder accepts AB, ABCD, CDAB, BADC, DCBA (any case).
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToUpper(s) {
	case "AB":
		return OrderAB, nil
	case "ABCD":
		return OrderABCD, nil
	case "CDAB":
		return OrderCDAB, nil
	case "BADC":
		return OrderBADC, nil
	case "DCBA":
		return OrderDCBA, nil
	default:
		return 0, fmt.Errorf("unknown byte_order %q", s)
	}
}

// Entry is one logical measurement: where to read it and how to turn the
// raw words into a scaled value.
type Entry struct {
	ID          string
	Address     uint16
	Count       uint16
	Function    Function
	Type        DataType
	ByteOrder   ByteOrder
	Multiply    float64
	Offset      float64
	Measurement string
	Field       string
	Tags        map[string]string
}

// Table is a loaded and validated register table. Entries keep file order.
// Warnings carry non-fatal findings (duplicate measurement/field pairs).
type Table struct {
	Entries  []Entry
	Warnings []string
}

// Error reports every table violation found in one load, not just the
// first. A table that produces an Error must not be served.
type Error struct {
	Issues []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("register table: %d problem(s): %s",
		len(e.Issues), strings.Join(e.Issues, "; "))
}
