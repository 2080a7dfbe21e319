// internal/transport/solarman/frame.go
package solarman

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/sigurn/crc16"

	"github.com/tamzrod/modbus-bridge/internal/transport"
)

// V5 envelope layout. A frame is
//
//	start(1) length(2 LE) control(2 LE) sequence(2 LE) loggerSerial(4 LE)
//	payload(length) checksum(1) end(1)
//
// where the request payload is a fixed 15-byte prefix (frame type,
// sensor type, three time counters) followed by a Modbus RTU frame, and
// the response payload carries a 14-byte prefix (frame type, status,
// three time counters) before its RTU frame.
const (
	frameStart = 0xA5
	frameEnd   = 0x15

	ctrlRequest  = 0x4510
	ctrlResponse = 0x1510

	frameTypeInverter = 0x02

	headerLen  = 11
	trailerLen = 2

	requestPrefixLen  = 15
	responsePrefixLen = 14
)

const (
	fcReadHolding = 0x03
	fcReadInput   = 0x04
)

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// encodeFrame wraps a Modbus RTU request in the V5 envelope.
func encodeFrame(seq uint16, loggerSerial uint32, rtu []byte) []byte {
	payloadLen := requestPrefixLen + len(rtu)
	frame := make([]byte, 0, headerLen+payloadLen+trailerLen)

	frame = append(frame, frameStart)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(payloadLen))
	frame = binary.LittleEndian.AppendUint16(frame, ctrlRequest)
	frame = binary.LittleEndian.AppendUint16(frame, seq)
	frame = binary.LittleEndian.AppendUint32(frame, loggerSerial)

	frame = append(frame, frameTypeInverter)
	frame = append(frame, 0x00, 0x00)             // sensor type
	frame = append(frame, 0, 0, 0, 0, 0, 0, 0, 0) // total working time, power on time
	frame = append(frame, 0, 0, 0, 0)             // offset time
	frame = append(frame, rtu...)

	frame = append(frame, checksum(frame[1:]))
	frame = append(frame, frameEnd)
	return frame
}

// decodeFrame validates the V5 envelope of a response and returns the
// inner Modbus RTU frame. The sequence check compares low bytes only;
// loggers are known to scribble on the high byte.
func decodeFrame(frame []byte, seq uint16, loggerSerial uint32) ([]byte, error) {
	if len(frame) < headerLen+responsePrefixLen+trailerLen {
		return nil, errors.Errorf("frame too short: %d bytes", len(frame))
	}
	if frame[0] != frameStart {
		return nil, errors.Errorf("bad start byte 0x%02X", frame[0])
	}
	payloadLen := int(binary.LittleEndian.Uint16(frame[1:3]))
	if len(frame) != headerLen+payloadLen+trailerLen {
		return nil, errors.Errorf("length field says %d payload bytes, frame has %d",
			payloadLen, len(frame)-headerLen-trailerLen)
	}
	if frame[len(frame)-1] != frameEnd {
		return nil, errors.Errorf("bad end byte 0x%02X", frame[len(frame)-1])
	}
	if got, want := frame[len(frame)-2], checksum(frame[1:len(frame)-trailerLen]); got != want {
		return nil, errors.Errorf("checksum mismatch: got 0x%02X, want 0x%02X", got, want)
	}
	if ctrl := binary.LittleEndian.Uint16(frame[3:5]); ctrl != ctrlResponse {
		return nil, errors.Errorf("unexpected control code 0x%04X", ctrl)
	}
	if frame[5] != byte(seq) {
		return nil, errors.Errorf("sequence mismatch: got 0x%02X, want 0x%02X", frame[5], byte(seq))
	}
	if got := binary.LittleEndian.Uint32(frame[7:11]); got != loggerSerial {
		return nil, errors.Errorf("logger serial mismatch: got %d, want %d", got, loggerSerial)
	}
	if frame[headerLen] != frameTypeInverter {
		return nil, errors.Errorf("unexpected frame type 0x%02X", frame[headerLen])
	}
	return frame[headerLen+responsePrefixLen : len(frame)-trailerLen], nil
}

// checksum is the modular sum over everything between the start byte
// and the trailer.
func checksum(b []byte) byte {
	var sum byte
	for _, x := range b {
		sum += x
	}
	return sum
}

// encodeReadRequest builds the inner Modbus RTU read request.
func encodeReadRequest(slave, fc byte, addr, qty uint16) []byte {
	rtu := make([]byte, 0, 8)
	rtu = append(rtu, slave, fc, byte(addr>>8), byte(addr), byte(qty>>8), byte(qty))
	crc := crc16.Checksum(rtu, crcTable)
	return append(rtu, byte(crc), byte(crc>>8))
}

// decodeReadResponse validates the inner RTU response and unpacks the
// register words.
func decodeReadResponse(rtu []byte, slave, fc byte, qty uint16) ([]uint16, error) {
	if len(rtu) < 5 {
		return nil, errors.Errorf("rtu frame too short: %d bytes", len(rtu))
	}
	body, tail := rtu[:len(rtu)-2], rtu[len(rtu)-2:]
	wantCRC := crc16.Checksum(body, crcTable)
	if got := uint16(tail[1])<<8 | uint16(tail[0]); got != wantCRC {
		return nil, errors.Errorf("rtu crc mismatch: got 0x%04X, want 0x%04X", got, wantCRC)
	}
	if body[0] != slave {
		return nil, errors.Errorf("response from slave %d, want %d", body[0], slave)
	}
	switch body[1] {
	case fc:
	case fc | 0x80:
		if len(body) < 3 {
			return nil, errors.New("truncated modbus exception")
		}
		return nil, errors.Errorf("modbus exception 0x%02X (%s)", body[2], exceptionName(body[2]))
	default:
		return nil, errors.Errorf("unexpected function code 0x%02X, want 0x%02X", body[1], fc)
	}
	count := int(body[2])
	if count != 2*int(qty) || len(body) != 3+count {
		return nil, errors.Errorf("byte count %d does not match %d registers", count, qty)
	}
	return transport.Words(body[3:])
}

func exceptionName(code byte) string {
	switch code {
	case 0x01:
		return "illegal function"
	case 0x02:
		return "illegal data address"
	case 0x03:
		return "illegal data value"
	case 0x04:
		return "slave device failure"
	case 0x05:
		return "acknowledge"
	case 0x06:
		return "slave device busy"
	case 0x0A:
		return "gateway path unavailable"
	case 0x0B:
		return "gateway target failed to respond"
	default:
		return "unknown"
	}
}
