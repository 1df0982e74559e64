package mercury

// Header wire encoding. The real access point carries Header and
// Subscription as protobuf messages; without a protoc toolchain available
// in this environment, this package uses the same length-prefixed ("LV",
// uint16 BE length + bytes) scheme the session package uses for its own
// handshake messages, carrying the same fields. Only this process speaks
// this encoding to itself, so the substitution is internally consistent.

import (
	"encoding/binary"
	"fmt"
)

func putLV(buf []byte, v []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(v)))
	return append(buf, v...)
}

func readLV(buf []byte, off int) ([]byte, int, error) {
	if off+2 > len(buf) {
		return nil, 0, fmt.Errorf("mercury: truncated length prefix at offset %d", off)
	}
	n := int(binary.BigEndian.Uint16(buf[off : off+2]))
	off += 2
	if off+n > len(buf) {
		return nil, 0, fmt.Errorf("mercury: truncated value at offset %d (want %d bytes)", off, n)
	}
	return buf[off : off+n], off + n, nil
}

// encodeHeader serializes uri, method, status_code, content_type, and
// user_fields as LV fields, plus a fixed-width status code.
func encodeHeader(h Header) []byte {
	var buf []byte
	buf = putLV(buf, []byte(h.URI))
	buf = putLV(buf, []byte(h.Method))
	buf = binary.BigEndian.AppendUint32(buf, uint32(int32(h.StatusCode)))
	buf = putLV(buf, []byte(h.ContentType))

	buf = binary.BigEndian.AppendUint16(buf, uint16(len(h.UserFields)))
	for k, v := range h.UserFields {
		buf = putLV(buf, []byte(k))
		buf = putLV(buf, []byte(v))
	}
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	var h Header
	uri, off, err := readLV(buf, 0)
	if err != nil {
		return h, err
	}
	h.URI = string(uri)

	method, off, err := readLV(buf, off)
	if err != nil {
		return h, err
	}
	h.Method = Method(method)

	if off+4 > len(buf) {
		return h, fmt.Errorf("mercury: truncated status code at offset %d", off)
	}
	h.StatusCode = int32(binary.BigEndian.Uint32(buf[off : off+4]))
	off += 4

	contentType, off, err := readLV(buf, off)
	if err != nil {
		return h, err
	}
	h.ContentType = string(contentType)

	if off+2 > len(buf) {
		return h, fmt.Errorf("mercury: truncated user field count at offset %d", off)
	}
	count := int(binary.BigEndian.Uint16(buf[off : off+2]))
	off += 2

	if count > 0 {
		h.UserFields = make(map[string]string, count)
	}
	for i := 0; i < count; i++ {
		var k, v []byte
		k, off, err = readLV(buf, off)
		if err != nil {
			return h, err
		}
		v, off, err = readLV(buf, off)
		if err != nil {
			return h, err
		}
		h.UserFields[string(k)] = string(v)
	}

	return h, nil
}

// parseSubscriptions decodes a SUB response payload: a sequence of LV
// strings, one per concrete URI the server split the subscription into.
func parseSubscriptions(payload []byte) ([]string, error) {
	var out []string
	off := 0
	for off < len(payload) {
		v, next, err := readLV(payload, off)
		if err != nil {
			return nil, err
		}
		out = append(out, string(v))
		off = next
	}
	return out, nil
}
