package entry

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// RecordVersion is the current on-disk record format version. A
// format upgrade is permitted by rewriting the cache offline; readers
// reject any version they don't recognize rather than guess.
const RecordVersion byte = 1

// Encode serializes e into the cache's record format: a version byte,
// followed by length-prefixed attributes (name, then values), followed by
// the sorted module-present set. All integers are little-endian uint32.
//
// Round-tripping any entry through Encode/Decode yields a byte-equal
// record, since attribute and present-set iteration order is always
// sorted.
func Encode(e *Entry) []byte {
	var buf bytes.Buffer
	buf.WriteByte(RecordVersion)

	names := e.AttributeNames()
	writeUint32(&buf, uint32(len(names)))
	for _, key := range names {
		attr := e.attributes[key]
		writeLenPrefixed(&buf, []byte(attr.Name))
		writeUint32(&buf, uint32(len(attr.Values)))
		for _, v := range attr.Values {
			writeLenPrefixed(&buf, v)
		}
	}

	present := e.PresentNames()
	writeUint32(&buf, uint32(len(present)))
	for _, name := range present {
		writeLenPrefixed(&buf, []byte(name))
	}

	return buf.Bytes()
}

// Decode parses a record produced by Encode. It returns an error wrapping
// ErrUnsupportedVersion or ErrTruncatedRecord on malformed input; the
// cache surfaces either as CACHE_CORRUPTION.
func Decode(dn DN, data []byte) (*Entry, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: missing version byte", ErrTruncatedRecord)
	}
	if version != RecordVersion {
		return nil, fmt.Errorf("%w: record version %d, expected %d", ErrUnsupportedVersion, version, RecordVersion)
	}

	e := New(dn)

	attrCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < attrCount; i++ {
		name, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		valueCount, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		values := make([][]byte, 0, valueCount)
		for j := uint32(0); j < valueCount; j++ {
			v, err := readLenPrefixed(r)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		e.attributes[normalizeAttrName(string(name))] = &Attribute{Name: string(name), Values: values}
	}

	presentCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < presentCount; i++ {
		name, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		e.present[string(name)] = struct{}{}
	}

	return e, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeLenPrefixed(buf *bytes.Buffer, data []byte) {
	writeUint32(buf, uint32(len(data)))
	buf.Write(data)
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTruncatedRecord, err)
	}
	return binary.LittleEndian.Uint32(tmp[:]), nil
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	length, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTruncatedRecord, err)
		}
	}
	return buf, nil
}
