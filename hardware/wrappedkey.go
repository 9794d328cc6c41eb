package hardware

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

// BinaryWrappedKeyParser parses wrapped-key containers in a
// length-prefixed binary layout: iv, transit key, secure key,
// authentication tag and description as 32-bit-length-prefixed fields,
// then the key format as a 32-bit value, then the serialized embedded
// authorization set. The canonical container format is DER-based and
// owned by the import spec; this layout stands in where both ends are
// under our control.
type BinaryWrappedKeyParser struct{}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if uint64(n) > uint64(r.Len()) {
		return nil, fmt.Errorf("field length %d exceeds input", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Parse extracts the container fields.
func (p *BinaryWrappedKeyParser) Parse(wrappedKeyBlob []byte) (*interfaces.WrappedKeyData, error) {
	r := bytes.NewReader(wrappedKeyBlob)
	out := &interfaces.WrappedKeyData{}

	var err error
	for _, field := range []*[]byte{&out.IV, &out.TransitKey, &out.SecureKey, &out.Tag, &out.Description} {
		if *field, err = readLenPrefixed(r); err != nil {
			return nil, fmt.Errorf("%w: wrapped key container: %v", interfaces.ErrInvalidArgument, err)
		}
	}

	var format uint32
	if err := binary.Read(r, binary.LittleEndian, &format); err != nil {
		return nil, fmt.Errorf("%w: wrapped key format: %v", interfaces.ErrInvalidArgument, err)
	}
	out.KeyFormat = interfaces.KeyFormat(format)

	if out.AuthList, err = interfaces.DeserializeSet(r); err != nil {
		return nil, fmt.Errorf("%w: wrapped key auth list: %v", interfaces.ErrInvalidArgument, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes in wrapped key container", interfaces.ErrInvalidArgument, r.Len())
	}
	return out, nil
}

// SerializeWrappedKey builds a container in the layout Parse expects.
// Used by provisioning tooling and tests.
func SerializeWrappedKey(data *interfaces.WrappedKeyData) []byte {
	var buf bytes.Buffer
	for _, field := range [][]byte{data.IV, data.TransitKey, data.SecureKey, data.Tag, data.Description} {
		binary.Write(&buf, binary.LittleEndian, uint32(len(field)))
		buf.Write(field)
	}
	binary.Write(&buf, binary.LittleEndian, uint32(data.KeyFormat))
	buf.Write(data.AuthList.Serialize())
	return buf.Bytes()
}
