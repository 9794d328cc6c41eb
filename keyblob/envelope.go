package keyblob

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ruteri/tee-keymaster-core/interfaces"
)

// Envelope format discriminators. New blobs are always produced in the
// authenticated GCM format; the legacy format survives only on the
// decrypt path for blobs created before the format change.
const (
	FormatLegacy            byte = 0
	FormatGCMWithSwEnforced byte = 1
)

// Blobs created through the compatibility shim carry a fixed prefix: the
// 7-byte magic followed by one key-type byte. Type 0 marks a hardware
// blob whose prefix is stripped before parsing; type 1 marks a
// software-emulated key this implementation does not support.
var keystoreBlobMagic = []byte("pKMblob")

const (
	keystoreKeyTypeOffset  = 7
	keystoreBlobPrefixSize = keystoreKeyTypeOffset + 1

	keystoreKeyTypeHardware byte = 0
	keystoreKeyTypeSoftware byte = 1
)

// EncryptedKey is the ciphertext portion of a key blob.
type EncryptedKey struct {
	Format     byte
	Nonce      []byte
	Ciphertext []byte
	Tag        []byte
}

// Envelope is a fully deserialized key blob: the encrypted key material
// plus the plaintext-but-authenticated enforcement sets.
type Envelope struct {
	EncryptedKey
	HwEnforced *interfaces.Set
	SwEnforced *interfaces.Set
}

func writeField(buf *bytes.Buffer, data []byte) {
	binary.Write(buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
}

func readField(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if uint64(n) > uint64(r.Len()) {
		return nil, fmt.Errorf("field length %d exceeds remaining input", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Serialize encodes the envelope: format byte, then length-prefixed
// nonce, ciphertext and tag, then the two serialized enforcement sets.
func (e *Envelope) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteByte(e.Format)
	writeField(&buf, e.Nonce)
	writeField(&buf, e.Ciphertext)
	writeField(&buf, e.Tag)
	buf.Write(e.HwEnforced.Serialize())
	buf.Write(e.SwEnforced.Serialize())
	return buf.Bytes()
}

// Deserialize parses a serialized envelope. All malformations map to
// ErrInvalidKeyBlob.
func Deserialize(blob []byte) (*Envelope, error) {
	r := bytes.NewReader(blob)

	format, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: empty blob", interfaces.ErrInvalidKeyBlob)
	}
	if format != FormatLegacy && format != FormatGCMWithSwEnforced {
		return nil, fmt.Errorf("%w: unknown envelope format %d", interfaces.ErrInvalidKeyBlob, format)
	}

	e := &Envelope{EncryptedKey: EncryptedKey{Format: format}}
	if e.Nonce, err = readField(r); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", interfaces.ErrInvalidKeyBlob, err)
	}
	if e.Ciphertext, err = readField(r); err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", interfaces.ErrInvalidKeyBlob, err)
	}
	if e.Tag, err = readField(r); err != nil {
		return nil, fmt.Errorf("%w: tag: %v", interfaces.ErrInvalidKeyBlob, err)
	}
	if e.HwEnforced, err = interfaces.DeserializeSet(r); err != nil {
		return nil, fmt.Errorf("%w: hw_enforced: %v", interfaces.ErrInvalidKeyBlob, err)
	}
	if e.SwEnforced, err = interfaces.DeserializeSet(r); err != nil {
		return nil, fmt.Errorf("%w: sw_enforced: %v", interfaces.ErrInvalidKeyBlob, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", interfaces.ErrInvalidKeyBlob, r.Len())
	}
	return e, nil
}
