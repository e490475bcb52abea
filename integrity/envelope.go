package integrity

import (
	"bytes"
	"strings"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/credential/common/signable"
)

const separator = '\n'

// EncodeBlob joins a payload and its signed digest as stored in the blob store.
func EncodeBlob(payload []byte, signedHash *signable.Signed) ([]byte, error) {
	raw, err := signedHash.Marshal()
	if err != nil {
		return nil, err
	}

	blob := make([]byte, 0, len(payload)+1+len(raw))
	blob = append(blob, payload...)
	blob = append(blob, separator)

	return append(blob, raw...), nil
}

// DecodeBlob splits a blob at its last newline into payload and signed digest.
func DecodeBlob(blob []byte) ([]byte, *signable.Signed, error) {
	i := bytes.LastIndexByte(blob, separator)
	if i < 0 {
		return nil, nil, fedtrust.NewValidationError(fedtrust.Malformed, "blob has no signed digest")
	}

	signedHash, err := signable.Parse(blob[i+1:])
	if err != nil {
		return nil, nil, err
	}

	return blob[:i], signedHash, nil
}

// EncodePointer builds the ledger payload data: the serialized credential and the
// content address of the blob.
func EncodePointer(rawVC []byte, address string) string {
	return string(rawVC) + string(separator) + address
}

// DecodePointer splits pointer data at its last newline.
func DecodePointer(data string) ([]byte, string, error) {
	i := strings.LastIndexByte(data, separator)
	if i <= 0 || i == len(data)-1 {
		return nil, "", fedtrust.NewValidationError(fedtrust.Malformed, "pointer is not <credential>\\n<address>")
	}

	return []byte(data[:i]), data[i+1:], nil
}
