package arc19

import (
	"bytes"
	"crypto/sha512"
	"encoding/base32"
	"strings"
)

const (
	// digestLen is the length of the public key hash inside an Algorand address
	digestLen = 32
	// checksumLen is the length of the address checksum suffix
	checksumLen = 4
	// encodedAddressLen is the canonical length of an Algorand address string
	encodedAddressLen = 58
)

// DecodeAddress decodes an Algorand address string to its raw 32-byte public
// key hash. Addresses are RFC 4648 base32 without padding, encoding 36 bytes:
// the 32-byte hash followed by a 4-byte SHA-512/256 checksum. The checksum is
// verified and stripped.
func DecodeAddress(address string) ([]byte, error) {
	raw, err := base32.StdEncoding.DecodeString(padBase32(address))
	if err != nil {
		return nil, &DecodeError{
			Kind:    ErrKindInvalidEncoding,
			Message: "address is not valid base32",
			Cause:   err,
		}
	}

	if len(raw) != digestLen+checksumLen {
		return nil, &DecodeError{
			Kind:    ErrKindInvalidEncoding,
			Message: "decoded address has wrong length",
		}
	}

	digest := raw[:digestLen]
	sum := sha512.Sum512_256(digest)
	if !bytes.Equal(raw[digestLen:], sum[len(sum)-checksumLen:]) {
		return nil, &DecodeError{
			Kind:    ErrKindInvalidEncoding,
			Message: "address checksum mismatch",
		}
	}

	return digest, nil
}

// EncodeAddress renders a 32-byte public key hash as an Algorand address
// string, appending the SHA-512/256 checksum. The inverse of DecodeAddress;
// used by the synthetic round-trip tests and nowhere on the decode path.
func EncodeAddress(digest []byte) string {
	sum := sha512.Sum512_256(digest)
	raw := make([]byte, 0, digestLen+checksumLen)
	raw = append(raw, digest...)
	raw = append(raw, sum[len(sum)-checksumLen:]...)
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
}

// ValidAddress reports whether a string is a well-formed Algorand address.
// Used by the indexer client to reject bad input before any network call.
func ValidAddress(address string) bool {
	if len(address) != encodedAddressLen {
		return false
	}
	_, err := DecodeAddress(address)
	return err == nil
}

// padBase32 pads a base32 string with '=' to a multiple of 8 characters so
// the standard-library decoder accepts it.
func padBase32(s string) string {
	if rem := len(s) % 8; rem != 0 {
		return s + strings.Repeat("=", 8-rem)
	}
	return s
}
