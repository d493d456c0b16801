package arc19

import "encoding/base32"

// Multicodec content type codes used by ARC-19 assets.
const (
	codecRaw     = 0x55
	codecDagPB   = 0x70
	codecDagCBOR = 0x71
)

// Multihash function codes.
const (
	mhSha2_256    = 0x12
	mhSha2_256Len = 0x20
)

// cidBase32 is the multibase base32 encoding (RFC 4648 lowercase, no padding)
// used for the canonical string form of a CIDv1.
var cidBase32 = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// codecCode maps an ARC-19 template codec name to its multicodec byte.
// Unknown codec names fall back to raw, matching how wallets and explorers
// resolve these templates in practice.
func codecCode(codec string) byte {
	switch codec {
	case "raw":
		return codecRaw
	case "dag-pb":
		return codecDagPB
	case "dag-cbor":
		return codecDagCBOR
	default:
		return codecRaw
	}
}

// newMultihash wraps a raw digest in multihash framing for the named hash
// function. Only sha2-256 over 32-byte digests is supported; anything else
// is an UnsupportedHash failure.
func newMultihash(hashFunc string, digest []byte) ([]byte, error) {
	switch hashFunc {
	case "sha2-256":
		if len(digest) != mhSha2_256Len {
			return nil, &DecodeError{
				Kind:    ErrKindInvalidEncoding,
				Message: "sha2-256 digest must be 32 bytes",
			}
		}
		mh := make([]byte, 0, 2+len(digest))
		mh = append(mh, mhSha2_256, mhSha2_256Len)
		mh = append(mh, digest...)
		return mh, nil
	default:
		return nil, &DecodeError{
			Kind:    ErrKindUnsupportedHash,
			Message: "unsupported hash function: " + hashFunc,
		}
	}
}

// encodeCIDv1 renders a version-1 CID from a codec byte and a multihash.
// The binary layout is 0x01 || codec || multihash; the canonical string form
// is the multibase base32 encoding prefixed with 'b'.
func encodeCIDv1(codec byte, multihash []byte) string {
	raw := make([]byte, 0, 2+len(multihash))
	raw = append(raw, 0x01, codec)
	raw = append(raw, multihash...)
	return "b" + cidBase32.EncodeToString(raw)
}
