package arc19

import (
	"strings"

	"github.com/nft-repin/internal/types"
)

// Decode reconstructs the CID an ARC-19 asset's metadata URL resolves to,
// purely from the asset's on-chain URL template and address fields.
//
// Identical inputs always yield the identical CID string; malformed input
// always yields a *DecodeError, never a guessed CID.
func Decode(url string, addressFields map[types.AddressRole]string) (string, error) {
	tmpl, err := ParseTemplate(url)
	if err != nil {
		return "", err
	}

	if tmpl.Version != 1 {
		return "", &DecodeError{
			Kind:    ErrKindUnsupportedVersion,
			Message: "only CID version 1 is supported",
		}
	}

	address, ok := addressFields[tmpl.Field]
	if !ok || address == "" {
		return "", &DecodeError{
			Kind:    ErrKindMissingField,
			Message: "asset has no " + string(tmpl.Field) + " address",
		}
	}

	digest, err := DecodeAddress(address)
	if err != nil {
		return "", err
	}

	multihash, err := newMultihash(tmpl.HashFunc, digest)
	if err != nil {
		return "", err
	}

	return encodeCIDv1(codecCode(tmpl.Codec), multihash), nil
}

// ExtractCID recovers a CID from an asset URL of either supported shape:
// a strict ARC-19 template (decoded via Decode) or a plain ipfs:// URL whose
// CID is taken verbatim with any sub-path or fragment stripped.
func ExtractCID(url string, addressFields map[types.AddressRole]string) (string, error) {
	if cid, ok := plainIPFSCID(url); ok {
		return cid, nil
	}
	return Decode(url, addressFields)
}

// plainIPFSCID extracts the bare CID from an ipfs://CID[/path][#fragment] URL
func plainIPFSCID(url string) (string, bool) {
	rest, ok := strings.CutPrefix(url, "ipfs://")
	if !ok {
		return "", false
	}
	rest, _, _ = strings.Cut(rest, "#")
	rest, _, _ = strings.Cut(rest, "/")
	if rest == "" {
		return "", false
	}
	return rest, true
}
