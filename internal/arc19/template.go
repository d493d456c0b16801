// Package arc19 reconstructs IPFS content identifiers from on-chain Algorand
// asset parameters following the ARC-19 templated URL convention.
//
// An ARC-19 asset publishes a URL of the form
//
//	template-ipfs://{ipfscid:1:raw:reserve:sha2-256}
//
// and stores the content hash in one of the asset's address fields. Decoding
// is a pure binary procedure: base32-decode the address, strip the Algorand
// checksum, wrap the digest in a multihash, and render a CIDv1.
package arc19

import (
	"regexp"
	"strconv"

	"github.com/nft-repin/internal/types"
)

// templatePattern matches the fixed ARC-19 template grammar.
// Any URL that does not match is not an ARC-19 asset.
var templatePattern = regexp.MustCompile(`^template-ipfs://\{ipfscid:(?P<version>\d+):(?P<codec>[\w-]+):(?P<field>\w+):(?P<hash>[\w-]+)\}`)

// DecodedTemplate is a parsed ARC-19 URL template. Immutable once parsed.
type DecodedTemplate struct {
	Version  int
	Codec    string
	Field    types.AddressRole
	HashFunc string
}

// ParseTemplate parses an on-chain URL string against the ARC-19 template
// grammar. A URL that does not match the grammar yields ErrKindNotArc19; a
// template naming an unknown address field yields ErrKindMissingField.
func ParseTemplate(url string) (*DecodedTemplate, error) {
	m := templatePattern.FindStringSubmatch(url)
	if m == nil {
		return nil, &DecodeError{
			Kind:    ErrKindNotArc19,
			Message: "url does not match the ARC-19 template grammar",
		}
	}

	version, err := strconv.Atoi(m[templatePattern.SubexpIndex("version")])
	if err != nil {
		return nil, &DecodeError{
			Kind:    ErrKindNotArc19,
			Message: "template version is not a number",
			Cause:   err,
		}
	}

	field := m[templatePattern.SubexpIndex("field")]
	role, ok := types.NormalizeRole(field)
	if !ok {
		return nil, &DecodeError{
			Kind:    ErrKindMissingField,
			Message: "template references unknown address field: " + field,
		}
	}

	return &DecodedTemplate{
		Version:  version,
		Codec:    m[templatePattern.SubexpIndex("codec")],
		Field:    role,
		HashFunc: m[templatePattern.SubexpIndex("hash")],
	}, nil
}
