// Package pinning dispatches pin requests to concrete IPFS pinning services
// behind one capability interface. Each provider speaks its own wire
// contract; all of them normalize failures into the PinError taxonomy.
// Providers perform no retries themselves; that policy lives in the
// migration engine.
package pinning

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nft-repin/internal/types"
)

// authProbeCID is a small, widely-replicated CID used to validate
// credentials before a bulk run. A 409 (already pinned) also proves the
// credentials work.
const authProbeCID = "QmYjtig7VJQ6XsnUjqqJvj7QaMcCAwtrgNdahSiFofrE7o"

// PinReceipt is the destination provider's acknowledgement of a pin request
type PinReceipt struct {
	Provider  string         `json:"provider"`
	RequestID string         `json:"requestId,omitempty"`
	CID       string         `json:"cid"`
	State     types.PinState `json:"state"`
}

// Provider is the capability set every pinning backend exposes. Adding a
// provider means implementing these three operations; callers never change.
type Provider interface {
	// Name returns the provider's service name
	Name() string
	// Authenticate validates the credentials with a cheap probe request
	Authenticate(ctx context.Context) error
	// Pin asks the provider to retain the content behind a CID
	Pin(ctx context.Context, cid string) (*PinReceipt, error)
	// CheckStatus reports the provider's view of a previously pinned CID
	CheckStatus(ctx context.Context, cid string) (types.PinState, error)
}

// Credentials are supplied by the caller per request and never persisted.
// Bearer-token services use Token; basic-auth services use Key/Secret.
type Credentials struct {
	Token  string
	Key    string
	Secret string
}

// New constructs a provider by service name. Display suffixes such as
// "(FREE)" are tolerated and stripped.
func New(service string, creds Credentials) (Provider, error) {
	parts := strings.Fields(service)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty pinning service name")
	}
	switch name := strings.ToLower(parts[0]); name {
	case "filebase":
		return NewFilebase(creds.Token), nil
	case "pinata":
		return NewPinata(creds.Token), nil
	case "infura":
		return NewInfura(creds.Key, creds.Secret), nil
	case "4everland":
		return NewFourEverland(creds.Token), nil
	case "web3.storage", "nft.storage":
		return NewPinningService(name, creds.Token)
	default:
		return nil, fmt.Errorf("unsupported pinning service: %s", service)
	}
}

// Supported lists the service names New accepts
func Supported() []string {
	return []string{"filebase", "pinata", "infura", "4everland", "web3.storage", "nft.storage"}
}

// newHTTPClient returns the transport used by all providers
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// mapPinState normalizes provider status strings onto the shared state set
func mapPinState(s string) types.PinState {
	switch strings.ToLower(s) {
	case "pinned":
		return types.PinStatePinned
	case "pinning", "processing":
		return types.PinStatePinning
	case "queued", "searching":
		return types.PinStateQueued
	case "failed", "expired":
		return types.PinStateFailed
	default:
		return types.PinStateUnknown
	}
}
