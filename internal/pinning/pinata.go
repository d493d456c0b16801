package pinning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/nft-repin/internal/types"
)

// Pinata pins through Pinata's pinByHash API using a bearer JWT. Same
// capability set as the other providers but a different body field name
// ("hashToPin") and a list-based status lookup.
type Pinata struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewPinata creates a Pinata provider from a JWT bearer token
func NewPinata(token string) *Pinata {
	return &Pinata{
		token:   token,
		baseURL: "https://api.pinata.cloud",
		client:  newHTTPClient(),
	}
}

// Name returns the provider's service name
func (p *Pinata) Name() string { return "pinata" }

// pinataPinResponse is the pinByHash response shape
type pinataPinResponse struct {
	ID       string `json:"id"`
	IPFSHash string `json:"ipfsHash"`
	Status   string `json:"status"`
}

// Authenticate probes pinByHash with a well-known CID
func (p *Pinata) Authenticate(ctx context.Context) error {
	status, body, perr := do(ctx, p.client, p.Name(), request{
		method:   http.MethodPost,
		url:      p.baseURL + "/pinning/pinByHash",
		jsonBody: map[string]string{"hashToPin": authProbeCID},
		bearer:   p.token,
	})
	if perr != nil {
		return perr
	}
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusConflict:
		return nil
	}
	return classifyHTTP(p.Name(), status, string(body))
}

// Pin submits a pin-by-hash request for the CID
func (p *Pinata) Pin(ctx context.Context, cid string) (*PinReceipt, error) {
	status, body, perr := do(ctx, p.client, p.Name(), request{
		method:   http.MethodPost,
		url:      p.baseURL + "/pinning/pinByHash",
		jsonBody: map[string]string{"hashToPin": cid},
		bearer:   p.token,
	})
	if perr != nil {
		return nil, perr
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
		var resp pinataPinResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &PinError{Kind: ErrKindUnknown, Provider: p.Name(), Message: "unparseable pin response", Cause: err}
		}
		state := mapPinState(resp.Status)
		if state == types.PinStateUnknown {
			// pinByHash acknowledges with a queue entry; absence of a
			// status field still means the request was accepted.
			state = types.PinStateQueued
		}
		return &PinReceipt{
			Provider:  p.Name(),
			RequestID: resp.ID,
			CID:       cid,
			State:     state,
		}, nil
	case http.StatusConflict:
		return &PinReceipt{Provider: p.Name(), CID: cid, State: types.PinStatePinned}, nil
	}

	return nil, classifyHTTP(p.Name(), status, string(body))
}

// pinataListResponse is the pinList response shape
type pinataListResponse struct {
	Rows []struct {
		IPFSPinHash string `json:"ipfs_pin_hash"`
	} `json:"rows"`
}

// CheckStatus looks the CID up in the account's pin list
func (p *Pinata) CheckStatus(ctx context.Context, cid string) (types.PinState, error) {
	status, body, perr := do(ctx, p.client, p.Name(), request{
		method: http.MethodGet,
		url:    p.baseURL + "/data/pinList?hashContains=" + url.QueryEscape(cid),
		bearer: p.token,
	})
	if perr != nil {
		return types.PinStateUnknown, perr
	}
	if status != http.StatusOK {
		return types.PinStateUnknown, classifyHTTP(p.Name(), status, string(body))
	}

	var resp pinataListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return types.PinStateUnknown, &PinError{Kind: ErrKindUnknown, Provider: p.Name(), Message: "unparseable pin list", Cause: err}
	}
	for _, row := range resp.Rows {
		if row.IPFSPinHash == cid {
			return types.PinStatePinned, nil
		}
	}
	return types.PinStateUnknown, nil
}
