package pinning

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nft-repin/internal/types"
)

// Filebase pins through the Filebase IPFS pinning API using a bearer token.
// This is the reference provider implementation: body is {"cid": ...} and
// the response carries the assigned request id.
type Filebase struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewFilebase creates a Filebase provider from a bearer token
func NewFilebase(token string) *Filebase {
	return &Filebase{
		token:   token,
		baseURL: "https://api.filebase.io",
		client:  newHTTPClient(),
	}
}

// Name returns the provider's service name
func (f *Filebase) Name() string { return "filebase" }

// filebasePinResponse is the pin endpoint's response shape
type filebasePinResponse struct {
	RequestID string `json:"requestid"`
	Status    string `json:"status"`
	Pin       struct {
		CID string `json:"cid"`
	} `json:"pin"`
}

// Authenticate probes the pin endpoint with a well-known CID. A 409 means
// the CID is already pinned under this account, which also proves the token.
func (f *Filebase) Authenticate(ctx context.Context) error {
	status, body, perr := do(ctx, f.client, f.Name(), request{
		method:   http.MethodPost,
		url:      f.baseURL + "/v1/ipfs/pins",
		jsonBody: map[string]string{"cid": authProbeCID},
		bearer:   f.token,
	})
	if perr != nil {
		return perr
	}
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted, http.StatusConflict:
		return nil
	}
	return classifyHTTP(f.Name(), status, string(body))
}

// Pin submits a pin request for the CID
func (f *Filebase) Pin(ctx context.Context, cid string) (*PinReceipt, error) {
	status, body, perr := do(ctx, f.client, f.Name(), request{
		method:   http.MethodPost,
		url:      f.baseURL + "/v1/ipfs/pins",
		jsonBody: map[string]string{"cid": cid},
		bearer:   f.token,
	})
	if perr != nil {
		return nil, perr
	}

	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		var resp filebasePinResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &PinError{Kind: ErrKindUnknown, Provider: f.Name(), Message: "unparseable pin response", Cause: err}
		}
		return &PinReceipt{
			Provider:  f.Name(),
			RequestID: resp.RequestID,
			CID:       cid,
			State:     mapPinState(resp.Status),
		}, nil
	case http.StatusConflict:
		// Already pinned under this account.
		return &PinReceipt{Provider: f.Name(), CID: cid, State: types.PinStatePinned}, nil
	}

	return nil, classifyHTTP(f.Name(), status, string(body))
}

// CheckStatus reports the pin state for a CID. A 404 means the provider has
// no record of the pin, reported as unknown rather than an error.
func (f *Filebase) CheckStatus(ctx context.Context, cid string) (types.PinState, error) {
	status, body, perr := do(ctx, f.client, f.Name(), request{
		method: http.MethodGet,
		url:    f.baseURL + "/v1/ipfs/pins/" + cid,
		bearer: f.token,
	})
	if perr != nil {
		return types.PinStateUnknown, perr
	}

	switch status {
	case http.StatusOK:
		var resp filebasePinResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return types.PinStateUnknown, &PinError{Kind: ErrKindUnknown, Provider: f.Name(), Message: "unparseable status response", Cause: err}
		}
		return mapPinState(resp.Status), nil
	case http.StatusNotFound:
		return types.PinStateUnknown, nil
	}

	return types.PinStateUnknown, classifyHTTP(f.Name(), status, string(body))
}
