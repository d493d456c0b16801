package pinning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/nft-repin/internal/types"
)

// pinsvcEndpoints maps service names to their standard pinning-service API
// base URLs
var pinsvcEndpoints = map[string]string{
	"web3.storage": "https://api.web3.storage",
	"nft.storage":  "https://api.nft.storage",
}

// PinningService speaks the standard IPFS pinning-service API. It covers
// web3.storage and nft.storage, which share the same wire contract and differ
// only in endpoint.
type PinningService struct {
	name    string
	token   string
	baseURL string
	client  *http.Client
}

// NewPinningService creates a standard pinning-service provider. The name
// must be one of the known pinsvc endpoints.
func NewPinningService(name, token string) (*PinningService, error) {
	base, ok := pinsvcEndpoints[name]
	if !ok {
		return nil, &PinError{Kind: ErrKindRejected, Provider: name, Message: "no pinning service endpoint for " + name}
	}
	return &PinningService{
		name:    name,
		token:   token,
		baseURL: base,
		client:  newHTTPClient(),
	}, nil
}

// Name returns the provider's service name
func (p *PinningService) Name() string { return p.name }

type pinsvcStatusResponse struct {
	RequestID string `json:"requestid"`
	Status    string `json:"status"`
	Pin       struct {
		CID string `json:"cid"`
	} `json:"pin"`
}

type pinsvcListResponse struct {
	Count   int                    `json:"count"`
	Results []pinsvcStatusResponse `json:"results"`
}

// Authenticate probes the pin listing with the smallest allowed page
func (p *PinningService) Authenticate(ctx context.Context) error {
	status, body, perr := do(ctx, p.client, p.name, request{
		method: http.MethodGet,
		url:    p.baseURL + "/pins?limit=1",
		bearer: p.token,
	})
	if perr != nil {
		return perr
	}
	if status == http.StatusOK {
		return nil
	}
	return classifyHTTP(p.name, status, string(body))
}

// Pin submits the CID for pinning
func (p *PinningService) Pin(ctx context.Context, cid string) (*PinReceipt, error) {
	status, body, perr := do(ctx, p.client, p.name, request{
		method:   http.MethodPost,
		url:      p.baseURL + "/pins",
		jsonBody: map[string]string{"cid": cid},
		bearer:   p.token,
	})
	if perr != nil {
		return nil, perr
	}

	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		var resp pinsvcStatusResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &PinError{Kind: ErrKindUnknown, Provider: p.name, Message: "unparseable pin response", Cause: err}
		}
		return &PinReceipt{
			Provider:  p.name,
			RequestID: resp.RequestID,
			CID:       cid,
			State:     mapPinState(resp.Status),
		}, nil
	case http.StatusConflict:
		return &PinReceipt{Provider: p.name, CID: cid, State: types.PinStatePinned}, nil
	}

	return nil, classifyHTTP(p.name, status, string(body))
}

// CheckStatus queries the pin listing filtered by CID
func (p *PinningService) CheckStatus(ctx context.Context, cid string) (types.PinState, error) {
	query := url.Values{}
	query.Set("cid", cid)

	status, body, perr := do(ctx, p.client, p.name, request{
		method: http.MethodGet,
		url:    p.baseURL + "/pins?" + query.Encode(),
		bearer: p.token,
	})
	if perr != nil {
		return types.PinStateUnknown, perr
	}
	if status != http.StatusOK {
		return types.PinStateUnknown, classifyHTTP(p.name, status, string(body))
	}

	var resp pinsvcListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return types.PinStateUnknown, &PinError{Kind: ErrKindUnknown, Provider: p.name, Message: "unparseable pin list", Cause: err}
	}
	for _, entry := range resp.Results {
		if entry.Pin.CID == cid {
			return mapPinState(entry.Status), nil
		}
	}
	return types.PinStateUnknown, nil
}
