package pinning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/nft-repin/internal/types"
)

// Infura pins through the Infura IPFS node API. Auth-scheme variant: basic
// auth with project id and secret, CID carried as a query parameter rather
// than a JSON body.
type Infura struct {
	projectID string
	secret    string
	baseURL   string
	client    *http.Client
}

// NewInfura creates an Infura provider from project credentials
func NewInfura(projectID, secret string) *Infura {
	return &Infura{
		projectID: projectID,
		secret:    secret,
		baseURL:   "https://ipfs.infura.io:5001",
		client:    newHTTPClient(),
	}
}

// Name returns the provider's service name
func (i *Infura) Name() string { return "infura" }

// infuraPinAddResponse is the pin/add response shape
type infuraPinAddResponse struct {
	Pins []string `json:"Pins"`
}

// infuraPinLsResponse is the pin/ls response shape
type infuraPinLsResponse struct {
	Keys map[string]struct {
		Type string `json:"Type"`
	} `json:"Keys"`
}

// Authenticate probes pin/add with a well-known CID
func (i *Infura) Authenticate(ctx context.Context) error {
	status, body, perr := i.post(ctx, "/api/v0/pin/add", authProbeCID)
	if perr != nil {
		return perr
	}
	switch status {
	case http.StatusOK, http.StatusConflict:
		return nil
	}
	return classifyHTTP(i.Name(), status, string(body))
}

// Pin pins the CID on the Infura node
func (i *Infura) Pin(ctx context.Context, cid string) (*PinReceipt, error) {
	status, body, perr := i.post(ctx, "/api/v0/pin/add", cid)
	if perr != nil {
		return nil, perr
	}

	switch status {
	case http.StatusOK:
		var resp infuraPinAddResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, &PinError{Kind: ErrKindUnknown, Provider: i.Name(), Message: "unparseable pin response", Cause: err}
		}
		return &PinReceipt{Provider: i.Name(), CID: cid, State: types.PinStatePinned}, nil
	case http.StatusConflict:
		return &PinReceipt{Provider: i.Name(), CID: cid, State: types.PinStatePinned}, nil
	}

	return nil, classifyHTTP(i.Name(), status, string(body))
}

// CheckStatus asks the node whether it holds a pin for the CID
func (i *Infura) CheckStatus(ctx context.Context, cid string) (types.PinState, error) {
	status, body, perr := i.post(ctx, "/api/v0/pin/ls", cid)
	if perr != nil {
		return types.PinStateUnknown, perr
	}
	if status != http.StatusOK {
		return types.PinStateUnknown, classifyHTTP(i.Name(), status, string(body))
	}

	var resp infuraPinLsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return types.PinStateUnknown, &PinError{Kind: ErrKindUnknown, Provider: i.Name(), Message: "unparseable pin list", Cause: err}
	}
	if _, ok := resp.Keys[cid]; ok {
		return types.PinStatePinned, nil
	}
	return types.PinStateUnknown, nil
}

// post issues a node-API call with the CID as the arg query parameter
func (i *Infura) post(ctx context.Context, path, cid string) (int, []byte, *PinError) {
	return do(ctx, i.client, i.Name(), request{
		method:   http.MethodPost,
		url:      i.baseURL + path + "?arg=" + url.QueryEscape(cid),
		username: i.projectID,
		password: i.secret,
	})
}
