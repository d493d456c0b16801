package pinning

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nft-repin/internal/types"
)

// FourEverland pins through the 4everland pinning endpoint. The pin call
// follows the standard pinning-service shape, but status lookup goes through
// the paginated pin listing because per-CID lookup keys on request id.
type FourEverland struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewFourEverland creates a 4everland provider from a bearer token
func NewFourEverland(token string) *FourEverland {
	return &FourEverland{
		token:   token,
		baseURL: "https://api.4everland.dev",
		client:  newHTTPClient(),
	}
}

// Name returns the provider's service name
func (f *FourEverland) Name() string { return "4everland" }

type fourEverlandPinResponse struct {
	RequestID string `json:"requestid"`
	Status    string `json:"status"`
	Pin       struct {
		CID string `json:"cid"`
	} `json:"pin"`
}

type fourEverlandListResponse struct {
	Count   int                       `json:"count"`
	Results []fourEverlandPinResponse `json:"results"`
}

// Authenticate probes the pin listing, which requires a valid token
func (f *FourEverland) Authenticate(ctx context.Context) error {
	status, body, perr := do(ctx, f.client, f.Name(), request{
		method: http.MethodGet,
		url:    f.baseURL + "/pins?limit=1",
		bearer: f.token,
	})
	if perr != nil {
		return perr
	}
	if status == http.StatusOK {
		return nil
	}
	return classifyHTTP(f.Name(), status, string(body))
}

// Pin submits the CID for pinning
func (f *FourEverland) Pin(ctx context.Context, cid string) (*PinReceipt, error) {
	status, body, perr := do(ctx, f.client, f.Name(), request{
		method:   http.MethodPost,
		url:      f.baseURL + "/pins",
		jsonBody: map[string]string{"cid": cid},
		bearer:   f.token,
	})
	if perr != nil {
		return nil, perr
	}

	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		var resp fourEverlandPinResponse
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
		return &PinReceipt{Provider: f.Name(), CID: cid, State: types.PinStatePinned}, nil
	}

	return nil, classifyHTTP(f.Name(), status, string(body))
}

// CheckStatus walks the pin listing filtered by CID
func (f *FourEverland) CheckStatus(ctx context.Context, cid string) (types.PinState, error) {
	query := url.Values{}
	query.Set("cid", cid)
	query.Set("limit", "1000")

	status, body, perr := do(ctx, f.client, f.Name(), request{
		method: http.MethodGet,
		url:    fmt.Sprintf("%s/pins?%s", f.baseURL, query.Encode()),
		bearer: f.token,
	})
	if perr != nil {
		return types.PinStateUnknown, perr
	}
	if status != http.StatusOK {
		return types.PinStateUnknown, classifyHTTP(f.Name(), status, string(body))
	}

	var resp fourEverlandListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return types.PinStateUnknown, &PinError{Kind: ErrKindUnknown, Provider: f.Name(), Message: "unparseable pin list", Cause: err}
	}
	for _, entry := range resp.Results {
		if entry.Pin.CID == cid {
			return mapPinState(entry.Status), nil
		}
	}
	return types.PinStateUnknown, nil
}
