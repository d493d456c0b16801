package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
)

// request describes one provider HTTP call
type request struct {
	method   string
	url      string
	jsonBody interface{}
	bearer   string
	username string
	password string
}

// do executes a provider request and returns the status code and body.
// Transport-level failures come back as Unreachable PinErrors; HTTP-level
// classification is left to the caller, which knows which statuses are
// success for its endpoint.
func do(ctx context.Context, client *http.Client, provider string, r request) (int, []byte, *PinError) {
	var body io.Reader
	if r.jsonBody != nil {
		encoded, err := json.Marshal(r.jsonBody)
		if err != nil {
			return 0, nil, &PinError{Kind: ErrKindUnknown, Provider: provider, Message: "failed to encode request body", Cause: err}
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return 0, nil, &PinError{Kind: ErrKindUnknown, Provider: provider, Message: "failed to create request", Cause: err}
	}
	if r.jsonBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}
	if r.username != "" || r.password != "" {
		req.SetBasicAuth(r.username, r.password)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, transportError(provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, transportError(provider, err)
	}

	return resp.StatusCode, respBody, nil
}
