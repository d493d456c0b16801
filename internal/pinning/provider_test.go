package pinning

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nft-repin/internal/types"
)

const testCID = "bafkreiaaaebagbafaydqqcikbmga2dqpcaireeyuculbogazdinryhi6d4"

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		service  string
		wantName string
		wantErr  bool
	}{
		{name: "filebase", service: "filebase", wantName: "filebase"},
		{name: "pinata", service: "pinata", wantName: "pinata"},
		{name: "infura", service: "infura", wantName: "infura"},
		{name: "4everland", service: "4everland", wantName: "4everland"},
		{name: "web3.storage", service: "web3.storage", wantName: "web3.storage"},
		{name: "nft.storage", service: "nft.storage", wantName: "nft.storage"},
		{name: "case insensitive", service: "Pinata", wantName: "pinata"},
		{name: "display suffix stripped", service: "filebase (FREE)", wantName: "filebase"},
		{name: "unsupported", service: "dropbox", wantErr: true},
		{name: "empty", service: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.service, Credentials{Token: "tok", Key: "k", Secret: "s"})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
}

func TestSupported(t *testing.T) {
	for _, name := range Supported() {
		p, err := New(name, Credentials{Token: "tok", Key: "k", Secret: "s"})
		require.NoError(t, err, name)
		assert.Equal(t, name, p.Name())
	}
}

func TestFilebasePin(t *testing.T) {
	var gotBody map[string]string
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/ipfs/pins", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"requestid": "req-1",
			"status":    "queued",
			"pin":       map[string]string{"cid": testCID},
		})
	}))
	defer server.Close()

	f := NewFilebase("secret-token")
	f.baseURL = server.URL

	receipt, err := f.Pin(context.Background(), testCID)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, map[string]string{"cid": testCID}, gotBody)
	assert.Equal(t, "filebase", receipt.Provider)
	assert.Equal(t, "req-1", receipt.RequestID)
	assert.Equal(t, testCID, receipt.CID)
	assert.Equal(t, types.PinStateQueued, receipt.State)
}

func TestFilebasePinAlreadyPinned(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	f := NewFilebase("tok")
	f.baseURL = server.URL

	receipt, err := f.Pin(context.Background(), testCID)
	require.NoError(t, err)
	assert.Equal(t, types.PinStatePinned, receipt.State)
}

func TestFilebaseCheckStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/ipfs/pins/"+testCID, r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"requestid": "req-1",
			"status":    "pinned",
		})
	}))
	defer server.Close()

	f := NewFilebase("tok")
	f.baseURL = server.URL

	state, err := f.CheckStatus(context.Background(), testCID)
	require.NoError(t, err)
	assert.Equal(t, types.PinStatePinned, state)
}

func TestFilebaseCheckStatusNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewFilebase("tok")
	f.baseURL = server.URL

	state, err := f.CheckStatus(context.Background(), testCID)
	require.NoError(t, err)
	assert.Equal(t, types.PinStateUnknown, state)
}

func TestPinataPin(t *testing.T) {
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pinning/pinByHash", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]string{
			"id":       "pinata-1",
			"ipfsHash": testCID,
		})
	}))
	defer server.Close()

	p := NewPinata("jwt")
	p.baseURL = server.URL

	receipt, err := p.Pin(context.Background(), testCID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"hashToPin": testCID}, gotBody)
	assert.Equal(t, "pinata-1", receipt.RequestID)
	// pinByHash omits a status field; an accepted request is queued.
	assert.Equal(t, types.PinStateQueued, receipt.State)
}

func TestPinataCheckStatus(t *testing.T) {
	tests := []struct {
		name string
		rows []map[string]string
		want types.PinState
	}{
		{
			name: "pinned",
			rows: []map[string]string{{"ipfs_pin_hash": testCID}},
			want: types.PinStatePinned,
		},
		{
			name: "absent",
			rows: []map[string]string{},
			want: types.PinStateUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/data/pinList", r.URL.Path)
				require.Equal(t, testCID, r.URL.Query().Get("hashContains"))
				json.NewEncoder(w).Encode(map[string]interface{}{"rows": tt.rows})
			}))
			defer server.Close()

			p := NewPinata("jwt")
			p.baseURL = server.URL

			state, err := p.CheckStatus(context.Background(), testCID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestInfuraPin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v0/pin/add", r.URL.Path)
		require.Equal(t, testCID, r.URL.Query().Get("arg"))
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "project", user)
		require.Equal(t, "secret", pass)
		json.NewEncoder(w).Encode(map[string][]string{"Pins": {testCID}})
	}))
	defer server.Close()

	i := NewInfura("project", "secret")
	i.baseURL = server.URL

	receipt, err := i.Pin(context.Background(), testCID)
	require.NoError(t, err)
	assert.Equal(t, types.PinStatePinned, receipt.State)
}

func TestInfuraCheckStatus(t *testing.T) {
	tests := []struct {
		name string
		keys map[string]interface{}
		want types.PinState
	}{
		{
			name: "present",
			keys: map[string]interface{}{testCID: map[string]string{"Type": "recursive"}},
			want: types.PinStatePinned,
		},
		{
			name: "absent",
			keys: map[string]interface{}{},
			want: types.PinStateUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/api/v0/pin/ls", r.URL.Path)
				json.NewEncoder(w).Encode(map[string]interface{}{"Keys": tt.keys})
			}))
			defer server.Close()

			i := NewInfura("project", "secret")
			i.baseURL = server.URL

			state, err := i.CheckStatus(context.Background(), testCID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestFourEverlandPin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pins", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, testCID, body["cid"])
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"requestid": "4ever-1",
			"status":    "queued",
			"pin":       map[string]string{"cid": testCID},
		})
	}))
	defer server.Close()

	f := NewFourEverland("tok")
	f.baseURL = server.URL

	receipt, err := f.Pin(context.Background(), testCID)
	require.NoError(t, err)
	assert.Equal(t, "4ever-1", receipt.RequestID)
	assert.Equal(t, types.PinStateQueued, receipt.State)
}

func TestFourEverlandCheckStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, testCID, r.URL.Query().Get("cid"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count": 1,
			"results": []map[string]interface{}{
				{"requestid": "4ever-1", "status": "pinned", "pin": map[string]string{"cid": testCID}},
			},
		})
	}))
	defer server.Close()

	f := NewFourEverland("tok")
	f.baseURL = server.URL

	state, err := f.CheckStatus(context.Background(), testCID)
	require.NoError(t, err)
	assert.Equal(t, types.PinStatePinned, state)
}

func TestPinningServicePin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/pins", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"requestid": "w3s-1",
			"status":    "pinning",
			"pin":       map[string]string{"cid": testCID},
		})
	}))
	defer server.Close()

	p, err := NewPinningService("web3.storage", "tok")
	require.NoError(t, err)
	p.baseURL = server.URL

	receipt, err := p.Pin(context.Background(), testCID)
	require.NoError(t, err)
	assert.Equal(t, "web3.storage", receipt.Provider)
	assert.Equal(t, types.PinStatePinning, receipt.State)
}

func TestPinningServiceUnknownEndpoint(t *testing.T) {
	_, err := NewPinningService("mystery.storage", "tok")
	require.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
		kind    ErrorKind
	}{
		{name: "ok", status: http.StatusOK},
		{name: "already pinned counts as valid", status: http.StatusConflict},
		{name: "unauthorized", status: http.StatusUnauthorized, wantErr: true, kind: ErrKindAuthFailed},
		{name: "forbidden", status: http.StatusForbidden, wantErr: true, kind: ErrKindAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				if tt.status == http.StatusOK {
					json.NewEncoder(w).Encode(map[string]string{"requestid": "probe", "status": "queued"})
				}
			}))
			defer server.Close()

			f := NewFilebase("tok")
			f.baseURL = server.URL

			err := f.Authenticate(context.Background())
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantKind  ErrorKind
		retryable bool
	}{
		{name: "unauthorized", status: 401, wantKind: ErrKindAuthFailed, retryable: false},
		{name: "forbidden", status: 403, wantKind: ErrKindAuthFailed, retryable: false},
		{name: "rate limited", status: 429, wantKind: ErrKindRateLimited, retryable: true},
		{name: "bad request", status: 400, wantKind: ErrKindRejected, retryable: false},
		{name: "unprocessable", status: 422, wantKind: ErrKindRejected, retryable: false},
		{name: "server error", status: 500, wantKind: ErrKindUnreachable, retryable: true},
		{name: "bad gateway", status: 502, wantKind: ErrKindUnreachable, retryable: true},
		{name: "teapot", status: 418, wantKind: ErrKindUnknown, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			f := NewFilebase("tok")
			f.baseURL = server.URL

			_, err := f.Pin(context.Background(), testCID)
			require.Error(t, err)

			var pinErr *PinError
			require.ErrorAs(t, err, &pinErr)
			assert.Equal(t, tt.wantKind, pinErr.Kind)
			assert.Equal(t, tt.retryable, pinErr.Retryable())
			assert.Equal(t, "filebase", pinErr.Provider)
		})
	}
}

func TestTransportErrorIsUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused

	f := NewFilebase("tok")
	f.baseURL = server.URL

	_, err := f.Pin(context.Background(), testCID)
	require.Error(t, err)
	assert.Equal(t, ErrKindUnreachable, KindOf(err))

	var pinErr *PinError
	require.ErrorAs(t, err, &pinErr)
	assert.True(t, pinErr.Retryable())
}

func TestKindOfNonPinError(t *testing.T) {
	assert.Equal(t, ErrKindUnknown, KindOf(context.Canceled))
}

func TestMapPinState(t *testing.T) {
	tests := []struct {
		in   string
		want types.PinState
	}{
		{"pinned", types.PinStatePinned},
		{"Pinned", types.PinStatePinned},
		{"pinning", types.PinStatePinning},
		{"processing", types.PinStatePinning},
		{"queued", types.PinStateQueued},
		{"searching", types.PinStateQueued},
		{"failed", types.PinStateFailed},
		{"expired", types.PinStateFailed},
		{"", types.PinStateUnknown},
		{"weird", types.PinStateUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mapPinState(tt.in), tt.in)
	}
}
