package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nft-repin/internal/types"
)

// testAddress is a well-formed Algorand address (32 zero-adjacent bytes plus
// a valid checksum); the indexer client validates addresses locally before
// issuing any request.
const testAddress = "AAAQEAYEAUDAOCAJBIFQYDIOB4IBCEQTCQKRMFYYDENBWHA5DYP7MUPJQE"

func TestFetchCreatedAssets_Paginates(t *testing.T) {
	var requests []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)

		page := map[string]interface{}{
			"assets": []map[string]interface{}{
				{
					"index": 101,
					"params": map[string]interface{}{
						"name":    "Skull #1",
						"url":     "template-ipfs://{ipfscid:1:raw:reserve:sha2-256}",
						"reserve": testAddress,
					},
				},
			},
		}
		if r.URL.Query().Get("next") == "" {
			page["next-token"] = "page-two"
		} else {
			page["assets"] = []map[string]interface{}{
				{
					"index":   102,
					"deleted": true,
					"params":  map[string]interface{}{"name": "Burned", "url": ""},
				},
				{
					"index": 103,
					"params": map[string]interface{}{
						"name": "Skull #2",
						"url":  "ipfs://bafybeifcx4fof2cixdkh5qo7fq44m4myo5cl34ayqw4g7vjfqmur2kc76e",
					},
				},
			}
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	records, err := client.FetchCreatedAssets(context.Background(), testAddress)
	require.NoError(t, err)

	// Two pages requested, deleted asset dropped.
	require.Len(t, requests, 2)
	assert.Contains(t, requests[1], "next=page-two")
	require.Len(t, records, 2)

	assert.Equal(t, uint64(101), records[0].AssetID)
	assert.Equal(t, "Skull #1", records[0].Name)
	assert.Equal(t, testAddress, records[0].AddressFields[types.RoleReserve])
	assert.Equal(t, types.AssetPending, records[0].Status)
	assert.Equal(t, uint64(103), records[1].AssetID)
}

func TestFetchCreatedAssets_InvalidAddress(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.FetchCreatedAssets(context.Background(), "not-an-address")
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, ErrKindInvalidAddress, fetchErr.Kind)
	assert.False(t, called, "invalid address must be rejected before any network call")
}

func TestFetchCreatedAssets_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "indexer overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.FetchCreatedAssets(context.Background(), testAddress)
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, ErrKindNetworkFailure, fetchErr.Kind)
	assert.Contains(t, fetchErr.Message, "503")
}

func TestFetchCreatedAssets_EmptyCollection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"assets": []interface{}{}})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	records, err := client.FetchCreatedAssets(context.Background(), testAddress)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchCreatedAssets_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"assets":     []interface{}{},
			"next-token": "forever",
		})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.FetchCreatedAssets(ctx, testAddress)
	require.Error(t, err)
}
