package syncclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventario-backend/internal/capture"
)

func TestAPIClient_Ingest(t *testing.T) {
	var got ingestRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/counts/sync", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "sync-1", r.Header.Get("X-Sync-ID"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"ok","count":2,"timestamp":"2026-03-02T09:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "tok", time.Second)
	n, err := c.Ingest(context.Background(), "sync-1", []ScanPayload{
		{ProductCode: "P1", Quantity: 3},
		{ProductCode: "P2", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "P1", got.Items[0].ProductCode)
}

func TestAPIClient_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"control batch already verified"}`))
	}))
	defer srv.Close()

	c := NewAPIClient(srv.URL, "", time.Second)
	_, err := c.FetchBatch(context.Background(), 1, "M-001")

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.StatusCode)
	assert.Equal(t, "control batch already verified", se.Message)
	assert.True(t, IsConflict(err))
	assert.False(t, Retryable(err))
}

func TestAPIClient_CatalogPageQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/catalog", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("tenant_id"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "1000", r.URL.Query().Get("page_size"))
		w.Write([]byte(`{"items":[{"product_code":"P1","description":"Tuerca","quantity":5,"area":"A","location":null}],"page":2,"page_size":1000,"total":1001}`))
	}))
	defer srv.Close()

	items, err := NewAPIClient(srv.URL, "", time.Second).CatalogPage(context.Background(), 7, 2, 1000)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Tuerca", items[0].Description)
	require.NotNil(t, items[0].Area)
	assert.Equal(t, "A", *items[0].Area)
	assert.Nil(t, items[0].Location)
}

func TestPullCatalog_PagesAndRetries(t *testing.T) {
	calls := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		calls[page]++
		switch page {
		case "1":
			w.Write([]byte(`{"items":[{"product_code":"P1","quantity":1},{"product_code":"P2","quantity":2}]}`))
		case "2":
			if calls[page] == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{"items":[{"product_code":"P3","description":"Perno","quantity":3}]}`))
		default:
			t.Errorf("unexpected page %s", page)
		}
	}))
	defer srv.Close()

	store, err := capture.Open(filepath.Join(t.TempDir(), "capture.db"), 0)
	require.NoError(t, err)
	defer store.Close()

	n, err := PullCatalog(context.Background(), NewAPIClient(srv.URL, "", time.Second), store, 7, 2, noWait(3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, calls["2"])

	p, ok, err := store.LookupCatalog(context.Background(), "P3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Perno", p.Description)
}

func TestPullCatalog_KeepsLocalCatalogOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	store, err := capture.Open(filepath.Join(t.TempDir(), "capture.db"), 0)
	require.NoError(t, err)
	defer store.Close()
	_, err = store.ReplaceCatalog(context.Background(), []capture.CatalogProduct{{ProductCode: "OLD"}})
	require.NoError(t, err)

	_, err = PullCatalog(context.Background(), NewAPIClient(srv.URL, "", time.Second), store, 7, 2, noWait(3))
	require.Error(t, err)

	_, ok, err := store.LookupCatalog(context.Background(), "OLD")
	require.NoError(t, err)
	assert.True(t, ok)
}
