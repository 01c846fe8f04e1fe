package backend

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher_FetchReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher("pixpro-worker-test", 5*time.Second)
	got, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("image-bytes"), got))
}

func TestHTTPFetcher_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewHTTPFetcher("pixpro-worker-test", 5*time.Second)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestHTTPFetcher_OversizedBodyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, MaxImageBytes+1))
	}))
	defer srv.Close()

	f := NewHTTPFetcher("pixpro-worker-test", 5*time.Second)
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
}
