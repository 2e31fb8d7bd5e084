package ipfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("203.0.113.7\n"))
	}))
	defer srv.Close()

	ip, err := GetIP(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.7", ip)
}

func TestGetIPBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := GetIP(context.Background(), srv.Client(), srv.URL)
	assert.Error(t, err)
}
