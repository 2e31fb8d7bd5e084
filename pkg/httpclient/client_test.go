package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetParsesBodyAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"not here"}`))
			return
		}
		w.Write([]byte(`{"superrewards_stats":{"total_tokens":42.5},"to":"0xabc"}`))
	}))
	defer srv.Close()

	client, err := New(nil)
	require.NoError(t, err)

	resp, err := client.Get(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.True(t, resp.OK())

	v, ok := resp.Lookup("superrewards_stats", "total_tokens")
	require.True(t, ok)
	assert.Equal(t, 42.5, v)

	_, ok = resp.Lookup("superrewards_stats", "nope")
	assert.False(t, ok)

	resp, err = client.Get(context.Background(), srv.URL+"/missing")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, "not here", resp.Body["detail"])
}

func TestDecode(t *testing.T) {
	resp := &Response{Status: 200, Body: map[string]interface{}{
		"transactionData": "0x1234",
		"to":              "0x000000000000000000000000000000000000dEaD",
	}}

	var out struct {
		TransactionData string `json:"transactionData"`
		To              string `json:"to"`
	}
	require.NoError(t, resp.Decode(&out))
	assert.Equal(t, "0x1234", out.TransactionData)
	assert.Equal(t, "0x000000000000000000000000000000000000dEaD", out.To)
}

func TestNonJSONErrorPageIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	client, err := New(nil)
	require.NoError(t, err)

	resp, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.Status)
	assert.Nil(t, resp.Body)
}
