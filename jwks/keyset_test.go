package jwks

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jwksDocument(t *testing.T, keys ...jose.JSONWebKey) []byte {
	t.Helper()
	data, err := json.Marshal(jose.JSONWebKeySet{Keys: keys})
	require.NoError(t, err)
	return data
}

func TestParseKeySet(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	doc := jwksDocument(t,
		jose.JSONWebKey{Key: &rsaKey.PublicKey, KeyID: "rsa-1", Algorithm: "RS256", Use: "sig"},
		jose.JSONWebKey{Key: &ecKey.PublicKey, KeyID: "ec-1", Algorithm: "ES256"},
		jose.JSONWebKey{Key: &rsaKey.PublicKey, KeyID: "enc-1", Algorithm: "RSA-OAEP", Use: "enc"},
		jose.JSONWebKey{Key: &rsaKey.PublicKey, Algorithm: "RS256", Use: "sig"},
	)

	set, err := ParseKeySet(doc)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())

	key, ok := set.Lookup("rsa-1")
	require.True(t, ok)
	assert.Equal(t, "RS256", key.Algorithm)
	assert.IsType(t, &rsa.PublicKey{}, key.Key)

	key, ok = set.Lookup("ec-1")
	require.True(t, ok)
	assert.IsType(t, &ecdsa.PublicKey{}, key.Key)

	_, ok = set.Lookup("enc-1")
	assert.False(t, ok)
}

func TestParseKeySet_SkipsUnsupportedEntries(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	good, err := json.Marshal(jose.JSONWebKey{Key: &rsaKey.PublicKey, KeyID: "rsa-1", Algorithm: "RS256", Use: "sig"})
	require.NoError(t, err)
	doc := []byte(`{"keys":[{"kty":"weird","kid":"x"},` + string(good) + `]}`)

	set, err := ParseKeySet(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
}

func TestParseKeySet_RejectsPrivateKeys(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	set, err := ParseKeySet(jwksDocument(t, jose.JSONWebKey{Key: rsaKey, KeyID: "private", Algorithm: "RS256"}))
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestParseKeySet_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>"},
		{"missing keys", `{"foo":"bar"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseKeySet([]byte(tt.body))
			assert.True(t, errors.Is(err, ErrInvalidKeySet))
		})
	}
}

func TestHTTPFetcher(t *testing.T) {
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	doc := jwksDocument(t, jose.JSONWebKey{Key: &rsaKey.PublicKey, KeyID: "rsa-1", Algorithm: "RS256", Use: "sig"})

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(server.URL, server.Client())
	assert.Equal(t, server.URL, fetcher.URL())

	set, err := fetcher.Fetch(context.Background())
	require.NoError(t, err)
	_, ok := set.Lookup("rsa-1")
	assert.True(t, ok)
}

func TestHTTPFetcher_ErrorStatus(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewHTTPFetcher(server.URL, server.Client()).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
