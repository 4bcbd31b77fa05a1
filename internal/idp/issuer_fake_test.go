package idp

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testClientID     = "coachme-test"
	testClientSecret = "shh"
	testKeyID        = "test-key"
)

// fakeIssuer is a minimal OIDC issuer serving discovery, keys and a token
// endpoint that signs whatever claims the test configures.
type fakeIssuer struct {
	server *httptest.Server
	key    *rsa.PrivateKey

	mu        sync.Mutex
	claims    jwt.MapClaims
	tokenFail bool
	verifiers []string
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIssuer{key: key}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", f.discovery)
	mux.HandleFunc("GET /keys", f.keys)
	mux.HandleFunc("POST /token", f.token)

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	f.setClaims(jwt.MapClaims{
		"sub":            "google-oauth2|1234",
		"email":          "coach@example.com",
		"email_verified": true,
		"name":           "Coach",
	})
	return f
}

func (f *fakeIssuer) URL() string {
	return f.server.URL
}

func (f *fakeIssuer) setClaims(claims jwt.MapClaims) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = claims
}

func (f *fakeIssuer) failTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenFail = true
}

func (f *fakeIssuer) Verifiers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.verifiers...)
}

func (f *fakeIssuer) discovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"issuer":                                f.URL(),
		"authorization_endpoint":                f.URL() + "/authorize",
		"token_endpoint":                        f.URL() + "/token",
		"jwks_uri":                              f.URL() + "/keys",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (f *fakeIssuer) keys(w http.ResponseWriter, r *http.Request) {
	pub := f.key.PublicKey
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"keys": []map[string]string{
			{
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"kid": testKeyID,
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	})
}

func (f *fakeIssuer) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.verifiers = append(f.verifiers, r.PostForm.Get("code_verifier"))
	fail := f.tokenFail
	claims := jwt.MapClaims{}
	for k, v := range f.claims {
		claims[k] = v
	}
	f.mu.Unlock()

	if fail {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
		return
	}

	now := time.Now()
	claims["iss"] = f.URL()
	claims["aud"] = testClientID
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(time.Hour).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	idToken, err := token.SignedString(f.key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": "access-token",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idToken,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
