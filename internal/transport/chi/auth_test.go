package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/kailas-cloud/ratevault/internal/transport/api"
)

var (
	depositorAddr = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	agentAddr     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

// callerEcho writes the authenticated caller (or "none") with 200.
func callerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, ok := CallerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
		if !ok {
			_, _ = w.Write([]byte("none"))
			return
		}
		_, _ = w.Write([]byte(c.Hex()))
	})
}

func serveAuth(principals map[string]common.Address, path, header string) *httptest.ResponseRecorder {
	handler := BearerAuthMiddleware(principals)(callerEcho())
	req := httptest.NewRequest("GET", path, http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestAuthMiddleware_EmptyPrincipals_PassThrough(t *testing.T) {
	rr := serveAuth(nil, "/api/v1/escrow", "")

	if rr.Code != http.StatusOK {
		t.Errorf("empty principals: got %d, want %d", rr.Code, http.StatusOK)
	}
	if rr.Body.String() != "none" {
		t.Errorf("caller = %q, want none", rr.Body.String())
	}
}

func TestAuthMiddleware_EmptyStringToken_PassThrough(t *testing.T) {
	rr := serveAuth(map[string]common.Address{"": depositorAddr}, "/api/v1/escrow", "")

	if rr.Code != http.StatusOK {
		t.Errorf("empty string token: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	principals := map[string]common.Address{"secret": depositorAddr}

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"basic scheme", "Basic dXNlcjpwYXNz"},
		{"invalid token", "Bearer wrong"},
		{"empty bearer", "Bearer "},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := serveAuth(principals, "/api/v1/deposits", tc.header)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("got %d, want %d", rr.Code, http.StatusUnauthorized)
			}
			var errResp api.ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errResp.Code != api.ErrorResponseCodeUnauthenticated {
				t.Errorf("code = %q, want %q", errResp.Code, api.ErrorResponseCodeUnauthenticated)
			}
		})
	}
}

func TestAuthMiddleware_ValidToken_SetsCaller(t *testing.T) {
	principals := map[string]common.Address{
		"depositor": depositorAddr,
		"agent":     agentAddr,
	}

	for token, want := range principals {
		rr := serveAuth(principals, "/api/v1/draws", "Bearer "+token)
		if rr.Code != http.StatusOK {
			t.Fatalf("token %s: got %d, want %d", token, rr.Code, http.StatusOK)
		}
		if rr.Body.String() != want.Hex() {
			t.Errorf("token %s: caller = %s, want %s", token, rr.Body.String(), want.Hex())
		}
	}
}

func TestAuthMiddleware_ExemptPaths(t *testing.T) {
	principals := map[string]common.Address{"secret": depositorAddr}

	for _, path := range []string{"/health", "/metrics"} {
		rr := serveAuth(principals, path, "")
		if rr.Code != http.StatusOK {
			t.Errorf("%s: got %d, want %d", path, rr.Code, http.StatusOK)
		}
	}
}
