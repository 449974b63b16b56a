package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/nwcctl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	testlog.Start(t)
	if got, err := BearerToken("Bearer abc"); err != nil || got != "abc" {
		t.Fatalf("got %q err=%v", got, err)
	}
	if got, err := BearerToken("bearer   abc "); err != nil || got != "abc" {
		t.Fatalf("got %q err=%v", got, err)
	}
	for _, bad := range []string{"", "Basic abc", "Bearer", "Bearer  "} {
		if _, err := BearerToken(bad); !errors.Is(err, ErrMissingToken) {
			t.Fatalf("BearerToken(%q) expected ErrMissingToken, got %v", bad, err)
		}
	}
}

func TestMiddleware(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := map[string]int{"": http.StatusUnauthorized, "Bearer bad": http.StatusUnauthorized, "Bearer ok": http.StatusNoContent}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("header %q: got %d want %d", header, rec.Code, want)
		}
	}
}
