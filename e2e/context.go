package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestContext carries one scenario's HTTP state against a running catalog.
type TestContext struct {
	BaseURL    string
	SigningKey string
	Issuer     string

	client      *http.Client
	accessToken string
	lastStatus  int
	lastBody    []byte
	values      map[string]string
}

// NewTestContext reads CATALOG_BASE_URL, JWT_SIGNING_KEY and JWT_ISSUER,
// falling back to the server's local defaults.
func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL:    envOr("CATALOG_BASE_URL", "http://localhost:8080"),
		SigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Issuer:     os.Getenv("JWT_ISSUER"),
		client:     &http.Client{Timeout: 10 * time.Second},
		values:     map[string]string{},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	tc.accessToken = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.values = map[string]string{}
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body)
}

func (tc *TestContext) PATCH(path string, body any) error {
	return tc.do(http.MethodPatch, path, body)
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil)
}

func (tc *TestContext) DELETE(path string) error {
	return tc.do(http.MethodDelete, path, nil)
}

func (tc *TestContext) do(method, path string, body any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+tc.accessToken)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

// GetResponseField returns a top-level field of the last JSON object body.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var body map[string]any
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response %s", field, tc.lastBody)
	}
	return v, nil
}

// GetResponseList decodes the last body as a JSON array.
func (tc *TestContext) GetResponseList() ([]map[string]any, error) {
	var list []map[string]any
	if err := json.Unmarshal(tc.lastBody, &list); err != nil {
		return nil, fmt.Errorf("response is not a JSON array: %w", err)
	}
	return list, nil
}

func (tc *TestContext) SaveValue(key, value string) { tc.values[key] = value }

func (tc *TestContext) GetValue(key string) string { return tc.values[key] }

func (tc *TestContext) authenticateAs(userID string) error {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     userID,
		"user_id": userID,
		"iss":     tc.Issuer,
		"iat":     now.Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(tc.SigningKey))
	if err != nil {
		return err
	}
	tc.accessToken = signed
	return nil
}

func (tc *TestContext) clearAccessToken() error {
	tc.accessToken = ""
	return nil
}

func (tc *TestContext) responseStatusShouldBe(status int) error {
	if tc.lastStatus != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, tc.lastStatus, tc.lastBody)
	}
	return nil
}

func (tc *TestContext) responseFieldShouldBe(field, expected string) error {
	v, err := tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got := fmt.Sprint(v); got != expected {
		return fmt.Errorf("expected %s=%q, got %q", field, expected, got)
	}
	return nil
}

func (tc *TestContext) responseErrorShouldBe(code string) error {
	return tc.responseFieldShouldBe("error", code)
}
