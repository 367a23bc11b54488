package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dataviz-hub/refine-gateway/internal/apierr"
)

// User is the verified caller identity for a single request.
type User struct {
	ID          string
	AccessToken string
	Email       string
}

// Verifier exchanges an access token for a verified identity.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) (*User, error)
}

// SupabaseVerifier resolves identities against the identity provider's
// whoami endpoint. A rejected or malformed response classifies as
// unauthenticated; there is no retry.
type SupabaseVerifier struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

func NewSupabaseVerifier(baseURL, anonKey string) *SupabaseVerifier {
	return &SupabaseVerifier{
		baseURL: baseURL,
		anonKey: anonKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (v *SupabaseVerifier) Verify(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, apierr.Unauthorized("missing access token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("create whoami request: %w", err)
	}
	req.Header.Set("apikey", v.anonKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, apierr.Unauthorized("identity provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierr.Unauthorized("invalid or expired access token")
	}

	var body struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apierr.Unauthorized("unparseable identity response")
	}
	if body.ID == "" {
		return nil, apierr.Unauthorized("identity response does not include id")
	}

	return &User{ID: body.ID, AccessToken: accessToken, Email: body.Email}, nil
}
