package weather

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/couchcryptid/weather-mail-etl/internal/domain"
)

// Authenticator exchanges service credentials for a bearer token. Tokens are
// never cached: every call performs a fresh exchange.
type Authenticator struct {
	baseURL    string
	login      string
	password   string
	httpClient *http.Client
}

// NewAuthenticator creates an Authenticator for the service at baseURL.
func NewAuthenticator(baseURL, login, password string, httpClient *http.Client) *Authenticator {
	return &Authenticator{
		baseURL:    baseURL,
		login:      login,
		password:   password,
		httpClient: httpClient,
	}
}

// Token returns an Authorization header value of the form "Bearer <token>".
// Any failure, transport errors included, is reported as *domain.AuthError.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	body, err := json.Marshal(authRequest{Login: a.login, Password: a.password})
	if err != nil {
		return "", &domain.AuthError{Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/authorize", bytes.NewReader(body))
	if err != nil {
		return "", &domain.AuthError{Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", &domain.AuthError{Message: fmt.Sprintf("authorize request: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &domain.AuthError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(msg))}
	}

	var out authResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &domain.AuthError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	if out.IDToken == "" {
		return "", &domain.AuthError{StatusCode: resp.StatusCode, Message: "empty id_token"}
	}
	return "Bearer " + out.IDToken, nil
}

type authRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type authResponse struct {
	IDToken string `json:"id_token"`
}
