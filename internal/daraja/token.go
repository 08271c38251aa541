package daraja

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Jleagle/unmarshal-go"
	"golang.org/x/oauth2"
)

// tokenSource fetches client-credentials tokens. Daraja wants a GET with
// basic auth rather than the standard form POST, so clientcredentials.Config
// cannot be used.
type tokenSource struct {
	url    string
	key    string
	secret string
	client *http.Client
}

type tokenResponse struct {
	AccessToken string          `json:"access_token"`
	ExpiresIn   unmarshal.Int64 `json:"expires_in"`
}

func (s *tokenSource) Token() (*oauth2.Token, error) {
	req, err := http.NewRequest(http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(s.key, s.secret)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daraja token: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("daraja token: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(b, apiErr)
		return nil, fmt.Errorf("daraja token: %w", apiErr)
	}

	var tr tokenResponse
	if err := json.Unmarshal(b, &tr); err != nil {
		return nil, fmt.Errorf("daraja token: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("daraja token: empty access token")
	}

	expiresIn := time.Duration(tr.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	return &oauth2.Token{
		AccessToken: tr.AccessToken,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(expiresIn),
	}, nil
}
