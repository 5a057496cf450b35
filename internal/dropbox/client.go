// Package dropbox is the thin OAuth collaborator: it starts the
// authorization flow, exchanges the callback code for a token, and looks up
// the linked account's identity. OAuth state-machine internals beyond that
// are the provider's problem.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

const currentAccountURL = "https://api.dropboxapi.com/2/users/get_current_account"

// AccountInfo identifies the linked provider account.
type AccountInfo struct {
	AccountID   string
	DisplayName string
	AccessToken string
}

// AuthClient runs the code exchange and identity lookup. Handlers hold this
// interface so tests can substitute a fake.
type AuthClient interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (AccountInfo, error)
}

// Client implements AuthClient against the real Dropbox API
type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client
}

// NewClient creates a Dropbox auth client
func NewClient(appKey, appSecret, redirectURL string) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     appKey,
			ClientSecret: appSecret,
			RedirectURL:  redirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://www.dropbox.com/oauth2/authorize",
				TokenURL: "https://api.dropboxapi.com/oauth2/token",
			},
		},
		httpClient: http.DefaultClient,
	}
}

// AuthURL returns the provider authorize URL to redirect the browser to
func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades the callback code for an access token and resolves the
// account id and display name behind it.
func (c *Client) Exchange(ctx context.Context, code string) (AccountInfo, error) {
	token, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("failed to exchange auth code: %w", err)
	}

	info, err := c.currentAccount(ctx, token.AccessToken)
	if err != nil {
		return AccountInfo{}, err
	}

	info.AccessToken = token.AccessToken
	return info, nil
}

func (c *Client) currentAccount(ctx context.Context, accessToken string) (AccountInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, currentAccountURL, bytes.NewReader([]byte("null")))
	if err != nil {
		return AccountInfo{}, fmt.Errorf("failed to build account request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("failed to fetch current account: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return AccountInfo{}, fmt.Errorf("current account lookup returned status %d", resp.StatusCode)
	}

	var payload struct {
		AccountID string `json:"account_id"`
		Name      struct {
			DisplayName string `json:"display_name"`
		} `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return AccountInfo{}, fmt.Errorf("failed to decode current account: %w", err)
	}
	if payload.AccountID == "" {
		return AccountInfo{}, fmt.Errorf("current account response missing account_id")
	}

	return AccountInfo{
		AccountID:   payload.AccountID,
		DisplayName: payload.Name.DisplayName,
	}, nil
}
