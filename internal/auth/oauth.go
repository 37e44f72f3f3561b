// Package auth signs reviewers in with Google and issues the short-lived
// tokens the websocket gateway accepts.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var Scopes = []string{
	"openid",
	"https://www.googleapis.com/auth/drive",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/userinfo.email",
}

// UserInfo is the subset of the Google userinfo response a session keeps.
type UserInfo struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

type Google struct {
	config      *oauth2.Config
	userInfoURL string
}

func NewGoogle(clientID, clientSecret, redirectURL string) *Google {
	return &Google{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
			Endpoint:     endpoints.Google,
		},
		userInfoURL: userInfoURL,
	}
}

// AuthURL is the consent page URL. Offline access is requested so the
// session gets a refresh token.
func (g *Google) AuthURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for a token and reads the signed-in
// user's profile with it.
func (g *Google) Exchange(ctx context.Context, code string) (*oauth2.Token, UserInfo, error) {
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, UserInfo{}, fmt.Errorf("exchange code: %w", err)
	}

	client := g.config.Client(ctx, token)
	resp, err := client.Get(g.userInfoURL)
	if err != nil {
		return nil, UserInfo{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, UserInfo{}, fmt.Errorf("fetch userinfo: status %d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, UserInfo{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.ID == "" {
		return nil, UserInfo{}, fmt.Errorf("userinfo has no id")
	}
	return token, info, nil
}
