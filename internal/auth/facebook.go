package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const facebookGraphURL = "https://graph.facebook.com"

// Facebook implements the client-token flow: the short-lived token arrives in
// the request body, gets exchanged for a long-lived one, and the profile and
// picture are fetched in separate graph calls. There is no introspection
// endpoint, so ValidateToken is a no-op.
type Facebook struct {
	appID      string
	appSecret  string
	httpClient *http.Client
	graphURL   string
}

func NewFacebook(appID, appSecret string) *Facebook {
	return &Facebook{
		appID:      appID,
		appSecret:  appSecret,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		graphURL:   facebookGraphURL,
	}
}

// WithGraphURL overrides the graph endpoint. Used by tests.
func (f *Facebook) WithGraphURL(graphURL string) *Facebook {
	f.graphURL = graphURL
	return f
}

func (f *Facebook) Name() string {
	return "facebook"
}

// AuthCodeURL is unused for Facebook: the browser SDK obtains the short-lived
// token and posts it to /fbconnect directly.
func (f *Facebook) AuthCodeURL(state, redirectURI string) string {
	return ""
}

// ExchangeCode swaps the short-lived token (passed as code) for a long-lived
// one. Facebook's exchange does not identify the subject; that comes from the
// profile fetch.
func (f *Facebook) ExchangeCode(ctx context.Context, code, redirectURI string) (Credentials, error) {
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", f.appID)
	q.Set("client_secret", f.appSecret)
	q.Set("fb_exchange_token", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		f.graphURL+"/oauth/access_token?"+q.Encode(), nil)
	if err != nil {
		return Credentials{}, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Credentials{}, &FlowError{Status: http.StatusUnauthorized, Message: "Failed to upgrade the authorization code"}
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&body) != nil || body.AccessToken == "" {
		return Credentials{}, &FlowError{Status: http.StatusUnauthorized, Message: "Failed to upgrade the authorization code"}
	}
	return Credentials{AccessToken: body.AccessToken}, nil
}

func (f *Facebook) ValidateToken(ctx context.Context, creds Credentials) error {
	return nil
}

func (f *Facebook) FetchProfile(ctx context.Context, creds Credentials) (Profile, error) {
	q := url.Values{}
	q.Set("access_token", creds.AccessToken)
	q.Set("fields", "name,id,email")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		f.graphURL+"/v3.2/me?"+q.Encode(), nil)
	if err != nil {
		return Profile{}, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Profile{}, &FlowError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	defer resp.Body.Close()

	var body struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Profile{}, &FlowError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	if body.ID == "" {
		return Profile{}, &FlowError{Status: http.StatusUnauthorized, Message: "Failed to fetch user profile"}
	}

	picture, err := f.fetchPicture(ctx, creds)
	if err != nil {
		return Profile{}, err
	}
	return Profile{ID: body.ID, Name: body.Name, Email: body.Email, Picture: picture}, nil
}

func (f *Facebook) fetchPicture(ctx context.Context, creds Credentials) (string, error) {
	q := url.Values{}
	q.Set("access_token", creds.AccessToken)
	q.Set("redirect", "0")
	q.Set("height", "200")
	q.Set("width", "200")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		f.graphURL+"/v3.2/me/picture?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", &FlowError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	defer resp.Body.Close()

	var body struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", &FlowError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	return body.Data.URL, nil
}

// Revoke drops the app's permissions for the subject. Failures are not fatal
// to logout; the session identity is cleared regardless.
func (f *Facebook) Revoke(ctx context.Context, creds Credentials) error {
	if creds.SubjectID == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/v3.2/%s/permissions?access_token=%s",
			f.graphURL, url.PathEscape(creds.SubjectID), url.QueryEscape(creds.AccessToken)), nil)
	if err != nil {
		return err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}
