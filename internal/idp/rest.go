package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultRESTBaseURL  = "https://identitytoolkit.googleapis.com"
	DefaultTokenBaseURL = "https://securetoken.googleapis.com"
)

// RESTClient signs users in through the Identity Toolkit and Secure Token REST APIs,
// which the Admin SDK does not cover.
type RESTClient struct {
	apiKey    string
	baseURL   string
	tokenBase string
	http      *http.Client
}

func NewRESTClient(apiKey, baseURL, tokenBaseURL string) *RESTClient {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultRESTBaseURL
	}
	tokenBase := strings.TrimRight(strings.TrimSpace(tokenBaseURL), "/")
	if tokenBase == "" {
		tokenBase = DefaultTokenBaseURL
	}
	return &RESTClient{
		apiKey:    apiKey,
		baseURL:   base,
		tokenBase: tokenBase,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *RESTClient) SignInWithPassword(ctx context.Context, email, password string) (*SignInResult, error) {
	const op = "sign_in"
	data, err := json.Marshal(map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, NewError(op, CodeUnavailable, err)
	}
	endpoint := c.baseURL + "/v1/accounts:signInWithPassword?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, NewError(op, CodeUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var body struct {
		IDToken      string `json:"idToken"`
		RefreshToken string `json:"refreshToken"`
		LocalID      string `json:"localId"`
	}
	if err := c.do(op, req, &body); err != nil {
		return nil, err
	}
	return &SignInResult{IdentityID: body.LocalID, BearerToken: body.IDToken, RefreshToken: body.RefreshToken}, nil
}

func (c *RESTClient) Refresh(ctx context.Context, refreshToken string) (string, error) {
	const op = "refresh"
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	endpoint := c.tokenBase + "/v1/token?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", NewError(op, CodeUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var body struct {
		IDToken string `json:"id_token"`
	}
	if err := c.do(op, req, &body); err != nil {
		return "", err
	}
	if body.IDToken == "" {
		return "", NewError(op, CodeUnavailable, fmt.Errorf("empty id_token in refresh response"))
	}
	return body.IDToken, nil
}

func (c *RESTClient) do(op string, req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return NewError(op, CodeUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		reason := body.Error.Message
		if reason == "" {
			reason = resp.Status
		}
		return NewError(op, codeForReason(reason), fmt.Errorf("%s", reason))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewError(op, CodeUnavailable, err)
	}
	return nil
}

// codeForReason maps provider error strings such as "INVALID_PASSWORD" or
// "TOO_MANY_ATTEMPTS_TRY_LATER : ..." onto Codes.
func codeForReason(reason string) Code {
	key := strings.TrimSpace(reason)
	if i := strings.IndexAny(key, " :"); i >= 0 {
		key = key[:i]
	}
	switch strings.ToUpper(key) {
	case "USER_DISABLED":
		return CodeUserDisabled
	case "INVALID_LOGIN_CREDENTIALS", "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_EMAIL", "MISSING_PASSWORD":
		return CodeInvalidCredentials
	case "TOKEN_EXPIRED", "INVALID_REFRESH_TOKEN", "USER_NOT_FOUND", "INVALID_GRANT_TYPE", "MISSING_REFRESH_TOKEN":
		return CodeInvalidToken
	default:
		return CodeUnavailable
	}
}
