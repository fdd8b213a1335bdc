// Package discord talks to the Discord REST API on behalf of the token exchange endpoint:
// it trades an OAuth authorization code for an access token and fetches the user's profile.
package discord

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/trentd187/activity-lobby/internal/identity"
)

// ErrUpstream wraps every failure talking to Discord.
var ErrUpstream = errors.New("discord api request failed")

// Client is a minimal Discord OAuth client.
type Client struct {
	apiBase      string
	clientID     string
	clientSecret string
	timeout      time.Duration
}

// NewClient creates a client for the API rooted at apiBase (e.g. "https://discord.com/api").
func NewClient(apiBase, clientID, clientSecret string) *Client {
	return &Client{
		apiBase:      apiBase,
		clientID:     clientID,
		clientSecret: clientSecret,
		timeout:      10 * time.Second,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
}

// ExchangeCode trades an authorization code for an access token.
func (c *Client) ExchangeCode(code string) (string, error) {
	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	args.Set("client_id", c.clientID)
	args.Set("client_secret", c.clientSecret)
	args.Set("grant_type", "authorization_code")
	args.Set("code", code)

	agent := fiber.Post(c.apiBase + "/oauth2/token").Form(args).Timeout(c.timeout)

	var out tokenResponse
	status, body, errs := agent.Struct(&out)
	if err := checkResponse("token exchange", status, body, errs); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%w: token exchange returned no access_token", ErrUpstream)
	}
	return out.AccessToken, nil
}

// FetchProfile returns the profile of the user the access token belongs to.
func (c *Client) FetchProfile(accessToken string) (identity.Profile, error) {
	agent := fiber.Get(c.apiBase+"/users/@me").
		Set(fiber.HeaderAuthorization, "Bearer "+accessToken).
		Timeout(c.timeout)

	var profile identity.Profile
	status, body, errs := agent.Struct(&profile)
	if err := checkResponse("profile fetch", status, body, errs); err != nil {
		return identity.Profile{}, err
	}
	if profile.ID == "" {
		return identity.Profile{}, fmt.Errorf("%w: profile has no id", ErrUpstream)
	}
	return profile, nil
}

func checkResponse(op string, status int, body []byte, errs []error) error {
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s: %w", ErrUpstream, op, errors.Join(errs...))
	}
	if status != fiber.StatusOK {
		if len(body) > 256 {
			body = body[:256]
		}
		return fmt.Errorf("%w: %s: status %d: %s", ErrUpstream, op, status, body)
	}
	return nil
}
