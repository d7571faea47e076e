package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
)

// DefaultEndpoint is the public Bot API base URL
const DefaultEndpoint = "https://api.telegram.org"

// ErrIdentityRejected is returned when getMe does not answer with HTTP 200
var ErrIdentityRejected = errors.New("querying Telegram Bot API failed")

// BotUser is the bot account reported by getMe
type BotUser struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// IdentityChecker validates a token against the Bot API before polling starts
type IdentityChecker struct {
	endpoint string
	client   *http.Client
}

// NewIdentityChecker creates a checker for endpoint; a nil client uses http.DefaultClient
func NewIdentityChecker(endpoint string, client *http.Client) *IdentityChecker {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &IdentityChecker{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
	}
}

// GetMe queries the identity endpoint. Any status other than 200 is an error
// wrapping ErrIdentityRejected.
func (c *IdentityChecker) GetMe(ctx context.Context, token string) (*BotUser, error) {
	status, resp, err := c.get(ctx, token, "getMe")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK || !resp.OK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrIdentityRejected, status, resp.Description)
	}

	var user BotUser
	if err := json.Unmarshal(resp.Result, &user); err != nil {
		return nil, fmt.Errorf("failed to decode getMe result: %w", err)
	}
	return &user, nil
}

// ActivePoller reports whether another process is already consuming updates
// for this token. Telegram answers a getUpdates call with 409 Conflict while
// another long poll or a webhook is active; the returned string is its reason.
func (c *IdentityChecker) ActivePoller(ctx context.Context, token string) (bool, string, error) {
	status, resp, err := c.get(ctx, token, "getUpdates?timeout=0&limit=1")
	if err != nil {
		return false, "", err
	}
	if status == http.StatusConflict {
		return true, resp.Description, nil
	}
	return false, "", nil
}

func (c *IdentityChecker) get(ctx context.Context, token, method string) (int, *apiResponse, error) {
	url := fmt.Sprintf("%s/bot%s/%s", c.endpoint, token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}

	res, err := c.client.Do(req)
	if err != nil {
		// The URL embeds the token; keep it out of the error text
		return 0, nil, fmt.Errorf("telegram %s request failed: %w", methodName(method), unwrapURLError(err))
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return res.StatusCode, nil, fmt.Errorf("failed to read %s response: %w", methodName(method), err)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		resp = apiResponse{Description: strings.TrimSpace(string(body))}
	}
	return res.StatusCode, &resp, nil
}

func methodName(method string) string {
	name, _, _ := strings.Cut(method, "?")
	return name
}

func unwrapURLError(err error) error {
	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
