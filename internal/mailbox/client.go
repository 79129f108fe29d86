// Package mailbox reads the signed-in user's inbox. It backs the "email"
// dialog action.
package mailbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"authbot/internal/dialog"
	"authbot/pkg/logging"
	"authbot/pkg/oauth"
	textutil "authbot/pkg/strings"

	"github.com/hashicorp/go-retryablehttp"
)

var (
	// ErrUnauthorized is returned when the mail API rejects the access token.
	ErrUnauthorized = fmt.Errorf("mailbox: %w", oauth.ErrTokenRejected)

	// ErrInsufficientScope is returned when the token is valid but lacks
	// mail permissions. Refreshing will not help.
	ErrInsufficientScope = errors.New("mailbox: token lacks the required scope")

	// ErrEmptyInbox is returned when the inbox has no messages.
	ErrEmptyInbox = errors.New("mailbox: inbox is empty")
)

const latestMessagePath = "/me/MailFolders/Inbox/messages?$top=1"

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 4 << 10

// Client calls the Outlook-compatible mail REST API.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
}

// NewClient creates a mail client for baseURL, e.g. https://outlook.office.com/api/v2.0.
func NewClient(baseURL string, timeout time.Duration, retryMax int) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = timeout
	rc.Logger = logging.NewLeveledLogger("Mailbox")

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: rc,
	}
}

type messageList struct {
	Value []struct {
		Subject string `json:"Subject"`
	} `json:"value"`
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// LatestSubject returns the subject of the newest inbox message.
func (c *Client) LatestSubject(ctx context.Context, accessToken string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+latestMessagePath, nil)
	if err != nil {
		return "", fmt.Errorf("mailbox: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mailbox: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if challenge := oauth.ParseWWWAuthenticateFromResponse(resp); challenge.InsufficientScope() {
			logging.Warn("Mailbox", "Mail API requires scope %q", challenge.Scope)
			return "", fmt.Errorf("%w (%s)", ErrInsufficientScope, challenge.Scope)
		}
		return "", ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		// The error body sometimes starts with whitespace.
		var apiErr apiError
		if json.Unmarshal([]byte(strings.TrimSpace(string(body))), &apiErr) == nil && apiErr.Error.Code != "" {
			return "", fmt.Errorf("mailbox: %s: %s", apiErr.Error.Code, apiErr.Error.Message)
		}
		return "", fmt.Errorf("mailbox: unexpected status %d", resp.StatusCode)
	}

	var list messageList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", fmt.Errorf("mailbox: decode response: %w", err)
	}
	if len(list.Value) == 0 {
		return "", ErrEmptyInbox
	}
	return list.Value[0].Subject, nil
}

// Action exposes LatestSubject as a dialog action.
func (c *Client) Action() dialog.Action {
	return dialog.ActionFunc(func(ctx context.Context, accessToken string) (string, error) {
		subject, err := c.LatestSubject(ctx, accessToken)
		if errors.Is(err, ErrEmptyInbox) {
			return "Your inbox is empty.", nil
		}
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Your latest email is: %q", textutil.Clip(subject, textutil.ChatLineMaxLen)), nil
	})
}
