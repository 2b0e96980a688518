package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"marketingapi/internal/types"
)

const pushoverAPIBase = "https://api.pushover.net"

// PushoverConfig holds the configuration for creating a PushoverClient.
// GroupKey wins over UserKey when both are set.
type PushoverConfig struct {
	AppToken types.SecretString
	UserKey  types.SecretString
	GroupKey types.SecretString
	BaseURL  string
}

// PushoverClient implements PushNotifier with the Pushover messages API.
type PushoverClient struct {
	base      *BaseClient
	token     types.SecretString
	recipient types.SecretString
	baseURL   string
}

// NewPushoverClient creates a PushoverClient.
func NewPushoverClient(httpClient *http.Client, cfg PushoverConfig, opts ...BaseClientOption) *PushoverClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = pushoverAPIBase
	}
	recipient := cfg.GroupKey
	if recipient.IsBlank() {
		recipient = cfg.UserKey
	}
	return &PushoverClient{
		base:      NewBaseClient(httpClient, "pushover", DefaultRetryPolicy(), "marketing-api/1.0", opts...),
		token:     cfg.AppToken,
		recipient: recipient,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
	}
}

// Configured reports whether both an app token and a recipient are present.
func (p *PushoverClient) Configured() bool {
	return !p.token.IsBlank() && !p.recipient.IsBlank()
}

// Push sends msg. Pushover limits titles to 250 and messages to 1024 characters.
func (p *PushoverClient) Push(ctx context.Context, msg types.PushMessage) error {
	form := url.Values{}
	form.Set("token", p.token.Unmask())
	form.Set("user", p.recipient.Unmask())
	form.Set("title", truncate(msg.Title, 250))
	form.Set("message", truncate(msg.Message, 1024))
	if msg.Priority != 0 {
		form.Set("priority", strconv.Itoa(msg.Priority))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/1/messages.json", strings.NewReader(form.Encode()))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create Pushover request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.base.Do(req)
	if err != nil {
		if _, ok := err.(*types.AppError); ok {
			return err
		}
		return types.NewAppError(types.ErrCodeUpstreamPush, "Pushover request failed", err)
	}
	defer resp.Body.Close()

	var result struct {
		Status int      `json:"status"`
		Errors []string `json:"errors"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	_ = json.Unmarshal(raw, &result)

	if resp.StatusCode != http.StatusOK || result.Status != 1 {
		return types.NewAppError(
			types.ErrCodeUpstreamPush,
			fmt.Sprintf("Pushover rejected message (%d): %s", resp.StatusCode, strings.Join(result.Errors, "; ")),
			nil,
		)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
