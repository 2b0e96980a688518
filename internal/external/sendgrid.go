package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"marketingapi/internal/types"
)

const sendGridAPIBase = "https://api.sendgrid.com"

// SendGridConfig holds the configuration for creating a SendGridClient.
type SendGridConfig struct {
	APIKey      types.SecretString
	BaseURL     string
	FromAddress string
	FromName    string
	Logger      *slog.Logger
}

// SendGridClient implements EmailSender with the v3 Mail Send API.
type SendGridClient struct {
	base    *BaseClient
	apiKey  types.SecretString
	baseURL string
	from    sendGridAddress
	logger  *slog.Logger
}

// NewSendGridClient creates a SendGridClient.
func NewSendGridClient(httpClient *http.Client, cfg SendGridConfig, opts ...BaseClientOption) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SendGridClient{
		base:    NewBaseClient(httpClient, "sendgrid", DefaultRetryPolicy(), "marketing-api/1.0", opts...),
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		from:    sendGridAddress{Email: cfg.FromAddress, Name: cfg.FromName},
		logger:  logger,
	}
}

type sendGridMailPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	ReplyTo          *sendGridAddress          `json:"reply_to,omitempty"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send delivers msg and returns the X-Message-Id of the accepted message.
func (s *SendGridClient) Send(ctx context.Context, msg types.EmailMessage) (string, error) {
	payload := sendGridMailPayload{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: msg.To}}}},
		From:             s.from,
		Subject:          msg.Subject,
		Content:          []sendGridContent{{Type: "text/plain", Value: msg.TextBody}},
	}
	if msg.ReplyTo != "" {
		payload.ReplyTo = &sendGridAddress{Email: msg.ReplyTo}
	}
	if msg.HTMLBody != "" {
		payload.Content = append(payload.Content, sendGridContent{Type: "text/html", Value: msg.HTMLBody})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal SendGrid mail payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create SendGrid request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey.Unmask())

	resp, err := s.base.Do(req)
	if err != nil {
		if _, ok := err.(*types.AppError); ok {
			return "", err
		}
		return "", types.NewAppError(types.ErrCodeUpstreamEmail, "SendGrid request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return resp.Header.Get("X-Message-Id"), nil
	}
	return "", s.handleErrorResponse(resp)
}

type sendGridErrorResponse struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

func (s *SendGridClient) handleErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	message := string(raw)
	var parsed sendGridErrorResponse
	if json.Unmarshal(raw, &parsed) == nil && len(parsed.Errors) > 0 {
		message = parsed.Errors[0].Message
	}
	return types.NewAppError(
		types.ErrCodeUpstreamEmail,
		fmt.Sprintf("Send: SendGrid error (%d): %s", resp.StatusCode, message),
		nil,
	)
}
