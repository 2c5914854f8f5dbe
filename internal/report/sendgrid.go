package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"contract-backend/internal/pipeline"
)

const sendGridURL = "https://api.sendgrid.com/v3/mail/send"

// SendGridDispatcher emails the analysis report through the SendGrid v3 API.
type SendGridDispatcher struct {
	apiKey     string
	sender     string
	httpClient *http.Client
}

// NewSendGridDispatcher constructs an email dispatcher.
func NewSendGridDispatcher(apiKey, sender string) (*SendGridDispatcher, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("SENDGRID_API_KEY is required")
	}
	if strings.TrimSpace(sender) == "" {
		return nil, fmt.Errorf("EMAIL_SENDER is required")
	}
	return &SendGridDispatcher{
		apiKey: apiKey,
		sender: sender,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

type sgAddress struct {
	Email string `json:"email"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgRequest struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

// Send delivers the report to the destination address.
func (d *SendGridDispatcher) Send(ctx context.Context, result pipeline.Result, destination string) (pipeline.DispatchStatus, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" || !strings.Contains(destination, "@") {
		return pipeline.DispatchFailed, fmt.Errorf("invalid destination address")
	}

	payload, err := json.Marshal(sgRequest{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: destination}}}},
		From:             sgAddress{Email: d.sender},
		Subject:          subject(result),
		Content:          []sgContent{{Type: "text/html", Value: HTMLBody(result)}},
	})
	if err != nil {
		return pipeline.DispatchFailed, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendGridURL, bytes.NewReader(payload))
	if err != nil {
		return pipeline.DispatchFailed, err
	}
	req.Header.Set("Authorization", "Bearer "+d.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return pipeline.DispatchFailed, fmt.Errorf("sendgrid request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return pipeline.DispatchFailed, fmt.Errorf("sendgrid http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return pipeline.DispatchSent, nil
}

func subject(result pipeline.Result) string {
	if result.Rejection != nil {
		return fmt.Sprintf("Contract review: %s could not be analyzed", result.FileName)
	}
	return fmt.Sprintf("Contract review: %s — %s (risk %d)",
		result.FileName, strings.ToUpper(string(result.Recommendation)), result.RiskScore)
}

var _ pipeline.ReportDispatcher = (*SendGridDispatcher)(nil)
