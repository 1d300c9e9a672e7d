package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrNotConfigured = errors.New("email service not configured")

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

type BrevoService struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	Endpoint    string

	client *http.Client
	logger *zap.Logger
}

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
	Tags        []string            `json:"tags,omitempty"`
}

type brevoResponse struct {
	MessageID string `json:"messageId"`
}

// NewBrevoService returns a Noop notifier when the credentials are incomplete,
// so a missing email setup never breaks payment processing.
func NewBrevoService(apiKey, senderEmail, senderName string, logger *zap.Logger) Notifier {
	if apiKey == "" || senderEmail == "" || senderName == "" {
		logger.Warn("Email service not configured. Missing API Key, Sender Email, or Sender Name.")
		return Noop{}
	}

	logger.Info("Email service initialized", zap.String("sender", senderEmail))
	return &BrevoService{
		APIKey:      apiKey,
		SenderEmail: senderEmail,
		SenderName:  senderName,
		Endpoint:    brevoEndpoint,
		client:      &http.Client{Timeout: 10 * time.Second},
		logger:      logger,
	}
}

func (s *BrevoService) Send(ctx context.Context, kind Kind, msg Message) Result {
	subject, body, err := Render(kind, msg)
	if err != nil {
		return Failed(err)
	}

	messageID, err := s.send(ctx, msg.ToEmail, msg.ToName, subject, body, string(kind))
	if err != nil {
		s.logger.Error("Failed to send email", zap.String("kind", string(kind)), zap.String("to", msg.ToEmail), zap.Error(err))
		return Failed(err)
	}

	s.logger.Info("Email sent", zap.String("kind", string(kind)), zap.String("to", msg.ToEmail), zap.String("messageId", messageID))
	return Result{Success: true, MessageID: messageID}
}

func (s *BrevoService) send(ctx context.Context, toEmail, toName, subject, htmlContent, tag string) (string, error) {
	if toEmail == "" || !strings.Contains(toEmail, "@") {
		return "", fmt.Errorf("invalid recipient email: %s", toEmail)
	}

	recipientName := toName
	if recipientName == "" {
		recipientName = toEmail[:strings.Index(toEmail, "@")]
	}

	payload := brevoPayload{
		Sender:      map[string]string{"name": s.SenderName, "email": s.SenderEmail},
		To:          []map[string]string{{"email": toEmail, "name": recipientName}},
		Subject:     subject,
		HTMLContent: htmlContent,
		Tags:        []string{tag},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", s.APIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("brevo returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var out brevoResponse
	if err := json.Unmarshal(bodyBytes, &out); err != nil {
		return "", fmt.Errorf("failed to decode brevo response: %w", err)
	}
	return out.MessageID, nil
}
