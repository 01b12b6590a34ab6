package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/spec-kit/helpdesk/internal/config"
)

// DefaultSMSMaxLength is ten concatenated segments.
const DefaultSMSMaxLength = 1600

var e164Pattern = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// NormalizePhone strips common separators and validates the result as E.164.
func NormalizePhone(raw string) (string, error) {
	phone := phoneSeparators.Replace(strings.TrimSpace(raw))
	if !e164Pattern.MatchString(phone) {
		return "", fmt.Errorf("invalid phone number format: %s", raw)
	}
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	return phone, nil
}

// Truncate shortens body to max characters, ending with "..." when cut.
func Truncate(body string, max int) string {
	if max <= 0 {
		max = DefaultSMSMaxLength
	}
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// SMSSender delivers text messages.
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// NewSMSSender picks the provider named in cfg.
func NewSMSSender(cfg config.SMSConfig, client *http.Client) SMSSender {
	max := cfg.MaxLength
	if max <= 0 {
		max = DefaultSMSMaxLength
	}
	switch cfg.Provider {
	case "custom":
		if cfg.CustomAPIURL == "" {
			return disabledSMS{}
		}
		return &HTTPSMSSender{url: cfg.CustomAPIURL, apiKey: cfg.CustomAPIKey, client: client, maxLength: max}
	default:
		if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioFromNumber == "" {
			return disabledSMS{}
		}
		return NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, max)
	}
}

// TwilioSender sends through the Twilio Messages API.
type TwilioSender struct {
	client    *twilio.RestClient
	from      string
	maxLength int
}

// NewTwilioSender builds a Twilio-backed sender.
func NewTwilioSender(accountSID, authToken, from string, maxLength int) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{client: client, from: from, maxLength: maxLength}
}

func (s *TwilioSender) Send(ctx context.Context, to, body string) error {
	phone, err := NormalizePhone(to)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(phone)
	params.SetFrom(s.from)
	params.SetBody(Truncate(body, s.maxLength))

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send to %s: %w", phone, err)
	}
	return nil
}

// HTTPSMSSender posts {"to","message"} to a custom gateway.
type HTTPSMSSender struct {
	url       string
	apiKey    string
	client    *http.Client
	maxLength int
}

// NewHTTPSMSSender builds a sender for a custom JSON gateway.
func NewHTTPSMSSender(url, apiKey string, client *http.Client, maxLength int) *HTTPSMSSender {
	return &HTTPSMSSender{url: url, apiKey: apiKey, client: client, maxLength: maxLength}
}

func (s *HTTPSMSSender) Send(ctx context.Context, to, body string) error {
	phone, err := NormalizePhone(to)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(map[string]string{
		"to":      phone,
		"message": Truncate(body, s.maxLength),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	client := s.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

type disabledSMS struct{}

func (disabledSMS) Send(context.Context, string, string) error {
	return ErrNotConfigured
}
