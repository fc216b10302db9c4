package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// WhatsAppSender delivers messages through the Twilio WhatsApp API.
type WhatsAppSender struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	httpClient *http.Client
}

// NewWhatsAppSender creates a Twilio-backed WhatsApp sender. from is the
// business WhatsApp number, e.g. "+14155238886".
func NewWhatsAppSender(accountSID, authToken, from string) *WhatsAppSender {
	return &WhatsAppSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    twilioAPIBase,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Send delivers text to the phone number in dest.Address.
func (s *WhatsAppSender) Send(ctx context.Context, dest Destination, text string) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", s.baseURL, s.accountSID)

	form := url.Values{}
	form.Set("From", ensureWhatsAppPrefix(s.from))
	form.Set("To", ensureWhatsAppPrefix(dest.Address))
	form.Set("Body", text)

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.accountSID, s.authToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("twilio error %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return Permanent(err)
		}
		return err
	}

	return nil
}

func ensureWhatsAppPrefix(number string) string {
	if strings.HasPrefix(number, "whatsapp:") {
		return number
	}
	return "whatsapp:" + number
}
