package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sentinelpay/fraudgate/internal/logging"
	"github.com/sentinelpay/fraudgate/internal/metrics"
	"github.com/sentinelpay/fraudgate/internal/retry"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// TwilioNotifier sends SMS through the Twilio Messages REST API.
type TwilioNotifier struct {
	accountSID string
	authToken  string
	from       string
	apiBase    string
	client     *http.Client
}

// TwilioOption configures the notifier.
type TwilioOption func(*TwilioNotifier)

// WithAPIBase overrides the Twilio API base URL (tests).
func WithAPIBase(base string) TwilioOption {
	return func(t *TwilioNotifier) { t.apiBase = strings.TrimRight(base, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) TwilioOption {
	return func(t *TwilioNotifier) { t.client = c }
}

// NewTwilioNotifier creates a Twilio-backed notifier. timeout is the
// transport ceiling for a single API call.
func NewTwilioNotifier(accountSID, authToken, from string, timeout time.Duration, opts ...TwilioOption) *TwilioNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	t := &TwilioNotifier{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		apiBase:    twilioAPIBase,
		client:     &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements Notifier.
func (t *TwilioNotifier) Name() string { return "twilio" }

// Send delivers one SMS. Transient provider errors (5xx, transport) get a
// single retry with backoff; 4xx responses are permanent and fail immediately.
func (t *TwilioNotifier) Send(ctx context.Context, destination, message string) error {
	err := retry.Do(ctx, 2, 500*time.Millisecond, func() error {
		return t.send(ctx, destination, message)
	})
	if err != nil {
		metrics.NotifySendsTotal.WithLabelValues(t.Name(), "error").Inc()
		logging.L(ctx).Error("twilio send failed",
			"to", logging.MaskDestination(destination),
			"error", err,
		)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	metrics.NotifySendsTotal.WithLabelValues(t.Name(), "ok").Inc()
	return nil
}

func (t *TwilioNotifier) send(ctx context.Context, destination, message string) error {
	form := url.Values{}
	form.Set("To", destination)
	form.Set("From", t.from)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", t.apiBase, t.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return retry.Permanent(err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	apiErr := fmt.Errorf("twilio API %d: %s", resp.StatusCode, snippet)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		// Bad credentials or bad number; retrying won't help.
		return retry.Permanent(apiErr)
	}
	return apiErr
}
