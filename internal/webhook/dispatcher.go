// Package webhook delivers job-completion notifications to a registered
// HTTP endpoint, signing each payload so receivers can verify origin.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/icp-analyzer/internal/model"
	"github.com/sells-group/icp-analyzer/internal/resilience"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the request body.
const SignatureHeader = "X-ICP-Signature"

// RegistrationStore is the slice of the store the dispatcher needs.
type RegistrationStore interface {
	CurrentWebhook(ctx context.Context) (*model.WebhookRegistration, error)
	RecordDelivery(ctx context.Context, rec model.DeliveryRecord) error
}

// Dispatcher posts job summaries to the registered webhook. Transient
// delivery failures are retried up to MaxAttempts; a 4xx response is
// permanent and gets exactly one attempt. Every outcome is recorded.
type Dispatcher struct {
	client      *http.Client
	store       RegistrationStore
	fallback    string // secret used when the job overrides the registered URL
	maxAttempts int
	backoff     time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHTTPClient overrides the HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) { d.client = c }
}

// WithMaxAttempts sets the attempt budget for transient failures.
func WithMaxAttempts(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxAttempts = n
		}
	}
}

// WithInitialBackoff sets the delay before the first retry.
func WithInitialBackoff(delay time.Duration) Option {
	return func(d *Dispatcher) {
		if delay > 0 {
			d.backoff = delay
		}
	}
}

// NewDispatcher builds a dispatcher. fallbackSecret signs deliveries to
// per-job override URLs, which have no stored registration.
func NewDispatcher(store RegistrationStore, fallbackSecret string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:      &http.Client{Timeout: 10 * time.Second},
		store:       store,
		fallback:    fallbackSecret,
		maxAttempts: 3,
		backoff:     500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify delivers the job's terminal summary. A job with no webhook URL
// and no registration is a no-op. The returned error reflects delivery
// failure after the delivery record has been written.
func (d *Dispatcher) Notify(ctx context.Context, job *model.Job) error {
	url := job.WebhookURL
	secret := d.fallback
	if url == "" {
		reg, err := d.store.CurrentWebhook(ctx)
		if err != nil {
			return eris.Wrap(err, "webhook: loading registration")
		}
		if reg == nil {
			zap.L().Debug("no webhook registered, skipping notification",
				zap.String("job_id", job.ID))
			return nil
		}
		url = reg.URL
		secret = reg.Secret
	}

	body, err := json.Marshal(job.Summary())
	if err != nil {
		return eris.Wrap(err, "webhook: encoding summary")
	}

	attempts := 0
	deliverErr := resilience.Do(ctx, resilience.RetryConfig{
		MaxAttempts:    d.maxAttempts,
		InitialBackoff: d.backoff,
		OnRetry:        resilience.RetryLogger("webhook", "notify"),
	}, func(ctx context.Context) error {
		attempts++
		return d.post(ctx, url, secret, body)
	})

	rec := model.DeliveryRecord{
		JobID:    job.ID,
		URL:      url,
		Attempts: attempts,
		Success:  deliverErr == nil,
	}
	if deliverErr != nil {
		rec.Error = deliverErr.Error()
		rec.Permanent = resilience.IsPermanent(deliverErr)
	}
	if err := d.store.RecordDelivery(ctx, rec); err != nil {
		zap.L().Error("failed to record webhook delivery",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}

	if deliverErr != nil {
		return eris.Wrapf(deliverErr, "webhook: delivering job %s", job.ID)
	}
	zap.L().Info("webhook delivered",
		zap.String("job_id", job.ID),
		zap.String("url", url),
		zap.Int("attempts", attempts))
	return nil
}

func (d *Dispatcher) post(ctx context.Context, url, secret string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "webhook: building request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(secret, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return resilience.NewTransientError(err, 0)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && !resilience.IsTransientHTTPStatus(resp.StatusCode):
		return resilience.NewPermanentError(eris.Errorf("receiver returned %s", resp.Status), resp.StatusCode)
	default:
		return resilience.NewTransientError(eris.Errorf("receiver returned %s", resp.Status), resp.StatusCode)
	}
}

// Sign computes the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is a valid signature for body under secret.
// Comparison is constant time.
func Verify(secret string, body []byte, sig string) bool {
	expected, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}
