package notifier

import (
	"context"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"mediawatch/internal/storage"
)

// Sender delivers one encrypted push payload to one endpoint and reports the
// provider's HTTP status code.
type Sender interface {
	Send(ctx context.Context, payload []byte, sub storage.PushSubscription) (status int, err error)
}

// WebPushConfig carries the VAPID credentials for RFC 8030 push delivery.
type WebPushConfig struct {
	Subscriber      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTL             int // seconds; 0 means a 12h default
}

type webPushSender struct {
	cfg WebPushConfig
	hc  *http.Client
}

// NewWebPushSender builds the production Sender on webpush-go.
func NewWebPushSender(cfg WebPushConfig) Sender {
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * 60 * 60
	}
	return &webPushSender{
		cfg: cfg,
		hc:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *webPushSender) Send(ctx context.Context, payload []byte, sub storage.PushSubscription) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      w.hc,
		Subscriber:      w.cfg.Subscriber,
		VAPIDPublicKey:  w.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: w.cfg.VAPIDPrivateKey,
		TTL:             w.cfg.TTL,
	})
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	return resp.StatusCode, nil
}
