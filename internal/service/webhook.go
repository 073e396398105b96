package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/vkazarin/tokenguard/internal/models"
)

const (
	defaultHTTPStatusThreshold = 300
)

// WebhookService delivers security alerts to an external receiver.
// Dispatch is fire-and-forget: delivery failures are logged, never
// propagated to the caller.
type WebhookService struct {
	client     *http.Client
	log        *zap.SugaredLogger
	webhookURL string
}

func NewWebhookService(log *zap.SugaredLogger, webhookURL string) *WebhookService {
	return &WebhookService{
		client:     &http.Client{},
		log:        log,
		webhookURL: webhookURL,
	}
}

func (s *WebhookService) Dispatch(ctx context.Context, alert models.SecurityAlert) {
	go func() {
		if s.webhookURL == "" {
			return
		}

		payload, err := json.Marshal(alert)
		if err != nil {
			s.log.Errorw("failed to marshal alert payload", "error", err)
			return
		}

		req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, s.webhookURL, bytes.NewBuffer(payload))
		if err != nil {
			s.log.Errorw("failed to create webhook request", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			s.log.Errorw("failed to send security alert", "error", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= defaultHTTPStatusThreshold {
			s.log.Warnw("alert webhook returned non-2xx status", "status", resp.StatusCode)
		}
	}()
}
