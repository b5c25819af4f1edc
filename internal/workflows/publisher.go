package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/auth"
	"github.com/blink-new/carbonn-ai-automation-integration-platform-iv9a3lhg/internal/events"
)

var marshalJSON = json.Marshal

// ControlPlanePublisher forwards persisted events to the control plane so
// that its live subscribers see turns executed by the worker.
type ControlPlanePublisher struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	requestTimeout time.Duration
	logger         zerolog.Logger
}

func NewControlPlanePublisher(baseURL string, token string, logger zerolog.Logger) *ControlPlanePublisher {
	return &ControlPlanePublisher{
		baseURL:        strings.TrimRight(baseURL, "/"),
		token:          token,
		httpClient:     &http.Client{},
		requestTimeout: 5 * time.Second,
		logger:         logger,
	}
}

func (p *ControlPlanePublisher) Publish(event events.Event) {
	if err := p.post(context.Background(), event); err != nil {
		p.logger.Warn().Err(err).
			Str("conversation_id", event.ConversationID).
			Int64("seq", event.Seq).
			Msg("forward event")
	}
}

func (p *ControlPlanePublisher) post(ctx context.Context, event events.Event) error {
	url := fmt.Sprintf("%s/conversations/%s/events", p.baseURL, event.ConversationID)
	body, err := marshalJSON(map[string]any{
		"type":      event.Type,
		"source":    event.Source,
		"timestamp": event.Ts,
		"trace_id":  event.TraceID,
		"seq":       event.Seq,
		"payload":   event.Payload,
	})
	if err != nil {
		return err
	}
	requestCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.ServiceTokenHeader, p.token)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("control plane event failed: %s", resp.Status)
	}
	return nil
}
