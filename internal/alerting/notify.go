// Package alerting - notify.go defines the notification channel contract.
//
// DESIGN: Delivery mechanics (email/SMS/webhook transport) live outside
// this system; the engine only hands a webhook-shaped JSON payload to an
// abstract channel. LogNotifier is the built-in channel that writes the
// payload to the structured log.
package alerting

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/sjson"
)

// Notifier sends a triggered alert to a named channel. Failures are caught
// per-channel by the engine and never abort the alert's persistence.
type Notifier interface {
	Send(ctx context.Context, alert Alert, channel string) error
}

// EncodeAlertPayload builds the webhook-shaped JSON body handed to
// notification transports.
func EncodeAlertPayload(alert Alert, channel string) ([]byte, error) {
	body := "{}"
	var err error

	set := func(path string, value any) {
		if err != nil {
			return
		}
		body, err = sjson.Set(body, path, value)
	}

	set("channel", channel)
	set("alert.id", alert.ID)
	set("alert.rule_id", alert.RuleID)
	set("alert.rule_name", alert.RuleName)
	set("alert.metric", string(alert.Metric))
	set("alert.value", alert.Value)
	set("alert.severity", string(alert.Severity))
	set("alert.message", alert.Message)
	set("alert.triggered_at", alert.TriggeredAt)
	for k, v := range alert.Details {
		set("alert.details."+k, v)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to encode alert payload: %w", err)
	}
	return []byte(body), nil
}

// LogNotifier writes alert notifications to the structured log.
type LogNotifier struct{}

// Send implements Notifier.
func (LogNotifier) Send(_ context.Context, alert Alert, channel string) error {
	payload, err := EncodeAlertPayload(alert, channel)
	if err != nil {
		return err
	}
	log.Warn().
		Str("channel", channel).
		RawJSON("payload", payload).
		Msg("alert_notification")
	return nil
}

var _ Notifier = LogNotifier{}
