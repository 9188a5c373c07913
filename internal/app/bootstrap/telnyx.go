package bootstrap

import (
	"strings"

	appconfig "github.com/wolfman30/voice-agent-scheduling/internal/config"
	"github.com/wolfman30/voice-agent-scheduling/internal/notify"
	"github.com/wolfman30/voice-agent-scheduling/internal/telnyx"
	"github.com/wolfman30/voice-agent-scheduling/pkg/logging"
)

// PhoneChannels holds the optional SMS and voice reminder transports.
// Either field is nil when its Telnyx settings are missing.
type PhoneChannels struct {
	SMS   *notify.SMSReminderSender
	Calls *notify.ReminderCaller
}

// BuildPhoneChannels wires Telnyx messaging and call control. Both channels
// need TELNYX_API_KEY and TELNYX_FROM_NUMBER; calls also need a connection id.
func BuildPhoneChannels(cfg *appconfig.Config, links notify.LinkIssuer, branding notify.BrandingSource, logger *logging.Logger) (PhoneChannels, error) {
	if logger == nil {
		logger = logging.Default()
	}
	var out PhoneChannels
	if cfg == nil || strings.TrimSpace(cfg.TelnyxAPIKey) == "" || strings.TrimSpace(cfg.TelnyxFromNumber) == "" {
		logger.Info("bootstrap: telnyx not configured; sms and call reminders disabled")
		return out, nil
	}

	client, err := telnyx.New(telnyx.Config{
		APIKey:     cfg.TelnyxAPIKey,
		MaxRetries: 2,
		Logger:     logger.Logger,
	})
	if err != nil {
		return out, err
	}

	out.SMS = notify.NewSMSReminderSender(client, notify.SMSConfig{
		FromNumber:         cfg.TelnyxFromNumber,
		MessagingProfileID: cfg.TelnyxMessagingProfileID,
		PublicBaseURL:      cfg.PublicBaseURL,
	}, links, branding, logger)

	if strings.TrimSpace(cfg.TelnyxConnectionID) != "" {
		out.Calls = notify.NewReminderCaller(client, cfg.TelnyxConnectionID, cfg.TelnyxFromNumber, logger)
	} else {
		logger.Info("bootstrap: TELNYX_CONNECTION_ID not set; call reminders disabled")
	}
	return out, nil
}
