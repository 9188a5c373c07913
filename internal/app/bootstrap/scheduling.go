package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/voice-agent-scheduling/internal/actiontoken"
	"github.com/wolfman30/voice-agent-scheduling/internal/appointments"
	"github.com/wolfman30/voice-agent-scheduling/internal/audit"
	appconfig "github.com/wolfman30/voice-agent-scheduling/internal/config"
	"github.com/wolfman30/voice-agent-scheduling/internal/notify"
	"github.com/wolfman30/voice-agent-scheduling/internal/observability/metrics"
	"github.com/wolfman30/voice-agent-scheduling/internal/organizations"
	"github.com/wolfman30/voice-agent-scheduling/internal/reminders"
	"github.com/wolfman30/voice-agent-scheduling/pkg/logging"
)

// Scheduling is the wired appointment and reminder graph shared by the API
// server and the reminder worker.
type Scheduling struct {
	Appointments *appointments.Service
	Store        *appointments.Store
	Settings     *reminders.SettingsStore
	Orchestrator *reminders.Orchestrator
	Profiles     *organizations.Store
	Signer       *actiontoken.Signer
	Mailer       *notify.AppointmentMailer
	Metrics      *metrics.SchedulingMetrics
	EmailVia     string
}

// Deps are the long-lived connections the graph is built on.
type Deps struct {
	Pool     *pgxpool.Pool
	Audit    *audit.Service
	Redis    *redis.Client
	Registry prometheus.Registerer
}

// BuildScheduling wires stores, transports and services from cfg.
// ACTION_TOKEN_SECRET is required outside development; without it attendee
// action links are disabled.
func BuildScheduling(ctx context.Context, cfg *appconfig.Config, deps Deps, logger *logging.Logger) (*Scheduling, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if deps.Pool == nil {
		return nil, fmt.Errorf("bootstrap: postgres pool is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	out := &Scheduling{
		Store:    appointments.NewStore(deps.Pool),
		Settings: reminders.NewSettingsStore(deps.Pool),
		Profiles: BuildProfileStore(deps.Redis),
		Metrics:  metrics.NewSchedulingMetrics(deps.Registry),
	}

	var links notify.LinkIssuer
	if cfg.ActionTokenSecret != "" {
		signer, err := actiontoken.NewSigner(cfg.ActionTokenSecret, cfg.ActionTokenTTL)
		if err != nil {
			return nil, err
		}
		out.Signer = signer
		links = signer
	} else if cfg.Env == "production" {
		return nil, fmt.Errorf("bootstrap: ACTION_TOKEN_SECRET is required in production")
	} else {
		logger.Warn("bootstrap: ACTION_TOKEN_SECRET not set; attendee action links disabled")
	}

	var branding notify.BrandingSource
	var hours reminders.HoursSource
	if out.Profiles != nil {
		branding = out.Profiles
		hours = out.Profiles
	} else {
		logger.Warn("bootstrap: redis unavailable; default branding and business hours in use")
	}

	sender, provider, err := BuildEmailSender(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	out.EmailVia = provider
	mailer := notify.NewAppointmentMailer(sender, links, branding, cfg.PublicBaseURL, logger)

	phone, err := BuildPhoneChannels(cfg, links, branding, logger)
	if err != nil {
		return nil, err
	}

	svc := appointments.NewService(out.Store, logger).
		WithContacts(out.Store).
		WithNotifier(mailer).
		WithMetrics(out.Metrics)
	if out.Signer != nil {
		svc.WithTokens(out.Signer)
	}
	if deps.Audit != nil {
		svc.WithAudit(deps.Audit)
	}
	out.Appointments = svc
	out.Mailer = mailer

	var sms reminders.SMSReminder
	if phone.SMS != nil {
		sms = phone.SMS
	}
	var calls reminders.CallReminder
	if phone.Calls != nil {
		calls = phone.Calls
	}
	orch := reminders.NewOrchestrator(out.Store, out.Settings, mailer, sms, calls, logger).
		WithHours(hours).
		WithMetrics(out.Metrics).
		WithWorkers(cfg.ReminderWorkers).
		WithSendTimeout(cfg.ReminderSendTimeout).
		WithTolerance(cfg.ReminderTolerance)
	if deps.Audit != nil {
		orch.WithAudit(deps.Audit)
	}
	out.Orchestrator = orch

	logger.Info("bootstrap: scheduling wired",
		"email_provider", provider,
		"sms_reminders", sms != nil,
		"call_reminders", calls != nil,
		"action_links", out.Signer != nil,
	)
	return out, nil
}
