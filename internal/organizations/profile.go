// Package organizations stores per-organization profile data that the
// scheduling core reads but does not own: display name, branding and
// business hours.
package organizations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/voice-agent-scheduling/internal/businesshours"
	"github.com/wolfman30/voice-agent-scheduling/internal/notify"
)

// Profile is an organization's scheduling profile.
type Profile struct {
	OrgID         string               `json:"org_id"`
	Name          string               `json:"name"`
	TimeZone      string               `json:"time_zone"`
	Branding      notify.Branding      `json:"branding"`
	BusinessHours businesshours.Config `json:"business_hours"`
}

// DefaultProfile returns the profile used before an organization configures one.
func DefaultProfile(orgID string) *Profile {
	return &Profile{
		OrgID:         orgID,
		TimeZone:      businesshours.DefaultTimezone,
		Branding:      notify.DefaultBranding(),
		BusinessHours: businesshours.Default(),
	}
}

// Store provides persistence for organization profiles.
type Store struct {
	redis *redis.Client
}

// NewStore creates a new profile store.
func NewStore(redisClient *redis.Client) *Store {
	return &Store{redis: redisClient}
}

func (s *Store) key(orgID string) string {
	return fmt.Sprintf("org:profile:%s", orgID)
}

// Get retrieves the profile, returning the default if none is stored.
func (s *Store) Get(ctx context.Context, orgID string) (*Profile, error) {
	data, err := s.redis.Get(ctx, s.key(orgID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return DefaultProfile(orgID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("organizations: get profile: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("organizations: unmarshal profile: %w", err)
	}
	if p.OrgID == "" {
		p.OrgID = orgID
	}
	return &p, nil
}

// Set saves the profile.
func (s *Store) Set(ctx context.Context, p *Profile) error {
	if p == nil || strings.TrimSpace(p.OrgID) == "" {
		return errors.New("organizations: profile org_id required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("organizations: marshal profile: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(p.OrgID), data, 0).Err(); err != nil {
		return fmt.Errorf("organizations: set profile: %w", err)
	}
	return nil
}

// Branding satisfies notify.BrandingSource.
func (s *Store) Branding(ctx context.Context, orgID string) (notify.Branding, error) {
	p, err := s.Get(ctx, orgID)
	if err != nil {
		return notify.Branding{}, err
	}
	if strings.TrimSpace(p.Branding.CompanyName) == "" && p.Name != "" {
		p.Branding.CompanyName = p.Name
	}
	return p.Branding, nil
}

// BusinessHours returns the organization's hours config. The profile time
// zone fills in when the hours config names none.
func (s *Store) BusinessHours(ctx context.Context, orgID string) (businesshours.Config, error) {
	p, err := s.Get(ctx, orgID)
	if err != nil {
		return businesshours.Config{}, err
	}
	cfg := p.BusinessHours.Clone()
	if strings.TrimSpace(cfg.Timezone) == "" {
		cfg.Timezone = p.TimeZone
	}
	return cfg, nil
}

var _ notify.BrandingSource = (*Store)(nil)
