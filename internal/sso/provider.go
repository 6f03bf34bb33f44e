package sso

import (
	"context"

	"github.com/redhat-developer/podman-desktop-redhat-account-ext/pkg/oauth"
)

// Provider is the surface the host sees: scope lists in, sessions and
// change events out.
type Provider struct {
	service *Service
	bus     *Bus
}

// NewProvider wraps service. Events are published on bus, which must be
// the bus the service was created with.
func NewProvider(service *Service, bus *Bus) *Provider {
	return &Provider{service: service, bus: bus}
}

// CreateSession runs an interactive login for scopes.
func (p *Provider) CreateSession(ctx context.Context, scopes []string) (Session, error) {
	session, err := p.service.CreateSession(ctx, oauth.CanonicalScope(scopes))
	if err != nil {
		return Session{}, err
	}
	p.bus.Publish(ChangeEvent{Added: []Session{session}})
	return session, nil
}

// GetSessions returns the sessions granted scopes, or every session when
// scopes is nil.
func (p *Provider) GetSessions(ctx context.Context, scopes []string) ([]Session, error) {
	return p.service.GetSessions(ctx, scopes)
}

// RemoveSession signs out one session. Unknown ids are ignored.
func (p *Provider) RemoveSession(ctx context.Context, sessionID string) error {
	session, err := p.service.RemoveSession(ctx, sessionID)
	if session != nil {
		p.bus.Publish(ChangeEvent{Removed: []Session{*session}})
	}
	return err
}

// SignOutAll removes every session.
func (p *Provider) SignOutAll(ctx context.Context) error {
	removed := p.service.Snapshot()
	if err := p.service.ClearSessions(ctx); err != nil {
		return err
	}
	p.bus.Publish(ChangeEvent{Removed: removed})
	return nil
}

// Events subscribes to session changes. Call the returned function to
// unsubscribe.
func (p *Provider) Events() (<-chan ChangeEvent, func()) {
	return p.bus.Subscribe()
}
