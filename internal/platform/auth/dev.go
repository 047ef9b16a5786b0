package auth

import (
	"context"
	"net/http"
)

// DevAuthenticator injects a fixed identity. Local development only.
type DevAuthenticator struct {
	cfg Config
}

func NewDevAuthenticator(cfg Config) *DevAuthenticator {
	return &DevAuthenticator{cfg: cfg}
}

func (a *DevAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	return Identity{
		Subject: a.cfg.DevSubject,
		Email:   a.cfg.DevEmail,
		Roles:   a.cfg.DevRoles,
	}, nil
}
