package supabase

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/resilience"
)

// ============================================================
// Profiles (implements port.ProfileStore)
// ============================================================

type profileRow struct {
	UserID         string     `json:"user_id"`
	FullName       string     `json:"full_name"`
	Username       *string    `json:"username"`
	Email          string     `json:"email,omitempty"`
	Mobile         string     `json:"mobile,omitempty"`
	Currency       string     `json:"currency,omitempty"`
	ProfilePicture string     `json:"profile_picture,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
}

func (r profileRow) toDomain() *domain.UserProfile {
	p := &domain.UserProfile{
		UserID:         r.UserID,
		FullName:       r.FullName,
		Email:          r.Email,
		Mobile:         r.Mobile,
		Currency:       r.Currency,
		ProfilePicture: r.ProfilePicture,
	}
	if r.Username != nil {
		p.Username = *r.Username
	}
	if r.CreatedAt != nil {
		p.CreatedAt = *r.CreatedAt
	}
	return p
}

// GetProfile fetches the user's profile.
func (c *Client) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	q := url.Values{}
	q.Set("user_id", "eq."+userID)
	q.Set("limit", "1")
	return c.findProfile(ctx, q, userID)
}

// FindProfileByUsername looks a profile up by its unique username.
func (c *Client) FindProfileByUsername(ctx context.Context, username string) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.FindProfileByUsername")
	defer span.End()

	q := url.Values{}
	q.Set("username", "eq."+username)
	q.Set("limit", "1")
	return c.findProfile(ctx, q, username)
}

func (c *Client) findProfile(ctx context.Context, q url.Values, key string) (*domain.UserProfile, error) {
	var profile *domain.UserProfile
	err := c.call(ctx, "supabase/profiles", func() error {
		var rows []profileRow
		if err := c.getRows(ctx, "/rest/v1/profiles?"+q.Encode(), &rows); err != nil {
			return err
		}
		if len(rows) == 0 {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "profile", ID: key})
		}
		profile = rows[0].toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// UpsertProfile creates or replaces the user's profile row.
func (c *Client) UpsertProfile(ctx context.Context, p *domain.UserProfile) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", p.UserID))

	row := profileRow{
		UserID:         p.UserID,
		FullName:       p.FullName,
		Email:          p.Email,
		Mobile:         p.Mobile,
		Currency:       p.Currency,
		ProfilePicture: p.ProfilePicture,
	}
	if p.Username != "" {
		row.Username = &p.Username
	}

	r, err := jsonRequest(http.MethodPost, "/rest/v1/profiles?on_conflict=user_id", row,
		"resolution=merge-duplicates,return=minimal")
	if err != nil {
		return err
	}
	return c.call(ctx, "supabase/profiles", func() error {
		_, err := c.do(ctx, r)
		return err
	})
}
