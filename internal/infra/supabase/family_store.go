package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/resilience"
)

// ============================================================
// Family links and requests (implements port.FamilyStore)
// ============================================================

type familyRequestRow struct {
	ID           string    `json:"id"`
	FromUserID   string    `json:"from_user_id"`
	FromUsername string    `json:"from_username"`
	ToUserID     string    `json:"to_user_id"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

func (r familyRequestRow) toDomain() domain.FamilyRequest {
	return domain.FamilyRequest{
		ID:           r.ID,
		FromUserID:   r.FromUserID,
		FromUsername: r.FromUsername,
		ToUserID:     r.ToUserID,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
	}
}

// ListFamilyMemberIDs returns the ids linked to the user.
func (c *Client) ListFamilyMemberIDs(ctx context.Context, userID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListFamilyMemberIDs")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	q := url.Values{}
	q.Set("select", "member_id")
	q.Set("user_id", "eq."+userID)

	var ids []string
	err := c.call(ctx, "supabase/family_links", func() error {
		var rows []struct {
			MemberID string `json:"member_id"`
		}
		if err := c.getRows(ctx, "/rest/v1/family_links?"+q.Encode(), &rows); err != nil {
			return err
		}
		ids = make([]string, 0, len(rows))
		for _, r := range rows {
			ids = append(ids, r.MemberID)
		}
		return nil
	})
	return ids, err
}

// CreateFamilyRequest stores a new pending request.
func (c *Client) CreateFamilyRequest(ctx context.Context, req *domain.FamilyRequest) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateFamilyRequest")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", req.ID))

	r, err := jsonRequest(http.MethodPost, "/rest/v1/family_requests", familyRequestRow{
		ID:           req.ID,
		FromUserID:   req.FromUserID,
		FromUsername: req.FromUsername,
		ToUserID:     req.ToUserID,
		Status:       req.Status,
		CreatedAt:    req.CreatedAt,
	}, "return=minimal")
	if err != nil {
		return err
	}
	return c.call(ctx, "supabase/family_requests", func() error {
		_, err := c.do(ctx, r)
		return err
	})
}

// GetFamilyRequest fetches a request by id.
func (c *Client) GetFamilyRequest(ctx context.Context, requestID string) (*domain.FamilyRequest, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetFamilyRequest")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID))

	q := url.Values{}
	q.Set("id", "eq."+requestID)
	q.Set("limit", "1")

	var out *domain.FamilyRequest
	err := c.call(ctx, "supabase/family_requests", func() error {
		var rows []familyRequestRow
		if err := c.getRows(ctx, "/rest/v1/family_requests?"+q.Encode(), &rows); err != nil {
			return err
		}
		if len(rows) == 0 {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "family request", ID: requestID})
		}
		fr := rows[0].toDomain()
		out = &fr
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HasPendingRequest reports whether from has a pending request to to.
func (c *Client) HasPendingRequest(ctx context.Context, fromUserID, toUserID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.HasPendingRequest")
	defer span.End()

	q := url.Values{}
	q.Set("select", "id")
	q.Set("from_user_id", "eq."+fromUserID)
	q.Set("to_user_id", "eq."+toUserID)
	q.Set("status", "eq."+domain.RequestPending)
	q.Set("limit", "1")

	var found bool
	err := c.call(ctx, "supabase/family_requests", func() error {
		var rows []struct {
			ID string `json:"id"`
		}
		if err := c.getRows(ctx, "/rest/v1/family_requests?"+q.Encode(), &rows); err != nil {
			return err
		}
		found = len(rows) > 0
		return nil
	})
	return found, err
}

// ListPendingRequests returns pending requests addressed to the user, newest first.
func (c *Client) ListPendingRequests(ctx context.Context, toUserID string) ([]domain.FamilyRequest, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListPendingRequests")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", toUserID))

	q := url.Values{}
	q.Set("to_user_id", "eq."+toUserID)
	q.Set("status", "eq."+domain.RequestPending)
	q.Set("order", "created_at.desc")

	var out []domain.FamilyRequest
	err := c.call(ctx, "supabase/family_requests", func() error {
		var rows []familyRequestRow
		if err := c.getRows(ctx, "/rest/v1/family_requests?"+q.Encode(), &rows); err != nil {
			return err
		}
		out = make([]domain.FamilyRequest, 0, len(rows))
		for _, r := range rows {
			out = append(out, r.toDomain())
		}
		return nil
	})
	return out, err
}

// AcceptFamilyRequest calls the accept_family_request function, which links
// both users and marks the request accepted in a single transaction.
func (c *Client) AcceptFamilyRequest(ctx context.Context, req *domain.FamilyRequest) error {
	ctx, span := tracer.Start(ctx, "Supabase.AcceptFamilyRequest")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", req.ID))

	r, err := jsonRequest(http.MethodPost, "/rest/v1/rpc/accept_family_request",
		map[string]string{"request_id": req.ID}, "")
	if err != nil {
		return err
	}
	return c.call(ctx, "supabase/family_requests", func() error {
		_, err := c.do(ctx, r)
		return err
	})
}

// UpdateFamilyRequestStatus sets the status of a request.
func (c *Client) UpdateFamilyRequestStatus(ctx context.Context, requestID, status string) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateFamilyRequestStatus")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID), attribute.String("status", status))

	q := url.Values{}
	q.Set("id", "eq."+requestID)
	r, err := jsonRequest(http.MethodPatch, "/rest/v1/family_requests?"+q.Encode(),
		map[string]string{"status": status}, "return=minimal")
	if err != nil {
		return err
	}
	return c.call(ctx, "supabase/family_requests", func() error {
		_, err := c.do(ctx, r)
		return err
	})
}

// RemoveFamilyLink deletes the link in both directions with one statement.
func (c *Client) RemoveFamilyLink(ctx context.Context, userID, memberID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.RemoveFamilyLink")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("member.id", memberID))

	q := url.Values{}
	q.Set("or", fmt.Sprintf("(and(user_id.eq.%s,member_id.eq.%s),and(user_id.eq.%s,member_id.eq.%s))",
		userID, memberID, memberID, userID))

	return c.call(ctx, "supabase/family_links", func() error {
		_, err := c.do(ctx, request{method: http.MethodDelete, path: "/rest/v1/family_links?" + q.Encode()})
		return err
	})
}

// ============================================================
// Shared expenses
// ============================================================

type sharedExpenseRow struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Date        domain.Date     `json:"date"`
	SharedWith  []string        `json:"shared_with"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (r sharedExpenseRow) toDomain() domain.SharedExpense {
	return domain.SharedExpense{
		ID:          r.ID,
		UserID:      r.UserID,
		Description: r.Description,
		Amount:      r.Amount,
		Category:    r.Category,
		Date:        r.Date,
		SharedWith:  r.SharedWith,
		CreatedAt:   r.CreatedAt,
	}
}

// CreateSharedExpense inserts into family_transactions.
func (c *Client) CreateSharedExpense(ctx context.Context, e *domain.SharedExpense) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateSharedExpense")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", e.UserID), attribute.Int("shared_with", len(e.SharedWith)))

	r, err := jsonRequest(http.MethodPost, "/rest/v1/family_transactions", sharedExpenseRow{
		ID:          e.ID,
		UserID:      e.UserID,
		Description: e.Description,
		Amount:      e.Amount,
		Category:    e.Category,
		Date:        e.Date,
		SharedWith:  e.SharedWith,
		CreatedAt:   e.CreatedAt,
	}, "return=minimal")
	if err != nil {
		return err
	}
	return c.call(ctx, "supabase/family_transactions", func() error {
		_, err := c.do(ctx, r)
		return err
	})
}

// ListSharedExpenses returns up to limit expenses created by the user, newest first.
func (c *Client) ListSharedExpenses(ctx context.Context, userID string, limit int) ([]domain.SharedExpense, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListSharedExpenses")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.Int("limit", limit))

	q := url.Values{}
	q.Set("user_id", "eq."+userID)
	q.Set("order", "created_at.desc")
	q.Set("limit", strconv.Itoa(limit))

	var out []domain.SharedExpense
	err := c.call(ctx, "supabase/family_transactions", func() error {
		var rows []sharedExpenseRow
		if err := c.getRows(ctx, "/rest/v1/family_transactions?"+q.Encode(), &rows); err != nil {
			return err
		}
		out = make([]domain.SharedExpense, 0, len(rows))
		for _, r := range rows {
			out = append(out, r.toDomain())
		}
		return nil
	})
	return out, err
}
