package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/cashbook-bfa-go/internal/domain"
	"github.com/boddenberg/cashbook-bfa-go/internal/infra/observability"
	"github.com/boddenberg/cashbook-bfa-go/internal/port"
	"github.com/boddenberg/cashbook-bfa-go/internal/report"
)

const (
	familyTransactionsPerMember = 50
	// sharedExpenseLimit bounds both the expense list and the stats over it.
	sharedExpenseLimit = 50
	unknownMember               = "Unknown"
	// AllMembers selects every linked member plus the caller.
	AllMembers = "all"
)

// FamilyService manages family links, shared expenses and the shared
// transaction view.
type FamilyService struct {
	store   port.Store
	metrics *observability.Metrics
	logger  *zap.Logger
	loc     *time.Location
	now     func() time.Time
}

// NewFamilyService creates a family service.
func NewFamilyService(store port.Store, loc *time.Location, metrics *observability.Metrics, logger *zap.Logger) *FamilyService {
	if loc == nil {
		loc = time.UTC
	}
	return &FamilyService{store: store, metrics: metrics, logger: logger, loc: loc, now: time.Now}
}

// ============================================================
// Requests
// ============================================================

// SendRequest invites the user with the given username.
func (s *FamilyService) SendRequest(ctx context.Context, fromUserID, username string) (*domain.FamilyRequest, error) {
	ctx, span := tracer.Start(ctx, "FamilyService.SendRequest")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", fromUserID))

	username = strings.TrimSpace(username)
	if username == "" {
		return nil, &domain.ErrValidation{Field: "username", Message: "is required"}
	}

	target, err := s.store.FindProfileByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if target.UserID == fromUserID {
		return nil, &domain.ErrValidation{Field: "username", Message: "you cannot add yourself"}
	}

	members, err := s.store.ListFamilyMemberIDs(ctx, fromUserID)
	if err != nil {
		return nil, fmt.Errorf("list family: %w", err)
	}
	if slices.Contains(members, target.UserID) {
		return nil, &domain.ErrConflict{Message: "user is already a family member"}
	}

	pending, err := s.store.HasPendingRequest(ctx, fromUserID, target.UserID)
	if err != nil {
		return nil, fmt.Errorf("check pending requests: %w", err)
	}
	if pending {
		return nil, &domain.ErrDuplicate{Key: "family request to " + username}
	}

	fromUsername := ""
	if me, err := s.store.GetProfile(ctx, fromUserID); err == nil {
		fromUsername = me.Username
	}

	req := &domain.FamilyRequest{
		ID:           uuid.NewString(),
		FromUserID:   fromUserID,
		FromUsername: fromUsername,
		ToUserID:     target.UserID,
		Status:       domain.RequestPending,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateFamilyRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("create family request: %w", err)
	}

	s.logger.Info("family request sent",
		zap.String("request_id", req.ID),
		zap.String("from", fromUserID),
		zap.String("to", target.UserID),
	)
	return req, nil
}

// PendingRequests lists the pending requests addressed to the user.
func (s *FamilyService) PendingRequests(ctx context.Context, userID string) ([]domain.FamilyRequest, error) {
	ctx, span := tracer.Start(ctx, "FamilyService.PendingRequests")
	defer span.End()

	reqs, err := s.store.ListPendingRequests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list family requests: %w", err)
	}
	if reqs == nil {
		reqs = []domain.FamilyRequest{}
	}
	return reqs, nil
}

// Accept links both users. Only the invited user can accept.
func (s *FamilyService) Accept(ctx context.Context, userID, requestID string) error {
	ctx, span := tracer.Start(ctx, "FamilyService.Accept")
	defer span.End()
	span.SetAttributes(attribute.String("request.id", requestID))

	req, err := s.pendingRequestFor(ctx, userID, requestID)
	if err != nil {
		return err
	}
	if err := s.store.AcceptFamilyRequest(ctx, req); err != nil {
		return fmt.Errorf("accept family request: %w", err)
	}

	s.logger.Info("family request accepted", zap.String("request_id", requestID))
	return nil
}

// Reject declines a request addressed to the user.
func (s *FamilyService) Reject(ctx context.Context, userID, requestID string) error {
	ctx, span := tracer.Start(ctx, "FamilyService.Reject")
	defer span.End()

	if _, err := s.pendingRequestFor(ctx, userID, requestID); err != nil {
		return err
	}
	if err := s.store.UpdateFamilyRequestStatus(ctx, requestID, domain.RequestRejected); err != nil {
		return fmt.Errorf("reject family request: %w", err)
	}
	return nil
}

func (s *FamilyService) pendingRequestFor(ctx context.Context, userID, requestID string) (*domain.FamilyRequest, error) {
	req, err := s.store.GetFamilyRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get family request: %w", err)
	}
	if req.ToUserID != userID {
		return nil, &domain.ErrForbidden{Action: "answer a family request addressed to someone else"}
	}
	if req.Status != domain.RequestPending {
		return nil, &domain.ErrConflict{Message: "family request was already " + req.Status}
	}
	return req, nil
}

// ============================================================
// Members
// ============================================================

// Members returns the profiles of the linked users. Profiles are fetched
// concurrently; a member without a profile is listed as Unknown.
func (s *FamilyService) Members(ctx context.Context, userID string) ([]domain.FamilyMember, error) {
	ctx, span := tracer.Start(ctx, "FamilyService.Members")
	defer span.End()

	ids, err := s.store.ListFamilyMemberIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list family: %w", err)
	}

	members := make([]domain.FamilyMember, len(ids))
	g, gCtx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			members[i] = domain.FamilyMember{UserID: id, FullName: unknownMember}
			p, err := s.store.GetProfile(gCtx, id)
			var nf *domain.ErrNotFound
			switch {
			case errors.As(err, &nf):
				return nil
			case err != nil:
				return fmt.Errorf("get profile %s: %w", id, err)
			}
			members[i] = domain.FamilyMember{
				UserID:   id,
				FullName: p.FullName,
				Username: p.Username,
				Email:    p.Email,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return members, nil
}

// RemoveMember unlinks the member from the user in both directions.
func (s *FamilyService) RemoveMember(ctx context.Context, userID, memberID string) error {
	ctx, span := tracer.Start(ctx, "FamilyService.RemoveMember")
	defer span.End()

	if err := s.requireMember(ctx, userID, memberID); err != nil {
		return err
	}
	if err := s.store.RemoveFamilyLink(ctx, userID, memberID); err != nil {
		return fmt.Errorf("remove family link: %w", err)
	}
	s.logger.Info("family member removed", zap.String("user_id", userID), zap.String("member_id", memberID))
	return nil
}

func (s *FamilyService) requireMember(ctx context.Context, userID, memberID string) error {
	ids, err := s.store.ListFamilyMemberIDs(ctx, userID)
	if err != nil {
		return fmt.Errorf("list family: %w", err)
	}
	if !slices.Contains(ids, memberID) {
		return &domain.ErrNotFound{Resource: "family member", ID: memberID}
	}
	return nil
}

// ============================================================
// Shared ledger
// ============================================================

// Transactions merges the latest transactions of the selected members,
// newest first. member is a member id, the user's own id, or AllMembers
// (the user plus every linked member). A member whose transactions cannot
// be loaded is skipped and logged.
func (s *FamilyService) Transactions(ctx context.Context, userID, member string) (*domain.FamilyLedger, error) {
	ctx, span := tracer.Start(ctx, "FamilyService.Transactions")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("family.member", member))

	linked, err := s.store.ListFamilyMemberIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list family: %w", err)
	}

	var ids []string
	switch {
	case member == "" || member == AllMembers:
		ids = append([]string{userID}, linked...)
	case member == userID || slices.Contains(linked, member):
		ids = []string{member}
	default:
		return nil, &domain.ErrForbidden{Action: "view transactions of a non-member"}
	}

	perMember := make([][]domain.FamilyTransaction, len(ids))
	g, gCtx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			perMember[i] = s.memberTransactions(gCtx, id)
			return gCtx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []domain.FamilyTransaction
	plain := make([]domain.Transaction, 0)
	for _, txs := range perMember {
		merged = append(merged, txs...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date.After(merged[j].Date)
	})
	for _, ft := range merged {
		plain = append(plain, ft.Transaction)
	}
	if merged == nil {
		merged = []domain.FamilyTransaction{}
	}

	return &domain.FamilyLedger{
		Transactions: merged,
		Summary:      report.Summarize(plain),
	}, nil
}

func (s *FamilyService) memberTransactions(ctx context.Context, memberID string) []domain.FamilyTransaction {
	name := unknownMember
	if p, err := s.store.GetProfile(ctx, memberID); err == nil {
		switch {
		case p.Username != "":
			name = p.Username
		case p.Email != "":
			name = p.Email
		}
	}

	raws, err := s.store.ListRecentTransactions(ctx, memberID, familyTransactionsPerMember)
	if err != nil {
		s.metrics.IncrExternalError("transactions")
		s.logger.Error("failed to load member transactions",
			zap.String("member_id", memberID),
			zap.Error(err),
		)
		return nil
	}

	batch := report.NormalizeAll(raws, s.now(), s.loc, s.logger)
	out := make([]domain.FamilyTransaction, 0, len(batch.Transactions))
	for _, tx := range batch.Transactions {
		out = append(out, domain.FamilyTransaction{Transaction: tx, MemberID: memberID, MemberName: name})
	}
	return out
}

// ============================================================
// Shared expenses
// ============================================================

// CreateSharedExpense records an expense the user split with linked members.
// Every id in SharedWith must be a current member.
func (s *FamilyService) CreateSharedExpense(ctx context.Context, userID string, req *domain.CreateSharedExpenseRequest) (*domain.SharedExpense, error) {
	ctx, span := tracer.Start(ctx, "FamilyService.CreateSharedExpense")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.Int("shared_with", len(req.SharedWith)))

	e, err := s.validateSharedExpense(userID, req)
	if err != nil {
		return nil, err
	}

	linked, err := s.store.ListFamilyMemberIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list family: %w", err)
	}
	for _, id := range e.SharedWith {
		if !slices.Contains(linked, id) {
			return nil, &domain.ErrForbidden{Action: "share an expense with a non-member"}
		}
	}

	if err := s.store.CreateSharedExpense(ctx, e); err != nil {
		s.metrics.IncrExternalError("shared_expenses")
		return nil, fmt.Errorf("create shared expense: %w", err)
	}
	e.PerPerson = e.Split()

	s.logger.Info("expense shared",
		zap.String("user_id", userID),
		zap.String("expense_id", e.ID),
		zap.Int("shared_with", len(e.SharedWith)),
	)
	return e, nil
}

func (s *FamilyService) validateSharedExpense(userID string, req *domain.CreateSharedExpenseRequest) (*domain.SharedExpense, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, &domain.ErrValidation{Field: "description", Message: "is required"}
	}
	if !req.Amount.IsPositive() {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
	}

	date := domain.DateOf(s.now().In(s.loc))
	if strings.TrimSpace(req.Date) != "" {
		d, err := domain.ParseDate(strings.TrimSpace(req.Date))
		if err != nil {
			return nil, &domain.ErrValidation{Field: "date", Message: "must be YYYY-MM-DD"}
		}
		date = d
	}

	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = domain.DefaultSharedCategory
	}

	var sharedWith []string
	for _, id := range req.SharedWith {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(sharedWith, id) {
			continue
		}
		if id == userID {
			return nil, &domain.ErrValidation{Field: "sharedWith", Message: "you cannot share an expense with yourself"}
		}
		sharedWith = append(sharedWith, id)
	}
	if len(sharedWith) == 0 {
		return nil, &domain.ErrValidation{Field: "sharedWith", Message: "select at least one family member"}
	}

	return &domain.SharedExpense{
		ID:          uuid.NewString(),
		UserID:      userID,
		Description: description,
		Amount:      req.Amount,
		Category:    category,
		Date:        date,
		SharedWith:  sharedWith,
		CreatedAt:   s.now().UTC(),
	}, nil
}

// SharedExpenses lists the user's most recent shared expenses.
func (s *FamilyService) SharedExpenses(ctx context.Context, userID string) ([]domain.SharedExpense, error) {
	ctx, span := tracer.Start(ctx, "FamilyService.SharedExpenses")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	list, err := s.store.ListSharedExpenses(ctx, userID, sharedExpenseLimit)
	if err != nil {
		s.metrics.IncrExternalError("shared_expenses")
		return nil, fmt.Errorf("list shared expenses: %w", err)
	}
	if list == nil {
		list = []domain.SharedExpense{}
	}
	for i := range list {
		list[i].PerPerson = list[i].Split()
	}
	return list, nil
}

// Stats counts the linked members and totals the listed shared expenses.
func (s *FamilyService) Stats(ctx context.Context, userID string) (*domain.FamilyStats, error) {
	ctx, span := tracer.Start(ctx, "FamilyService.Stats")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var (
		members  []string
		expenses []domain.SharedExpense
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := s.store.ListFamilyMemberIDs(gCtx, userID)
		if err != nil {
			return fmt.Errorf("list family: %w", err)
		}
		members = ids
		return nil
	})
	g.Go(func() error {
		list, err := s.store.ListSharedExpenses(gCtx, userID, sharedExpenseLimit)
		if err != nil {
			s.metrics.IncrExternalError("shared_expenses")
			return fmt.Errorf("list shared expenses: %w", err)
		}
		expenses = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return &domain.FamilyStats{
		MemberCount:        len(members),
		SharedExpenseCount: len(expenses),
		TotalShared:        total,
	}, nil
}
