// Package approval issues and resolves the confirmations that suspended workflows wait on.
package approval

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/notify"
	"github.com/spec-kit/helpdesk/internal/repository"
	"github.com/spec-kit/helpdesk/internal/workflow"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// ErrAlreadyDecided marks a decision against a request that is missing, decided or expired.
var ErrAlreadyDecided = errors.New("approval already decided")

// DefaultTTL applies when a request does not set its own expiry.
const DefaultTTL = 24 * time.Hour

const tokenBytes = 24

// RequestInput describes a new approval request.
type RequestInput struct {
	TicketID    string
	WorkflowID  string
	ExecutionID *string
	StepIndex   int
	RequestedBy string
	Title       string
	Body        string
	Input       map[string]any
	ExpiresIn   time.Duration
}

// Options configures links and delivery.
type Options struct {
	Mailer       notify.Mailer
	PublicAPIURL string
	PublicWebURL string
	Logger       *zap.Logger
	Clock        func() time.Time
}

// Gate owns approval request lifecycle.
type Gate struct {
	approvals     repository.ApprovalRepository
	tickets       repository.TicketRepository
	users         repository.UserRepository
	notifications repository.NotificationRepository
	mailer        notify.Mailer
	apiURL        string
	webURL        string
	logger        *zap.Logger
	now           func() time.Time
}

// NewGate wires the gate to its stores.
func NewGate(
	approvals repository.ApprovalRepository,
	tickets repository.TicketRepository,
	users repository.UserRepository,
	notifications repository.NotificationRepository,
	opts Options,
) *Gate {
	g := &Gate{
		approvals:     approvals,
		tickets:       tickets,
		users:         users,
		notifications: notifications,
		mailer:        opts.Mailer,
		apiURL:        strings.TrimRight(opts.PublicAPIURL, "/"),
		webURL:        strings.TrimRight(opts.PublicWebURL, "/"),
		logger:        opts.Logger,
		now:           opts.Clock,
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// PrepareApproval builds the request for a suspending workflow step on behalf of the
// ticket's requester. Nothing is stored or sent until the returned Open is called.
func (g *Gate) PrepareApproval(ctx context.Context, pending workflow.PendingApproval) (*workflow.PreparedApproval, error) {
	ticket, err := g.tickets.GetByID(ctx, pending.TicketID)
	if err != nil {
		return nil, fmt.Errorf("load ticket %s: %w", pending.TicketID, err)
	}
	executionID := pending.ExecutionID
	request, token, err := g.build(RequestInput{
		TicketID:    ticket.ID,
		WorkflowID:  pending.WorkflowID,
		ExecutionID: &executionID,
		StepIndex:   pending.StepIndex,
		RequestedBy: ticket.RequesterID,
		Title:       pending.Title,
		Body:        pending.Body,
		Input:       pending.Input,
		ExpiresIn:   pending.ExpiresIn,
	})
	if err != nil {
		return nil, err
	}
	return &workflow.PreparedApproval{
		ID: request.ID,
		Open: func(ctx context.Context) error {
			return g.open(ctx, request, token)
		},
	}, nil
}

// Request stores a pending request and notifies the requester. Only the token hash is persisted.
func (g *Gate) Request(ctx context.Context, in RequestInput) (*domain.ApprovalRequest, error) {
	request, token, err := g.build(in)
	if err != nil {
		return nil, err
	}
	if err := g.open(ctx, request, token); err != nil {
		return nil, err
	}
	return request, nil
}

func (g *Gate) build(in RequestInput) (*domain.ApprovalRequest, string, error) {
	token, err := newToken()
	if err != nil {
		return nil, "", fmt.Errorf("generate approval token: %w", err)
	}
	ttl := in.ExpiresIn
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	expiresAt := g.now().Add(ttl)

	return &domain.ApprovalRequest{
		ID:          uuid.NewString(),
		TicketID:    in.TicketID,
		WorkflowID:  in.WorkflowID,
		ExecutionID: in.ExecutionID,
		StepIndex:   in.StepIndex,
		RequestedBy: in.RequestedBy,
		Status:      domain.ApprovalPending,
		ActionTitle: in.Title,
		ActionBody:  in.Body,
		InputData:   in.Input,
		TokenHash:   HashToken(token),
		ExpiresAt:   &expiresAt,
	}, token, nil
}

// open persists request and then delivers it, so a delivered link always finds its row.
func (g *Gate) open(ctx context.Context, request *domain.ApprovalRequest, token string) error {
	if err := g.approvals.Create(ctx, request); err != nil {
		return fmt.Errorf("create approval request: %w", err)
	}
	g.notify(ctx, request, token)
	return nil
}

func (g *Gate) notify(ctx context.Context, request *domain.ApprovalRequest, token string) {
	ticketID := request.TicketID
	if err := g.notifications.Create(ctx, &domain.Notification{
		UserID:   request.RequestedBy,
		TicketID: &ticketID,
		Type:     domain.NotificationApprovalRequested,
		Title:    request.ActionTitle,
		Body:     request.ActionBody,
	}); err != nil {
		g.logger.Warn("approval notification failed", zap.String("approval_id", request.ID), zap.Error(err))
	}

	if g.mailer == nil {
		return
	}
	requester, err := g.users.GetByID(ctx, request.RequestedBy)
	if err != nil {
		g.logger.Warn("approval requester lookup failed", zap.String("approval_id", request.ID), zap.Error(err))
		return
	}
	if err := g.mailer.Send(ctx, g.email(request, requester, token)); err != nil {
		g.logger.Warn("approval email failed", zap.String("approval_id", request.ID), zap.Error(err))
	}
}

func (g *Gate) email(request *domain.ApprovalRequest, requester *domain.User, token string) notify.Message {
	approve := g.ConfirmLink(token, domain.DecisionApprove)
	reject := g.ConfirmLink(token, domain.DecisionReject)
	ticketLink := fmt.Sprintf("%s/tickets/%s", g.webURL, request.TicketID)

	text := fmt.Sprintf("Hello %s,\n\n%s\n\n%s\n\nApprove: %s\nReject: %s\n\nTicket: %s\n",
		requester.Name, request.ActionTitle, request.ActionBody, approve, reject, ticketLink)
	html := fmt.Sprintf(`<p>Hello %s,</p><p><strong>%s</strong></p><p>%s</p>`+
		`<p><a href="%s">Approve</a> | <a href="%s">Reject</a></p><p><a href="%s">View ticket</a></p>`,
		requester.Name, request.ActionTitle, request.ActionBody, approve, reject, ticketLink)

	return notify.Message{
		To:      requester.Email,
		Subject: request.ActionTitle,
		Text:    text,
		HTML:    html,
	}
}

// ConfirmLink is the out-of-band link that decides a request by token.
func (g *Gate) ConfirmLink(token string, decision domain.ApprovalDecision) string {
	return fmt.Sprintf("%s/api/v1/approvals/confirm/%s?decision=%s", g.apiURL, token, decision)
}

// ResultLink is where the browser lands after a token decision.
func (g *Gate) ResultLink(requestID string, status domain.ApprovalStatus) string {
	return fmt.Sprintf("%s/approvals/%s?status=%s", g.webURL, requestID, status)
}

// Get returns a request by id.
func (g *Gate) Get(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	request, err := g.approvals.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("approval request", map[string]any{"id": id})
		}
		return nil, err
	}
	return request, nil
}

// FindByToken returns the request a raw token belongs to.
func (g *Gate) FindByToken(ctx context.Context, token string) (*domain.ApprovalRequest, error) {
	request, err := g.approvals.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("approval request", nil)
		}
		return nil, err
	}
	return request, nil
}

// ListPending returns the pending requests of a ticket, newest first.
func (g *Gate) ListPending(ctx context.Context, ticketID string) ([]domain.ApprovalRequest, error) {
	return g.approvals.ListPendingForTicket(ctx, ticketID)
}

// Decide resolves a pending request. The store update is conditional on the request
// still being pending and unexpired, so exactly one concurrent decision wins.
func (g *Gate) Decide(ctx context.Context, id string, decision domain.ApprovalDecision) (*domain.ApprovalRequest, error) {
	if !decision.Valid() {
		return nil, apperrors.NewValidationError("decision must be approve or reject", map[string]any{"decision": decision})
	}
	request, err := g.approvals.Decide(ctx, id, decision.Status(), g.now())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewAlreadyDecided(ErrAlreadyDecided, map[string]any{"id": id})
		}
		return nil, fmt.Errorf("decide approval %s: %w", id, err)
	}
	g.logger.Info("approval decided",
		zap.String("approval_id", request.ID),
		zap.String("ticket_id", request.TicketID),
		zap.String("status", string(request.Status)),
	)
	return request, nil
}

// DecideByToken resolves the request a raw token belongs to.
func (g *Gate) DecideByToken(ctx context.Context, token string, decision domain.ApprovalDecision) (*domain.ApprovalRequest, error) {
	if !decision.Valid() {
		return nil, apperrors.NewValidationError("decision must be approve or reject", map[string]any{"decision": decision})
	}
	request, err := g.approvals.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewAlreadyDecided(ErrAlreadyDecided, nil)
		}
		return nil, err
	}
	return g.Decide(ctx, request.ID, decision)
}

// ExpireStale marks overdue pending requests expired and returns them.
func (g *Gate) ExpireStale(ctx context.Context) ([]domain.ApprovalRequest, error) {
	expired, err := g.approvals.ExpirePending(ctx, g.now())
	if err != nil {
		return nil, fmt.Errorf("expire approvals: %w", err)
	}
	if len(expired) > 0 {
		g.logger.Info("approval requests expired", zap.Int("count", len(expired)))
	}
	return expired, nil
}

// HashToken returns the hex sha256 stored in place of the raw token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
