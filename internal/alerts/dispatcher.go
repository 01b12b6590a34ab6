// Package alerts fans ticket events out to the recipients of matching alert rules.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/notify"
	"github.com/spec-kit/helpdesk/internal/repository"
)

// Subject is the ticket an event is about, with its requester when known.
type Subject struct {
	Ticket    *domain.Ticket
	Requester *domain.User
}

// RuleReport is the outcome of one matched rule.
type RuleReport struct {
	RuleID   string
	Status   domain.AlertStatus
	Attempts int
	Failures int
	Errors   []string
}

// Report summarizes a dispatch.
type Report struct {
	EventType domain.AlertEventType
	Rules     []RuleReport
}

// Sent counts the rules delivered successfully.
func (r Report) Sent() int {
	n := 0
	for _, rule := range r.Rules {
		if rule.Status == domain.AlertStatusSent {
			n++
		}
	}
	return n
}

// Webhook posts signed payloads.
type Webhook interface {
	Send(ctx context.Context, url, secret, event string, payload []byte) error
}

// Options configures transports and observation hooks.
type Options struct {
	Mailer  notify.Mailer
	SMS     notify.SMSSender
	Webhook Webhook
	Logger  *zap.Logger
	Clock   func() time.Time
	// OnDelivery is called once per channel send.
	OnDelivery func(channel domain.AlertChannel, err error)
}

// Dispatcher evaluates alert rules for ticket events.
type Dispatcher struct {
	rules         repository.AlertRuleRepository
	history       repository.AlertHistoryRepository
	users         repository.UserRepository
	notifications repository.NotificationRepository
	mailer        notify.Mailer
	sms           notify.SMSSender
	webhook       Webhook
	logger        *zap.Logger
	now           func() time.Time
	onDelivery    func(domain.AlertChannel, error)
}

// NewDispatcher wires the dispatcher.
func NewDispatcher(
	rules repository.AlertRuleRepository,
	history repository.AlertHistoryRepository,
	users repository.UserRepository,
	notifications repository.NotificationRepository,
	opts Options,
) *Dispatcher {
	d := &Dispatcher{
		rules:         rules,
		history:       history,
		users:         users,
		notifications: notifications,
		mailer:        opts.Mailer,
		sms:           opts.SMS,
		webhook:       opts.Webhook,
		logger:        opts.Logger,
		now:           opts.Clock,
		onDelivery:    opts.OnDelivery,
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.webhook == nil {
		d.webhook = notify.NewWebhookSender(nil)
	}
	return d
}

// Dispatch delivers eventType for subject to every enabled matching rule and records one
// history row per matched rule. Failures are reported, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType domain.AlertEventType, subject Subject) Report {
	report := Report{EventType: eventType}
	if subject.Ticket == nil {
		return report
	}

	rules, err := d.rules.ListEnabledForEvent(ctx, eventType)
	if err != nil {
		d.logger.Error("load alert rules failed", zap.String("event_type", string(eventType)), zap.Error(err))
		return report
	}

	data := conditionData(eventType, subject)
	vars := Vars(eventType, subject)
	for i := range rules {
		rule := &rules[i]
		if !MatchConditions(rule.Conditions, data) {
			continue
		}
		report.Rules = append(report.Rules, d.deliver(ctx, eventType, rule, subject, vars))
	}
	return report
}

type recipientSet struct {
	userIDs []string
	emails  []string
	phones  []string
}

func (d *Dispatcher) deliver(ctx context.Context, eventType domain.AlertEventType, rule *domain.AlertRule, subject Subject, vars map[string]string) RuleReport {
	result := RuleReport{RuleID: rule.ID, Status: domain.AlertStatusSent}

	recipients, err := d.resolveRecipients(ctx, rule)
	if err != nil {
		result.Status = domain.AlertStatusFailed
		result.Errors = append(result.Errors, fmt.Sprintf("resolve recipients: %v", err))
	} else {
		sends := d.send(ctx, eventType, rule, subject, vars, recipients)
		result.Attempts = len(sends)
		for _, s := range sends {
			if s.err != nil {
				result.Failures++
				result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", s.channel, s.target, s.err))
			}
		}
		if result.Attempts > 0 && result.Failures == result.Attempts {
			result.Status = domain.AlertStatusFailed
		}
	}

	d.record(ctx, eventType, rule, subject.Ticket.ID, recipients, result)
	return result
}

func (d *Dispatcher) resolveRecipients(ctx context.Context, rule *domain.AlertRule) (recipientSet, error) {
	var users []domain.User
	if len(rule.RecipientUserIDs) > 0 {
		found, err := d.users.ListByIDs(ctx, rule.RecipientUserIDs)
		if err != nil {
			return recipientSet{}, err
		}
		users = append(users, found...)
	}
	if len(rule.RecipientTeamIDs) > 0 {
		found, err := d.users.ListByTeams(ctx, rule.RecipientTeamIDs)
		if err != nil {
			return recipientSet{}, err
		}
		users = append(users, found...)
	}
	if len(rule.RecipientRoles) > 0 {
		found, err := d.users.ListByRoles(ctx, rule.RecipientRoles)
		if err != nil {
			return recipientSet{}, err
		}
		users = append(users, found...)
	}

	ids := newDedup()
	emails := newDedup()
	phones := newDedup()
	var set recipientSet
	for _, u := range users {
		if ids.add(u.ID) {
			set.userIDs = append(set.userIDs, u.ID)
		}
		if u.Email != "" && emails.add(strings.ToLower(u.Email)) {
			set.emails = append(set.emails, u.Email)
		}
		if u.Phone != nil && *u.Phone != "" && phones.add(*u.Phone) {
			set.phones = append(set.phones, *u.Phone)
		}
	}
	for _, email := range rule.RecipientEmails {
		if email != "" && emails.add(strings.ToLower(email)) {
			set.emails = append(set.emails, email)
		}
	}
	for _, phone := range rule.RecipientPhones {
		if phone != "" && phones.add(phone) {
			set.phones = append(set.phones, phone)
		}
	}
	return set, nil
}

type sendResult struct {
	channel domain.AlertChannel
	target  string
	err     error
}

func (d *Dispatcher) send(ctx context.Context, eventType domain.AlertEventType, rule *domain.AlertRule, subject Subject, vars map[string]string, to recipientSet) []sendResult {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []sendResult
	)
	launch := func(channel domain.AlertChannel, target string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn()
			if d.onDelivery != nil {
				d.onDelivery(channel, err)
			}
			mu.Lock()
			results = append(results, sendResult{channel: channel, target: target, err: err})
			mu.Unlock()
		}()
	}

	for _, channel := range rule.Channels {
		switch channel {
		case domain.ChannelEmail:
			msg := emailMessage(rule, vars)
			for _, email := range to.emails {
				msg.To = email
				m := msg
				launch(channel, email, func() error { return d.sendEmail(ctx, m) })
			}
		case domain.ChannelSMS:
			body := defaultSMS(eventType, vars)
			if rule.SMSTemplate != nil && *rule.SMSTemplate != "" {
				body = Render(*rule.SMSTemplate, vars)
			}
			for _, phone := range to.phones {
				p := phone
				launch(channel, p, func() error { return d.sendSMS(ctx, p, body) })
			}
		case domain.ChannelWebhook:
			if rule.WebhookURL == nil || *rule.WebhookURL == "" {
				launch(channel, "", func() error { return errors.New("webhook url not set") })
				continue
			}
			url := *rule.WebhookURL
			secret := ""
			if rule.WebhookSecret != nil {
				secret = *rule.WebhookSecret
			}
			launch(channel, url, func() error { return d.sendWebhook(ctx, url, secret, eventType, subject.Ticket) })
		case domain.ChannelInApp:
			if len(to.userIDs) == 0 {
				continue
			}
			launch(channel, fmt.Sprintf("%d users", len(to.userIDs)), func() error {
				return d.sendInApp(ctx, eventType, subject.Ticket, to.userIDs)
			})
		default:
			d.logger.Warn("unknown alert channel", zap.String("rule_id", rule.ID), zap.String("channel", string(channel)))
		}
	}
	wg.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].channel != results[j].channel {
			return results[i].channel < results[j].channel
		}
		return results[i].target < results[j].target
	})
	return results
}

func emailMessage(rule *domain.AlertRule, vars map[string]string) notify.Message {
	subject := defaultSubject(vars)
	if rule.EmailSubject != nil && *rule.EmailSubject != "" {
		subject = Render(*rule.EmailSubject, vars)
	}
	body := defaultEmailBody(vars)
	if rule.EmailTemplate != nil && *rule.EmailTemplate != "" {
		body = Render(*rule.EmailTemplate, vars)
	}
	return notify.Message{Subject: subject, Text: body}
}

func (d *Dispatcher) sendEmail(ctx context.Context, msg notify.Message) error {
	if d.mailer == nil {
		return notify.ErrNotConfigured
	}
	return d.mailer.Send(ctx, msg)
}

func (d *Dispatcher) sendSMS(ctx context.Context, phone, body string) error {
	if d.sms == nil {
		return notify.ErrNotConfigured
	}
	return d.sms.Send(ctx, phone, body)
}

type webhookTicket struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Status   string  `json:"status"`
	Priority string  `json:"priority"`
	Category *string `json:"category"`
}

type webhookPayload struct {
	Event     domain.AlertEventType `json:"event"`
	Ticket    webhookTicket         `json:"ticket"`
	Timestamp time.Time             `json:"timestamp"`
}

func (d *Dispatcher) sendWebhook(ctx context.Context, url, secret string, eventType domain.AlertEventType, ticket *domain.Ticket) error {
	payload, err := json.Marshal(webhookPayload{
		Event: eventType,
		Ticket: webhookTicket{
			ID:       ticket.ID,
			Title:    ticket.Title,
			Status:   string(ticket.Status),
			Priority: string(ticket.Priority),
			Category: ticket.Category,
		},
		Timestamp: d.now().UTC(),
	})
	if err != nil {
		return err
	}
	return d.webhook.Send(ctx, url, secret, string(eventType), payload)
}

func (d *Dispatcher) sendInApp(ctx context.Context, eventType domain.AlertEventType, ticket *domain.Ticket, userIDs []string) error {
	ticketID := ticket.ID
	_, err := d.notifications.BulkCreate(ctx, userIDs, domain.Notification{
		TicketID: &ticketID,
		Type:     domain.NotificationAlert,
		Title:    inAppTitle(eventType),
		Body:     fmt.Sprintf("%s (%s)", ticket.Title, ticket.Priority),
	})
	return err
}

func (d *Dispatcher) record(ctx context.Context, eventType domain.AlertEventType, rule *domain.AlertRule, ticketID string, to recipientSet, result RuleReport) {
	channels := make([]string, 0, len(rule.Channels))
	for _, c := range rule.Channels {
		channels = append(channels, string(c))
	}
	entry := &domain.AlertHistory{
		AlertRuleID: rule.ID,
		TicketID:    ticketID,
		EventType:   eventType,
		Channels:    strings.Join(channels, ","),
		Recipients: map[string]any{
			"userIds": nonNil(to.userIDs),
			"emails":  nonNil(to.emails),
			"phones":  nonNil(to.phones),
		},
		Status: result.Status,
	}
	if len(result.Errors) > 0 {
		detail := strings.Join(result.Errors, "; ")
		entry.ErrorMessage = &detail
	}
	if result.Status == domain.AlertStatusSent {
		sentAt := d.now()
		entry.SentAt = &sentAt
	}
	if err := d.history.Create(ctx, entry); err != nil {
		d.logger.Error("record alert history failed", zap.String("rule_id", rule.ID), zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}
	d.logger.Info("alert rule dispatched",
		zap.String("rule_id", rule.ID),
		zap.String("ticket_id", ticketID),
		zap.String("event_type", string(eventType)),
		zap.String("status", string(result.Status)),
		zap.Int("attempts", result.Attempts),
		zap.Int("failures", result.Failures),
	)
}

type dedup map[string]struct{}

func newDedup() dedup { return dedup{} }

func (d dedup) add(key string) bool {
	if _, ok := d[key]; ok {
		return false
	}
	d[key] = struct{}{}
	return true
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
