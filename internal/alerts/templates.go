package alerts

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spec-kit/helpdesk/internal/domain"
)

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Vars returns the template variables exposed for a ticket event.
func Vars(eventType domain.AlertEventType, subject Subject) map[string]string {
	t := subject.Ticket
	vars := map[string]string{
		"ticketId":    t.ID,
		"ticketRef":   t.Ref(),
		"title":       t.Title,
		"description": t.Description,
		"category":    "N/A",
		"priority":    string(t.Priority),
		"status":      string(t.Status),
		"eventType":   string(eventType),
	}
	if t.Category != nil && *t.Category != "" {
		vars["category"] = *t.Category
	}
	if subject.Requester != nil {
		vars["requesterEmail"] = subject.Requester.Email
		vars["requesterName"] = subject.Requester.Name
	}
	return vars
}

// Render substitutes {{var}} placeholders. Unknown placeholders are left as written.
func Render(template string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := vars[key]; ok {
			return value
		}
		return match
	})
}

func defaultSubject(vars map[string]string) string {
	return fmt.Sprintf("Ticket %s: %s", vars["ticketRef"], vars["title"])
}

func defaultEmailBody(vars map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket %s\n\n", vars["ticketRef"])
	fmt.Fprintf(&b, "Title: %s\n", vars["title"])
	fmt.Fprintf(&b, "Status: %s\n", vars["status"])
	fmt.Fprintf(&b, "Priority: %s\n", vars["priority"])
	fmt.Fprintf(&b, "Category: %s\n\n", vars["category"])
	fmt.Fprintf(&b, "Description:\n%s\n", vars["description"])
	if vars["requesterEmail"] != "" {
		fmt.Fprintf(&b, "\nRequester: %s <%s>\n", vars["requesterName"], vars["requesterEmail"])
	}
	return b.String()
}

func defaultSMS(eventType domain.AlertEventType, vars map[string]string) string {
	ref, title := vars["ticketRef"], vars["title"]
	switch eventType {
	case domain.AlertTicketCreated:
		return fmt.Sprintf("Ticket %s created: %s", ref, title)
	case domain.AlertTicketAssigned:
		return fmt.Sprintf("Ticket %s assigned to you: %s (%s)", ref, title, vars["priority"])
	case domain.AlertTicketStatusChanged:
		return fmt.Sprintf("Ticket %s status: %s - %s", ref, vars["status"], title)
	case domain.AlertSLAFirstResponseBreach, domain.AlertSLAResolutionBreach:
		return fmt.Sprintf("URGENT: Ticket %s SLA breach - %s", ref, title)
	default:
		return fmt.Sprintf("Ticket %s: %s", ref, title)
	}
}

// inAppTitle turns TICKET_STATUS_CHANGED into "Ticket status changed".
func inAppTitle(eventType domain.AlertEventType) string {
	label := strings.TrimPrefix(string(eventType), "TICKET_")
	label = strings.ToLower(strings.ReplaceAll(label, "_", " "))
	return "Ticket " + label
}
