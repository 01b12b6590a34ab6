package alerts

import (
	"reflect"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func conditionData(eventType domain.AlertEventType, subject Subject) map[string]any {
	t := subject.Ticket
	data := map[string]any{
		"ticketId":      t.ID,
		"title":         t.Title,
		"description":   t.Description,
		"category":      deref(t.Category),
		"priority":      string(t.Priority),
		"status":        string(t.Status),
		"assignedTeam":  deref(t.AssignedTeamID),
		"assignedAgent": deref(t.AssignedAgentID),
		"eventType":     string(eventType),
	}
	if subject.Requester != nil {
		data["requesterEmail"] = subject.Requester.Email
		data["requesterName"] = subject.Requester.Name
	}
	return data
}

// MatchConditions reports whether data satisfies every condition. A slice condition
// matches when the value is one of its members; anything else must be equal.
func MatchConditions(conditions map[string]any, data map[string]any) bool {
	for key, expected := range conditions {
		actual := data[key]
		if members, ok := asSlice(expected); ok {
			found := false
			for _, member := range members {
				if equal(member, actual) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if !equal(expected, actual) {
			return false
		}
	}
	return true
}

func asSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// equal is strict: values of different kinds never match, so 1 is not "1".
// Numbers compare by value whatever their Go type.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x == y
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func deref(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
