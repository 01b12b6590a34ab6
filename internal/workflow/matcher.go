// Package workflow matches automation definitions against tickets and runs their steps.
package workflow

import (
	"sort"
	"strings"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// Attributes are the ticket facts a workflow filter can look at.
type Attributes struct {
	Intent      string
	Category    string
	Description string
	Keywords    []string
}

// Match returns the first enabled workflow whose filters all pass, or nil.
// Workflows are considered by priority descending, then creation order.
func Match(workflows []domain.Workflow, attrs Attributes) *domain.Workflow {
	ordered := make([]domain.Workflow, 0, len(workflows))
	for _, wf := range workflows {
		if wf.Enabled {
			ordered = append(ordered, wf)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	for i := range ordered {
		if matches(&ordered[i], attrs) {
			return &ordered[i]
		}
	}
	return nil
}

func matches(wf *domain.Workflow, attrs Attributes) bool {
	if len(wf.IntentFilter) > 0 && (attrs.Intent == "" || !contains(wf.IntentFilter, attrs.Intent)) {
		return false
	}
	if len(wf.CategoryFilter) > 0 && (attrs.Category == "" || !contains(wf.CategoryFilter, attrs.Category)) {
		return false
	}
	if len(wf.KeywordFilter) == 0 {
		return true
	}

	description := strings.ToLower(attrs.Description)
	keywords := make(map[string]struct{}, len(attrs.Keywords))
	for _, kw := range attrs.Keywords {
		keywords[strings.ToLower(kw)] = struct{}{}
	}
	for _, required := range wf.KeywordFilter {
		k := strings.ToLower(required)
		if strings.Contains(description, k) {
			continue
		}
		if _, ok := keywords[k]; ok {
			continue
		}
		return false
	}
	return true
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
