package audit

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/financeanalyst/securecore/internal/models"
)

// SearchQuery filters the audit log. Zero values mean "no filter"; Text
// matches case-insensitively against the serialized event.
type SearchQuery struct {
	Type    models.EventType `json:"type,omitempty"`
	ActorID string           `json:"actor_id,omitempty"`
	Origin  string           `json:"origin,omitempty"`
	Risk    models.RiskLevel `json:"risk,omitempty"`
	From    time.Time        `json:"from,omitempty"`
	To      time.Time        `json:"to,omitempty"`
	Text    string           `json:"text,omitempty"`
	Limit   int              `json:"limit,omitempty"`
}

// SearchLogs returns matching events newest first, capped at the query
// limit or the configured default.
func (e *Engine) SearchLogs(query SearchQuery) []*models.AuditEvent {
	limit := query.Limit
	if limit <= 0 || limit > e.config.SearchResultLimit {
		limit = e.config.SearchResultLimit
	}
	text := strings.ToLower(query.Text)

	e.mu.RLock()
	var matched []*models.AuditEvent
	for _, entry := range e.log {
		if !matches(entry, query, text) {
			continue
		}
		cp := *entry
		matched = append(matched, &cp)
	}
	e.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		// ULIDs sort by creation time, so this breaks ties newest first.
		return matched[i].ID > matched[j].ID
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

func matches(entry *models.AuditEvent, query SearchQuery, text string) bool {
	if query.Type != "" && entry.Type != query.Type {
		return false
	}
	if query.ActorID != "" && entry.ActorID != query.ActorID {
		return false
	}
	if query.Origin != "" && entry.IP != query.Origin {
		return false
	}
	if query.Risk != "" && entry.Risk != query.Risk {
		return false
	}
	if !query.From.IsZero() && entry.Timestamp.Before(query.From) {
		return false
	}
	if !query.To.IsZero() && entry.Timestamp.After(query.To) {
		return false
	}
	if text != "" {
		serialized, err := json.Marshal(entry)
		if err != nil {
			return false
		}
		if !strings.Contains(strings.ToLower(string(serialized)), text) {
			return false
		}
	}
	return true
}
