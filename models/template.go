package models

import (
	"encoding/json"
	"time"
)

/************************************************
/**** MARK: TEMPLATE STATUS ****/
/************************************************/
const TEMPLATE_STATUS_PENDING = "pending"
const TEMPLATE_STATUS_APPROVED = "approved"
const TEMPLATE_STATUS_REJECTED = "rejected"

// TemplateHistoryLimit caps the append-only history so long-lived
// templates don't grow without bound; oldest entries are dropped first.
const TemplateHistoryLimit = 50

// TemplateHistoryEntry is one recorded provider status event.
type TemplateHistoryEntry struct {
	Event     string     `json:"event"`
	Reason    string     `json:"reason,omitempty"`
	Raw       string     `json:"raw,omitempty"`
	EmittedAt *time.Time `json:"emitted_at,omitempty"`
}

// Template is a reusable outbound message pattern awaiting (or holding)
// provider approval. Name is unique per account. The pipeline never
// deletes templates; only status-update webhooks or an explicit
// submission mutate them.
type Template struct {
	ID        int64  `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	AccountID int64  `gorm:"not null;unique_index:idx_template_name" json:"account_id"`
	Name      string `gorm:"not null;unique_index:idx_template_name" json:"name"`
	Language  string `gorm:"default:'pt_BR'" json:"language"`
	Category  string `gorm:"default:''" json:"category"`
	Status    string `gorm:"not null;default:'pending';index" json:"status"`
	// History is a JSON array of TemplateHistoryEntry, append-only,
	// capped at TemplateHistoryLimit.
	History    string     `gorm:"type:text" json:"history"`
	ApprovedAt *time.Time `json:"approved_at"`
	RejectedAt *time.Time `json:"rejected_at"`
	CreatedAt  *time.Time `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
}

// AppendHistory decodes the stored history, appends entry and re-encodes,
// trimming to TemplateHistoryLimit.
func (t *Template) AppendHistory(entry TemplateHistoryEntry) {
	var entries []TemplateHistoryEntry
	if t.History != "" {
		_ = json.Unmarshal([]byte(t.History), &entries)
	}
	entries = append(entries, entry)
	if len(entries) > TemplateHistoryLimit {
		entries = entries[len(entries)-TemplateHistoryLimit:]
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return
	}
	t.History = string(b)
}

// HistoryEntries decodes the stored history log.
func (t *Template) HistoryEntries() []TemplateHistoryEntry {
	var entries []TemplateHistoryEntry
	if t.History != "" {
		_ = json.Unmarshal([]byte(t.History), &entries)
	}
	return entries
}
