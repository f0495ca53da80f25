package models

import "time"

/************************************************
/**** MARK: WEBHOOK EVENT STATUS ****/
/************************************************/
const WEBHOOK_EVENT_STATUS_RECEIVED = "received"
const WEBHOOK_EVENT_STATUS_PROCESSING = "processing"
const WEBHOOK_EVENT_STATUS_PROCESSED = "processed"

// WebhookEventMaxAttempts is the retry ceiling. A job that still fails on
// its last allowed attempt is dead-lettered: processed=true with
// last_error set, and never requeued again without an operator replay.
const WebhookEventMaxAttempts = 3

// WebhookEvent is the durable record of one received provider callback.
// It doubles as the processing job: the worker claims rows by flipping
// status received -> processing, and only an operator replay can move a
// processed row back to received.
type WebhookEvent struct {
	ID       int64  `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	EventKey string `gorm:"not null;unique_index" json:"event_key"`
	// WabaID is the provider account id carried in the payload's entry;
	// account resolution happens at processing time, not receipt time.
	WabaID      string     `gorm:"not null;index" json:"waba_id"`
	Payload     string     `gorm:"type:text" json:"payload"`
	Status      string     `gorm:"not null;default:'received';index" json:"status"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	Processed   bool       `gorm:"not null;default:false;index" json:"processed"`
	LastError   string     `gorm:"type:text" json:"last_error"`
	ScheduledAt *time.Time `gorm:"index" json:"scheduled_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}
