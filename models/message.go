package models

import "time"

/************************************************
/**** MARK: MESSAGE STATUS / DIRECTION ****/
/************************************************/
const MESSAGE_STATUS_PENDING = "pending"
const MESSAGE_STATUS_SENT = "sent"
const MESSAGE_STATUS_DELIVERED = "delivered"
const MESSAGE_STATUS_READ = "read"
const MESSAGE_STATUS_FAILED = "failed"

const MESSAGE_DIRECTION_INBOUND = "inbound"
const MESSAGE_DIRECTION_OUTBOUND = "outbound"

// Message is a single inbound or outbound message unit.
// WamID is the provider message id; once a row exists for a given
// (account_id, wam_id) a later webhook for the same id only updates the
// delivery status, never creates a second row.
type Message struct {
	ID             int64  `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	ConversationID int64  `gorm:"not null;index" json:"conversation_id"`
	AccountID      int64  `gorm:"not null;unique_index:idx_message_wam" json:"account_id"`
	WamID          string `gorm:"not null;unique_index:idx_message_wam" json:"wam_id"`
	Direction      string `gorm:"not null" json:"direction"`
	Status         string `gorm:"not null;default:'pending';index" json:"status"`
	// Body holds the text body for text messages, or the message type
	// marker (image, audio, ...) for everything else.
	Body       string     `gorm:"type:text" json:"body"`
	RawPayload string     `gorm:"type:text" json:"-"`
	CreatedAt  *time.Time `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
}
