package models

import "time"

// Conversation is a thread between one Account and one external contact
// number. At most one row per (account_id, contact_number); it is created
// lazily on the first inbound or outbound message for that contact.
type Conversation struct {
	ID            int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	AccountID     int64      `gorm:"not null;unique_index:idx_conversation_contact" json:"account_id"`
	ContactNumber string     `gorm:"not null;unique_index:idx_conversation_contact" json:"contact_number"`
	UnreadCount   int        `gorm:"not null;default:0" json:"unread_count"`
	LastMessageAt *time.Time `gorm:"index" json:"last_message_at"`
	CreatedAt     *time.Time `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
}
