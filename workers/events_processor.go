package workers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"

	"github.com/SalvaZapV2/salva-zap-official/models"
)

// retryBaseDelay spaces out requeues of a failed event: attempt n waits
// n * retryBaseDelay before becoming due again.
const retryBaseDelay = 5 * time.Second

// ErrUnknownAccount: the event's WABA has no local Account. Retrying
// cannot fix that, so the event dead-letters immediately.
var ErrUnknownAccount = errors.New("nenhuma conta local para a waba do evento")

// errBadPayload: the stored payload doesn't parse. Also non-retryable.
var errBadPayload = errors.New("payload do evento inválido")

func isFatal(err error) bool {
	return errors.Is(err, ErrUnknownAccount) || errors.Is(err, errBadPayload)
}

/************************************************
/**** MARK: WEBHOOK PAYLOAD ****/
/************************************************/

type webhookMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Text      struct {
		Body string `json:"body"`
	} `json:"text"`
}

type webhookStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

type webhookTemplateUpdate struct {
	Event                   string `json:"event"`
	MessageTemplateID       int64  `json:"message_template_id"`
	MessageTemplateName     string `json:"message_template_name"`
	MessageTemplateLanguage string `json:"message_template_language"`
	Reason                  string `json:"reason"`
}

type webhookChangeValue struct {
	Messages []webhookMessage `json:"messages"`
	Statuses []webhookStatus  `json:"statuses"`

	// Template-status updates carry their fields directly on value.
	webhookTemplateUpdate
}

type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string             `json:"field"`
			Value webhookChangeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

/************************************************
/**** MARK: PROCESSOR ****/
/************************************************/

// Processor applies one WebhookEvent to local state. Every mutation is
// keyed on stable provider identifiers, so re-processing the same
// payload any number of times converges to the same state.
type Processor struct {
	DB *gorm.DB
}

// Process resolves the Account and applies every change in the payload.
// Changes are applied independently; the first failure doesn't stop the
// rest (a retry re-applies everything idempotently).
func (p *Processor) Process(ev *models.WebhookEvent) error {
	var account models.Account
	if err := p.DB.Where("waba_id = ?", ev.WabaID).First(&account).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return fmt.Errorf("%w: %s", ErrUnknownAccount, ev.WabaID)
		}
		return err
	}

	var payload webhookPayload
	if err := json.Unmarshal([]byte(ev.Payload), &payload); err != nil {
		return fmt.Errorf("%w: %v", errBadPayload, err)
	}

	var errs []error
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			switch {
			case strings.TrimSpace(change.Field) == "message_template_status_update":
				if err := p.applyTemplateUpdate(&account, change.Value); err != nil {
					errs = append(errs, err)
				}
			default:
				for _, m := range change.Value.Messages {
					if err := p.applyInboundMessage(&account, m); err != nil {
						errs = append(errs, err)
					}
				}
				for _, s := range change.Value.Statuses {
					if err := p.applyStatus(&account, s); err != nil {
						errs = append(errs, err)
					}
				}
			}
		}
	}
	return errors.Join(errs...)
}

// applyInboundMessage creates the Conversation and Message for one
// inbound message. The unread counter only moves when the Message row is
// actually created, so a duplicate webhook can't double-count.
func (p *Processor) applyInboundMessage(account *models.Account, m webhookMessage) error {
	from := strings.TrimSpace(m.From)
	wamID := strings.TrimSpace(m.ID)
	if from == "" || wamID == "" {
		return nil
	}

	conv, err := p.resolveConversation(account.ID, from)
	if err != nil {
		return fmt.Errorf("conversa de %s: %w", from, err)
	}

	body := strings.TrimSpace(m.Text.Body)
	if body == "" {
		// Non-text messages keep their type as a marker.
		body = strings.ToLower(strings.TrimSpace(m.Type))
	}
	raw, _ := json.Marshal(m)

	created, err := p.createMessageOnce(models.Message{
		ConversationID: conv.ID,
		AccountID:      account.ID,
		WamID:          wamID,
		Direction:      models.MESSAGE_DIRECTION_INBOUND,
		Status:         models.MESSAGE_STATUS_DELIVERED,
		Body:           body,
		RawPayload:     string(raw),
	})
	if err != nil {
		return fmt.Errorf("mensagem %s: %w", wamID, err)
	}
	if !created {
		return nil
	}

	now := time.Now()
	return p.DB.Model(&models.Conversation{}).
		Where("id = ?", conv.ID).
		Updates(map[string]any{
			"unread_count":    gorm.Expr("unread_count + 1"),
			"last_message_at": &now,
		}).Error
}

// resolveConversation finds or lazily creates the thread for a contact.
func (p *Processor) resolveConversation(accountID int64, contact string) (*models.Conversation, error) {
	var conv models.Conversation
	err := p.DB.Where("account_id = ? AND contact_number = ?", accountID, contact).First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, err
	}
	conv = models.Conversation{AccountID: accountID, ContactNumber: contact}
	if err := p.DB.Create(&conv).Error; err != nil {
		// Lost a create race; the row exists now.
		if ferr := p.DB.Where("account_id = ? AND contact_number = ?", accountID, contact).First(&conv).Error; ferr == nil {
			return &conv, nil
		}
		return nil, err
	}
	return &conv, nil
}

// createMessageOnce inserts the Message unless its wam_id is already
// recorded. First writer wins for content; duplicates report created=false.
func (p *Processor) createMessageOnce(msg models.Message) (bool, error) {
	var count int
	if err := p.DB.Model(&models.Message{}).
		Where("account_id = ? AND wam_id = ?", msg.AccountID, msg.WamID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	if err := p.DB.Create(&msg).Error; err != nil {
		// Unique index may have beaten us to it under concurrency.
		var again int
		if cerr := p.DB.Model(&models.Message{}).
			Where("account_id = ? AND wam_id = ?", msg.AccountID, msg.WamID).
			Count(&again).Error; cerr == nil && again > 0 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// applyStatus overwrites the delivery status of the matching Message.
// A status racing ahead of the message create is a silent no-op.
func (p *Processor) applyStatus(account *models.Account, s webhookStatus) error {
	wamID := strings.TrimSpace(s.ID)
	status := mapDeliveryStatus(s.Status)
	if wamID == "" || status == "" {
		return nil
	}
	now := time.Now()
	return p.DB.Model(&models.Message{}).
		Where("account_id = ? AND wam_id = ?", account.ID, wamID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": &now,
		}).Error
}

func mapDeliveryStatus(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "sent":
		return models.MESSAGE_STATUS_SENT
	case "delivered":
		return models.MESSAGE_STATUS_DELIVERED
	case "read":
		return models.MESSAGE_STATUS_READ
	case "failed":
		return models.MESSAGE_STATUS_FAILED
	default:
		return ""
	}
}

// applyTemplateUpdate maps a provider template event onto the local
// Template. Unknown templates are logged and skipped; a status event
// never creates one. Unrecognized event kinds leave the status untouched
// but still land in the append-only history.
func (p *Processor) applyTemplateUpdate(account *models.Account, v webhookChangeValue) error {
	name := strings.TrimSpace(v.MessageTemplateName)
	if name == "" {
		return nil
	}

	var tpl models.Template
	err := p.DB.Where("account_id = ? AND name = ?", account.ID, name).First(&tpl).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			logrus.Warnf("processor: update de status para template desconhecido %q (conta %d), ignorando", name, account.ID)
			return nil
		}
		return err
	}

	now := time.Now()
	raw, _ := json.Marshal(v.webhookTemplateUpdate)
	tpl.AppendHistory(models.TemplateHistoryEntry{
		Event:     strings.ToUpper(strings.TrimSpace(v.Event)),
		Reason:    v.Reason,
		Raw:       string(raw),
		EmittedAt: &now,
	})

	updates := map[string]any{
		"history":    tpl.History,
		"updated_at": &now,
	}
	switch strings.ToUpper(strings.TrimSpace(v.Event)) {
	case "APPROVED":
		updates["status"] = models.TEMPLATE_STATUS_APPROVED
		updates["approved_at"] = &now
	case "REJECTED":
		updates["status"] = models.TEMPLATE_STATUS_REJECTED
		updates["rejected_at"] = &now
	}

	return p.DB.Model(&models.Template{}).Where("id = ?", tpl.ID).Updates(updates).Error
}

/************************************************
/**** MARK: WORKER LOOP ****/
/************************************************/

// StartEventProcessor starts the loop that consumes due webhook events.
//
// This loop is the durable-queue consumer: at-least-once delivery with a
// retry ceiling of models.WebhookEventMaxAttempts. Events are processed
// sequentially in id order, which preserves ordering within each
// account's stream; scaling to concurrent workers requires per-account
// partitioning first.
func StartEventProcessor(db *gorm.DB) {
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for range ticker.C {
			processDueEvents(db)
		}
	}()
}

func processDueEvents(db *gorm.DB) {
	now := time.Now()

	var events []models.WebhookEvent
	if err := db.
		Where("status = ?", models.WEBHOOK_EVENT_STATUS_RECEIVED).
		Where("scheduled_at IS NULL OR scheduled_at <= ?", now).
		Order("id asc").
		Limit(50).
		Find(&events).Error; err != nil {
		logrus.Errorf("webhook worker: consulta de eventos: %v", err)
		return
	}

	for _, ev := range events {
		// Optimistic claim: only process if we win the status flip.
		res := db.Model(&models.WebhookEvent{}).
			Where("id = ? AND status = ?", ev.ID, models.WEBHOOK_EVENT_STATUS_RECEIVED).
			Update("status", models.WEBHOOK_EVENT_STATUS_PROCESSING)
		if res.Error != nil || res.RowsAffected == 0 {
			continue
		}
		HandleEvent(db, ev.ID)
	}
}

// HandleEvent runs one processing attempt of a claimed event and settles
// its outcome: success clears the error trail, a retryable failure below
// the ceiling requeues with backoff, anything else dead-letters.
func HandleEvent(db *gorm.DB, eventID int64) {
	var ev models.WebhookEvent
	if err := db.First(&ev, eventID).Error; err != nil {
		return
	}
	if ev.Status != models.WEBHOOK_EVENT_STATUS_PROCESSING {
		return
	}

	attempts := ev.Attempts + 1
	processor := &Processor{DB: db}
	procErr := processor.Process(&ev)

	now := time.Now()
	updates := map[string]any{
		"attempts":     attempts,
		"processed":    true,
		"processed_at": &now,
		"status":       models.WEBHOOK_EVENT_STATUS_PROCESSED,
		"last_error":   "",
	}

	if procErr != nil {
		updates["last_error"] = procErr.Error()
		if !isFatal(procErr) && attempts < models.WebhookEventMaxAttempts {
			// Requeue with linear backoff; the queue retries, the error
			// trail stays on the row.
			due := now.Add(time.Duration(attempts) * retryBaseDelay)
			updates["status"] = models.WEBHOOK_EVENT_STATUS_RECEIVED
			updates["scheduled_at"] = &due
			logrus.WithFields(logrus.Fields{
				"event_id": ev.ID,
				"waba_id":  ev.WabaID,
				"attempt":  attempts,
			}).Warnf("webhook worker: tentativa falhou, reagendando: %v", procErr)
		} else {
			// Dead-letter: the job terminates at the queue level, the
			// durable error trail stays for manual follow-up.
			logrus.WithFields(logrus.Fields{
				"event_id": ev.ID,
				"waba_id":  ev.WabaID,
				"attempt":  attempts,
			}).Errorf("webhook worker: evento dead-lettered: %v", procErr)
		}
	}

	if err := db.Model(&models.WebhookEvent{}).Where("id = ?", ev.ID).Updates(updates).Error; err != nil {
		logrus.Errorf("webhook worker: não foi possível finalizar evento %d: %v", ev.ID, err)
	}
}
