package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter by namespace prefix ("session.", "history.").
const (
	KindStatusChanged = "session.status_changed"
	KindQRExpired     = "session.qr_expired"
	KindSessionDrop   = "session.dropped"

	KindCatalogReplaced = "catalog.replaced"

	KindHistoryMerged = "history.merged"
	KindNewMessages   = "history.new_messages"

	KindSendAck    = "message.send_ack"
	KindSendFailed = "message.send_failed"

	KindNotifyError = "notify.error"
)

// NewMessages is the live-update payload: Count new messages arrived in ChatID.
type NewMessages struct {
	ChatID string
	Count  int
}

// Notice asks the user-facing surface to show a dismissible error.
type Notice struct {
	Source  string
	Message string
}
