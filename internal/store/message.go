package store

import (
	"fmt"
	"time"
)

const upsertMessageSQL = `
	INSERT INTO messages (chat_jid, msg_id, sender_jid, body, message_type, from_me, status, timestamp, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(chat_jid, msg_id) DO UPDATE SET
		body = excluded.body,
		status = excluded.status`

// UpsertMessage inserts or updates a message (idempotent on chat_jid + msg_id).
func (db *DB) UpsertMessage(m *Message) error {
	_, err := db.Exec(upsertMessageSQL,
		m.ChatJID, m.MsgID, m.SenderJID, m.Body, m.MessageType, m.FromMe, m.Status, m.Timestamp, time.Now().UnixMilli())
	return err
}

// UpsertMessages writes a batch in one transaction.
func (db *DB) UpsertMessages(msgs []Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(upsertMessageSQL)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().UnixMilli()
	for _, m := range msgs {
		if _, err := stmt.Exec(m.ChatJID, m.MsgID, m.SenderJID, m.Body, m.MessageType, m.FromMe, m.Status, m.Timestamp, now); err != nil {
			return fmt.Errorf("upsert message %q: %w", m.MsgID, err)
		}
	}
	return tx.Commit()
}

// RenameMessage moves a local message id to the id the bridge assigned. If
// the server copy was already mirrored the local row is dropped.
func (db *DB) RenameMessage(chatJID, localID, serverID string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`UPDATE OR IGNORE messages SET msg_id = ? WHERE chat_jid = ? AND msg_id = ?`,
		serverID, chatJID, localID); err != nil {
		return fmt.Errorf("rename message: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM messages WHERE chat_jid = ? AND msg_id = ?`, chatJID, localID); err != nil {
		return fmt.Errorf("drop local message: %w", err)
	}
	return tx.Commit()
}

// SetMessageStatus overwrites the delivery status of one message.
func (db *DB) SetMessageStatus(chatJID, msgID, status string) error {
	_, err := db.Exec(`UPDATE messages SET status = ? WHERE chat_jid = ? AND msg_id = ?`, status, chatJID, msgID)
	return err
}

// ListMessages returns messages for a chat using keyset pagination by
// timestamp, newest first.
func (db *DB) ListMessages(chatJID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, chat_jid, msg_id, sender_jid, body, message_type, from_me, status, timestamp
		FROM messages
		WHERE chat_jid = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, chatJID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatJID, &m.MsgID, &m.SenderJID, &m.Body, &m.MessageType, &m.FromMe, &m.Status, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
