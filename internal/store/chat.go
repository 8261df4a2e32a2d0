package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const chatColumns = `c.jid, c.name, c.is_group, c.unread_count, c.last_message_at, c.last_message_preview,
	p.jid IS NOT NULL AS pinned`

// UpsertChat inserts or updates a chat record.
func (db *DB) UpsertChat(c *Chat) error {
	_, err := db.Exec(upsertChatSQL,
		c.JID, c.Name, c.IsGroup, c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, time.Now().UnixMilli())
	return err
}

const upsertChatSQL = `
	INSERT INTO chats (jid, name, is_group, unread_count, last_message_at, last_message_preview, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(jid) DO UPDATE SET
		name = excluded.name,
		is_group = excluded.is_group,
		unread_count = excluded.unread_count,
		last_message_at = excluded.last_message_at,
		last_message_preview = excluded.last_message_preview,
		updated_at = excluded.updated_at`

// ReplaceChats makes the chats table match chats exactly, in one transaction.
// Messages of chats that disappear are kept.
func (db *DB) ReplaceChats(chats []Chat) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM chats`); err != nil {
		return fmt.Errorf("clear chats: %w", err)
	}
	now := time.Now().UnixMilli()
	for _, c := range chats {
		if _, err := tx.Exec(upsertChatSQL,
			c.JID, c.Name, c.IsGroup, c.UnreadCount, c.LastMessageAt, c.LastMessagePreview, now); err != nil {
			return fmt.Errorf("upsert chat %q: %w", c.JID, err)
		}
	}
	return tx.Commit()
}

// ListChats returns chats pinned first, then by last message timestamp descending.
func (db *DB) ListChats(limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT `+chatColumns+`
		FROM chats c
		LEFT JOIN pins p ON p.jid = c.jid
		ORDER BY pinned DESC, c.last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.JID, &c.Name, &c.IsGroup, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview, &c.Pinned); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by JID, or nil when unknown.
func (db *DB) GetChat(jid string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT `+chatColumns+`
		FROM chats c
		LEFT JOIN pins p ON p.jid = c.jid
		WHERE c.jid = ?`, jid).
		Scan(&c.JID, &c.Name, &c.IsGroup, &c.UnreadCount, &c.LastMessageAt, &c.LastMessagePreview, &c.Pinned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ChatCount returns the total number of chats.
func (db *DB) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}
