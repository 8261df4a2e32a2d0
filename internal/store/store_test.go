package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so a second run must be a no-op.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2 (init + fts)", result.Version)
	}
}

// TestMigrateSchemaHasRequiredColumns verifies the migration creates every
// column the mirror writes.
func TestMigrateSchemaHasRequiredColumns(t *testing.T) {
	db := testDB(t)

	requiredOps := []struct {
		desc  string
		query string
		args  []any
	}{
		{"upsert chat", "INSERT INTO chats (jid, name, is_group, unread_count, last_message_at, last_message_preview) VALUES (?, ?, ?, ?, ?, ?)", []any{"c@c.us", "Test", false, 0, 1000, "hi"}},
		{"upsert message", "INSERT INTO messages (chat_jid, msg_id, sender_jid, body, message_type, from_me, status, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", []any{"c@c.us", "m1", "s@c.us", "hello", "chat", false, "delivered", 1000}},
		{"pin chat", "INSERT INTO pins (jid, pinned_at) VALUES (?, ?)", []any{"c@c.us", 1}},
		{"set sync state", "INSERT INTO sync_state (key, value) VALUES (?, ?)", []any{"k", "v"}},
	}

	for _, op := range requiredOps {
		t.Run(op.desc, func(t *testing.T) {
			if _, err := db.Exec(op.query, op.args...); err != nil {
				t.Fatalf("%s failed: %v", op.desc, err)
			}
		})
	}

	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM messages_fts WHERE messages_fts MATCH 'hello'").Scan(&count)
	if err != nil {
		t.Fatalf("FTS query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("FTS count = %d, want 1", count)
	}
}

func TestRebuildClearsCache(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertChat(&Chat{JID: "a@c.us", Name: "A"}); err != nil {
		t.Fatal(err)
	}
	result, err := db.Rebuild()
	if err != nil {
		t.Fatal(err)
	}
	if result.Version != 2 {
		t.Errorf("version = %d, want 2", result.Version)
	}
	if n, _ := db.ChatCount(); n != 0 {
		t.Errorf("chats after rebuild = %d, want 0", n)
	}
}

func TestChatUpsertAndList(t *testing.T) {
	db := testDB(t)

	chat := &Chat{JID: "123@c.us", Name: "Alice", LastMessageAt: 1000, LastMessagePreview: "hello"}
	if err := db.UpsertChat(chat); err != nil {
		t.Fatal(err)
	}
	chat.Name = "Alice Updated"
	if err := db.UpsertChat(chat); err != nil {
		t.Fatal(err)
	}

	chats, err := db.ListChats(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 {
		t.Fatalf("got %d chats, want 1", len(chats))
	}
	if chats[0].Name != "Alice Updated" {
		t.Errorf("name = %q, want Alice Updated", chats[0].Name)
	}
}

func TestReplaceChatsIsWholesale(t *testing.T) {
	db := testDB(t)
	if err := db.ReplaceChats([]Chat{{JID: "a@c.us"}, {JID: "b@c.us"}}); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceChats([]Chat{{JID: "b@c.us", Name: "B"}}); err != nil {
		t.Fatal(err)
	}
	chats, err := db.ListChats(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0].JID != "b@c.us" || chats[0].Name != "B" {
		t.Errorf("chats = %+v, want only b", chats)
	}
}

func TestPinsOrderAndSurviveReplace(t *testing.T) {
	db := testDB(t)
	if err := db.ReplaceChats([]Chat{{JID: "new@c.us", LastMessageAt: 200}, {JID: "old@c.us", LastMessageAt: 100}}); err != nil {
		t.Fatal(err)
	}
	if err := db.SetPin("old@c.us", true); err != nil {
		t.Fatal(err)
	}
	if err := db.ReplaceChats([]Chat{{JID: "new@c.us", LastMessageAt: 200}, {JID: "old@c.us", LastMessageAt: 100}}); err != nil {
		t.Fatal(err)
	}

	chats, err := db.ListChats(10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 || chats[0].JID != "old@c.us" || !chats[0].Pinned {
		t.Errorf("chats = %+v, want pinned old first", chats)
	}
	pins, err := db.Pins()
	if err != nil {
		t.Fatal(err)
	}
	if !pins["old@c.us"] || len(pins) != 1 {
		t.Errorf("pins = %v", pins)
	}

	if err := db.SetPin("old@c.us", false); err != nil {
		t.Fatal(err)
	}
	if pins, _ := db.Pins(); len(pins) != 0 {
		t.Errorf("pins after unpin = %v", pins)
	}
}

func TestGetChat(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertChat(&Chat{JID: "a@c.us", Name: "A"}); err != nil {
		t.Fatal(err)
	}
	c, err := db.GetChat("a@c.us")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.Name != "A" {
		t.Errorf("got %v, want A", c)
	}

	c, err = db.GetChat("missing@c.us")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("expected nil for missing chat")
	}
}

func TestMessageUpsertIdempotent(t *testing.T) {
	db := testDB(t)

	msg := Message{ChatJID: "chat@c.us", MsgID: "msg1", Body: "hello", MessageType: "chat", Status: "sent", Timestamp: 1000}
	if err := db.UpsertMessages([]Message{msg, msg}); err != nil {
		t.Fatal(err)
	}
	msg.Status = "read"
	if err := db.UpsertMessage(&msg); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("chat@c.us", 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent upsert failed)", len(msgs))
	}
	if msgs[0].Status != "read" {
		t.Errorf("status = %q, want read", msgs[0].Status)
	}
}

func TestRenameMessage(t *testing.T) {
	tests := []struct {
		name         string
		serverExists bool
	}{
		{"server copy absent", false},
		{"server copy mirrored", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testDB(t)
			batch := []Message{{ChatJID: "c@c.us", MsgID: "local", Body: "oi", Timestamp: 1000}}
			if tt.serverExists {
				batch = append(batch, Message{ChatJID: "c@c.us", MsgID: "srv", Body: "oi", Timestamp: 1000})
			}
			if err := db.UpsertMessages(batch); err != nil {
				t.Fatal(err)
			}
			if err := db.RenameMessage("c@c.us", "local", "srv"); err != nil {
				t.Fatal(err)
			}
			msgs, err := db.ListMessages("c@c.us", 0, 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(msgs) != 1 || msgs[0].MsgID != "srv" {
				t.Errorf("messages = %+v, want only srv", msgs)
			}
		})
	}
}

func TestSearchMessages(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessages([]Message{
		{ChatJID: "chat@c.us", MsgID: "m1", Body: "hello world", MessageType: "chat", Timestamp: 1000},
		{ChatJID: "chat@c.us", MsgID: "m2", Body: "goodbye world", MessageType: "chat", Timestamp: 2000},
		{ChatJID: "other@c.us", MsgID: "m3", Body: "hello there", MessageType: "chat", Timestamp: 3000},
	}); err != nil {
		t.Fatal(err)
	}

	results, err := db.SearchMessages("hello", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 || results[0].Message.MsgID != "m3" {
		t.Fatalf("results = %+v, want m3 then m1", results)
	}

	results, err = db.SearchMessages("hello", "chat@c.us", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Message.MsgID != "m1" {
		t.Errorf("results = %+v, want only m1", results)
	}
	if results[0].Snippet == "" {
		t.Error("empty snippet")
	}
}

func TestSyncState(t *testing.T) {
	db := testDB(t)
	if v, err := db.SyncState(KeyAccountPhone); err != nil || v != "" {
		t.Fatalf("SyncState() = %q, %v; want empty", v, err)
	}
	if err := db.SetSyncState(KeyAccountPhone, "5511"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSyncState(KeyAccountPhone, "5512"); err != nil {
		t.Fatal(err)
	}
	if v, _ := db.SyncState(KeyAccountPhone); v != "5512" {
		t.Errorf("SyncState() = %q, want 5512", v)
	}
}
