package catalog

import (
	"strings"

	"github.com/rivo/uniseg"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bridge"
	"go.mau.fi/whatsmeow/types"
)

const (
	// EmptyPreview is shown for chats whose last message is unknown.
	EmptyPreview = "Sem mensagens"
	// AudioPreview stands in for voice notes and audio files without caption.
	AudioPreview = "🎵 Mensagem de áudio"

	maxPreview = 80
)

// Contact is one chat of the catalog, individual or group.
type Contact struct {
	ID                   string
	DisplayName          string
	LastMessagePreview   string
	LastMessageTimestamp int64 // unix ms
	UnreadCount          int
	IsGroup              bool
	Pinned               bool
}

// Normalize maps one list-chats item to a Contact. ok is false when the item
// carries no usable id.
func Normalize(item map[string]any) (c Contact, ok bool) {
	var id string
	for _, key := range []string{"id", "chatId", "jid", "remoteJid"} {
		if v, found := item[key]; found {
			if id = NormalizeChatID(v); id != "" {
				break
			}
		}
	}
	if id == "" {
		return Contact{}, false
	}
	ts, _ := bridge.Int(item, "t", "timestamp", "lastMessageTime", "lastMessage.timestamp", "lastMessage.t", "conversationTimestamp")
	unread, _ := bridge.Int(item, "unreadCount", "unread", "unread_count")
	return Contact{
		ID:                   id,
		DisplayName:          DisplayName(item, id),
		LastMessagePreview:   Preview(item),
		LastMessageTimestamp: bridge.Millis(ts),
		UnreadCount:          int(max(unread, 0)),
		IsGroup:              IsGroup(item, id),
	}, true
}

// NormalizeChatID folds the id encodings bridges use (plain "user@server"
// strings, {_serialized} objects, {user, server} pairs, bare numbers) into a
// single "user@server" form. Device suffixes are dropped and ids without a
// server default to c.us.
func NormalizeChatID(v any) string {
	switch t := v.(type) {
	case string:
		return canonical(t)
	case float64:
		return canonical(bridge.AsString(t))
	case map[string]any:
		if s := bridge.String(t, "_serialized"); s != "" {
			return canonical(s)
		}
		user, server := bridge.String(t, "user"), bridge.String(t, "server")
		if user != "" && server != "" {
			return canonical(user + "@" + server)
		}
		if s := bridge.String(t, "id", "remote", "remoteJid"); s != "" {
			return canonical(s)
		}
	}
	return ""
}

func canonical(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "@") {
		return types.NewJID(strings.TrimPrefix(s, "+"), types.LegacyUserServer).String()
	}
	jid, err := types.ParseJID(s)
	if err != nil || jid.User == "" {
		return strings.ToLower(s)
	}
	return types.NewJID(jid.User, strings.ToLower(jid.Server)).String()
}

// DisplayName picks the chat title: explicit name, then contact name,
// formatted name, push name, and finally the user part of the id.
func DisplayName(item map[string]any, id string) string {
	if s := bridge.String(item, "name", "contact.name", "contact.formattedName", "contact.pushname"); s != "" {
		return s
	}
	user, _, _ := strings.Cut(id, "@")
	return user
}

// Preview returns the last-message preview, truncated by grapheme cluster.
func Preview(item map[string]any) string {
	text := bridge.String(item,
		"lastMessage.body", "lastMessage.content", "lastMessage.text", "lastMessage.caption",
		"lastMessagePreview", "lastMessage", "last_message", "preview")
	if text == "" {
		kind := strings.ToLower(bridge.String(item, "lastMessage.type"))
		if kind == "ptt" || kind == "audio" {
			return AudioPreview
		}
		return EmptyPreview
	}
	return truncate(strings.Join(strings.Fields(text), " "), maxPreview)
}

func truncate(s string, limit int) string {
	if uniseg.GraphemeClusterCount(s) <= limit {
		return s
	}
	var b strings.Builder
	g := uniseg.NewGraphemes(s)
	for n := 0; n < limit && g.Next(); n++ {
		b.WriteString(g.Str())
	}
	return b.String() + "…"
}

// IsGroup reports an explicit group flag or a g.us id.
func IsGroup(item map[string]any, id string) bool {
	if bridge.Bool(item, "isGroup", "is_group", "kind.isGroup") {
		return true
	}
	return strings.HasSuffix(id, "@"+types.GroupServer)
}
