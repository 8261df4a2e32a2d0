package store

// Chat is a mirrored catalog entry.
type Chat struct {
	JID                string
	Name               string
	IsGroup            bool
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
	Pinned             bool
}

// Message is a mirrored history entry.
type Message struct {
	ID          int64
	ChatJID     string
	MsgID       string
	SenderJID   string
	Body        string
	MessageType string
	FromMe      bool
	Status      string
	Timestamp   int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
