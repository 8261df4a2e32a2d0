package history

import (
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bridge"
)

// Status is the delivery status of a message.
type Status string

const (
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// rank orders statuses so merges only move forward.
func (s Status) rank() int {
	switch s {
	case StatusSending:
		return 1
	case StatusSent:
		return 2
	case StatusDelivered:
		return 3
	case StatusRead:
		return 4
	}
	return 0
}

// Placeholders for entries without text.
const (
	AudioText    = "🎵 Mensagem de áudio"
	ImageText    = "📷 Imagem"
	VideoText    = "🎥 Vídeo"
	StickerText  = "Figurinha"
	DocumentText = "📄 Documento"
)

// Message is one entry of a chat history.
type Message struct {
	ID             string
	ChatID         string
	Text           string
	Type           string
	Sender         string
	FromMe         bool
	IsAudio        bool
	Timestamp      int64 // unix ms
	DeliveryStatus Status
}

// idSpace namespaces synthesized ids so they stay stable across loads.
var idSpace = uuid.MustParse("0d5c1c8e-3f4b-5a4e-9e55-6b1f3d0f7a21")

// Normalize maps one list-messages item to a Message of chatID. owner is the
// paired phone number, used to recognize outgoing messages when the bridge
// omits the fromMe flag.
func Normalize(item map[string]any, chatID, owner string) Message {
	m := Message{
		ChatID: chatID,
		Type:   strings.ToLower(bridge.String(item, "type", "messageType")),
		Sender: bridge.String(item, "sender.id._serialized", "sender.id", "author", "from", "key.participant", "key.remoteJid"),
	}
	m.IsAudio = IsAudioType(m.Type) || bridge.Bool(item, "isAudio") ||
		strings.HasPrefix(strings.ToLower(bridge.String(item, "mimetype", "mimeType", "message.audioMessage.mimetype")), "audio/")
	if m.IsAudio && !IsAudioType(m.Type) {
		m.Type = "audio"
	}
	ts, _ := bridge.Int(item, "timestamp", "t", "messageTimestamp", "createdAt")
	m.Timestamp = bridge.Millis(ts)
	m.Text = Text(item, m.Type)
	m.FromMe = FromMe(item, owner)
	m.DeliveryStatus = DeliveryStatus(item, m.FromMe)
	m.ID = bridge.String(item, "id._serialized", "id", "key.id", "id.id", "messageId", "msgId")
	if m.ID == "" {
		m.ID = SynthesizeID(chatID, m.Timestamp, m.Text)
	}
	return m
}

// SynthesizeID derives a deterministic id for entries the bridge sent
// without one, so reloading the same entry does not duplicate it.
func SynthesizeID(chatID string, ts int64, text string) string {
	return uuid.NewSHA1(idSpace, []byte(chatID+"\x00"+strconv.FormatInt(ts, 10)+"\x00"+text)).String()
}

// IsAudioType reports whether a lowercased message type is a voice note or
// audio file.
func IsAudioType(kind string) bool {
	switch kind {
	case "ptt", "audio", "audiomessage":
		return true
	}
	return false
}

// Text picks the message text. Media bodies often carry base64 thumbnails,
// so media types use their caption or a placeholder.
func Text(item map[string]any, kind string) string {
	captionOnly := false
	placeholder := ""
	if IsAudioType(kind) {
		return AudioText
	}
	switch kind {
	case "image", "imagemessage":
		captionOnly, placeholder = true, ImageText
	case "video", "videomessage":
		captionOnly, placeholder = true, VideoText
	case "sticker", "stickermessage":
		captionOnly, placeholder = true, StickerText
	case "document", "documentmessage":
		captionOnly, placeholder = true, DocumentText
	}
	if captionOnly {
		if s := bridge.String(item, "caption", "message.imageMessage.caption", "message.videoMessage.caption", "message.documentMessage.caption"); s != "" {
			return s
		}
		return placeholder
	}
	return bridge.String(item,
		"body", "content", "text", "message.conversation", "message.extendedTextMessage.text",
		"caption", "message.text")
}

// FromMe reports whether the message was sent by the session owner.
func FromMe(item map[string]any, owner string) bool {
	if bridge.Bool(item, "fromMe", "id.fromMe", "key.fromMe", "isSentByMe") {
		return true
	}
	if owner == "" {
		return false
	}
	owner = user(owner)
	for _, p := range []string{"sender.id._serialized", "sender.id", "author", "from"} {
		if s := bridge.String(item, p); s != "" {
			return user(s) == owner
		}
	}
	return false
}

func user(jid string) string {
	u, _, _ := strings.Cut(jid, "@")
	u, _, _ = strings.Cut(u, ":")
	return strings.TrimPrefix(u, "+")
}

// DeliveryStatus maps ack numbers and status strings. Without either, own
// messages count as sent and others as delivered.
func DeliveryStatus(item map[string]any, fromMe bool) Status {
	if ack, ok := bridge.Int(item, "ack"); ok {
		switch {
		case ack < 0:
			return StatusFailed
		case ack == 0:
			return StatusSending
		case ack == 1:
			return StatusSent
		case ack == 2:
			return StatusDelivered
		default:
			return StatusRead
		}
	}
	switch strings.ToUpper(bridge.String(item, "status", "ackStatus")) {
	case "ERROR", "FAILED":
		return StatusFailed
	case "PENDING", "SENDING", "CLOCK":
		return StatusSending
	case "SERVER_ACK", "SENT":
		return StatusSent
	case "DELIVERY_ACK", "DELIVERED", "RECEIVED":
		return StatusDelivered
	case "READ", "PLAYED", "VIEWED":
		return StatusRead
	}
	if fromMe {
		return StatusSent
	}
	return StatusDelivered
}

// Order returns the batch ascending by timestamp. Sources that list newest
// first are reversed before the stable sort so ties keep their relative order.
func Order(batch []Message) []Message {
	out := slices.Clone(batch)
	if len(out) > 1 && out[0].Timestamp > out[len(out)-1].Timestamp {
		slices.Reverse(out)
	}
	slices.SortStableFunc(out, func(a, b Message) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})
	return out
}
