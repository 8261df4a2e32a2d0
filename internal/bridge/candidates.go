package bridge

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// DefaultCandidates returns the ordered candidate lists for every capability.
// The first entries follow the wppconnect-server routes; later entries cover
// forks and older releases that moved verbs, bodies or auth headers around.
func DefaultCandidates() map[Capability][]Candidate {
	return map[Capability][]Candidate{
		GenerateToken: {
			{Name: "generate-token", Method: http.MethodPost, Path: "/api/{session}/{secret}/generate-token", Auth: AuthNone, Accept: acceptToken},
		},
		StartSession: {
			{Name: "start-session", Method: http.MethodPost, Path: "/api/{session}/start-session", Auth: AuthBearer, Body: startBody, Accept: acceptStart},
			{Name: "start-session/api-key", Method: http.MethodPost, Path: "/api/{session}/start-session", Auth: AuthAPIKey, Body: startBody, Accept: acceptStart},
			{Name: "qrcode-session", Method: http.MethodGet, Path: "/api/{session}/qrcode-session", Auth: AuthBearer, Accept: acceptStart},
		},
		CheckStatus: {
			{Name: "status-session", Method: http.MethodGet, Path: "/api/{session}/status-session", Auth: AuthBearer, Accept: acceptStatus},
			{Name: "check-connection-session", Method: http.MethodGet, Path: "/api/{session}/check-connection-session", Auth: AuthBearer, Accept: acceptStatus},
			{Name: "status-session/session-token", Method: http.MethodGet, Path: "/api/{session}/status-session", Auth: AuthSessionToken, Accept: acceptStatus},
		},
		ListChats: {
			{Name: "all-chats", Method: http.MethodGet, Path: "/api/{session}/all-chats", Auth: AuthBearer, Accept: acceptList},
			{Name: "list-chats", Method: http.MethodPost, Path: "/api/{session}/list-chats", Auth: AuthBearer, Body: func(Request) any { return map[string]any{} }, Accept: acceptList},
			{Name: "all-chats/api-key", Method: http.MethodGet, Path: "/api/{session}/all-chats", Auth: AuthAPIKey, Accept: acceptList},
		},
		ListMessages: {
			{Name: "get-messages", Method: http.MethodGet, Path: "/api/{session}/get-messages/{chat}?count={limit}", Auth: AuthBearer, Accept: acceptList},
			{Name: "get-messages/post-count", Method: http.MethodPost, Path: "/api/{session}/get-messages", Auth: AuthBearer, Body: messagesCountBody, Accept: acceptList},
			{Name: "all-messages-in-chat", Method: http.MethodGet, Path: "/api/{session}/all-messages-in-chat/{chat}?count={limit}", Auth: AuthBearer, Accept: acceptList},
			{Name: "chat-messages/post-limit", Method: http.MethodPost, Path: "/api/{session}/chat/messages", Auth: AuthBearer, Body: messagesLimitBody, Accept: acceptList},
		},
		SendMessage: {
			{Name: "send-message", Method: http.MethodPost, Path: "/api/{session}/send-message", Auth: AuthBearer, Body: SendBody, Accept: acceptSend},
			{Name: "send-message/is-group", Method: http.MethodPost, Path: "/api/{session}/send-message", Auth: AuthBearer, Body: sendIsGroupBody, Accept: acceptSend},
			{Name: "send-message/api-key", Method: http.MethodPost, Path: "/api/{session}/send-message", Auth: AuthAPIKey, Body: SendBody, Accept: acceptSend},
		},
		CloseSession: {
			{Name: "close-session", Method: http.MethodDelete, Path: "/api/{session}/close-session", Auth: AuthBearer},
			{Name: "close-session/post", Method: http.MethodPost, Path: "/api/{session}/close-session", Auth: AuthBearer},
			{Name: "logout-session", Method: http.MethodPost, Path: "/api/{session}/logout-session", Auth: AuthBearer},
		},
	}
}

func startBody(req Request) any {
	body := map[string]any{"waitQrCode": true}
	if req.Webhook != "" {
		body["webhook"] = req.Webhook
	}
	return body
}

func messagesCountBody(req Request) any {
	return map[string]any{"chatId": req.ChatID, "count": req.Limit}
}

func messagesLimitBody(req Request) any {
	return map[string]any{"chatId": req.ChatID, "limit": req.Limit}
}

// SendBody addresses groups by chat id and individuals by bare phone number.
func SendBody(req Request) any {
	if req.Group {
		return map[string]any{"chatId": req.ChatID, "message": req.Text}
	}
	return map[string]any{"phone": req.Phone, "message": req.Text}
}

func sendIsGroupBody(req Request) any {
	return map[string]any{"phone": req.Phone, "isGroup": req.Group, "message": req.Text}
}

func decodeObject(r *Result) error {
	v, err := Decode(r.Body)
	if err != nil {
		return err
	}
	obj, ok := ExtractObject(v)
	if !ok {
		return fmt.Errorf("%w: expected an object", ErrProtocol)
	}
	r.Object = obj
	return nil
}

func acceptList(r *Result) error {
	v, err := Decode(r.Body)
	if err != nil {
		return err
	}
	items, ok := ExtractList(v)
	if !ok {
		return fmt.Errorf("%w: no known collection shape", ErrProtocol)
	}
	r.Items = items
	if len(items) == 0 {
		return errEmpty
	}
	return nil
}

func acceptStart(r *Result) error {
	if strings.HasPrefix(r.ContentType, "image/") {
		if len(r.Body) == 0 {
			return fmt.Errorf("%w: empty qr image", ErrProtocol)
		}
		r.Object = map[string]any{
			"qrcode": "data:" + r.ContentType + ";base64," + base64.StdEncoding.EncodeToString(r.Body),
		}
		return nil
	}
	if err := decodeObject(r); err != nil {
		return err
	}
	if QRField(r.Object) == "" && !IsConnected(r.Object) {
		return fmt.Errorf("%w: neither qr code nor connected state in response", ErrProtocol)
	}
	return nil
}

func acceptStatus(r *Result) error {
	if err := decodeObject(r); err != nil {
		return err
	}
	for _, key := range []string{"status", "state", "connected", "isConnected", "loggedIn", "instance"} {
		if _, ok := r.Object[key]; ok {
			return nil
		}
	}
	return fmt.Errorf("%w: no status field in response", ErrProtocol)
}

func acceptSend(r *Result) error {
	if len(strings.TrimSpace(string(r.Body))) == 0 {
		return nil
	}
	v, err := Decode(r.Body)
	if err != nil {
		return err
	}
	obj, ok := ExtractObject(v)
	if !ok {
		return nil
	}
	r.Object = obj
	if strings.EqualFold(String(obj, "status"), "error") {
		return fmt.Errorf("%w: bridge rejected message: %s", ErrProtocol, String(obj, "message", "error"))
	}
	if v, ok := obj["success"].(bool); ok && !v {
		return fmt.Errorf("%w: bridge rejected message", ErrProtocol)
	}
	return nil
}

func acceptToken(r *Result) error {
	if err := decodeObject(r); err != nil {
		return err
	}
	if String(r.Object, "token") == "" {
		return fmt.Errorf("%w: no token in response", ErrProtocol)
	}
	return nil
}
