// Package bridge negotiates requests against WhatsApp bridge HTTP servers.
//
// Bridge servers come in several incompatible variants. Each capability is a
// static, ordered list of Candidate descriptors; Prober interprets that list,
// trying one shape after another until a response can be normalized.
package bridge

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Capability names one operation offered by a bridge server.
type Capability string

const (
	GenerateToken Capability = "generate-token"
	StartSession  Capability = "start-session"
	CheckStatus   Capability = "check-status"
	ListChats     Capability = "list-chats"
	ListMessages  Capability = "list-messages"
	SendMessage   Capability = "send-message"
	CloseSession  Capability = "close-session"
)

// AuthScheme selects how the session token is presented.
type AuthScheme int

const (
	AuthBearer AuthScheme = iota
	AuthAPIKey
	AuthSessionToken
	AuthNone
)

func (a AuthScheme) apply(h http.Header, token string) {
	if token == "" {
		return
	}
	switch a {
	case AuthBearer:
		h.Set("Authorization", "Bearer "+token)
	case AuthAPIKey:
		h.Set("X-API-Key", token)
	case AuthSessionToken:
		h.Set("X-Session-Token", token)
	}
}

// Endpoint is the connection data a request is built from.
type Endpoint struct {
	BaseURL string
	Session string
	Secret  string
	Token   string
	Timeout time.Duration
}

// EndpointSource supplies the current Endpoint for every probe.
type EndpointSource interface {
	Endpoint() Endpoint
}

// Request carries the per-call inputs candidates build their requests from.
type Request struct {
	ChatID  string
	Phone   string
	Group   bool
	Text    string
	Limit   int
	Webhook string
}

// Candidate is one guess at the request/response shape of a capability.
type Candidate struct {
	Name   string
	Method string
	// Path is appended to the base URL. Placeholders: {session}, {secret},
	// {chat}, {phone}, {limit}.
	Path   string
	Auth   AuthScheme
	Body   func(Request) any
	Accept func(*Result) error
}

func (c Candidate) path(ep Endpoint, req Request) string {
	r := strings.NewReplacer(
		"{session}", escape(ep.Session),
		"{secret}", escape(ep.Secret),
		"{chat}", escape(req.ChatID),
		"{phone}", escape(req.Phone),
		"{limit}", strconv.Itoa(req.Limit),
	)
	return r.Replace(c.Path)
}

// Result is the normalized outcome of the winning candidate.
type Result struct {
	Capability  Capability
	Candidate   string
	StatusCode  int
	ContentType string
	Body        []byte
	Object      map[string]any
	Items       []map[string]any
}

// Empty reports a recognized response that carried no items.
func (r *Result) Empty() bool {
	return r.Object == nil && len(r.Items) == 0
}
