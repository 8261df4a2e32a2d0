package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bridge"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bus"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/catalog"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/config"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/history"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/outbox"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/pairing"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/scheduler"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/status"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func jsonReply(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func fakeBridge() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/main/secret/generate-token", jsonReply(`{"status":"success","token":"fresh-token"}`))
	mux.HandleFunc("POST /api/main/start-session", jsonReply(`{"status":"CONNECTED"}`))
	mux.HandleFunc("GET /api/main/status-session", jsonReply(`{"status":"CONNECTED"}`))
	mux.HandleFunc("DELETE /api/main/close-session", jsonReply(`{"status":true}`))
	mux.HandleFunc("GET /api/main/all-chats", jsonReply(`{"response":[
		{"id":{"_serialized":"123@c.us"},"name":"Maria","t":1700000000,"lastMessage":{"body":"oi"}},
		{"id":{"_serialized":"g-1@g.us"},"name":"Grupo","isGroup":true,"t":1600000000}
	]}`))
	mux.HandleFunc("GET /api/main/get-messages/123@c.us", jsonReply(`{"response":[
		{"id":"m1","body":"olá mundo","timestamp":10,"ack":3},
		{"id":"m2","body":"tudo bem?","timestamp":20,"ack":2}
	]}`))
	mux.HandleFunc("POST /api/main/send-message", jsonReply(`{"status":"success","response":[{"id":"srv-1"}]}`))
	return mux
}

type harness struct {
	svc   *Service
	store *config.Store
	db    *store.DB
	bus   *bus.Bus
}

func newHarness(t *testing.T, mux http.Handler) *harness {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	db, err := store.Open(filepath.Join(t.TempDir(), "wpp.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.DefaultBridge("main")
	cfg.ServerURL = srv.URL
	cfg.SecretKey = "secret"
	cfg.AuthToken = "tok"
	cfg.PollInterval = config.Duration{Duration: 5 * time.Millisecond}
	settings := config.NewStore(cfg, nil, nil)

	b := bus.New()
	prober := bridge.NewProber(settings, nil)
	machine := status.NewMachine(b)
	ctrl := pairing.NewController(prober, settings, machine, b, nil)
	t.Cleanup(func() { ctrl.Reset("") })
	chats := catalog.NewSyncer(prober, machine, catalog.New(), db, b, nil)
	msgs := history.NewSyncer(prober, machine, settings, history.NewStore(), b, nil)
	out := outbox.NewDispatcher(prober, machine, chats.Catalog(), msgs.Store(), nil, b, nil)
	sched := scheduler.New(chats, msgs, ctrl, machine, settings, nil)

	svc := NewService(Deps{
		SessionName: "main",
		Config:      settings,
		Prober:      prober,
		Pairing:     ctrl,
		Chats:       chats,
		Messages:    msgs,
		Outbox:      out,
		DB:          db,
		Scheduler:   sched,
		Bus:         b,
	})
	return &harness{svc: svc, store: settings, db: db, bus: b}
}

func call(t *testing.T, fn func(context.Context, *structpb.Struct) (*structpb.Struct, error), req map[string]any) map[string]any {
	t.Helper()
	in, err := structpb.NewStruct(req)
	if err != nil {
		t.Fatal(err)
	}
	out, err := fn(context.Background(), in)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	return out.AsMap()
}

func callErr(fn func(context.Context, *structpb.Struct) (*structpb.Struct, error), req map[string]any) codes.Code {
	in, _ := structpb.NewStruct(req)
	_, err := fn(context.Background(), in)
	return grpcstatus.Code(err)
}

func TestConnectAndStatus(t *testing.T) {
	h := newHarness(t, fakeBridge())

	got := call(t, h.svc.GetStatus, nil)
	if got["state"] != string(status.Disconnected) || got["session"] != "main" {
		t.Errorf("initial status = %v", got)
	}

	got = call(t, h.svc.Connect, map[string]any{"wait": true})
	if got["state"] != string(status.Connected) || got["phone"] != pairing.FallbackPhone {
		t.Errorf("status after connect = %v", got)
	}

	got = call(t, h.svc.Disconnect, nil)
	if got["state"] != string(status.Disconnected) || got["warning"] != nil {
		t.Errorf("status after disconnect = %v", got)
	}
}

func TestOperationsRequireConnection(t *testing.T) {
	h := newHarness(t, fakeBridge())
	if code := callErr(h.svc.ListChats, nil); code != codes.FailedPrecondition {
		t.Errorf("ListChats code = %s, want FailedPrecondition", code)
	}
	if code := callErr(h.svc.SendText, map[string]any{"chat_id": "123@c.us", "text": "oi"}); code != codes.FailedPrecondition {
		t.Errorf("SendText code = %s, want FailedPrecondition", code)
	}
}

func TestListChatsAndMessages(t *testing.T) {
	h := newHarness(t, fakeBridge())
	call(t, h.svc.Connect, nil)

	got := call(t, h.svc.ListChats, nil)
	chats, _ := got["chats"].([]any)
	if len(chats) != 2 || got["source"] != "bridge" {
		t.Fatalf("ListChats = %v", got)
	}
	first := chats[0].(map[string]any)
	if first["id"] != "123@c.us" || first["display_name"] != "Maria" {
		t.Errorf("first chat = %v, want Maria (newest)", first)
	}

	got = call(t, h.svc.ListMessages, map[string]any{"chat_id": "123"})
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 || got["chat_id"] != "123@c.us" {
		t.Fatalf("ListMessages = %v", got)
	}
	if m := msgs[0].(map[string]any); m["id"] != "m1" || m["delivery_status"] != "read" {
		t.Errorf("oldest message = %v", m)
	}
}

func TestSendText(t *testing.T) {
	h := newHarness(t, fakeBridge())
	call(t, h.svc.Connect, nil)

	got := call(t, h.svc.SendText, map[string]any{"chat_id": "123@c.us", "text": "olá"})
	msg := got["message"].(map[string]any)
	if msg["id"] != "srv-1" || msg["delivery_status"] != "sent" || msg["from_me"] != true {
		t.Errorf("sent message = %v", msg)
	}
	if code := callErr(h.svc.SendText, map[string]any{"chat_id": "123@c.us", "text": " "}); code != codes.InvalidArgument {
		t.Errorf("blank text code = %s, want InvalidArgument", code)
	}
}

func TestSendTextFailureMarksFailed(t *testing.T) {
	failing := http.NewServeMux()
	failing.Handle("/", fakeBridge())
	failing.HandleFunc("POST /api/main/send-message", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	h := newHarness(t, failing)
	failures, unsub := h.bus.Subscribe(bus.KindSendFailed, 4)
	defer unsub()
	call(t, h.svc.Connect, nil)

	if code := callErr(h.svc.SendText, map[string]any{"chat_id": "123@c.us", "text": "olá"}); code != codes.Unavailable {
		t.Errorf("code = %s, want Unavailable", code)
	}
	select {
	case evt := <-failures:
		p := evt.Payload.(outbox.SendFailure)
		if p.Message.DeliveryStatus != history.StatusFailed {
			t.Errorf("failure payload = %+v", p)
		}
	default:
		t.Error("no send_failed event")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	h := newHarness(t, fakeBridge())

	got := call(t, h.svc.GetConfig, nil)
	if got["secret_key"] != masked || got["history_limit"] != float64(config.DefaultHistoryLimit) {
		t.Errorf("GetConfig = %v", got)
	}
	if got := call(t, h.svc.GetConfig, map[string]any{"reveal": true}); got["secret_key"] != "secret" {
		t.Errorf("revealed secret = %v", got["secret_key"])
	}

	call(t, h.svc.UpdateConfig, map[string]any{"key": "history_limit", "value": "120"})
	if h.store.Get().HistoryLimit != 120 {
		t.Errorf("history_limit = %d, want 120", h.store.Get().HistoryLimit)
	}
	if code := callErr(h.svc.UpdateConfig, map[string]any{"key": "history_limit", "value": "5"}); code != codes.FailedPrecondition {
		t.Errorf("invalid limit code = %s", code)
	}
	if h.store.Get().HistoryLimit != 120 {
		t.Error("rejected update changed the config")
	}
}

func TestGenerateTokenStoresToken(t *testing.T) {
	h := newHarness(t, fakeBridge())
	got := call(t, h.svc.GenerateToken, nil)
	if got["token"] != "fresh-token" || h.store.Get().AuthToken != "fresh-token" {
		t.Errorf("token = %v, stored %q", got["token"], h.store.Get().AuthToken)
	}
}

func TestPinWatchAndSearch(t *testing.T) {
	h := newHarness(t, fakeBridge())
	call(t, h.svc.Connect, nil)
	call(t, h.svc.ListChats, nil)

	call(t, h.svc.SetPin, map[string]any{"chat_id": "g-1@g.us"})
	if first := h.svc.Chats.Catalog().List()[0]; first.ID != "g-1@g.us" || !first.Pinned {
		t.Errorf("first after pin = %+v", first)
	}

	if got := call(t, h.svc.Watch, map[string]any{"chat_id": "123"}); got["changed"] != true {
		t.Errorf("Watch = %v", got)
	}
	st := call(t, h.svc.GetStatus, nil)
	if w, _ := st["watched"].([]any); len(w) != 1 || w[0] != "123@c.us" {
		t.Errorf("watched = %v", st["watched"])
	}
	call(t, h.svc.Unwatch, map[string]any{"chat_id": "123@c.us"})

	if err := h.db.UpsertMessages([]store.Message{{ChatJID: "123@c.us", MsgID: "m1", Body: "olá mundo", Timestamp: 10}}); err != nil {
		t.Fatal(err)
	}
	got := call(t, h.svc.SearchMessages, map[string]any{"query": "mundo"})
	if results, _ := got["results"].([]any); len(results) != 1 {
		t.Errorf("search = %v", got)
	}
	if code := callErr(h.svc.SearchMessages, nil); code != codes.InvalidArgument {
		t.Errorf("empty query code = %s", code)
	}
}

func TestMessageValuesCarryAudioFlag(t *testing.T) {
	live := messageValue(history.Message{ID: "a", Type: "ptt", IsAudio: true})
	if live["is_audio"] != true {
		t.Errorf("messageValue is_audio = %v", live["is_audio"])
	}
	tests := []struct {
		kind string
		want bool
	}{
		{"ptt", true},
		{"audio", true},
		{"chat", false},
		{"", false},
	}
	for _, tt := range tests {
		row := messageRowValue(store.Message{MsgID: "r", MessageType: tt.kind})
		if row["is_audio"] != tt.want {
			t.Errorf("messageRowValue(%q) is_audio = %v, want %v", tt.kind, row["is_audio"], tt.want)
		}
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{bridge.ConfigError("x"), codes.FailedPrecondition},
		{bridge.ErrNotConnected, codes.FailedPrecondition},
		{outbox.ErrEmptyText, codes.InvalidArgument},
		{bridge.ErrTimeout, codes.DeadlineExceeded},
		{bridge.ErrNetwork, codes.Unavailable},
		{errors.New("other"), codes.Internal},
	}
	for _, tt := range tests {
		if got := grpcstatus.Code(toStatus("op", tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

// TestOverSocket drives the service through a real gRPC server on a Unix socket.
func TestOverSocket(t *testing.T) {
	h := newHarness(t, fakeBridge())

	dir, err := os.MkdirTemp("", "wppapi")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	sock := filepath.Join(dir, "d.sock")
	lis, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	srv := grpc.NewServer()
	Register(srv, h.svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := Dial(sock)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, _, err := c.Events(ctx, "session.")
	if err != nil {
		t.Fatal(err)
	}

	// The stream subscribes asynchronously; retry the status read until
	// the server side is registered before triggering a transition.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := c.Call(ctx, MethodGetStatus, nil); err == nil {
			break
		} else if time.Now().After(deadline) {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	got, err := c.Call(ctx, MethodConnect, map[string]any{"wait": true})
	if err != nil {
		t.Fatal(err)
	}
	if got["state"] != string(status.Connected) {
		t.Errorf("Connect over socket = %v", got)
	}

	select {
	case evt := <-events:
		if evt["kind"] != bus.KindStatusChanged {
			t.Errorf("event = %v", evt)
		}
	case <-ctx.Done():
		t.Error("no event streamed")
	}

	_, err = c.Call(ctx, MethodListMessages, map[string]any{})
	if grpcstatus.Code(err) != codes.FailedPrecondition {
		t.Errorf("ListMessages without chat = %v", err)
	}
}
