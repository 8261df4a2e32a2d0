package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/history"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/status"
)

type fake struct {
	mu          sync.Mutex
	state       status.State
	loads       []string
	polls       int
	revalidates int
}

func (f *fake) Current() status.State { return f.state }

func (f *fake) LoadMessages(_ context.Context, chatID string, opts history.Options) (history.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if opts.Silent {
		f.loads = append(f.loads, chatID)
	}
	return history.Result{Added: 1}, nil
}

func (f *fake) Poll(context.Context) (bool, error) {
	f.polls++
	return false, nil
}

func (f *fake) Revalidate(context.Context) (status.State, error) {
	f.revalidates++
	return f.state, nil
}

func post(t *testing.T, r *Receiver, body string) map[string]any {
	t.Helper()
	req := httptest.NewRequest("POST", Path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("response %q: %v", raw, err)
	}
	out["code"] = resp.StatusCode
	return out
}

func TestMessageEventTriggersOneSilentSync(t *testing.T) {
	f := &fake{state: status.Connected}
	r := New(f, f, f, nil)

	out := post(t, r, `{"event":"onmessage","session":"main","from":"5511999999999@c.us","body":"oi"}`)
	if out["status"] != "ok" {
		t.Errorf("response = %v", out)
	}
	if len(f.loads) != 1 || f.loads[0] != "5511999999999@c.us" {
		t.Errorf("silent loads = %v, want one for 5511999999999@c.us", f.loads)
	}
}

func TestMessageEventIgnoredWhenDisconnected(t *testing.T) {
	f := &fake{state: status.Disconnected}
	r := New(f, f, f, nil)

	out := post(t, r, `{"event":"onmessage","from":"5511@c.us"}`)
	if out["status"] != "ignored" || len(f.loads) != 0 {
		t.Errorf("response = %v, loads = %v", out, f.loads)
	}
}

func TestStatusEvents(t *testing.T) {
	tests := []struct {
		name        string
		state       status.State
		polls       int
		revalidates int
	}{
		{"awaiting scan polls", status.AwaitingScan, 1, 0},
		{"connected revalidates", status.Connected, 0, 1},
		{"disconnected ignores", status.Disconnected, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fake{state: tt.state}
			r := New(f, f, f, nil)
			post(t, r, `{"event":"status-find","status":"inChat"}`)
			if f.polls != tt.polls || f.revalidates != tt.revalidates {
				t.Errorf("polls=%d revalidates=%d, want %d/%d", f.polls, f.revalidates, tt.polls, tt.revalidates)
			}
		})
	}
}

func TestUnknownEventAcknowledged(t *testing.T) {
	f := &fake{state: status.Connected}
	r := New(f, f, f, nil)
	out := post(t, r, `{"event":"onpresencechanged","id":"5511@c.us"}`)
	if out["code"] != 200 || out["status"] != "ignored" {
		t.Errorf("response = %v", out)
	}
}

func TestInvalidBody(t *testing.T) {
	f := &fake{state: status.Connected}
	r := New(f, f, f, nil)
	out := post(t, r, `not json`)
	if out["code"] != 400 {
		t.Errorf("code = %v, want 400", out["code"])
	}
}

func TestChatID(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"incoming from", `{"from":"5511@c.us","to":"5599@c.us"}`, "5511@c.us"},
		{"outgoing uses recipient", `{"fromMe":true,"from":"5599@c.us","to":"5511@c.us"}`, "5511@c.us"},
		{"explicit chat id wins", `{"chatId":{"_serialized":"g-1@g.us"},"from":"5511@c.us"}`, "g-1@g.us"},
		{"nested key", `{"data":{"key":{"remoteJid":"5511:3@s.whatsapp.net"}}}`, "5511@s.whatsapp.net"},
		{"none", `{"event":"onmessage"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload map[string]any
			if err := json.Unmarshal([]byte(tt.payload), &payload); err != nil {
				t.Fatal(err)
			}
			if got := ChatID(payload); got != tt.want {
				t.Errorf("ChatID() = %q, want %q", got, tt.want)
			}
		})
	}
}
