package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mdp/qrterminal"
	"github.com/rivo/uniseg"
)

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

// Accessors for structpb-decoded maps, where numbers arrive as float64.

func getString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func getInt(m map[string]any, key string) int64 {
	f, _ := m[key].(float64)
	return int64(f)
}

func getBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func getList(m map[string]any, key string) []map[string]any {
	raw, _ := m[key].([]any)
	out := make([]map[string]any, 0, len(raw))
	for _, it := range raw {
		if row, ok := it.(map[string]any); ok {
			out = append(out, row)
		}
	}
	return out
}

// pad fits s into width terminal cells, truncating with an ellipsis.
func pad(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	w := uniseg.StringWidth(s)
	if w <= width {
		return s + strings.Repeat(" ", width-w)
	}
	var b strings.Builder
	used := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		cw := g.Width()
		if used+cw > width-1 {
			break
		}
		b.WriteString(g.Str())
		used += cw
	}
	b.WriteString("…")
	used++
	return b.String() + strings.Repeat(" ", width-used)
}

// clock renders a unix-milliseconds timestamp.
func clock(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	t := time.UnixMilli(ms)
	if time.Since(t) < 24*time.Hour {
		return t.Format("15:04")
	}
	return t.Format("2006-01-02")
}

func printChats(w io.Writer, chats []map[string]any) {
	if len(chats) == 0 {
		fmt.Fprintln(w, "No chats.")
		return
	}
	for _, c := range chats {
		mark := " "
		if getBool(c, "pinned") {
			mark = "*"
		}
		name := getString(c, "display_name")
		if getBool(c, "is_group") {
			name = "[g] " + name
		}
		unread := ""
		if n := getInt(c, "unread_count"); n > 0 {
			unread = fmt.Sprintf(" (%d)", n)
		}
		fmt.Fprintf(w, "%s %s %-10s %s%s\n",
			mark, pad(name, 28), clock(getInt(c, "last_message_timestamp")),
			pad(getString(c, "last_message_preview"), 40), unread)
	}
}

func printMessages(w io.Writer, msgs []map[string]any) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages.")
		return
	}
	for _, m := range msgs {
		who := getString(m, "sender")
		if getBool(m, "from_me") {
			who = "me"
		}
		if who == "" {
			who = "them"
		}
		line := fmt.Sprintf("%s %s %s", clock(getInt(m, "timestamp")), pad(who, 16), getString(m, "text"))
		if st := getString(m, "delivery_status"); getBool(m, "from_me") && st != "" {
			line += " [" + st + "]"
		}
		fmt.Fprintln(w, line)
	}
}

// renderQR prints the raw pairing code as a terminal QR. Bridges that only
// hand out an image get a pointer to --qr-out instead.
func renderQR(w io.Writer, code, image string) {
	switch {
	case code != "":
		qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
		fmt.Fprintln(w, "Scan the code above with WhatsApp > Linked devices.")
	case image != "":
		fmt.Fprintln(w, "The bridge returned a QR image; save it with --qr-out <file.png>.")
	}
}

// writeQRImage decodes a data:image/png;base64 URL into path.
func writeQRImage(path, dataURL string) error {
	_, payload, ok := strings.Cut(dataURL, ";base64,")
	if !ok {
		return errors.New("qr image is not a base64 data URL")
	}
	png, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("decode qr image: %w", err)
	}
	return os.WriteFile(path, png, 0600)
}
