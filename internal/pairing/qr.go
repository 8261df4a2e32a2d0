package pairing

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
	"github.com/tzsexpertacademy/whatsaiai-insights-hub-sub001/internal/bridge"
)

const qrSize = 256

// pngMagic is "\x89PNG" in base64.
const pngMagic = "iVBOR"

// NormalizeQR turns whatever a bridge returned as QR payload into a data URL.
// Data URLs pass through, bare base64 PNGs get a prefix, and raw pairing
// strings are rendered to a PNG. code is the raw pairing string when known.
func NormalizeQR(qr string) (image, code string, err error) {
	qr = strings.TrimSpace(qr)
	switch {
	case qr == "":
		return "", "", fmt.Errorf("%w: empty qr payload", bridge.ErrProtocol)
	case strings.HasPrefix(qr, "data:image/"):
		return qr, "", nil
	case strings.HasPrefix(qr, pngMagic):
		return "data:image/png;base64," + qr, "", nil
	}
	png, err := qrcode.Encode(qr, qrcode.Medium, qrSize)
	if err != nil {
		return "", "", fmt.Errorf("encode qr: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), qr, nil
}
