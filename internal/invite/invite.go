// internal/invite/invite.go

// Package invite renders shareable join links for a room so a host can get
// other players in without dictating a code.
package invite

import (
	"fmt"
	"net/url"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// JoinURL builds the join-by-code link served by the web frontend.
func JoinURL(base, roomCode string) string {
	return fmt.Sprintf("%s/join?code=%s", strings.TrimRight(base, "/"), url.QueryEscape(roomCode))
}

// QRCodePNG encodes the join link as a PNG of size x size pixels.
func QRCodePNG(base, roomCode string, size int) ([]byte, error) {
	png, err := qrcode.Encode(JoinURL(base, roomCode), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("invite: encode qr code: %w", err)
	}
	return png, nil
}
