package ticket

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const DefaultQRSize = 512

// Renderer draws a token as a QR code whose content is exactly the token text.
type Renderer struct {
	size int
}

func NewRenderer(size int) *Renderer {
	if size <= 0 {
		size = DefaultQRSize
	}
	return &Renderer{size: size}
}

func (r *Renderer) PNG(token string) ([]byte, error) {
	png, err := qrcode.Encode(token, qrcode.Medium, r.size)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	return png, nil
}

// DataURI returns the PNG as an inline data: URI.
func (r *Renderer) DataURI(token string) (string, error) {
	png, err := r.PNG(token)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
