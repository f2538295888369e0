// utils/qr.go
package utils

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// QRCodePNG encodes content as a square PNG of size pixels.
func QRCodePNG(content string, size int) ([]byte, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
