package settings

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/ampere-erp/ampere-erp/internal/platform/httpx"
)

const (
	maxLogoBytes = 2 << 20
	logoWidth    = 200
)

// NormalizeLogo decodes a data URL or bare base64 image, shrinks it to the
// letterhead width and re-encodes it as a PNG data URL.
func NormalizeLogo(raw string) (string, error) {
	payload := raw
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.Contains(payload[:comma], ";base64") {
			return "", fmt.Errorf("%w: logo must be a base64 data URL", httpx.ErrValidation)
		}
		payload = payload[comma+1:]
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > maxLogoBytes {
		return "", fmt.Errorf("%w: logo exceeds %d bytes", httpx.ErrValidation, maxLogoBytes)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: logo is not valid base64", httpx.ErrValidation)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: logo is not a supported image", httpx.ErrValidation)
	}
	if img.Bounds().Dx() > logoWidth {
		img = imaging.Resize(img, logoWidth, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
