package product

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var allowedImageTypes = []string{"image/png", "image/jpeg", "image/webp", "image/gif"}

// sniffImage detects the content type from the file bytes rather than the
// client-supplied header and rejects anything that is not an image.
func sniffImage(upload Upload) (string, error) {
	if len(upload.Data) == 0 {
		return "", fmt.Errorf("image %q is empty", upload.Filename)
	}
	detected := mimetype.Detect(upload.Data)
	for _, allowed := range allowedImageTypes {
		if detected.Is(allowed) {
			return allowed, nil
		}
	}
	return "", fmt.Errorf("image %q has unsupported type %s; allowed: %s",
		upload.Filename, detected.String(), strings.Join(allowedImageTypes, ", "))
}
