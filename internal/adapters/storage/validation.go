package storage

import (
	"fmt"
	"strings"
)

// AllowedContentTypes lists the MIME types accepted as communication attachments.
var AllowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,

	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"text/plain": true,
	"text/csv":   true,

	// Forwarded dealer mail
	"message/rfc822":             true,
	"application/vnd.ms-outlook": true,
}

// ValidateContentType checks if the content type is allowed.
func ValidateContentType(contentType string) error {
	normalized := strings.Split(contentType, ";")[0]
	normalized = strings.TrimSpace(strings.ToLower(normalized))

	if !AllowedContentTypes[normalized] {
		return fmt.Errorf("%w: content type %q is not allowed", ErrRejectedUpload, contentType)
	}
	return nil
}

// ValidateFileSize checks sizeBytes against maxBytes. A non-positive maximum
// disables the upper bound.
func ValidateFileSize(sizeBytes, maxBytes int64) error {
	if sizeBytes <= 0 {
		return fmt.Errorf("%w: file size must be greater than 0", ErrRejectedUpload)
	}
	if maxBytes > 0 && sizeBytes > maxBytes {
		return fmt.Errorf("%w: file size %d bytes exceeds maximum allowed size of %d bytes", ErrRejectedUpload, sizeBytes, maxBytes)
	}
	return nil
}
