package storage

import (
	"errors"
	"testing"
)

func TestValidateContentType(t *testing.T) {
	allowed := []string{"application/pdf", "IMAGE/PNG", "text/plain; charset=utf-8", "message/rfc822"}
	for _, ct := range allowed {
		if err := ValidateContentType(ct); err != nil {
			t.Errorf("expected %q to be allowed: %v", ct, err)
		}
	}

	for _, ct := range []string{"", "application/x-msdownload", "video/mp4"} {
		if err := ValidateContentType(ct); !errors.Is(err, ErrRejectedUpload) {
			t.Errorf("expected %q to be rejected, got %v", ct, err)
		}
	}
}

func TestValidateFileSize(t *testing.T) {
	tests := []struct {
		size, max int64
		ok        bool
	}{
		{1, 10, true},
		{10, 10, true},
		{11, 10, false},
		{0, 10, false},
		{-1, 0, false},
		{1 << 40, 0, true},
	}
	for _, tc := range tests {
		err := ValidateFileSize(tc.size, tc.max)
		if (err == nil) != tc.ok {
			t.Errorf("size=%d max=%d: unexpected result %v", tc.size, tc.max, err)
		}
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		folder, name, want string
	}{
		{"leads/L-1", "quote.pdf", "leads/L-1/quote_ab12cd34.pdf"},
		{"/leads/L-1/", "../../etc/passwd", "leads/L-1/passwd_ab12cd34"},
		{"leads/L-1", `C:\mail\reply.eml`, "leads/L-1/reply_ab12cd34.eml"},
		{"leads/L-1", "", "leads/L-1/file_ab12cd34"},
		{"leads/L-1", ".pdf", "leads/L-1/file_ab12cd34.pdf"},
	}
	for _, tc := range tests {
		if got := objectKey(tc.folder, tc.name, "ab12cd34"); got != tc.want {
			t.Errorf("objectKey(%q, %q) = %q, want %q", tc.folder, tc.name, got, tc.want)
		}
	}
}
