package adapters

import (
	"context"
	"errors"
	"path"

	"leadflow_backend/internal/adapters/storage"
	"leadflow_backend/internal/workflow/domain"
	workflowhandler "leadflow_backend/internal/workflow/handler"
	"leadflow_backend/platform/apperr"
)

// AttachmentPresigner issues upload URLs for communication attachments under
// a per-lead folder.
type AttachmentPresigner struct {
	storage storage.StorageService
	bucket  string
}

// NewAttachmentPresigner creates a new attachment presigner adapter.
func NewAttachmentPresigner(storageSvc storage.StorageService, bucket string) *AttachmentPresigner {
	return &AttachmentPresigner{storage: storageSvc, bucket: bucket}
}

// PresignAttachment returns a PUT URL and the attachment reference to send
// with the reply. The reference URL is the object key inside the bucket.
func (p *AttachmentPresigner) PresignAttachment(ctx context.Context, leadID, fileName, contentType string, sizeBytes int64) (workflowhandler.AttachmentUpload, error) {
	presigned, err := p.storage.GenerateUploadURL(ctx, p.bucket, path.Join("leads", leadID), fileName, contentType, sizeBytes)
	if errors.Is(err, storage.ErrRejectedUpload) {
		return workflowhandler.AttachmentUpload{}, apperr.Validation(err.Error())
	}
	if err != nil {
		return workflowhandler.AttachmentUpload{}, apperr.Persistence("storage.PresignAttachment", err)
	}

	return workflowhandler.AttachmentUpload{
		UploadURL: presigned.URL,
		ExpiresAt: presigned.ExpiresAt,
		Attachment: domain.Attachment{
			Name: fileName,
			Size: sizeBytes,
			Type: contentType,
			URL:  presigned.FileKey,
		},
	}, nil
}

// Compile-time check that AttachmentPresigner implements the handler port.
var _ workflowhandler.AttachmentPresigner = (*AttachmentPresigner)(nil)
