package catalog

import "errors"

// User-visible status strings for file operations. The admin dashboard
// renders these inline rather than raising typed errors at the UI layer.
const (
	StatusNoFileSelected = "No file selected"
	StatusUploading      = "Uploading..."
	StatusUploaded       = "Uploaded successfully"
	StatusFileDeleted    = "File deleted"
	StatusDeleteFailed   = "Delete failed"
	StatusLinkSaved      = "Purchase link saved"
)

// UploadStatus maps an AttachFile result to its inline status string.
func UploadStatus(err error) string {
	switch {
	case err == nil:
		return StatusUploaded
	case errors.Is(err, ErrNoFile):
		return StatusNoFileSelected
	default:
		return "Upload failed: " + reason(err)
	}
}

// DeleteStatus maps a DetachFile result to its inline status string.
func DeleteStatus(err error) string {
	switch {
	case err == nil:
		return StatusFileDeleted
	case errors.Is(err, ErrNotFound):
		return "Delete failed: no file uploaded for this sub-service"
	default:
		return StatusDeleteFailed
	}
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrPartialFailure):
		return "storage inconsistency, contact support"
	case errors.Is(err, ErrBackendUnavailable):
		return "backend unavailable"
	default:
		return err.Error()
	}
}
