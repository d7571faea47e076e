package archive

import (
	"context"
	"time"
)

// DriveClient defines the interface for Google Drive operations
// This is a port that can be implemented by different infrastructure adapters
type DriveClient interface {
	// FindFileByName returns the file with the given name in a folder, or nil if absent
	FindFileByName(ctx context.Context, folderID, fileName string) (*FileInfo, error)

	// UploadAndShare uploads a file and makes it readable by anyone with the link
	UploadAndShare(ctx context.Context, req UploadRequest) (*UploadResult, error)
}

// FileInfo represents metadata about a file in Google Drive
type FileInfo struct {
	ID          string
	Name        string
	MimeType    string
	Size        int64
	WebViewLink string
	CreatedTime time.Time
}
