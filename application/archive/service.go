package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"tonebot/domain/archive"
)

// Service mirrors produced artifacts into a Google Drive folder
type Service struct {
	driveClient archive.DriveClient
	folderID    string
}

// NewService creates a new archive service
func NewService(client archive.DriveClient, folderID string) *Service {
	return &Service{
		driveClient: client,
		folderID:    folderID,
	}
}

// Archive uploads the file at path and returns its shareable link.
// A file with the same name already in the folder is reused rather than
// uploaded again; artifact names are stable per source and offset.
func (s *Service) Archive(ctx context.Context, path string) (*archive.UploadResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("file does not exist: %s", path)
	}

	fileName := filepath.Base(path)

	existing, err := s.driveClient.FindFileByName(ctx, s.folderID, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing file: %w", err)
	}
	if existing != nil && existing.Size == info.Size() {
		return &archive.UploadResult{
			FileID:       existing.ID,
			FileName:     existing.Name,
			ShareableURL: existing.WebViewLink,
			Size:         existing.Size,
			Existing:     true,
		}, nil
	}

	result, err := s.driveClient.UploadAndShare(ctx, archive.UploadRequest{
		LocalPath: path,
		FileName:  fileName,
		FolderID:  s.folderID,
		MimeType:  archive.MimeTypeMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload and share %s: %w", fileName, err)
	}

	return result, nil
}
