package drive

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"tonebot/domain/archive"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const fileFields = "id, name, mimeType, size, createdTime, webViewLink"

// DriveService defines the interface for Google Drive API operations
// This allows mocking the Google Drive API in tests
type DriveService interface {
	ListFiles(ctx context.Context, query string, fields string, orderBy string) ([]*drive.File, error)
	UploadFile(ctx context.Context, fileName, mimeType, folderID, localPath string) (*drive.File, error)
	CreatePermission(ctx context.Context, fileID string, permission *drive.Permission) error
}

// GoogleDriveService is the production implementation using the Google Drive API
type GoogleDriveService struct {
	service *drive.Service
}

// ListFiles lists files matching the query
func (s *GoogleDriveService) ListFiles(ctx context.Context, query string, fields string, orderBy string) ([]*drive.File, error) {
	r, err := s.service.Files.List().
		Q(query).
		Fields(googleapi.Field("files(" + fields + ")")).
		OrderBy(orderBy).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return r.Files, nil
}

// UploadFile uploads localPath into folderID
func (s *GoogleDriveService) UploadFile(ctx context.Context, fileName, mimeType, folderID, localPath string) (*drive.File, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	meta := &drive.File{
		Name:     fileName,
		MimeType: mimeType,
		Parents:  []string{folderID},
	}
	return s.service.Files.Create(meta).
		Media(f).
		Fields(googleapi.Field(fileFields)).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
}

// CreatePermission grants permission on a file
func (s *GoogleDriveService) CreatePermission(ctx context.Context, fileID string, permission *drive.Permission) error {
	_, err := s.service.Permissions.Create(fileID, permission).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	return err
}

// Client implements archive.DriveClient using Google Drive API
type Client struct {
	driveService DriveService
}

// ClientOption is a functional option for configuring Client
type ClientOption func(*Client)

// WithDriveService sets a custom drive service (for testing)
func WithDriveService(svc DriveService) ClientOption {
	return func(c *Client) {
		c.driveService = svc
	}
}

// NewClient creates a new Google Drive client
// If no options are provided, it initializes a real Google Drive service
// authenticated with the service-account key at credentialsPath
func NewClient(ctx context.Context, credentialsPath string, opts ...ClientOption) (*Client, error) {
	c := &Client{}

	for _, opt := range opts {
		opt(c)
	}

	// If no custom drive service was provided, create a real one
	if c.driveService == nil {
		svc, err := newGoogleDriveService(ctx, credentialsPath)
		if err != nil {
			return nil, err
		}
		c.driveService = svc
	}

	return c, nil
}

// newGoogleDriveService creates a production Google Drive service
func newGoogleDriveService(ctx context.Context, credentialsPath string) (*GoogleDriveService, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	client := config.Client(ctx)
	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create drive service: %w", err)
	}

	return &GoogleDriveService{service: srv}, nil
}

// FindFileByName implements archive.DriveClient
func (c *Client) FindFileByName(ctx context.Context, folderID, fileName string) (*archive.FileInfo, error) {
	query := fmt.Sprintf("'%s' in parents and name = '%s' and trashed = false", escapeQuery(folderID), escapeQuery(fileName))
	files, err := c.driveService.ListFiles(ctx, query, fileFields, "createdTime")
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}

	info := toFileInfo(files[0])
	return &info, nil
}

// UploadAndShare implements archive.DriveClient
func (c *Client) UploadAndShare(ctx context.Context, req archive.UploadRequest) (*archive.UploadResult, error) {
	file, err := c.driveService.UploadFile(ctx, req.FileName, req.MimeType, req.FolderID, req.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", req.FileName, err)
	}

	perm := &drive.Permission{Type: "anyone", Role: "reader"}
	if err := c.driveService.CreatePermission(ctx, file.Id, perm); err != nil {
		return nil, fmt.Errorf("failed to share %s: %w", req.FileName, err)
	}

	return &archive.UploadResult{
		FileID:       file.Id,
		FileName:     file.Name,
		ShareableURL: shareableURL(file),
		Size:         file.Size,
	}, nil
}

func toFileInfo(f *drive.File) archive.FileInfo {
	return archive.FileInfo{
		ID:          f.Id,
		Name:        f.Name,
		MimeType:    f.MimeType,
		Size:        f.Size,
		WebViewLink: shareableURL(f),
		CreatedTime: parseTime(f.CreatedTime),
	}
}

// shareableURL prefers the link Drive returns and falls back to the canonical form
func shareableURL(f *drive.File) string {
	if f.WebViewLink != "" {
		return f.WebViewLink
	}
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", f.Id)
}

// escapeQuery escapes a value for a single-quoted Drive query literal
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// parseTime parses a Google Drive timestamp string
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Ensure Client implements archive.DriveClient
var _ archive.DriveClient = (*Client)(nil)
