package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveClient fetches recordings from Google Drive
type DriveClient struct {
	service *drive.Service
}

// NewDriveClient authorizes with a stored OAuth token.
// The token file must already exist; no interactive consent flow is run.
func NewDriveClient(ctx context.Context, credentialsFile, tokenFile string) (*DriveClient, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("unable to load oauth token %s: %w", tokenFile, err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}
	return &DriveClient{service: srv}, nil
}

// NewDriveClientWithOptions builds a client from explicit API options
func NewDriveClientWithOptions(ctx context.Context, opts ...option.ClientOption) (*DriveClient, error) {
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %w", err)
	}
	return &DriveClient{service: srv}, nil
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// DriveFile is the metadata of a remote file
type DriveFile struct {
	ID   string
	Name string
	Size int64
}

// Stat returns the name and size of a Drive file
func (dc *DriveClient) Stat(ctx context.Context, fileID string) (DriveFile, error) {
	f, err := dc.service.Files.Get(fileID).Fields("id, name, size").Context(ctx).Do()
	if err != nil {
		return DriveFile{}, fmt.Errorf("unable to get file %s: %w", fileID, err)
	}
	return DriveFile{ID: f.Id, Name: f.Name, Size: f.Size}, nil
}

// Open streams the content of a Drive file; the caller closes it
func (dc *DriveClient) Open(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := dc.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("unable to download file %s: %w", fileID, err)
	}
	return resp.Body, nil
}

var (
	driveFilePath = regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`)
	driveIDParam  = regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`)
	driveBareID   = regexp.MustCompile(`^([a-zA-Z0-9_-]{25,40})$`)
)

// ExtractDriveFileID extracts the file ID from a share link, an open?id= link
// or a bare ID. It returns "" when none match.
func ExtractDriveFileID(url string) string {
	for _, re := range []*regexp.Regexp{driveFilePath, driveIDParam, driveBareID} {
		if m := re.FindStringSubmatch(url); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}
