package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
)

// DefaultBaseURL is the Google Drive v3 API endpoint
const DefaultBaseURL = "https://www.googleapis.com/drive/v3"

// folderMimeType marks Drive folders in file listings
const folderMimeType = "application/vnd.google-apps.folder"

// fileFields is the field set requested for every file listing
const fileFields = "id,name,mimeType,md5Checksum,size,createdTime,modifiedTime,thumbnailLink,webViewLink"

// File is one Drive file or folder entry
type File struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MimeType      string `json:"mimeType"`
	MD5Checksum   string `json:"md5Checksum"`
	Size          int64  `json:"size,string"`
	CreatedTime   string `json:"createdTime"`
	ModifiedTime  string `json:"modifiedTime"`
	ThumbnailLink string `json:"thumbnailLink"`
	WebViewLink   string `json:"webViewLink"`
}

// IsFolder reports whether the entry is a Drive folder
func (f *File) IsFolder() bool {
	return f.MimeType == folderMimeType
}

// IsVideo reports whether the entry is a video file
func (f *File) IsVideo() bool {
	return strings.HasPrefix(f.MimeType, "video/")
}

// Folder is a scanned Drive folder, optionally with its subtree
type Folder struct {
	ID          string
	Name        string
	Files       []File
	Subfolders  []*Folder
	TotalVideos int
}

// VideoEntry is a video file together with the folder path it was found under
type VideoEntry struct {
	File
	FolderPath string
}

// ProgressFunc reports download progress. Total is -1 when unknown.
type ProgressFunc func(downloaded, total int64)

// DriveClient handles communication with the Google Drive API
type DriveClient interface {
	// GetFile fetches the metadata of a single file, or nil if it does not exist
	GetFile(ctx context.Context, fileID string) (*File, error)
	// ListFolder lists the direct children of a folder
	ListFolder(ctx context.Context, folderID string) ([]File, error)
	// ScanFolder builds the folder tree below a folder. Without recursive only
	// the direct children are scanned, with videoOnly non-video files are
	// dropped from the listings.
	ScanFolder(ctx context.Context, folderID string, recursive, videoOnly bool) (*Folder, error)
	// ListVideos collects all video files below a folder together with their
	// folder paths
	ListVideos(ctx context.Context, folderID string, recursive bool) (string, []VideoEntry, error)
	// DownloadFile streams a file to the given path
	DownloadFile(ctx context.Context, fileID, destPath string, progress ProgressFunc) error
}

// driveClient implements DriveClient using HTTP
type driveClient struct {
	logger      logging.Logger
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewDriveClient creates a new Drive API client. An empty baseURL selects the
// public Google API.
func NewDriveClient(logger logging.Logger, baseURL, accessToken string, timeout time.Duration) DriveClient {

	if logger == nil {
		logger = logging.NopLogger
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &driveClient{
		logger:      logger,
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// GetFile fetches the metadata of a single file, or nil if it does not exist
func (c *driveClient) GetFile(ctx context.Context, fileID string) (*File, error) {
	requestURL := fmt.Sprintf("%s/files/%s?fields=%s", c.baseURL, fileID, url.QueryEscape(fileFields))

	req, err := http.NewRequestWithContext(ctx, "GET", requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("drive API returned status %d: %s", resp.StatusCode, string(body))
	}

	var file File
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &file, nil
}

type fileListResponse struct {
	NextPageToken string `json:"nextPageToken"`
	Files         []File `json:"files"`
}

// ListFolder lists the direct children of a folder
func (c *driveClient) ListFolder(ctx context.Context, folderID string) ([]File, error) {
	var files []File
	pageToken := ""

	for {
		params := url.Values{}
		params.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", folderID))
		params.Set("fields", fmt.Sprintf("nextPageToken, files(%s)", fileFields))
		params.Set("pageSize", "1000")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}

		requestURL := fmt.Sprintf("%s/files?%s", c.baseURL, params.Encode())

		req, err := http.NewRequestWithContext(ctx, "GET", requestURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to make request: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("drive API returned status %d: %s", resp.StatusCode, string(body))
		}

		var page fileListResponse
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		resp.Body.Close()

		files = append(files, page.Files...)

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	return files, nil
}

// ScanFolder builds the folder tree below a folder
func (c *driveClient) ScanFolder(ctx context.Context, folderID string, recursive, videoOnly bool) (*Folder, error) {
	meta, err := c.GetFile(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("folder %s not found", folderID)
	}
	if !meta.IsFolder() {
		return nil, fmt.Errorf("%s is not a folder", folderID)
	}

	return c.scanFolderTree(ctx, meta, recursive, videoOnly)
}

func (c *driveClient) scanFolderTree(ctx context.Context, meta *File, recursive, videoOnly bool) (*Folder, error) {
	children, err := c.ListFolder(ctx, meta.ID)
	if err != nil {
		return nil, err
	}

	folder := &Folder{
		ID:   meta.ID,
		Name: meta.Name,
	}

	for _, child := range children {
		if child.IsFolder() {
			if !recursive {
				continue
			}
			sub, err := c.scanFolderTree(ctx, &child, recursive, videoOnly)
			if err != nil {
				return nil, err
			}
			folder.Subfolders = append(folder.Subfolders, sub)
			folder.TotalVideos += sub.TotalVideos
			continue
		}

		if child.IsVideo() {
			folder.TotalVideos++
		} else if videoOnly {
			continue
		}
		folder.Files = append(folder.Files, child)
	}

	c.logger.Debug("Scanned folder", "folder", meta.Name, "files", len(folder.Files), "videos", folder.TotalVideos)
	return folder, nil
}

// ListVideos collects all video files below a folder together with their
// folder paths. The returned string is the name of the root folder.
func (c *driveClient) ListVideos(ctx context.Context, folderID string, recursive bool) (string, []VideoEntry, error) {
	root, err := c.ScanFolder(ctx, folderID, recursive, true)
	if err != nil {
		return "", nil, err
	}

	var videos []VideoEntry
	collectVideos(root, root.Name, &videos)
	return root.Name, videos, nil
}

func collectVideos(folder *Folder, path string, out *[]VideoEntry) {
	for _, file := range folder.Files {
		if file.IsVideo() {
			*out = append(*out, VideoEntry{File: file, FolderPath: path})
		}
	}
	for _, sub := range folder.Subfolders {
		collectVideos(sub, path+"/"+sub.Name, out)
	}
}

// DownloadFile streams a file to the given path
func (c *driveClient) DownloadFile(ctx context.Context, fileID, destPath string, progress ProgressFunc) error {
	requestURL := fmt.Sprintf("%s/files/%s?alt=media", c.baseURL, fileID)

	req, err := http.NewRequestWithContext(ctx, "GET", requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("drive API returned status %d: %s", resp.StatusCode, string(body))
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	total := resp.ContentLength
	var downloaded int64
	buf := make([]byte, 1024*1024)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			downloaded += int64(n)
			if progress != nil {
				progress(downloaded, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("failed to read response: %w", readErr)
		}
	}

	c.logger.Info("Downloaded file", "file_id", fileID, "bytes", downloaded, "path", destPath)
	return nil
}
