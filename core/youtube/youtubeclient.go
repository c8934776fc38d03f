package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/shkond/CloudVid-Bridge/core/ccc/logging"
)

// DefaultAPIBaseURL is the YouTube Data v3 API endpoint
const DefaultAPIBaseURL = "https://www.googleapis.com/youtube/v3"

// DefaultUploadBaseURL is the YouTube media upload endpoint
const DefaultUploadBaseURL = "https://www.googleapis.com/upload/youtube/v3"

// DefaultMimeType is assumed for uploads without a known content type
const DefaultMimeType = "video/mp4"

// VideoMetadata describes the video being published
type VideoMetadata struct {
	Title             string
	Description       string
	Tags              []string
	CategoryID        string
	PrivacyStatus     string
	MadeForKids       bool
	NotifySubscribers bool
}

// UploadResult identifies a published video
type UploadResult struct {
	VideoID  string
	VideoURL string
}

// ChannelInfo summarizes the authenticated user's channel
type ChannelInfo struct {
	ID              string
	Title           string
	Description     string
	CustomURL       string
	SubscriberCount int64
	VideoCount      int64
	ViewCount       int64
}

// Video is one entry of the channel's upload list
type Video struct {
	ID           string
	Title        string
	Description  string
	ThumbnailURL string
	ChannelID    string
	PublishedAt  string
}

// ProgressFunc reports upload progress
type ProgressFunc func(uploaded, total int64)

// YouTubeClient handles communication with the YouTube Data API
type YouTubeClient interface {
	// UploadVideo publishes a video file. An empty mimeType falls back to
	// video/mp4.
	UploadVideo(ctx context.Context, filePath, mimeType string, metadata VideoMetadata, progress ProgressFunc) (*UploadResult, error)
	// VideoExists reports whether a video is still available
	VideoExists(ctx context.Context, videoID string) (bool, error)
	// GetChannelInfo fetches the authenticated user's channel, or nil if the
	// account has none
	GetChannelInfo(ctx context.Context) (*ChannelInfo, error)
	// ListMyVideos lists the most recent uploads of the authenticated channel
	ListMyVideos(ctx context.Context, maxResults int) ([]Video, error)
}

// youtubeClient implements YouTubeClient using HTTP
type youtubeClient struct {
	logger        logging.Logger
	apiBaseURL    string
	uploadBaseURL string
	accessToken   string
	httpClient    *http.Client

	playlistMutex   sync.Mutex
	uploadsPlaylist string
}

// NewYouTubeClient creates a new YouTube API client. Empty base URLs select
// the public Google endpoints.
func NewYouTubeClient(logger logging.Logger, apiBaseURL, uploadBaseURL, accessToken string, timeout time.Duration) YouTubeClient {

	if logger == nil {
		logger = logging.NopLogger
	}
	if apiBaseURL == "" {
		apiBaseURL = DefaultAPIBaseURL
	}
	if uploadBaseURL == "" {
		uploadBaseURL = DefaultUploadBaseURL
	}

	return &youtubeClient{
		logger:        logger,
		apiBaseURL:    apiBaseURL,
		uploadBaseURL: uploadBaseURL,
		accessToken:   accessToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type videoSnippet struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	CategoryID  string   `json:"categoryId"`
}

type videoStatus struct {
	PrivacyStatus           string `json:"privacyStatus"`
	SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
}

type videoResource struct {
	Snippet videoSnippet `json:"snippet"`
	Status  videoStatus  `json:"status"`
}

// progressReader reports bytes read off the underlying reader
type progressReader struct {
	reader   io.Reader
	total    int64
	uploaded int64
	progress ProgressFunc
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.uploaded += int64(n)
		r.progress(r.uploaded, r.total)
	}
	return n, err
}

// UploadVideo publishes a video file
func (c *youtubeClient) UploadVideo(ctx context.Context, filePath, mimeType string, metadata VideoMetadata, progress ProgressFunc) (*UploadResult, error) {
	if mimeType == "" {
		mimeType = DefaultMimeType
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	resource := videoResource{
		Snippet: videoSnippet{
			Title:       metadata.Title,
			Description: metadata.Description,
			Tags:        metadata.Tags,
			CategoryID:  metadata.CategoryID,
		},
		Status: videoStatus{
			PrivacyStatus:           metadata.PrivacyStatus,
			SelfDeclaredMadeForKids: metadata.MadeForKids,
		},
	}
	resourceJSON, err := json.Marshal(resource)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	// Stream the multipart body through a pipe so the video is never held in
	// memory as a whole.
	pipeReader, pipeWriter := io.Pipe()
	writer := multipart.NewWriter(pipeWriter)

	go func() {
		metaPart, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type": {"application/json; charset=UTF-8"},
		})
		if err != nil {
			pipeWriter.CloseWithError(err)
			return
		}
		if _, err := metaPart.Write(resourceJSON); err != nil {
			pipeWriter.CloseWithError(err)
			return
		}

		mediaPart, err := writer.CreatePart(textproto.MIMEHeader{
			"Content-Type": {mimeType},
		})
		if err != nil {
			pipeWriter.CloseWithError(err)
			return
		}

		var reader io.Reader = file
		if progress != nil {
			reader = &progressReader{reader: file, total: info.Size(), progress: progress}
		}
		if _, err := io.Copy(mediaPart, reader); err != nil {
			pipeWriter.CloseWithError(err)
			return
		}

		pipeWriter.CloseWithError(writer.Close())
	}()

	requestURL := fmt.Sprintf("%s/videos?uploadType=multipart&part=snippet%%2Cstatus&notifySubscribers=%t",
		c.uploadBaseURL, metadata.NotifySubscribers)

	req, err := http.NewRequestWithContext(ctx, "POST", requestURL, pipeReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "multipart/related; boundary="+writer.Boundary())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("youtube API returned status %d: %s", resp.StatusCode, string(body))
	}

	var uploaded struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	result := &UploadResult{
		VideoID:  uploaded.ID,
		VideoURL: fmt.Sprintf("https://www.youtube.com/watch?v=%s", uploaded.ID),
	}

	c.logger.Info("Uploaded video", "video_id", result.VideoID, "title", metadata.Title, "bytes", info.Size())
	return result, nil
}

// VideoExists reports whether a video is still available
func (c *youtubeClient) VideoExists(ctx context.Context, videoID string) (bool, error) {
	requestURL := fmt.Sprintf("%s/videos?part=id&id=%s", c.apiBaseURL, url.QueryEscape(videoID))

	var result struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, requestURL, &result); err != nil {
		return false, err
	}

	return len(result.Items) > 0, nil
}

// GetChannelInfo fetches the authenticated user's channel
func (c *youtubeClient) GetChannelInfo(ctx context.Context) (*ChannelInfo, error) {
	requestURL := fmt.Sprintf("%s/channels?part=snippet%%2Cstatistics&mine=true", c.apiBaseURL)

	var result struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				Title       string `json:"title"`
				Description string `json:"description"`
				CustomURL   string `json:"customUrl"`
			} `json:"snippet"`
			Statistics struct {
				ViewCount       int64 `json:"viewCount,string"`
				SubscriberCount int64 `json:"subscriberCount,string"`
				VideoCount      int64 `json:"videoCount,string"`
			} `json:"statistics"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, requestURL, &result); err != nil {
		return nil, err
	}

	if len(result.Items) == 0 {
		return nil, nil
	}

	item := result.Items[0]
	return &ChannelInfo{
		ID:              item.ID,
		Title:           item.Snippet.Title,
		Description:     item.Snippet.Description,
		CustomURL:       item.Snippet.CustomURL,
		SubscriberCount: item.Statistics.SubscriberCount,
		VideoCount:      item.Statistics.VideoCount,
		ViewCount:       item.Statistics.ViewCount,
	}, nil
}

// ListMyVideos lists the most recent uploads of the authenticated channel
func (c *youtubeClient) ListMyVideos(ctx context.Context, maxResults int) ([]Video, error) {
	playlistID, err := c.getUploadsPlaylistID(ctx)
	if err != nil {
		return nil, err
	}
	if playlistID == "" {
		return nil, nil
	}

	requestURL := fmt.Sprintf("%s/playlistItems?part=snippet%%2CcontentDetails&playlistId=%s&maxResults=%d",
		c.apiBaseURL, url.QueryEscape(playlistID), maxResults)

	var result struct {
		Items []struct {
			Snippet struct {
				Title       string `json:"title"`
				Description string `json:"description"`
				ChannelID   string `json:"channelId"`
				PublishedAt string `json:"publishedAt"`
				Thumbnails  struct {
					Default struct {
						URL string `json:"url"`
					} `json:"default"`
				} `json:"thumbnails"`
			} `json:"snippet"`
			ContentDetails struct {
				VideoID string `json:"videoId"`
			} `json:"contentDetails"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, requestURL, &result); err != nil {
		return nil, err
	}

	videos := make([]Video, 0, len(result.Items))
	for _, item := range result.Items {
		videos = append(videos, Video{
			ID:           item.ContentDetails.VideoID,
			Title:        item.Snippet.Title,
			Description:  item.Snippet.Description,
			ThumbnailURL: item.Snippet.Thumbnails.Default.URL,
			ChannelID:    item.Snippet.ChannelID,
			PublishedAt:  item.Snippet.PublishedAt,
		})
	}

	return videos, nil
}

// getUploadsPlaylistID resolves the channel's uploads playlist, caching the
// result for the lifetime of the client
func (c *youtubeClient) getUploadsPlaylistID(ctx context.Context) (string, error) {
	c.playlistMutex.Lock()
	defer c.playlistMutex.Unlock()

	if c.uploadsPlaylist != "" {
		return c.uploadsPlaylist, nil
	}

	requestURL := fmt.Sprintf("%s/channels?part=contentDetails&mine=true", c.apiBaseURL)

	var result struct {
		Items []struct {
			ContentDetails struct {
				RelatedPlaylists struct {
					Uploads string `json:"uploads"`
				} `json:"relatedPlaylists"`
			} `json:"contentDetails"`
		} `json:"items"`
	}
	if err := c.getJSON(ctx, requestURL, &result); err != nil {
		return "", err
	}

	if len(result.Items) == 0 {
		return "", nil
	}

	c.uploadsPlaylist = result.Items[0].ContentDetails.RelatedPlaylists.Uploads
	return c.uploadsPlaylist, nil
}

// getJSON performs an authenticated GET and decodes the response into out
func (c *youtubeClient) getJSON(ctx context.Context, requestURL string, out any) error {
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
		return fmt.Errorf("youtube API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
