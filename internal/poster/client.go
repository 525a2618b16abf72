// Package poster publishes queued text to the X API on behalf of one niche account.
package poster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dghubble/oauth1"
)

const (
	DefaultAPIURL    = "https://api.twitter.com"
	DefaultUploadURL = "https://upload.twitter.com"
)

type Credentials struct {
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
}

type Config struct {
	APIURL    string
	UploadURL string
	Timeout   time.Duration
}

// APIError is returned for any non-2xx answer from the platform.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the X API with OAuth 1.0a user context.
type Client struct {
	httpClient *http.Client
	apiURL     string
	uploadURL  string
	logger     *slog.Logger

	mu     sync.Mutex
	userID string
}

func NewClient(niche string, creds Credentials, cfg Config, logger *slog.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.UploadURL == "" {
		cfg.UploadURL = DefaultUploadURL
	}

	base := &http.Client{Timeout: cfg.Timeout}
	ctx := context.WithValue(context.Background(), oauth1.HTTPClient, base)
	oauthCfg := oauth1.NewConfig(creds.APIKey, creds.APISecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)

	return &Client{
		httpClient: oauthCfg.Client(ctx, token),
		apiURL:     cfg.APIURL,
		uploadURL:  cfg.UploadURL,
		logger:     logger.With("niche", niche, "component", "poster"),
	}
}

type tweetRequest struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Post publishes text and returns the new post id. A media upload failure is
// logged and the post goes out without the image.
func (c *Client) Post(ctx context.Context, text, mediaPath string) (string, error) {
	req := tweetRequest{Text: text}

	if mediaPath != "" {
		mediaID, err := c.uploadMedia(ctx, mediaPath)
		if err != nil {
			c.logger.Warn("media upload failed, posting without image",
				"media_path", mediaPath,
				"error", err,
			)
		} else {
			req.Media = &tweetMedia{MediaIDs: []string{mediaID}}
		}
	}

	var resp tweetResponse
	if err := c.doJSON(ctx, http.MethodPost, c.apiURL+"/2/tweets", req, &resp); err != nil {
		return "", fmt.Errorf("create post: %w", err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("create post: response has no id")
	}

	c.logger.Info("posted", "post_id", resp.Data.ID)
	return resp.Data.ID, nil
}

// Repost reposts an existing post from the authenticated account.
func (c *Client) Repost(ctx context.Context, postID string) error {
	userID, err := c.me(ctx)
	if err != nil {
		return fmt.Errorf("resolve account: %w", err)
	}

	body := map[string]string{"tweet_id": postID}
	url := fmt.Sprintf("%s/2/users/%s/retweets", c.apiURL, userID)
	if err := c.doJSON(ctx, http.MethodPost, url, body, nil); err != nil {
		return fmt.Errorf("repost %s: %w", postID, err)
	}

	c.logger.Info("reposted", "post_id", postID)
	return nil
}

func (c *Client) me(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.userID != "" {
		return c.userID, nil
	}

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.apiURL+"/2/users/me", nil, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("users/me returned no id")
	}

	c.userID = resp.Data.ID
	return c.userID, nil
}

func (c *Client) uploadMedia(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("media_category", "tweet_image"); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("media", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read media: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL+"/1.1/media/upload.json", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	if resp.MediaIDString == "" {
		return "", fmt.Errorf("upload returned no media id")
	}
	return resp.MediaIDString, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{StatusCode: resp.StatusCode, Body: string(msg)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
