package images

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/recipebox/internal/logging"
)

const (
	DefaultMaxBytes = 5 << 20

	fetchTimeout = 10 * time.Second
	// maxFetchBytes caps a downloaded external image.
	maxFetchBytes = 20 << 20
)

// uploadTypes is the MIME whitelist for uploads, mapped to the stored extension.
var uploadTypes = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/webp":    ".webp",
	"image/gif":     ".gif",
	"image/bmp":     ".bmp",
	"image/svg+xml": ".svg",
	"image/avif":    ".avif",
}

var localizeExts = map[string]bool{"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true}

var proxyPattern = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|bmp|svg)(\?.*)?$`)

// browserHeaders are sent when fetching external images; some recipe sites
// refuse requests that do not look like a browser.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Accept":          "image/webp,image/apng,image/*,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
	"DNT":             "1",
}

// Service validates uploads and moves external images into the store.
type Service struct {
	store    Store
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

type Option func(*Service)

func WithMaxBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.client = c }
}

func NewService(st Store, opts ...Option) *Service {
	s := &Service{
		store:    st,
		client:   &http.Client{Timeout: fetchTimeout},
		maxBytes: DefaultMaxBytes,
		logger:   slog.Default().With("component", "images"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Store() Store { return s.store }

// Upload stores an uploaded image and returns its public URL.
func (s *Service) Upload(ctx context.Context, contentType string, r io.Reader) (string, error) {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	ext, ok := uploadTypes[mediaType]
	if !ok {
		return "", ErrUnsupportedType
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", ErrTooLarge
	}

	name := fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), uuid.NewString()[:8], ext)
	if err := s.store.Save(ctx, name, mediaType, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", err
	}
	return PublicURL(name), nil
}

// Localize copies an external image into the store and returns the local
// URL. Non-http URLs are returned unchanged, and any download failure falls
// back to the original URL. The stored name is derived from the URL, so the
// same image is only fetched once.
func (s *Service) Localize(ctx context.Context, rawURL string) string {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	if !localizeExts[ext] {
		ext = "jpg"
	}
	sum := sha256.Sum256([]byte(rawURL))
	name := fmt.Sprintf("recipe-%s.%s", hex.EncodeToString(sum[:]), ext)

	log := s.logger.With("url", rawURL)
	if ok, err := s.store.Exists(ctx, name); err == nil && ok {
		return PublicURL(name)
	}

	resp, err := s.fetch(ctx, rawURL)
	if err != nil {
		log.Warn("image download failed, keeping original url", logging.Err(err))
		return rawURL
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn("image download failed, keeping original url", "status", resp.StatusCode)
		return rawURL
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
	if err != nil || len(data) > maxFetchBytes {
		log.Warn("image download incomplete, keeping original url", logging.Err(err))
		return rawURL
	}
	if err := s.store.Save(ctx, name, contentTypeFor(name), bytes.NewReader(data), int64(len(data))); err != nil {
		log.Error("saving downloaded image", logging.Err(err))
		return rawURL
	}
	log.Info("image localized", "name", name, "bytes", len(data))
	return PublicURL(name)
}

// Remove deletes a stored image given its public URL. URLs that do not
// point at the store are ignored.
func (s *Service) Remove(ctx context.Context, publicURL string) {
	name, ok := NameFromURL(publicURL)
	if !ok {
		return
	}
	if err := s.store.Delete(ctx, name); err != nil {
		s.logger.Warn("removing image", "name", name, logging.Err(err))
	}
}

// Proxy fetches an external image for the browser. The caller must close
// the returned body.
func (s *Service) Proxy(ctx context.Context, rawURL string) (io.ReadCloser, string, error) {
	if rawURL == "" || !proxyPattern.MatchString(rawURL) {
		return nil, "", ErrInvalidURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", ErrInvalidURL
	}

	resp, err := s.fetch(ctx, rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "image/jpeg"
	}
	return resp.Body, ct, nil
}

func (s *Service) fetch(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
	if strings.Contains(req.URL.Host, "allrecipes.com") {
		req.Header.Set("Referer", "https://www.allrecipes.com/")
	}
	return s.client.Do(req)
}
