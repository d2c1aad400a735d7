package entities

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// MaxArtworkBytes caps the size of a proxied image.
const MaxArtworkBytes = 10 << 20

var (
	ErrNoArtwork       = errors.New("no artwork")
	ErrArtworkUpstream = errors.New("artwork fetch failed")
)

// Artwork is a fetched image.
type Artwork struct {
	ContentType string
	Body        []byte
}

// ArtworkFetcher downloads cover images with bounded retries.
type ArtworkFetcher struct {
	client *retryablehttp.Client
}

// NewArtworkFetcher builds a fetcher. timeout bounds each attempt.
func NewArtworkFetcher(timeout time.Duration, maxRetries int, logger *log.Logger) *ArtworkFetcher {
	if logger == nil {
		logger = log.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	client := retryablehttp.NewClient()
	client.RetryMax = maxRetries
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = log.New(logger.Writer(), "ARTWORK: ", logger.Flags())
	return &ArtworkFetcher{client: client}
}

// Fetch downloads url. An empty url returns ErrNoArtwork.
func (f *ArtworkFetcher) Fetch(ctx context.Context, url string) (*Artwork, error) {
	if url == "" {
		return nil, ErrNoArtwork
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtworkUpstream, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtworkUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: upstream status %d", ErrArtworkUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxArtworkBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtworkUpstream, err)
	}
	if len(body) > MaxArtworkBytes {
		return nil, fmt.Errorf("%w: image larger than %d bytes", ErrArtworkUpstream, MaxArtworkBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	return &Artwork{ContentType: contentType, Body: body}, nil
}
