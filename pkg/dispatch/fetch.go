package dispatch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"wabridge/pkg/transport"
)

// Fetcher downloads remote media files with a bounded timeout and size cap.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewFetcher(timeout time.Duration, maxBytes int64) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch downloads url and returns it as sendable media. The MIME type comes
// from the Content-Type response header, falling back to content sniffing.
func (f *Fetcher) Fetch(ctx context.Context, url, caption string) (transport.Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return transport.Media{}, &MediaFetchError{URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return transport.Media{}, &MediaFetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return transport.Media{}, &MediaFetchError{URL: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return transport.Media{}, &MediaFetchError{URL: url, Err: err}
	}
	if int64(len(data)) > f.maxBytes {
		return transport.Media{}, &MediaFetchError{URL: url, Err: fmt.Errorf("file exceeds %d byte limit", f.maxBytes)}
	}

	mimeType := ""
	if header := resp.Header.Get("Content-Type"); header != "" {
		if parsed, _, err := mime.ParseMediaType(header); err == nil {
			mimeType = parsed
		}
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	return transport.Media{
		MimeType: mimeType,
		Data:     data,
		Caption:  caption,
	}, nil
}
