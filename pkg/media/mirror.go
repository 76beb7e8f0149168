package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	maxObjectBytes     = 32 << 20
	defaultLinkExpiry  = 7 * 24 * time.Hour
	mirrorFetchLimit   = 4
	mirrorFetchTimeout = 30 * time.Second
)

// Mirror downloads generated media from short-lived vendor URLs and
// re-hosts it in object storage so rendered pages keep working after the
// vendor link expires. Every failure falls back to the vendor URL: the
// mirror is an optimization, never a gate.
type Mirror struct {
	store      ObjectStore
	httpClient *http.Client
	expiry     time.Duration
	logger     *slog.Logger
}

// NewMirror builds a mirror over the given object store.
func NewMirror(store ObjectStore, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		store:      store,
		httpClient: &http.Client{Timeout: mirrorFetchTimeout},
		expiry:     defaultLinkExpiry,
		logger:     logger,
	}
}

// MirrorURLs re-hosts each URL concurrently and returns the replacement
// list in input order. A URL that cannot be fetched or stored keeps its
// vendor value.
func (m *Mirror) MirrorURLs(ctx context.Context, urls []string, task string) []string {
	out := make([]string, len(urls))
	copy(out, urls)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(mirrorFetchLimit)
	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			hosted, err := m.mirrorOne(gctx, url, task)
			if err != nil {
				m.logger.Warn("media mirror failed, keeping vendor URL", "url", url, "err", err)
				return nil
			}
			out[i] = hosted
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (m *Mirror) mirrorOne(ctx context.Context, url, task string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch media: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxObjectBytes))
	if err != nil {
		return "", fmt.Errorf("read media: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	key := objectKey(task, contentType)
	if err := m.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", err
	}
	hosted, err := m.store.PresignGet(ctx, key, m.expiry)
	if err != nil {
		return "", err
	}
	return hosted, nil
}

func objectKey(task, contentType string) string {
	ext := ""
	if contentType != "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	task = strings.TrimSpace(task)
	if task == "" {
		task = "media"
	}
	return fmt.Sprintf("%s/%s%s", task, uuid.NewString(), ext)
}
