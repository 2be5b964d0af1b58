package media

import (
	"context"
	"sync"
	"time"

	"github.com/coffeestaff/portal/internal/logging"
	"github.com/coffeestaff/portal/internal/metrics"
)

// PreviewRefreshInterval is how often preview URLs are fetched again;
// the backend issues URLs that expire.
const PreviewRefreshInterval = 2 * time.Minute

// previewWorkers bounds concurrent preview URL fetches.
const previewWorkers = 4

// PreviewURL returns the preview URL of an image, fetching it when it is
// not cached yet.
func (l *Library) PreviewURL(ctx context.Context, imageID string) (string, error) {
	l.mu.RLock()
	u, ok := l.previews[imageID]
	l.mu.RUnlock()
	if ok {
		return u, nil
	}
	u, err := l.api.ImageURL(ctx, imageID)
	if err != nil {
		return "", err
	}
	l.mu.Lock()
	l.previews[imageID] = u
	l.mu.Unlock()
	return u, nil
}

// Previews returns the cached preview URLs of the current folder.
func (l *Library) Previews() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]string)
	for _, img := range filterByPath(l.images, l.current) {
		if u, ok := l.previews[img.ImageID]; ok {
			out[img.ImageID] = u
		}
	}
	return out
}

// RefreshPreviews fetches fresh URLs for every loaded image. Failed
// fetches keep the previous URL.
func (l *Library) RefreshPreviews(ctx context.Context) {
	start := time.Now()
	images := l.AllImages()
	ids := make([]string, 0, len(images))
	for _, img := range images {
		ids = append(ids, img.ImageID)
	}
	l.fetchPreviews(ctx, ids)
	metrics.RecordPreviewRefresh(time.Since(start))
}

// fillPreviews fetches URLs for loaded images that have none yet.
func (l *Library) fillPreviews(ctx context.Context) {
	l.mu.RLock()
	var missing []string
	for _, img := range l.images {
		if _, ok := l.previews[img.ImageID]; !ok {
			missing = append(missing, img.ImageID)
		}
	}
	l.mu.RUnlock()
	l.fetchPreviews(ctx, missing)
}

func (l *Library) fetchPreviews(ctx context.Context, images []string) {
	if len(images) == 0 {
		return
	}
	ids := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < previewWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range ids {
				u, err := l.api.ImageURL(ctx, id)
				if err != nil {
					logging.Debug("preview url fetch failed", logging.String("image_id", id), logging.Err(err))
					continue
				}
				l.mu.Lock()
				l.previews[id] = u
				l.mu.Unlock()
			}
		}()
	}
	for _, id := range images {
		select {
		case ids <- id:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(ids)
	wg.Wait()
}

// kickPreviews asks a running refresh task to fetch missing URLs.
func (l *Library) kickPreviews() {
	select {
	case l.refreshKick <- struct{}{}:
	default:
	}
}

// StartPreviewRefresh refreshes preview URLs now and then every interval
// until StopPreviewRefresh, Close, or ctx is done. Starting again replaces
// the running task. interval <= 0 selects PreviewRefreshInterval.
func (l *Library) StartPreviewRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = PreviewRefreshInterval
	}
	l.StopPreviewRefresh()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.refreshMu.Lock()
	l.refreshCancel = cancel
	l.refreshDone = done
	l.refreshMu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		l.RefreshPreviews(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.RefreshPreviews(ctx)
			case <-l.refreshKick:
				l.fillPreviews(ctx)
			}
		}
	}()
}

// StopPreviewRefresh stops the refresh task and waits for it to exit.
func (l *Library) StopPreviewRefresh() {
	l.refreshMu.Lock()
	cancel, done := l.refreshCancel, l.refreshDone
	l.refreshCancel, l.refreshDone = nil, nil
	l.refreshMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// PreviewRefreshRunning reports whether the refresh task is active.
func (l *Library) PreviewRefreshRunning() bool {
	l.refreshMu.Lock()
	defer l.refreshMu.Unlock()
	return l.refreshCancel != nil
}
