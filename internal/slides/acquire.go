package slides

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/maauso/slidecast/internal/source"
	"github.com/maauso/slidecast/internal/storage"
	"github.com/maauso/slidecast/internal/ytdlp"
)

// Acquisition is playable media for one run plus its guaranteed cleanup.
type Acquisition struct {
	// MediaPath is a local file path or a stream URI the decoder can open.
	MediaPath string
	// Streamed is true for remote media that was not downloaded. Only
	// streamed acquisitions qualify for the download fallback.
	Streamed bool

	cleanup func()
}

// Cleanup releases any temp resources held by the acquisition. It is safe
// to call any number of times.
func (a *Acquisition) Cleanup() {
	if a.cleanup != nil {
		a.cleanup()
	}
}

func newAcquisition(mediaPath string, streamed bool, cleanup func()) *Acquisition {
	var once sync.Once
	return &Acquisition{
		MediaPath: mediaPath,
		Streamed:  streamed,
		cleanup: func() {
			if cleanup != nil {
				once.Do(cleanup)
			}
		},
	}
}

// Acquirer turns a resolved source into decodable media, either by
// passing a direct URL/path through, resolving a cheap stream URL, or
// downloading into a scratch directory.
type Acquirer struct {
	ytdlp           ytdlp.Client
	store           *storage.TempStore
	downloadFormat  string
	resolveTimeout  time.Duration
	downloadTimeout time.Duration
	logger          *slog.Logger
}

// NewAcquirer creates an Acquirer. resolveTimeout bounds stream URL
// resolution; downloadTimeout bounds full downloads and should sit well
// above it.
func NewAcquirer(client ytdlp.Client, store *storage.TempStore, downloadFormat string, resolveTimeout, downloadTimeout time.Duration, logger *slog.Logger) *Acquirer {
	return &Acquirer{
		ytdlp:           client,
		store:           store,
		downloadFormat:  downloadFormat,
		resolveTimeout:  resolveTimeout,
		downloadTimeout: downloadTimeout,
		logger:          logger,
	}
}

// Stream obtains media without downloading. Direct sources pass through
// as-is; YouTube sources resolve a stream URL with the given format
// selector.
func (a *Acquirer) Stream(ctx context.Context, src *source.Source, format string) (*Acquisition, error) {
	if src.Kind == source.KindDirect {
		return newAcquisition(src.URL, isRemote(src.URL), nil), nil
	}

	callCtx, cancel := a.resolveContext(ctx)
	defer cancel()

	streamURL, err := a.ytdlp.ResolveStreamURL(callCtx, src.URL, format)
	if err != nil {
		return nil, err
	}
	return newAcquisition(streamURL, true, nil), nil
}

// Download fetches the full media into a fresh scratch directory. The
// returned acquisition's cleanup removes the directory.
func (a *Acquirer) Download(ctx context.Context, src *source.Source) (*Acquisition, error) {
	if src.Kind == source.KindDirect && !isRemote(src.URL) {
		return nil, fmt.Errorf("slides: local media %s needs no download", src.URL)
	}

	dir, err := a.store.CreateDir(ctx, src.ID)
	if err != nil {
		return nil, err
	}

	dlCtx, cancel := context.WithTimeout(ctx, a.downloadTimeout)
	defer cancel()

	path, err := a.ytdlp.Download(dlCtx, src.URL, dir, a.downloadFormat)
	if err != nil {
		if rmErr := a.store.RemoveDir(dir); rmErr != nil {
			a.logger.Warn("failed to remove download directory", "dir", dir, "error", rmErr)
		}
		return nil, err
	}

	a.logger.Info("downloaded media", "source", src.ID, "path", path)
	return newAcquisition(path, false, func() {
		if err := a.store.RemoveDir(dir); err != nil {
			a.logger.Warn("failed to remove download directory", "dir", dir, "error", err)
		}
	}), nil
}

func (a *Acquirer) resolveContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.resolveTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.resolveTimeout)
}

func isRemote(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && u.Scheme != ""
}
