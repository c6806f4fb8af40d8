package ota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/muurk/joinme/internal/logging"
	"github.com/muurk/joinme/internal/urls"
	"go.uber.org/zap"
)

const (
	// DefaultCheckTimeout bounds the version marker request
	DefaultCheckTimeout = 20 * time.Second

	// DefaultMinImageSize is the smallest image accepted for flashing
	DefaultMinImageSize = 174992

	// DefaultUserAgent is sent on every request
	DefaultUserAgent = "ESP32"

	chunkSize      = 4096
	maxVersionBody = 64
)

// Manifest describes one version check
type Manifest struct {
	Current  int
	Remote   int
	ImageURL string
}

// Result is what CheckAndUpdate did
type Result struct {
	Outcome  Outcome
	Manifest Manifest
	Written  int64
}

// Updater checks for and applies firmware updates
type Updater struct {
	// Host is the repository host (default: https://gitlab.com)
	Host string

	// OwnerRepo is the "<owner>/<repo>" path used in raw mode. When empty
	// the repository ID passed to CheckAndUpdate is used.
	OwnerRepo string

	// Branch is the ref files are read from (default: master)
	Branch string

	// UserAgent is sent on every request (default: ESP32)
	UserAgent string

	// MinImageSize is the smallest declared image length accepted
	MinImageSize int64

	// CheckClient fetches the version marker. It carries the check timeout.
	CheckClient *http.Client

	// DownloadClient fetches the image. It has no overall timeout.
	DownloadClient *http.Client

	flash     Flash
	restarter Restarter
	observer  ProgressObserver

	mu sync.Mutex
}

// New creates an Updater writing to flash and restarting through restarter
func New(flash Flash, restarter Restarter) *Updater {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = false
	// Content-Length must reach the size check undecoded
	transport.DisableCompression = true

	return &Updater{
		Host:           urls.DefaultHost,
		Branch:         urls.DefaultBranch,
		UserAgent:      DefaultUserAgent,
		MinImageSize:   DefaultMinImageSize,
		CheckClient:    &http.Client{Transport: transport, Timeout: DefaultCheckTimeout},
		DownloadClient: &http.Client{Transport: transport},
		flash:          flash,
		restarter:      restarter,
	}
}

// SetCheckTimeout sets the version marker request timeout
func (u *Updater) SetCheckTimeout(timeout time.Duration) {
	u.CheckClient.Timeout = timeout
}

// SetObserver registers the progress observer (nil to remove)
func (u *Updater) SetObserver(o ProgressObserver) {
	u.observer = o
}

// FileURL returns the URL of a file in the firmware directory. An empty
// accessToken selects the raw file path; otherwise the files API is used.
func (u *Updater) FileURL(repositoryID, accessToken, basePath, file string) string {
	if accessToken == "" {
		ownerRepo := u.OwnerRepo
		if ownerRepo == "" {
			ownerRepo = repositoryID
		}
		return urls.RawFile(u.Host, ownerRepo, u.Branch, basePath, file)
	}
	return urls.APIFile(u.Host, repositoryID, accessToken, u.Branch, basePath, file)
}

// CheckAndUpdate compares currentVersion with the published version and,
// if the published one is newer, flashes it and restarts. The returned error
// is nil for Updated and UpToDate, an *UpdateError for every other outcome,
// and ErrBusy if another call is in progress.
func (u *Updater) CheckAndUpdate(ctx context.Context, currentVersion int, repositoryID, accessToken, basePath string) (Result, error) {
	if !u.mu.TryLock() {
		return Result{}, ErrBusy
	}
	defer u.mu.Unlock()

	result := Result{Manifest: Manifest{Current: currentVersion, Remote: -1}}

	logging.Info("Checking for firmware updates", zap.Int("current", currentVersion))

	remote, err := u.fetchVersion(ctx, u.FileURL(repositoryID, accessToken, basePath, urls.VersionFile))
	if err != nil {
		result.Outcome = OutcomeCheckFailed
		logging.Warn("Cannot update", zap.Error(err))
		return result, err
	}
	result.Manifest.Remote = remote

	if currentVersion >= remote {
		result.Outcome = OutcomeUpToDate
		logging.Info("Firmware is up to date",
			zap.Int("current", currentVersion),
			zap.Int("remote", remote),
		)
		return result, nil
	}

	result.Manifest.ImageURL = u.FileURL(repositoryID, accessToken, basePath, urls.ImageFile(remote))
	logging.Info("Upgrading firmware",
		zap.Int("from", currentVersion),
		zap.Int("to", remote),
		zap.String("url", logging.RedactURL(result.Manifest.ImageURL)),
	)

	written, err := u.install(ctx, remote, result.Manifest.ImageURL)
	result.Written = written
	if err != nil {
		if o, ok := OutcomeOf(err); ok {
			result.Outcome = o
		}
		logging.Warn("Firmware update failed", zap.Error(err))
		return result, err
	}

	result.Outcome = OutcomeUpdated
	logging.Info("Update successfully finished, restarting",
		zap.Int("version", remote),
		zap.Int64("bytes", written),
	)
	if u.restarter != nil {
		if err := u.restarter.Restart(); err != nil {
			return result, fmt.Errorf("failed to restart after update: %w", err)
		}
	}
	return result, nil
}

func (u *Updater) fetchVersion(ctx context.Context, versionURL string) (int, error) {
	resp, err := u.get(ctx, u.CheckClient, versionURL)
	if err != nil {
		return 0, newError(OutcomeCheckFailed, 0, err, "version request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, newError(OutcomeCheckFailed, resp.StatusCode, nil,
			"couldn't get version, status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxVersionBody))
	if err != nil {
		return 0, newError(OutcomeCheckFailed, resp.StatusCode, err, "failed to read version")
	}
	remote, err := strconv.Atoi(strings.TrimSpace(string(body)))
	if err != nil {
		return 0, newError(OutcomeCheckFailed, resp.StatusCode, err, "version marker is not a number: %q", body)
	}
	return remote, nil
}

// install downloads imageURL into a flash session and finalizes it.
func (u *Updater) install(ctx context.Context, version int, imageURL string) (int64, error) {
	// The body must outlive ctx once flashing starts.
	resp, err := u.get(context.WithoutCancel(ctx), u.DownloadClient, imageURL)
	if err != nil {
		return 0, newError(OutcomeImageFetchFailed, 0, err, "image request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, newError(OutcomeImageFetchFailed, resp.StatusCode, nil,
			"failed to get image, status %d", resp.StatusCode)
	}

	expected := resp.ContentLength
	logging.Debug("Image response", zap.Int64("content_length", expected))
	if expected < 0 {
		return 0, newError(OutcomeImageTooSmall, resp.StatusCode, nil, "image length not declared")
	}
	if expected < u.MinImageSize {
		return 0, newError(OutcomeImageTooSmall, resp.StatusCode, nil,
			"image is %d bytes, refusing anything under %d", expected, u.MinImageSize)
	}

	if err := ctx.Err(); err != nil {
		return 0, newError(OutcomeImageFetchFailed, 0, err, "cancelled before flashing")
	}

	w, err := u.flash.Begin(version, expected)
	if err != nil {
		return 0, newError(OutcomeBeginFailed, 0, err, "not enough space to start update")
	}
	logging.Info("Starting OTA write", zap.Int64("bytes", expected))

	written, streamErr := u.stream(w, io.LimitReader(resp.Body, expected), expected)
	if written < expected || streamErr != nil {
		if err := w.Abort(); err != nil {
			logging.Warn("Failed to abort staged image", zap.Error(err))
		}
		return written, newError(OutcomeWriteIncomplete, 0, streamErr,
			"written only %d/%d", written, expected)
	}

	if err := w.End(); err != nil {
		return written, newError(OutcomeFinalizeFailed, 0, err, "update didn't finish correctly")
	}
	return written, nil
}

func (u *Updater) stream(w Writer, body io.Reader, expected int64) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			m, werr := w.Write(buf[:n])
			written += int64(m)
			if u.observer != nil {
				u.observer.Progress(newProgress(written, expected))
			}
			if werr != nil {
				return written, werr
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return written, nil
			}
			return written, rerr
		}
	}
}

func (u *Updater) get(ctx context.Context, client *http.Client, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", u.UserAgent)

	logging.Debug("OTA request", zap.String("url", logging.RedactURL(rawURL)))
	resp, err := client.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = logging.RedactURL(urlErr.URL)
		}
		return nil, err
	}
	return resp, nil
}
