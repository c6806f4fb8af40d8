package ota

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const testBase = "/owner/repo/raw/master/thing/firmware/"

type fakeFlash struct {
	mu       sync.Mutex
	beginErr error
	endErr   error
	writeErr error // returned with a full count once size bytes are buffered
	begins   int
	version  int
	size     int64
	buf      bytes.Buffer
	ended    bool
	aborted  bool
	begun    chan struct{}
}

func (f *fakeFlash) Begin(version int, size int64) (Writer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begins++
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	f.version = version
	f.size = size
	if f.begun != nil {
		close(f.begun)
	}
	return f, nil
}

func (f *fakeFlash) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.buf.Write(p)
	if err == nil && f.writeErr != nil && int64(f.buf.Len()) >= f.size {
		return n, f.writeErr
	}
	return n, err
}

func (f *fakeFlash) End() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.endErr != nil {
		return f.endErr
	}
	f.ended = true
	return nil
}

func (f *fakeFlash) Abort() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = true
	return nil
}

func (f *fakeFlash) beginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.begins
}

type countingRestarter struct {
	n atomic.Int32
}

func (r *countingRestarter) Restart() error {
	r.n.Add(1)
	return nil
}

// repo serves a version marker and one image under testBase.
type repo struct {
	version     string
	versionCode int
	image       []byte
	imageCode   int
	declared    int64 // Content-Length sent for the image; 0 means len(image)
	chunked     bool
	imageHits   atomic.Int32
	userAgents  sync.Map
}

func (rp *repo) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(testBase+"version", func(w http.ResponseWriter, r *http.Request) {
		rp.userAgents.Store(r.UserAgent(), true)
		if rp.versionCode != 0 {
			w.WriteHeader(rp.versionCode)
			return
		}
		fmt.Fprint(w, rp.version)
	})
	mux.HandleFunc(testBase+"{file}", func(w http.ResponseWriter, r *http.Request) {
		rp.imageHits.Add(1)
		rp.userAgents.Store(r.UserAgent(), true)
		if rp.imageCode != 0 {
			w.WriteHeader(rp.imageCode)
			return
		}
		if rp.chunked {
			w.WriteHeader(http.StatusOK)
			w.(http.Flusher).Flush()
			w.Write(rp.image)
			return
		}
		declared := rp.declared
		if declared == 0 {
			declared = int64(len(rp.image))
		}
		w.Header().Set("Content-Length", strconv.FormatInt(declared, 10))
		w.Write(rp.image)
	})
	return mux
}

func image(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func newTestUpdater(t *testing.T, rp *repo) (*Updater, *fakeFlash, *countingRestarter) {
	t.Helper()
	ts := httptest.NewServer(rp.handler(t))
	t.Cleanup(ts.Close)

	flash := &fakeFlash{}
	restarter := &countingRestarter{}
	u := New(flash, restarter)
	u.Host = ts.URL
	u.OwnerRepo = "owner/repo"
	u.MinImageSize = 1024
	return u, flash, restarter
}

func TestCheckAndUpdate_Updated(t *testing.T) {
	img := image(3*chunkSize + 100)
	rp := &repo{version: "7\n", image: img}
	u, flash, restarter := newTestUpdater(t, rp)

	var progress []Progress
	u.SetObserver(ObserverFunc(func(p Progress) { progress = append(progress, p) }))

	res, err := u.CheckAndUpdate(context.Background(), 6, "", "", "thing/firmware/")
	if err != nil {
		t.Fatalf("CheckAndUpdate() error = %v", err)
	}
	if res.Outcome != OutcomeUpdated {
		t.Fatalf("Outcome = %s, want Updated", res.Outcome)
	}
	if res.Manifest.Current != 6 || res.Manifest.Remote != 7 {
		t.Errorf("Manifest = %+v", res.Manifest)
	}
	if res.Written != int64(len(img)) {
		t.Errorf("Written = %d, want %d", res.Written, len(img))
	}
	if !bytes.Equal(flash.buf.Bytes(), img) {
		t.Error("flashed bytes differ from image")
	}
	if flash.version != 7 || flash.size != int64(len(img)) || !flash.ended {
		t.Errorf("flash session = version %d size %d ended %v", flash.version, flash.size, flash.ended)
	}
	if n := restarter.n.Load(); n != 1 {
		t.Errorf("restarts = %d, want 1", n)
	}

	if len(progress) == 0 {
		t.Fatal("no progress reported")
	}
	for i := 1; i < len(progress); i++ {
		if progress[i].Written < progress[i-1].Written {
			t.Fatalf("progress went backwards: %d then %d", progress[i-1].Written, progress[i].Written)
		}
	}
	last := progress[len(progress)-1]
	if !last.Done() || last.Fraction != 1 {
		t.Errorf("final progress = %+v, want done", last)
	}
	if _, ok := rp.userAgents.Load(DefaultUserAgent); !ok {
		t.Errorf("requests did not carry User-Agent %q", DefaultUserAgent)
	}
}

func TestCheckAndUpdate_UpToDate(t *testing.T) {
	tests := []struct {
		current int
		remote  string
	}{
		{5, "5"},
		{6, "5"},
		{100, " 42 \n"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d vs %q", tt.current, tt.remote), func(t *testing.T) {
			rp := &repo{version: tt.remote, image: image(4096)}
			u, flash, restarter := newTestUpdater(t, rp)

			res, err := u.CheckAndUpdate(context.Background(), tt.current, "", "", "thing/firmware")
			if err != nil {
				t.Fatalf("CheckAndUpdate() error = %v", err)
			}
			if res.Outcome != OutcomeUpToDate {
				t.Errorf("Outcome = %s, want UpToDate", res.Outcome)
			}
			if hits := rp.imageHits.Load(); hits != 0 {
				t.Errorf("image requested %d times, want 0", hits)
			}
			if flash.beginCount() != 0 || restarter.n.Load() != 0 {
				t.Error("flash or restart touched")
			}
		})
	}
}

func TestCheckAndUpdate_CheckFailed(t *testing.T) {
	tests := []struct {
		name string
		rp   *repo
	}{
		{"not found", &repo{versionCode: http.StatusNotFound}},
		{"server error", &repo{versionCode: http.StatusInternalServerError}},
		{"not a number", &repo{version: "<html>login</html>"}},
		{"empty", &repo{version: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, flash, _ := newTestUpdater(t, tt.rp)

			res, err := u.CheckAndUpdate(context.Background(), 1, "", "", "thing/firmware")
			if !IsCheckFailed(err) {
				t.Fatalf("error = %v, want CheckFailed", err)
			}
			if res.Outcome != OutcomeCheckFailed {
				t.Errorf("Outcome = %s, want CheckFailed", res.Outcome)
			}
			if flash.beginCount() != 0 {
				t.Error("flash touched")
			}
		})
	}
}

func TestCheckAndUpdate_Unreachable(t *testing.T) {
	u := New(&fakeFlash{}, &countingRestarter{})
	u.Host = "http://127.0.0.1:1"
	u.SetCheckTimeout(time.Second)

	_, err := u.CheckAndUpdate(context.Background(), 1, "o/r", "secret", "fw")
	if !IsCheckFailed(err) {
		t.Fatalf("error = %v, want CheckFailed", err)
	}
	if bytes.Contains([]byte(err.Error()), []byte("secret")) {
		t.Errorf("error leaks token: %v", err)
	}
}

func TestCheckAndUpdate_ImageFetchFailed(t *testing.T) {
	rp := &repo{version: "9", imageCode: http.StatusNotFound}
	u, flash, restarter := newTestUpdater(t, rp)

	res, err := u.CheckAndUpdate(context.Background(), 1, "", "", "thing/firmware")
	if o, _ := OutcomeOf(err); o != OutcomeImageFetchFailed {
		t.Fatalf("error = %v, want ImageFetchFailed", err)
	}
	var ue *UpdateError
	if !errors.As(err, &ue) || ue.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode not carried: %v", err)
	}
	if res.Outcome != OutcomeImageFetchFailed || flash.beginCount() != 0 || restarter.n.Load() != 0 {
		t.Errorf("Outcome = %s, begins = %d", res.Outcome, flash.beginCount())
	}
}

func TestCheckAndUpdate_ImageTooSmall(t *testing.T) {
	tests := []struct {
		name string
		rp   *repo
	}{
		{"below floor", &repo{version: "2", image: image(1000)}},
		{"length not declared", &repo{version: "2", image: image(8192), chunked: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, flash, restarter := newTestUpdater(t, tt.rp)

			res, err := u.CheckAndUpdate(context.Background(), 1, "", "", "thing/firmware")
			if !IsImageTooSmall(err) {
				t.Fatalf("error = %v, want ImageTooSmall", err)
			}
			if res.Outcome != OutcomeImageTooSmall {
				t.Errorf("Outcome = %s", res.Outcome)
			}
			if flash.beginCount() != 0 {
				t.Error("flash write begun for refused image")
			}
			if restarter.n.Load() != 0 {
				t.Error("restarted")
			}
		})
	}
}

func TestCheckAndUpdate_DefaultFloor(t *testing.T) {
	rp := &repo{version: "2", image: image(DefaultMinImageSize - 1)}
	u, flash, _ := newTestUpdater(t, rp)
	u.MinImageSize = DefaultMinImageSize

	if _, err := u.CheckAndUpdate(context.Background(), 1, "", "", "thing/firmware"); !IsImageTooSmall(err) {
		t.Fatalf("error = %v, want ImageTooSmall", err)
	}
	if flash.beginCount() != 0 {
		t.Error("flash write begun")
	}
}

func TestCheckAndUpdate_BeginFailed(t *testing.T) {
	rp := &repo{version: "2", image: image(4096)}
	u, flash, restarter := newTestUpdater(t, rp)
	flash.beginErr = errors.New("no space")

	res, err := u.CheckAndUpdate(context.Background(), 1, "", "", "thing/firmware")
	if res.Outcome != OutcomeBeginFailed {
		t.Fatalf("Outcome = %s (err %v), want BeginFailed", res.Outcome, err)
	}
	if restarter.n.Load() != 0 {
		t.Error("restarted")
	}
}

func TestCheckAndUpdate_WriteIncomplete(t *testing.T) {
	rp := &repo{version: "2", image: image(5000), declared: 20000}
	u, flash, restarter := newTestUpdater(t, rp)

	res, err := u.CheckAndUpdate(context.Background(), 1, "", "", "thing/firmware")
	if !IsWriteIncomplete(err) {
		t.Fatalf("error = %v, want WriteIncomplete", err)
	}
	if res.Written >= 20000 {
		t.Errorf("Written = %d, want short", res.Written)
	}
	if !flash.aborted || flash.ended {
		t.Errorf("staging aborted = %v ended = %v, want aborted only", flash.aborted, flash.ended)
	}
	if restarter.n.Load() != 0 {
		t.Error("restarted after incomplete write")
	}
}

func TestCheckAndUpdate_WriteErrorOnLastChunk(t *testing.T) {
	rp := &repo{version: "2", image: image(4096 + 100)}
	u, flash, restarter := newTestUpdater(t, rp)
	flash.writeErr = errors.New("flash write failed")

	res, err := u.CheckAndUpdate(context.Background(), 1, "", "", "thing/firmware")
	if !IsWriteIncomplete(err) {
		t.Fatalf("error = %v (outcome %s), want WriteIncomplete", err, res.Outcome)
	}
	if !errors.Is(err, flash.writeErr) {
		t.Errorf("error chain lost cause: %v", err)
	}
	if res.Written != int64(len(rp.image)) {
		t.Errorf("Written = %d, want full count %d", res.Written, len(rp.image))
	}
	if !flash.aborted || flash.ended {
		t.Errorf("staging aborted = %v ended = %v, want aborted only", flash.aborted, flash.ended)
	}
	if restarter.n.Load() != 0 {
		t.Error("restarted after failed write")
	}
}

func TestCheckAndUpdate_FinalizeFailed(t *testing.T) {
	rp := &repo{version: "2", image: image(4096)}
	u, flash, restarter := newTestUpdater(t, rp)
	flash.endErr = errors.New("digest mismatch")

	res, err := u.CheckAndUpdate(context.Background(), 1, "", "", "thing/firmware")
	if res.Outcome != OutcomeFinalizeFailed {
		t.Fatalf("Outcome = %s (err %v), want FinalizeFailed", res.Outcome, err)
	}
	if !errors.Is(err, flash.endErr) {
		t.Errorf("error chain lost cause: %v", err)
	}
	if restarter.n.Load() != 0 {
		t.Error("restarted after failed finalize")
	}
}

func TestCheckAndUpdate_TokenURL(t *testing.T) {
	var versionPath, imagePath, token, ref string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.URL.Query().Get("private_token")
		ref = r.URL.Query().Get("ref")
		switch r.URL.EscapedPath() {
		case "/api/v4/projects/42/repository/files/thing%2Ffirmware%2Fversion/raw":
			versionPath = r.URL.EscapedPath()
			fmt.Fprint(w, "3")
		case "/api/v4/projects/42/repository/files/thing%2Ffirmware%2F3.bin/raw":
			imagePath = r.URL.EscapedPath()
			w.Write(image(1500))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	flash := &fakeFlash{}
	u := New(flash, &countingRestarter{})
	u.Host = ts.URL
	u.MinImageSize = 1024

	res, err := u.CheckAndUpdate(context.Background(), 2, "42", "tok", "thing%2Ffirmware%2F")
	if err != nil {
		t.Fatalf("CheckAndUpdate() error = %v", err)
	}
	if res.Outcome != OutcomeUpdated {
		t.Fatalf("Outcome = %s", res.Outcome)
	}
	if versionPath == "" || imagePath == "" {
		t.Errorf("API paths not used: version %q image %q", versionPath, imagePath)
	}
	if token != "tok" || ref != "master" {
		t.Errorf("query token=%q ref=%q", token, ref)
	}
}

func TestFileURL(t *testing.T) {
	u := New(nil, nil)

	tests := []struct {
		name              string
		ownerRepo         string
		repo, token, base string
		want              string
	}{
		{
			name: "raw uses repository id as path",
			repo: "hamish/iot4", base: "thing%2Ffirmware%2F",
			want: "https://gitlab.com/hamish/iot4/raw/master/thing/firmware/version",
		},
		{
			name: "raw prefers owner repo", ownerRepo: "me/fw",
			repo: "123", base: "fw",
			want: "https://gitlab.com/me/fw/raw/master/fw/version",
		},
		{
			name: "token selects api",
			repo: "123", token: "t", base: "thing/firmware/",
			want: "https://gitlab.com/api/v4/projects/123/repository/files/thing%2Ffirmware%2Fversion/raw?private_token=t&ref=master",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u.OwnerRepo = tt.ownerRepo
			if got := u.FileURL(tt.repo, tt.token, tt.base, "version"); got != tt.want {
				t.Errorf("FileURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckAndUpdate_Busy(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		fmt.Fprint(w, "1")
	}))
	defer ts.Close()

	flash := &fakeFlash{}
	u := New(flash, &countingRestarter{})
	u.Host = ts.URL

	done := make(chan error, 1)
	go func() {
		_, err := u.CheckAndUpdate(context.Background(), 1, "o/r", "", "fw")
		done <- err
	}()
	<-entered

	busy, err := u.CheckAndUpdate(context.Background(), 1, "o/r", "", "fw")
	if !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent call error = %v, want ErrBusy", err)
	}
	if busy.Outcome != OutcomeUnknown || busy.Outcome.String() != "Unknown" {
		t.Errorf("concurrent call Outcome = %s, want Unknown", busy.Outcome)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("first call error = %v", err)
	}
	if flash.beginCount() != 0 {
		t.Error("flash touched")
	}
}

func TestCheckAndUpdate_IgnoresCancelAfterBegin(t *testing.T) {
	img := image(8192)
	resume := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/o/r/raw/master/fw/version":
			fmt.Fprint(w, "2")
		case "/o/r/raw/master/fw/2.bin":
			w.Header().Set("Content-Length", strconv.Itoa(len(img)))
			w.Write(img[:4096])
			w.(http.Flusher).Flush()
			<-resume
			w.Write(img[4096:])
		}
	}))
	defer ts.Close()

	flash := &fakeFlash{begun: make(chan struct{})}
	u := New(flash, &countingRestarter{})
	u.Host = ts.URL
	u.MinImageSize = 1024

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-flash.begun
		cancel()
		time.Sleep(20 * time.Millisecond)
		close(resume)
	}()

	res, err := u.CheckAndUpdate(ctx, 1, "o/r", "", "fw")
	if err != nil {
		t.Fatalf("CheckAndUpdate() error = %v", err)
	}
	if res.Outcome != OutcomeUpdated || !bytes.Equal(flash.buf.Bytes(), img) {
		t.Errorf("Outcome = %s, flashed %d bytes", res.Outcome, flash.buf.Len())
	}
}

func TestChannelObserver_DropsWhenFull(t *testing.T) {
	o := NewChannelObserver(1)
	o.Progress(newProgress(1, 4))
	o.Progress(newProgress(2, 4))

	p := <-o.C
	if p.Written != 1 || p.Fraction != 0.25 {
		t.Errorf("got %+v", p)
	}
	select {
	case extra := <-o.C:
		t.Errorf("unexpected buffered update %+v", extra)
	default:
	}
}

func TestOutcomeOf(t *testing.T) {
	wrapped := fmt.Errorf("update: %w", newError(OutcomeFinalizeFailed, 0, nil, "x"))
	if o, ok := OutcomeOf(wrapped); !ok || o != OutcomeFinalizeFailed {
		t.Errorf("OutcomeOf(wrapped) = %s, %v", o, ok)
	}
	if _, ok := OutcomeOf(errors.New("plain")); ok {
		t.Error("OutcomeOf(plain) ok = true")
	}
	if _, ok := OutcomeOf(ErrBusy); ok {
		t.Error("OutcomeOf(ErrBusy) ok = true")
	}
}
