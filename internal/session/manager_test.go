package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/manash/designedit/internal/provider"
	"github.com/manash/designedit/pkg/models"
)

type fakeGateway struct {
	mu       sync.Mutex
	calls    int
	lastReq  *models.EditRequest
	err      error
	delay    time.Duration
	inflight atomic.Int32
	maxSeen  atomic.Int32
}

func (g *fakeGateway) Generate(ctx context.Context, req *models.EditRequest) (*models.Result, error) {
	n := g.inflight.Add(1)
	defer g.inflight.Add(-1)
	for {
		seen := g.maxSeen.Load()
		if n <= seen || g.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	g.mu.Lock()
	g.calls++
	g.lastReq = req
	call := g.calls
	g.mu.Unlock()

	if g.err != nil {
		return nil, g.err
	}
	return &models.Result{
		Data:     []byte(fmt.Sprintf("\x89PNG\r\n\x1a\nIMG%d", call)),
		MIME:     models.MIMEPNG,
		Usage:    map[string]any{"total_tokens": float64(42)},
		Cost:     &models.CostInfo{PerImage: 0.04, Total: 0.04, Currency: "USD"},
		Provider: models.ProviderOpenAI,
		Model:    "gpt-image-1",
	}, nil
}

type recordedUsage struct {
	mu      sync.Mutex
	entries []UsageEntry
	err     error
}

func (r *recordedUsage) RecordUsage(ctx context.Context, e UsageEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return r.err
}

func testController(t *testing.T, gw *fakeGateway, opts ...Option) *Controller {
	t.Helper()
	return NewController(testStore(t), gw, opts...)
}

var seedIMG0 = &Seed{Data: []byte("\x89PNG\r\n\x1a\nIMG0"), MIME: models.MIMEPNG}

// scenarioA bootstraps a session from IMG0 and returns the original path.
func scenarioA(t *testing.T, c *Controller, sid string) string {
	t.Helper()
	h, err := c.Bootstrap(context.Background(), sid, seedIMG0)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if len(h.Versions) != 1 {
		t.Fatalf("Bootstrap() versions = %d, want 1", len(h.Versions))
	}
	return h.Versions[0].Path
}

func TestController_BootstrapScenarioA(t *testing.T) {
	c := testController(t, &fakeGateway{})
	ctx := context.Background()

	p0 := scenarioA(t, c, "sid1")

	h, err := c.List(ctx, "sid1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	v := h.Versions[0]
	if v.Type != TypeOriginal || v.Base != nil || v.Prompt != nil {
		t.Errorf("original version = %+v", v)
	}
	if h.Current() != p0 || h.Original() != p0 {
		t.Errorf("current/original = %q/%q, want %q", h.Current(), h.Original(), p0)
	}
	data, _, err := c.Store().ReadImage(p0)
	if err != nil || string(data) != string(seedIMG0.Data) {
		t.Errorf("stored seed = %q, %v", data, err)
	}
}

func TestController_BootstrapIdempotent(t *testing.T) {
	c := testController(t, &fakeGateway{})
	ctx := context.Background()

	p0 := scenarioA(t, c, "sid1")
	for i := 0; i < 3; i++ {
		h, err := c.Bootstrap(ctx, "sid1", &Seed{Data: []byte("other seed")})
		if err != nil {
			t.Fatalf("Bootstrap() error = %v", err)
		}
		if len(h.Versions) != 1 || h.Current() != p0 {
			t.Fatalf("Bootstrap() changed a populated session: %+v", h)
		}
	}

	entries, _ := os.ReadDir(c.Store().Root() + "/sid1")
	if len(entries) != 2 {
		t.Errorf("session dir has %d entries, want history plus one image", len(entries))
	}
}

func TestController_BootstrapWithoutSeed(t *testing.T) {
	c := testController(t, &fakeGateway{})

	h, err := c.Bootstrap(context.Background(), "sid1", nil)
	if err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if !h.IsEmpty() || h.CurrentBasePath != nil {
		t.Errorf("Bootstrap(nil) = %+v, want skeleton", h)
	}
}

func TestController_EditScenarioB(t *testing.T) {
	gw := &fakeGateway{}
	c := testController(t, gw)
	ctx := context.Background()
	p0 := scenarioA(t, c, "sid1")

	res, err := c.Edit(ctx, "sid1", "add glow")
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	if gw.lastReq.Prompt != "add glow" || string(gw.lastReq.Base.Data) != string(seedIMG0.Data) {
		t.Errorf("gateway request = %q with base %q", gw.lastReq.Prompt, gw.lastReq.Base.Data)
	}
	if gw.lastReq.Base.MIME != models.MIMEPNG {
		t.Errorf("base MIME = %q", gw.lastReq.Base.MIME)
	}

	h := res.History
	if len(h.Versions) != 2 {
		t.Fatalf("versions = %d, want 2", len(h.Versions))
	}
	p1 := h.Versions[0].Path
	if h.Versions[0].Type != TypeEdit || h.Versions[0].BaseRef() != p0 || h.Versions[0].PromptText() != "add glow" {
		t.Errorf("edit version = %+v", h.Versions[0])
	}
	if h.Versions[1].Type != TypeOriginal || h.Versions[1].Path != p0 {
		t.Errorf("original version = %+v", h.Versions[1])
	}
	if h.Current() != p1 || res.Version.Path != p1 {
		t.Errorf("current = %q, want %q", h.Current(), p1)
	}
	if h.Original() != p0 {
		t.Errorf("original = %q, want %q", h.Original(), p0)
	}
	if res.Version.Usage["estimated_cost_usd"] != 0.04 || res.Version.Usage["total_tokens"] != float64(42) {
		t.Errorf("usage = %v", res.Version.Usage)
	}

	data, _, err := c.Store().ReadImage(p1)
	if err != nil || string(data) != "\x89PNG\r\n\x1a\nIMG1" {
		t.Errorf("stored edit = %q, %v", data, err)
	}
}

func TestController_EditChainsFromCurrent(t *testing.T) {
	gw := &fakeGateway{}
	c := testController(t, gw)
	ctx := context.Background()
	scenarioA(t, c, "sid1")

	prev := ""
	for i := 0; i < 4; i++ {
		before, _ := c.List(ctx, "sid1")
		prev = before.Current()
		res, err := c.Edit(ctx, "sid1", fmt.Sprintf("step %d", i))
		if err != nil {
			t.Fatalf("Edit(%d) error = %v", i, err)
		}
		if res.Version.BaseRef() != prev {
			t.Errorf("Edit(%d) base = %q, want %q", i, res.Version.BaseRef(), prev)
		}
		if res.History.Current() != res.Version.Path {
			t.Errorf("Edit(%d) did not advance current", i)
		}
	}
}

func TestController_UndoScenarioC(t *testing.T) {
	c := testController(t, &fakeGateway{})
	ctx := context.Background()
	p0 := scenarioA(t, c, "sid1")
	if _, err := c.Edit(ctx, "sid1", "add glow"); err != nil {
		t.Fatal(err)
	}

	current, err := c.Undo(ctx, "sid1")
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if current != p0 {
		t.Errorf("Undo() = %q, want %q", current, p0)
	}

	h, _ := c.List(ctx, "sid1")
	if len(h.Versions) != 2 {
		t.Errorf("Undo() changed versions: %d", len(h.Versions))
	}
	if h.Current() != p0 {
		t.Errorf("persisted current = %q, want %q", h.Current(), p0)
	}
}

func TestController_RollbackScenarioD(t *testing.T) {
	c := testController(t, &fakeGateway{})
	ctx := context.Background()
	p0 := scenarioA(t, c, "sid1")
	if _, err := c.Edit(ctx, "sid1", "add glow"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		current, err := c.Rollback(ctx, "sid1", p0)
		if err != nil {
			t.Fatalf("Rollback() error = %v", err)
		}
		if current != p0 {
			t.Errorf("Rollback() #%d = %q, want %q", i, current, p0)
		}
	}
}

func TestController_EditEmptyPromptScenarioE(t *testing.T) {
	gw := &fakeGateway{}
	c := testController(t, gw)
	ctx := context.Background()
	p0 := scenarioA(t, c, "sid1")

	for _, prompt := range []string{"", "   \n"} {
		if _, err := c.Edit(ctx, "sid1", prompt); !errors.Is(err, ErrEmptyPrompt) {
			t.Errorf("Edit(%q) error = %v, want ErrEmptyPrompt", prompt, err)
		}
	}
	if gw.calls != 0 {
		t.Errorf("gateway called %d times", gw.calls)
	}
	h, _ := c.List(ctx, "sid1")
	if len(h.Versions) != 1 || h.Current() != p0 {
		t.Errorf("history mutated: %+v", h)
	}
}

func TestController_EditGatewayErrorScenarioF(t *testing.T) {
	provErr := &provider.ProviderError{Provider: models.ProviderOpenAI, Status: 400, Message: "safety system"}
	c := testController(t, &fakeGateway{err: provErr})
	ctx := context.Background()
	p0 := scenarioA(t, c, "sid1")

	_, err := c.Edit(ctx, "sid1", "add glow")
	var got *provider.ProviderError
	if !errors.As(err, &got) || got != provErr {
		t.Fatalf("Edit() error = %v, want the gateway error unchanged", err)
	}
	if Classify(err) != KindProvider {
		t.Errorf("Classify() = %s, want provider", Classify(err))
	}

	h, _ := c.List(ctx, "sid1")
	if len(h.Versions) != 1 || h.Current() != p0 {
		t.Errorf("history mutated: %+v", h)
	}
}

func TestController_EditMissingBase(t *testing.T) {
	gw := &fakeGateway{}
	c := testController(t, gw)
	ctx := context.Background()

	if _, err := c.Edit(ctx, "fresh", "add glow"); !errors.Is(err, ErrMissingBase) {
		t.Errorf("Edit() on empty session error = %v, want ErrMissingBase", err)
	}

	p0 := scenarioA(t, c, "sid1")
	path, err := c.Store().Resolve(p0)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	_, err = c.Edit(ctx, "sid1", "add glow")
	if !errors.Is(err, ErrMissingBase) {
		t.Fatalf("Edit() error = %v, want ErrMissingBase", err)
	}
	if Classify(err) != KindInconsistency {
		t.Errorf("Classify() = %s, want inconsistency", Classify(err))
	}
	if gw.calls != 0 {
		t.Error("gateway should not run without a base")
	}
}

func TestController_UndoFailures(t *testing.T) {
	c := testController(t, &fakeGateway{})
	ctx := context.Background()

	if _, err := c.Undo(ctx, "fresh"); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("Undo() on empty session error = %v, want ErrNothingToUndo", err)
	}

	p0 := scenarioA(t, c, "sid1")
	if _, err := c.Undo(ctx, "sid1"); !errors.Is(err, ErrAlreadyAtOriginal) {
		t.Errorf("Undo() at original error = %v, want ErrAlreadyAtOriginal", err)
	}

	res, err := c.Edit(ctx, "sid1", "add glow")
	if err != nil {
		t.Fatal(err)
	}
	path, _ := c.Store().Resolve(p0)
	os.Remove(path)

	if _, err := c.Undo(ctx, "sid1"); !errors.Is(err, ErrAlreadyAtOriginal) {
		t.Errorf("Undo() with lost base error = %v, want ErrAlreadyAtOriginal", err)
	}
	h, _ := c.List(ctx, "sid1")
	if h.Current() != res.Version.Path {
		t.Errorf("failed undo moved current to %q", h.Current())
	}
}

func TestController_UndoIsLeftInverseOfEdit(t *testing.T) {
	c := testController(t, &fakeGateway{})
	ctx := context.Background()
	scenarioA(t, c, "sid1")

	for i := 0; i < 3; i++ {
		if _, err := c.Edit(ctx, "sid1", fmt.Sprintf("edit %d", i)); err != nil {
			t.Fatal(err)
		}
	}
	h, _ := c.List(ctx, "sid1")

	for _, v := range h.Versions {
		if v.Base == nil {
			continue
		}
		if _, err := c.Rollback(ctx, "sid1", v.Path); err != nil {
			t.Fatalf("Rollback(%s) error = %v", v.Path, err)
		}
		got, err := c.Undo(ctx, "sid1")
		if err != nil {
			t.Fatalf("Undo() from %s error = %v", v.Path, err)
		}
		if got != *v.Base {
			t.Errorf("Undo() from %s = %q, want %q", v.Path, got, *v.Base)
		}
	}
}

func TestController_UndoWalksChainToOriginal(t *testing.T) {
	c := testController(t, &fakeGateway{})
	ctx := context.Background()
	p0 := scenarioA(t, c, "sid1")
	for i := 0; i < 3; i++ {
		if _, err := c.Edit(ctx, "sid1", "more"); err != nil {
			t.Fatal(err)
		}
	}

	steps := 0
	for {
		_, err := c.Undo(ctx, "sid1")
		if errors.Is(err, ErrAlreadyAtOriginal) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		steps++
	}
	h, _ := c.List(ctx, "sid1")
	if steps != 3 || h.Current() != p0 {
		t.Errorf("walked %d steps to %q, want 3 to %q", steps, h.Current(), p0)
	}
}

func TestController_Rollback(t *testing.T) {
	c := testController(t, &fakeGateway{})
	ctx := context.Background()
	p0 := scenarioA(t, c, "sid1")
	res, err := c.Edit(ctx, "sid1", "glow")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		target  string
		want    string
		wantErr error
	}{
		{"version in history", p0, p0, nil},
		{"by public url", res.Version.URL, res.Version.Path, nil},
		{"missing file", "sid1/edit_nope.png", "", ErrInvalidVersion},
		{"traversal", "../../etc/passwd", "", ErrInvalidVersion},
		{"history file", "sid1/history.json", "", ErrInvalidVersion},
		{"empty", "", "", ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Rollback(ctx, "sid1", tt.target)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Rollback(%q) error = %v, want %v", tt.target, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Rollback(%q) = %q, want %q", tt.target, got, tt.want)
			}
		})
	}
}

func TestController_RollbackIsIdempotent(t *testing.T) {
	c := testController(t, &fakeGateway{})
	ctx := context.Background()
	p0 := scenarioA(t, c, "sid1")
	if _, err := c.Edit(ctx, "sid1", "glow"); err != nil {
		t.Fatal(err)
	}

	first, err := c.Rollback(ctx, "sid1", p0)
	if err != nil {
		t.Fatalf("first Rollback() error = %v", err)
	}
	file := filepath.Join(c.Store().Root(), "sid1", historyFile)
	before, _ := os.ReadFile(file)
	infoBefore, _ := os.Stat(file)

	time.Sleep(10 * time.Millisecond)
	second, err := c.Rollback(ctx, "sid1", p0)
	if err != nil {
		t.Fatalf("second Rollback() error = %v", err)
	}
	if first != p0 || second != first {
		t.Errorf("Rollback() = %q then %q, want %q both times", first, second, p0)
	}

	after, _ := os.ReadFile(file)
	infoAfter, _ := os.Stat(file)
	if string(after) != string(before) || !infoAfter.ModTime().Equal(infoBefore.ModTime()) {
		t.Error("repeating a rollback rewrote the history file")
	}
}

func TestController_RollbackToAnotherSessionThenEdit(t *testing.T) {
	c := testController(t, &fakeGateway{})
	ctx := context.Background()
	scenarioA(t, c, "sid1")
	other := scenarioA(t, c, "sid2")

	current, err := c.Rollback(ctx, "sid1", other)
	if err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if !strings.HasPrefix(current, "sid1/original_") {
		t.Fatalf("Rollback() = %q, want a copy inside sid1", current)
	}

	h, _ := c.List(ctx, "sid1")
	imported := h.Versions[0]
	if imported.Type != TypeOriginal || imported.Path != current || imported.Base != nil {
		t.Errorf("imported version = %+v", imported)
	}
	got, _, _ := c.Store().ReadImage(current)
	if string(got) != string(seedIMG0.Data) {
		t.Error("imported copy differs from the rollback target")
	}

	again, err := c.Rollback(ctx, "sid1", other)
	if err != nil || again != current {
		t.Errorf("second Rollback() = %q, %v, want the same copy %q", again, err, current)
	}

	res, err := c.Edit(ctx, "sid1", "add glow")
	if err != nil {
		t.Fatalf("Edit() after foreign rollback error = %v", err)
	}
	if res.Version.BaseRef() != current {
		t.Errorf("edit base = %q, want %q", res.Version.BaseRef(), current)
	}

	h, err = c.List(ctx, "sid1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(h.Versions) != 3 {
		t.Errorf("versions = %d, want 3", len(h.Versions))
	}
	if err := h.Validate(); err != nil {
		t.Errorf("history invalid: %v", err)
	}

	if back, err := c.Undo(ctx, "sid1"); err != nil || back != current {
		t.Errorf("Undo() = %q, %v, want %q", back, err, current)
	}
	if _, err := c.Undo(ctx, "sid1"); !errors.Is(err, ErrAlreadyAtOriginal) {
		t.Errorf("Undo() at imported original error = %v", err)
	}
}

func TestController_EditUnsavedLeavesNoImage(t *testing.T) {
	store := testStore(t)
	gw := &fakeGateway{}
	scenarioA(t, NewController(store, gw), "sid1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The clock runs after the edit image is written and before the history
	// is saved, so cancelling there makes the save fail.
	c := NewController(store, gw, WithClock(func() time.Time {
		cancel()
		return time.Now()
	}))

	dir := filepath.Join(store.Root(), "sid1")
	before := countFiles(t, dir)
	if _, err := c.Edit(ctx, "sid1", "add glow"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Edit() error = %v, want context.Canceled", err)
	}
	if after := countFiles(t, dir); after != before {
		t.Errorf("session files = %d after a failed save, want %d", after, before)
	}

	h, _ := NewController(store, gw).List(context.Background(), "sid1")
	if len(h.Versions) != 1 {
		t.Errorf("versions = %d, want 1", len(h.Versions))
	}
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func TestController_Upload(t *testing.T) {
	c := testController(t, &fakeGateway{})
	ctx := context.Background()
	p0 := scenarioA(t, c, "sid1")

	res, err := c.Upload(ctx, "sid1", Upload{Data: []byte("\xff\xd8\xff\xe0 jpeg-ish"), MIME: "image/jpeg", Filename: "me.jpg"})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if res.Version.Type != TypeOriginal {
		t.Errorf("Upload() type = %s", res.Version.Type)
	}
	h := res.History
	if len(h.Versions) != 2 || h.Versions[0].Path != res.Version.Path {
		t.Fatalf("Upload() did not prepend: %+v", h.Versions)
	}
	if h.Current() != res.Version.Path || h.Original() != res.Version.Path {
		t.Errorf("pointers = %q/%q, want %q", h.Current(), h.Original(), res.Version.Path)
	}
	if h.Versions[1].Path != p0 {
		t.Error("earlier versions should be kept")
	}
}

func TestController_UploadLogsSanitizedFilename(t *testing.T) {
	var logs bytes.Buffer
	c := testController(t, &fakeGateway{}, WithLogger(zerolog.New(&logs).Level(zerolog.DebugLevel)))

	up := Upload{Data: []byte("\x89PNG\r\n\x1a\nIMG"), MIME: models.MIMEPNG, Filename: "../../etc/pass*wd.png"}
	if _, err := c.Upload(context.Background(), "sid1", up); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(logs.String(), `"file":"etc-passwd.png"`) {
		t.Errorf("upload log = %s", logs.String())
	}
}

func TestController_UploadErrors(t *testing.T) {
	c := testController(t, &fakeGateway{})
	ctx := context.Background()

	if _, err := c.Upload(ctx, "sid1", Upload{}); !errors.Is(err, ErrNoFile) {
		t.Errorf("Upload(empty) error = %v, want ErrNoFile", err)
	}

	cause := errors.New("http: request body too large")
	_, err := c.Upload(ctx, "sid1", Upload{Err: cause})
	var upErr *UploadError
	if !errors.As(err, &upErr) || !errors.Is(err, cause) {
		t.Errorf("Upload(err) error = %v, want *UploadError wrapping cause", err)
	}
	if !IsUserError(err) {
		t.Error("upload failures are user errors")
	}
}

func TestController_UploadUnknownFormatKept(t *testing.T) {
	c := testController(t, &fakeGateway{})
	ctx := context.Background()

	raw := []byte("not really an image")
	res, err := c.Upload(ctx, "sid1", Upload{Data: raw, MIME: "image/heic"})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	data, _, err := c.Store().ReadImage(res.Version.Path)
	if err != nil || string(data) != string(raw) {
		t.Errorf("stored = %q, %v; want bytes unchanged", data, err)
	}
}

func TestController_ConcurrentEdits(t *testing.T) {
	gw := &fakeGateway{delay: 20 * time.Millisecond}
	c := testController(t, gw)
	ctx := context.Background()
	scenarioA(t, c, "sid1")

	before, _ := c.List(ctx, "sid1")
	const n = 8

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Edit(ctx, "sid1", fmt.Sprintf("edit %d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Edit() error = %v", err)
		}
	}

	after, err := c.List(ctx, "sid1")
	if err != nil {
		t.Fatal(err)
	}
	if len(after.Versions) != len(before.Versions)+n {
		t.Errorf("versions = %d, want %d", len(after.Versions), len(before.Versions)+n)
	}
	if gw.maxSeen.Load() < 2 {
		t.Error("gateway calls never overlapped; they should run outside the session lock")
	}

	seen := make(map[string]bool)
	for _, v := range after.Versions {
		if seen[v.Path] {
			t.Errorf("duplicate path %q", v.Path)
		}
		seen[v.Path] = true
	}
	if err := after.Validate(); err != nil {
		t.Errorf("persisted history invalid: %v", err)
	}
}

func TestController_SessionsAreIsolated(t *testing.T) {
	c := testController(t, &fakeGateway{})
	ctx := context.Background()
	scenarioA(t, c, "alice")
	scenarioA(t, c, "bob")

	if _, err := c.Edit(ctx, "alice", "hat"); err != nil {
		t.Fatal(err)
	}
	h, _ := c.List(ctx, "bob")
	if len(h.Versions) != 1 {
		t.Errorf("bob has %d versions, want 1", len(h.Versions))
	}
}

func TestController_UsageRecorder(t *testing.T) {
	rec := &recordedUsage{err: errors.New("ledger down")}
	c := testController(t, &fakeGateway{}, WithUsageRecorder(rec))
	ctx := context.Background()
	scenarioA(t, c, "sid1")

	res, err := c.Edit(ctx, "sid1", "glow")
	if err != nil {
		t.Fatalf("Edit() should not fail when the ledger does: %v", err)
	}
	if len(rec.entries) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(rec.entries))
	}
	e := rec.entries[0]
	if e.SessionID != "sid1" || e.VersionID != res.Version.ID || e.Provider != "openai" || e.Cost != 0.04 {
		t.Errorf("entry = %+v", e)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{ErrEmptyPrompt, KindInput},
		{ErrNoFile, KindInput},
		{&UploadError{Cause: errors.New("x")}, KindInput},
		{ErrNothingToUndo, KindInput},
		{ErrAlreadyAtOriginal, KindInput},
		{fmt.Errorf("%w: x", ErrMissingBase), KindInconsistency},
		{ErrInvalidVersion, KindInconsistency},
		{ErrCorruptHistory, KindInconsistency},
		{&provider.NetworkError{Op: "x", Err: errors.New("reset")}, KindProvider},
		{&provider.NoImageReturnedError{}, KindProvider},
		{fmt.Errorf("%w: disk full", ErrStorage), KindStorage},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}
