package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reelsmith/broadcast"
	"reelsmith/config"
	"reelsmith/generation"
	"reelsmith/store"
	"reelsmith/types"
)

// --- fakes ---

type fakeStoryboard struct {
	out   generation.StoryboardOutput
	err   error
	calls int
}

func (f *fakeStoryboard) Plan(ctx context.Context, script *types.Script, cfg types.StoryboardConfig) (generation.StoryboardOutput, error) {
	f.calls++
	return f.out, f.err
}

type fakeNarration struct {
	mu        sync.Mutex
	failTexts map[string]bool
	voices    []string
	calls     int
}

func (f *fakeNarration) Synthesize(ctx context.Context, key, text string, cfg types.AudioConfig) (generation.AudioOutput, error) {
	f.mu.Lock()
	f.calls++
	f.voices = append(f.voices, cfg.Voice)
	fail := f.failTexts[text]
	f.mu.Unlock()

	out := generation.AudioOutput{Cost: 0.015, DurationSec: 3}
	if fail {
		return out, errors.New("tts unavailable")
	}
	out.URL = "https://cdn.test/" + key
	return out, nil
}

type fakeMusic struct {
	err   error
	calls int
}

func (f *fakeMusic) Compose(ctx context.Context, prompt string, durationSec float64) (generation.AudioOutput, error) {
	f.calls++
	out := generation.AudioOutput{Cost: 0.05, DurationSec: durationSec}
	if f.err != nil {
		return out, f.err
	}
	out.URL = "https://cdn.test/music/" + prompt
	return out, nil
}

type fakeImage struct {
	mu           sync.Mutex
	failPrompts  map[string]bool
	succeedAfter map[string]int
	attempts     map[string]int
}

func (f *fakeImage) Generate(ctx context.Context, key, prompt string, cfg types.ImageConfig) (generation.ImageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.attempts == nil {
		f.attempts = make(map[string]int)
	}
	f.attempts[prompt]++

	out := generation.ImageOutput{Cost: 0.02}
	if f.failPrompts[prompt] {
		return out, errors.New("image service timeout")
	}
	if n := f.succeedAfter[prompt]; n > 0 && f.attempts[prompt] <= n {
		return out, errors.New("image service transient error")
	}
	out.URL = "https://cdn.test/" + key
	out.Width = 720
	out.Height = 1280
	return out, nil
}

type fakeClip struct {
	mu       sync.Mutex
	failURLs map[string]bool
	failAll  bool
	calls    int
}

func (f *fakeClip) Animate(ctx context.Context, imageURL string, cfg types.ClipConfig) (generation.ClipOutput, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failAll || f.failURLs[imageURL]
	f.mu.Unlock()

	out := generation.ClipOutput{Cost: 0.10, DurationSec: 4}
	if fail {
		return out, errors.New("clip service error")
	}
	out.URL = strings.Replace(imageURL, "images/", "clips/", 1) + ".mp4"
	return out, nil
}

type fakeComposer struct {
	in    generation.ComposeInput
	err   error
	calls int
}

func (f *fakeComposer) Compose(ctx context.Context, in generation.ComposeInput) (generation.ComposeOutput, error) {
	f.calls++
	f.in = in
	out := generation.ComposeOutput{Cost: 0.01, DurationSec: 30}
	if f.err != nil {
		return out, f.err
	}
	out.URL = "https://cdn.test/videos/" + in.SessionID + ".mp4"
	return out, nil
}

type busyLocker struct{}

func (busyLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	return nil, fmt.Errorf("session %s is already running a stage", sessionID)
}

// serialLocker blocks Acquire until the holder releases, like the Redis lock
// under contention. waiting counts callers parked in Acquire.
type serialLocker struct {
	mu      sync.Mutex
	waiting atomic.Int32
}

func (l *serialLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	l.waiting.Add(1)
	l.mu.Lock()
	l.waiting.Add(-1)
	return l.mu.Unlock, nil
}

// gatedNarration parks every Synthesize call until release is closed and
// signals once the first call is in flight.
type gatedNarration struct {
	fakeNarration
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *gatedNarration) Synthesize(ctx context.Context, key, text string, cfg types.AudioConfig) (generation.AudioOutput, error) {
	f.once.Do(func() { close(f.started) })
	<-f.release
	return f.fakeNarration.Synthesize(ctx, key, text, cfg)
}

type recordingSub struct {
	mu     sync.Mutex
	events []types.ProgressEvent
}

func (r *recordingSub) Send(ev types.ProgressEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSub) all() []types.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.ProgressEvent(nil), r.events...)
}

// --- fixtures ---

func newTestOrchestrator(ex Executors) (*Orchestrator, *store.MemoryStore, *broadcast.Registry) {
	st := store.NewMemoryStore()
	reg := broadcast.NewRegistry(nil)
	o := New(st, reg, store.NoopLocker{}, ex)
	o.backoff = time.Millisecond
	return o, st, reg
}

func seedScript(t *testing.T, st *store.MemoryStore) *types.Script {
	t.Helper()
	script := &types.Script{
		ID:     "script-1",
		UserID: "user-1",
		Title:  "How rockets reach orbit",
		Sections: []types.ScriptSection{
			{Name: types.SectionHook, Text: "Rockets burn most of their fuel in the first minute.", TargetDuration: 5},
			{Name: types.SectionConcept, Text: "Orbit means falling around the planet, not floating.", TargetDuration: 10},
			{Name: types.SectionProcess, Text: "Staging sheds dead weight as tanks empty.", TargetDuration: 10},
			{Name: types.SectionConclusion, Text: "Every launch is a fight against gravity losses.", TargetDuration: 5},
		},
	}
	if err := st.CreateScript(context.Background(), script); err != nil {
		t.Fatalf("seed script: %v", err)
	}
	return script
}

func seedSession(t *testing.T, st *store.MemoryStore, status types.SessionStatus) *types.Session {
	t.Helper()
	s := &types.Session{
		ID:       "session-1",
		UserID:   "user-1",
		ScriptID: "script-1",
		Title:    "How rockets reach orbit",
		Status:   status,
	}
	if err := st.CreateSession(context.Background(), s); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return s
}

func seedStoryboard(t *testing.T, st *store.MemoryStore, sessionID string, prompts ...string) {
	t.Helper()
	for i, p := range prompts {
		a := &types.Asset{
			ID:        fmt.Sprintf("sb-%d", i),
			SessionID: sessionID,
			Kind:      types.AssetStoryboard,
			Ordinal:   i,
			Metadata:  map[string]interface{}{"image_prompt": p},
		}
		if err := st.CreateAsset(context.Background(), a); err != nil {
			t.Fatalf("seed storyboard: %v", err)
		}
	}
}

func seedAssets(t *testing.T, st *store.MemoryStore, sessionID, kind string, approved bool, n int) []*types.Asset {
	t.Helper()
	out := make([]*types.Asset, 0, n)
	for i := 0; i < n; i++ {
		a := &types.Asset{
			ID:        fmt.Sprintf("%s-%d", kind, i),
			SessionID: sessionID,
			Kind:      kind,
			URL:       fmt.Sprintf("https://cdn.test/%s/%d", kind, i),
			Approved:  approved,
			Ordinal:   i,
		}
		if err := st.CreateAsset(context.Background(), a); err != nil {
			t.Fatalf("seed asset: %v", err)
		}
		out = append(out, a)
	}
	return out
}

func sessionStatus(t *testing.T, st *store.MemoryStore, id string) types.SessionStatus {
	t.Helper()
	s, err := st.GetSession(context.Background(), id, "user-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	return s.Status
}

// --- storyboard ---

func TestStoryboardCreatesSessionAndScenes(t *testing.T) {
	sb := &fakeStoryboard{out: generation.StoryboardOutput{
		Scenes: []generation.Scene{
			{Index: 0, Description: "launch pad", ImagePrompt: "rocket on pad at dawn", DurationSec: 5},
			{Index: 1, Description: "staging", ImagePrompt: "booster separation in space", DurationSec: 10},
		},
		Cost:       0.01,
		TokensUsed: 900,
	}}
	o, st, _ := newTestOrchestrator(Executors{Storyboard: sb})
	seedScript(t, st)

	result, err := o.GenerateStoryboard(context.Background(), StoryboardRequest{
		UserID: "user-1", ScriptID: "script-1",
	})
	if err != nil {
		t.Fatalf("GenerateStoryboard: %v", err)
	}
	if result.Status != "success" || len(result.Assets) != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if sessionStatus(t, st, result.SessionID) != types.StatusPending {
		t.Fatalf("expected status pending, got %s", sessionStatus(t, st, result.SessionID))
	}

	costs, _ := st.ListCosts(context.Background(), result.SessionID)
	if len(costs) != 1 || costs[0].TokensUsed != 900 {
		t.Fatalf("expected one cost row with token usage, got %+v", costs)
	}

	// Repeat invocation must be rejected without another model call
	_, err = o.GenerateStoryboard(context.Background(), StoryboardRequest{
		SessionID: result.SessionID, UserID: "user-1", ScriptID: "script-1",
	})
	if !types.IsPrecondition(err) {
		t.Fatalf("expected PreconditionError on repeat, got %v", err)
	}
	if sb.calls != 1 {
		t.Fatalf("expected 1 planner call, got %d", sb.calls)
	}
}

func TestStoryboardUnknownScript(t *testing.T) {
	o, _, _ := newTestOrchestrator(Executors{Storyboard: &fakeStoryboard{}})

	_, err := o.GenerateStoryboard(context.Background(), StoryboardRequest{
		UserID: "user-1", ScriptID: "missing",
	})
	if !types.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

// --- audio ---

func TestNarrationFourSections(t *testing.T) {
	nar := &fakeNarration{}
	o, st, _ := newTestOrchestrator(Executors{Narration: nar})
	seedScript(t, st)
	seedSession(t, st, types.StatusPending)

	result, err := o.GenerateAudio(context.Background(), "session-1", "user-1",
		types.AudioConfig{Voice: "nova", SkipMusic: true})
	if err != nil {
		t.Fatalf("GenerateAudio: %v", err)
	}
	if len(result.Assets) != 4 || len(result.ItemErrors) != 0 {
		t.Fatalf("expected 4 audio assets, got %+v", result)
	}
	for _, v := range nar.voices {
		if v != "nova" {
			t.Fatalf("expected voice nova, got %q", v)
		}
	}

	costs, _ := st.ListCosts(context.Background(), "session-1")
	if len(costs) != 4 {
		t.Fatalf("expected 4 cost rows, got %d", len(costs))
	}
	if got := sessionStatus(t, st, "session-1"); got != types.StatusPending {
		t.Fatalf("audio must not change status, got %s", got)
	}
}

func TestNarrationPartialFailure(t *testing.T) {
	nar := &fakeNarration{failTexts: map[string]bool{
		"Staging sheds dead weight as tanks empty.": true,
	}}
	o, st, _ := newTestOrchestrator(Executors{Narration: nar})
	seedScript(t, st)
	seedSession(t, st, types.StatusPending)

	result, err := o.GenerateAudio(context.Background(), "session-1", "user-1",
		types.AudioConfig{Voice: "nova", SkipMusic: true})
	if err != nil {
		t.Fatalf("GenerateAudio: %v", err)
	}
	if len(result.Assets) != 3 || len(result.ItemErrors) != 1 {
		t.Fatalf("expected 3 assets and 1 item error, got %+v", result)
	}
	if result.ItemErrors[0].Input != types.SectionProcess {
		t.Fatalf("wrong failed section: %+v", result.ItemErrors[0])
	}

	// The failed call is still on the ledger
	costs, _ := st.ListCosts(context.Background(), "session-1")
	if len(costs) != 4 {
		t.Fatalf("expected 4 cost rows including the failed call, got %d", len(costs))
	}
}

func TestNarrationTotalFailureMarksSessionFailed(t *testing.T) {
	nar := &fakeNarration{failTexts: map[string]bool{
		"Rockets burn most of their fuel in the first minute.": true,
		"Orbit means falling around the planet, not floating.": true,
		"Staging sheds dead weight as tanks empty.":            true,
		"Every launch is a fight against gravity losses.":      true,
	}}
	o, st, _ := newTestOrchestrator(Executors{Narration: nar})
	seedScript(t, st)
	seedSession(t, st, types.StatusPending)

	result, err := o.GenerateAudio(context.Background(), "session-1", "user-1",
		types.AudioConfig{SkipMusic: true})
	if err == nil || result.Status != "error" {
		t.Fatalf("expected fatal failure, got result=%+v err=%v", result, err)
	}
	if got := sessionStatus(t, st, "session-1"); got != types.StatusFailed {
		t.Fatalf("expected status failed, got %s", got)
	}

	costs, _ := st.ListCosts(context.Background(), "session-1")
	if len(costs) != 4 {
		t.Fatalf("expected the failed calls on the ledger, got %d rows", len(costs))
	}
}

func TestAudioMusicFailureIsNotFatal(t *testing.T) {
	nar := &fakeNarration{failTexts: map[string]bool{
		"Every launch is a fight against gravity losses.": true,
	}}
	mus := &fakeMusic{err: errors.New("music service down")}
	o, st, _ := newTestOrchestrator(Executors{Narration: nar, Music: mus})
	seedScript(t, st)
	seedSession(t, st, types.StatusPending)

	result, err := o.GenerateAudio(context.Background(), "session-1", "user-1",
		types.AudioConfig{Voice: "nova", MusicPrompt: "calm synth"})
	if err != nil {
		t.Fatalf("GenerateAudio: %v", err)
	}
	if len(result.Assets) != 3 {
		t.Fatalf("expected 3 narration assets, got %d", len(result.Assets))
	}
	if len(result.ItemErrors) != 2 {
		t.Fatalf("expected a narration and a music item error, got %+v", result.ItemErrors)
	}

	// The music error carries the sentinel index so it cannot be confused
	// with the failed narration section
	narErr, musErr := result.ItemErrors[0], result.ItemErrors[1]
	if narErr.Index != 3 || narErr.Input != types.SectionConclusion {
		t.Fatalf("wrong narration item error: %+v", narErr)
	}
	if musErr.Input != "music" || musErr.Index != -1 {
		t.Fatalf("expected music item error with index -1, got %+v", musErr)
	}

	// 4 tts rows + 1 music row
	costs, _ := st.ListCosts(context.Background(), "session-1")
	if len(costs) != 5 {
		t.Fatalf("expected 5 cost rows, got %d", len(costs))
	}
}

func TestConcurrentAudioInvocationsCreateOneSetOfAssets(t *testing.T) {
	nar := &gatedNarration{started: make(chan struct{}), release: make(chan struct{})}
	st := store.NewMemoryStore()
	locker := &serialLocker{}
	o := New(st, broadcast.NewRegistry(nil), locker, Executors{Narration: nar})
	o.backoff = time.Millisecond
	seedScript(t, st)
	seedSession(t, st, types.StatusPending)

	cfg := types.AudioConfig{Voice: "nova", SkipMusic: true}
	errs := make(chan error, 2)
	go func() {
		_, err := o.GenerateAudio(context.Background(), "session-1", "user-1", cfg)
		errs <- err
	}()
	// First invocation holds the session lock with no assets persisted yet
	<-nar.started

	go func() {
		_, err := o.GenerateAudio(context.Background(), "session-1", "user-1", cfg)
		errs <- err
	}()
	waitFor(t, func() bool { return locker.waiting.Load() == 1 })
	close(nar.release)

	rejected := 0
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			if !types.IsPrecondition(err) {
				t.Fatalf("expected PreconditionError, got %v", err)
			}
			rejected++
		}
	}
	if rejected != 1 {
		t.Fatalf("expected exactly one rejected invocation, got %d", rejected)
	}

	assets, _ := st.ListAssets(context.Background(), "session-1", types.AssetAudio)
	if len(assets) != 4 {
		t.Fatalf("expected 4 audio assets, got %d", len(assets))
	}
	costs, _ := st.ListCosts(context.Background(), "session-1")
	if len(costs) != 4 {
		t.Fatalf("expected 4 cost rows, got %d", len(costs))
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestAudioRepeatRejected(t *testing.T) {
	o, st, _ := newTestOrchestrator(Executors{Narration: &fakeNarration{}})
	seedScript(t, st)
	seedSession(t, st, types.StatusPending)
	seedAssets(t, st, "session-1", types.AssetAudio, false, 1)

	_, err := o.GenerateAudio(context.Background(), "session-1", "user-1", types.AudioConfig{SkipMusic: true})
	if !types.IsPrecondition(err) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
}

// --- images ---

func TestImageFanoutPartialFailure(t *testing.T) {
	img := &fakeImage{failPrompts: map[string]bool{"prompt-2": true}}
	o, st, _ := newTestOrchestrator(Executors{Images: img})
	seedScript(t, st)
	seedSession(t, st, types.StatusPending)
	seedStoryboard(t, st, "session-1", "prompt-0", "prompt-1", "prompt-2", "prompt-3")

	result, err := o.GenerateImages(context.Background(), "session-1", "user-1", types.ImageConfig{})
	if err != nil {
		t.Fatalf("GenerateImages: %v", err)
	}
	if len(result.Assets) != 3 {
		t.Fatalf("expected 3 image assets, got %d", len(result.Assets))
	}
	if len(result.ItemErrors) != 1 || result.ItemErrors[0].Index != 2 {
		t.Fatalf("expected item error at index 2, got %+v", result.ItemErrors)
	}
	if got := sessionStatus(t, st, "session-1"); got != types.StatusGeneratingImages {
		t.Fatalf("expected generating_images, got %s", got)
	}

	// Ledger covers the failed item too
	total, _ := st.TotalCost(context.Background(), "session-1")
	if total < 0.079 || total > 0.081 {
		t.Fatalf("expected total cost ~0.08 over 4 calls, got %f", total)
	}
}

func TestImagesDuplicateInvocationRejected(t *testing.T) {
	img := &fakeImage{}
	o, st, _ := newTestOrchestrator(Executors{Images: img})
	seedScript(t, st)
	seedSession(t, st, types.StatusPending)
	seedStoryboard(t, st, "session-1", "prompt-0", "prompt-1")

	if _, err := o.GenerateImages(context.Background(), "session-1", "user-1", types.ImageConfig{}); err != nil {
		t.Fatalf("first invocation: %v", err)
	}

	_, err := o.GenerateImages(context.Background(), "session-1", "user-1", types.ImageConfig{})
	if !types.IsPrecondition(err) {
		t.Fatalf("expected PreconditionError on duplicate, got %v", err)
	}

	assets, _ := st.ListAssets(context.Background(), "session-1", types.AssetImage)
	if len(assets) != 2 {
		t.Fatalf("duplicate invocation must not create rows, got %d", len(assets))
	}
}

func TestImagesRequireStoryboard(t *testing.T) {
	o, st, _ := newTestOrchestrator(Executors{Images: &fakeImage{}})
	seedScript(t, st)
	seedSession(t, st, types.StatusPending)

	_, err := o.GenerateImages(context.Background(), "session-1", "user-1", types.ImageConfig{})
	if !types.IsPrecondition(err) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
}

func TestImagesTotalFailureMarksSessionFailed(t *testing.T) {
	img := &fakeImage{failPrompts: map[string]bool{"prompt-0": true, "prompt-1": true}}
	o, st, _ := newTestOrchestrator(Executors{Images: img})
	seedScript(t, st)
	seedSession(t, st, types.StatusPending)
	seedStoryboard(t, st, "session-1", "prompt-0", "prompt-1")

	result, err := o.GenerateImages(context.Background(), "session-1", "user-1", types.ImageConfig{})
	if err == nil || result.Status != "error" {
		t.Fatalf("expected fatal failure, got result=%+v err=%v", result, err)
	}
	if got := sessionStatus(t, st, "session-1"); got != types.StatusFailed {
		t.Fatalf("expected status failed, got %s", got)
	}
}

func TestImageRetryEventuallySucceeds(t *testing.T) {
	img := &fakeImage{succeedAfter: map[string]int{"prompt-0": 2}}
	o, st, _ := newTestOrchestrator(Executors{Images: img})
	seedScript(t, st)
	seedSession(t, st, types.StatusPending)
	seedStoryboard(t, st, "session-1", "prompt-0")

	result, err := o.GenerateImages(context.Background(), "session-1", "user-1", types.ImageConfig{})
	if err != nil {
		t.Fatalf("GenerateImages: %v", err)
	}
	if len(result.Assets) != 1 {
		t.Fatalf("expected 1 asset after retries, got %d", len(result.Assets))
	}
	if img.attempts["prompt-0"] != config.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", config.MaxAttempts, img.attempts["prompt-0"])
	}
}

// --- clips ---

func TestClipsRequireApprovedImage(t *testing.T) {
	o, st, _ := newTestOrchestrator(Executors{Clips: &fakeClip{}})
	seedScript(t, st)
	seedSession(t, st, types.StatusGeneratingImages)
	seedAssets(t, st, "session-1", types.AssetImage, false, 3)

	_, err := o.GenerateClips(context.Background(), "session-1", "user-1", types.ClipConfig{})
	if !types.IsPrecondition(err) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
	if got := sessionStatus(t, st, "session-1"); got != types.StatusGeneratingImages {
		t.Fatalf("status must be untouched, got %s", got)
	}
}

func TestClipsAnimateApprovedImagesOnly(t *testing.T) {
	clip := &fakeClip{}
	o, st, _ := newTestOrchestrator(Executors{Clips: clip})
	seedScript(t, st)
	seedSession(t, st, types.StatusGeneratingImages)
	images := seedAssets(t, st, "session-1", types.AssetImage, false, 3)
	if err := st.ApproveAsset(context.Background(), images[0].ID, true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := st.ApproveAsset(context.Background(), images[2].ID, true); err != nil {
		t.Fatalf("approve: %v", err)
	}

	result, err := o.GenerateClips(context.Background(), "session-1", "user-1", types.ClipConfig{})
	if err != nil {
		t.Fatalf("GenerateClips: %v", err)
	}
	if len(result.Assets) != 2 || clip.calls != 2 {
		t.Fatalf("expected 2 clips from 2 approved images, got %d assets, %d calls", len(result.Assets), clip.calls)
	}
	if got := sessionStatus(t, st, "session-1"); got != types.StatusGeneratingClips {
		t.Fatalf("expected generating_clips, got %s", got)
	}
	// Clips keep the ordinal of their source image
	if result.Assets[0].Ordinal != 0 || result.Assets[1].Ordinal != 2 {
		t.Fatalf("clip ordinals must follow source images, got %d and %d",
			result.Assets[0].Ordinal, result.Assets[1].Ordinal)
	}
}

func TestClipsOutOfOrderRejected(t *testing.T) {
	o, st, _ := newTestOrchestrator(Executors{Clips: &fakeClip{}})
	seedScript(t, st)
	seedSession(t, st, types.StatusPending)
	seedAssets(t, st, "session-1", types.AssetImage, true, 2)

	_, err := o.GenerateClips(context.Background(), "session-1", "user-1", types.ClipConfig{})
	if !types.IsPrecondition(err) {
		t.Fatalf("expected PreconditionError on pending session, got %v", err)
	}
}

func TestClipsTotalFailureMarksSessionFailed(t *testing.T) {
	clip := &fakeClip{failAll: true}
	o, st, _ := newTestOrchestrator(Executors{Clips: clip})
	seedScript(t, st)
	seedSession(t, st, types.StatusGeneratingImages)
	seedAssets(t, st, "session-1", types.AssetImage, true, 2)

	result, err := o.GenerateClips(context.Background(), "session-1", "user-1", types.ClipConfig{})
	if err == nil || result.Status != "error" {
		t.Fatalf("expected fatal failure, got result=%+v err=%v", result, err)
	}
	if got := sessionStatus(t, st, "session-1"); got != types.StatusFailed {
		t.Fatalf("expected status failed, got %s", got)
	}
}

// --- compose ---

func TestComposeCompletesSession(t *testing.T) {
	comp := &fakeComposer{}
	o, st, reg := newTestOrchestrator(Executors{Composer: comp})
	seedScript(t, st)
	seedSession(t, st, types.StatusGeneratingClips)
	seedAssets(t, st, "session-1", types.AssetClip, true, 2)
	seedAssets(t, st, "session-1", types.AssetAudio, false, 4)

	sub := &recordingSub{}
	reg.Subscribe("session-1", sub)

	result, err := o.ComposeVideo(context.Background(), "session-1", "user-1", types.ComposeConfig{})
	if err != nil {
		t.Fatalf("ComposeVideo: %v", err)
	}
	if result.VideoURL == "" {
		t.Fatalf("expected a video URL, got %+v", result)
	}
	if got := sessionStatus(t, st, "session-1"); got != types.StatusCompleted {
		t.Fatalf("expected completed, got %s", got)
	}

	s, _ := st.GetSession(context.Background(), "session-1", "user-1")
	if s.VideoURL != result.VideoURL {
		t.Fatalf("session VideoURL not set: %+v", s)
	}

	if len(comp.in.ClipURLs) != 2 || len(comp.in.NarrationURLs) != 4 {
		t.Fatalf("composer received wrong inputs: %+v", comp.in)
	}

	events := sub.all()
	last := events[len(events)-1]
	if last.Type != config.EventComplete || last.VideoURL != result.VideoURL {
		t.Fatalf("expected a final export_complete with video_url, got %+v", last)
	}
}

func TestComposeRequiresApprovedClips(t *testing.T) {
	o, st, _ := newTestOrchestrator(Executors{Composer: &fakeComposer{}})
	seedScript(t, st)
	seedSession(t, st, types.StatusGeneratingClips)
	seedAssets(t, st, "session-1", types.AssetClip, false, 2)

	_, err := o.ComposeVideo(context.Background(), "session-1", "user-1", types.ComposeConfig{})
	if !types.IsPrecondition(err) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
}

func TestComposeOutOfOrderRejected(t *testing.T) {
	o, st, _ := newTestOrchestrator(Executors{Composer: &fakeComposer{}})
	seedScript(t, st)
	seedSession(t, st, types.StatusPending)
	seedAssets(t, st, "session-1", types.AssetClip, true, 1)

	_, err := o.ComposeVideo(context.Background(), "session-1", "user-1", types.ComposeConfig{})
	if !types.IsPrecondition(err) {
		t.Fatalf("expected PreconditionError on pending session, got %v", err)
	}
}

func TestComposeFailureIsFatal(t *testing.T) {
	comp := &fakeComposer{err: errors.New("ffmpeg exited 1")}
	o, st, reg := newTestOrchestrator(Executors{Composer: comp})
	seedScript(t, st)
	seedSession(t, st, types.StatusGeneratingClips)
	seedAssets(t, st, "session-1", types.AssetClip, true, 1)

	sub := &recordingSub{}
	reg.Subscribe("session-1", sub)

	result, err := o.ComposeVideo(context.Background(), "session-1", "user-1", types.ComposeConfig{})
	if err == nil || result.Status != "error" {
		t.Fatalf("expected fatal failure, got result=%+v err=%v", result, err)
	}
	if got := sessionStatus(t, st, "session-1"); got != types.StatusFailed {
		t.Fatalf("expected status failed, got %s", got)
	}

	events := sub.all()
	last := events[len(events)-1]
	if last.Type != config.EventError {
		t.Fatalf("expected a final export_error, got %+v", last)
	}
}

// --- cross-cutting ---

func TestLockedSessionRejected(t *testing.T) {
	st := store.NewMemoryStore()
	o := New(st, broadcast.NewRegistry(nil), busyLocker{}, Executors{Images: &fakeImage{}})
	o.backoff = time.Millisecond
	seedScript(t, st)
	seedSession(t, st, types.StatusPending)
	seedStoryboard(t, st, "session-1", "prompt-0")

	_, err := o.GenerateImages(context.Background(), "session-1", "user-1", types.ImageConfig{})
	if !types.IsPrecondition(err) {
		t.Fatalf("expected PreconditionError from held lock, got %v", err)
	}
}

func TestStageOnForeignSessionNotFound(t *testing.T) {
	o, st, _ := newTestOrchestrator(Executors{Images: &fakeImage{}})
	seedScript(t, st)
	seedSession(t, st, types.StatusPending)

	_, err := o.GenerateImages(context.Background(), "session-1", "someone-else", types.ImageConfig{})
	if !types.IsNotFound(err) {
		t.Fatalf("expected NotFoundError for another user's session, got %v", err)
	}
}

func TestFailStaleSessions(t *testing.T) {
	o, st, reg := newTestOrchestrator(Executors{})
	seedScript(t, st)
	seedSession(t, st, types.StatusGeneratingImages)

	sub := &recordingSub{}
	reg.Subscribe("session-1", sub)

	n, err := o.FailStaleSessions(context.Background(), time.Now().Add(time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("expected 1 swept session, got n=%d err=%v", n, err)
	}
	if got := sessionStatus(t, st, "session-1"); got != types.StatusFailed {
		t.Fatalf("expected status failed, got %s", got)
	}
	if events := sub.all(); len(events) != 1 || events[0].Type != config.EventError {
		t.Fatalf("expected an export_error event, got %+v", events)
	}
}

func TestFanoutPreservesOrder(t *testing.T) {
	results := runFanout(context.Background(), 8, func(ctx context.Context, i int) (int, error) {
		time.Sleep(time.Duration(8-i) * time.Millisecond)
		return i * 10, nil
	})
	for i, r := range results {
		if r.err != nil || r.out != i*10 {
			t.Fatalf("slot %d: got %d err %v", i, r.out, r.err)
		}
	}
}
