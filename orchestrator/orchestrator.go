// Package orchestrator drives the video-generation pipeline. Each exported
// operation runs one stage of one session: it validates the session's state,
// invokes the stage executors, persists the produced assets and their costs,
// and advances the session status. Progress is pushed to live subscribers
// through the broadcast registry as the stage runs.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"reelsmith/broadcast"
	"reelsmith/config"
	"reelsmith/generation"
	"reelsmith/store"
	"reelsmith/types"
)

// StoryboardGenerator plans scenes and image prompts from a script
type StoryboardGenerator interface {
	Plan(ctx context.Context, script *types.Script, cfg types.StoryboardConfig) (generation.StoryboardOutput, error)
}

// NarrationSynthesizer renders one script section to speech
type NarrationSynthesizer interface {
	Synthesize(ctx context.Context, key, text string, cfg types.AudioConfig) (generation.AudioOutput, error)
}

// MusicComposer generates a background track
type MusicComposer interface {
	Compose(ctx context.Context, prompt string, durationSec float64) (generation.AudioOutput, error)
}

// ImageGenerator renders one still image from a prompt
type ImageGenerator interface {
	Generate(ctx context.Context, key, prompt string, cfg types.ImageConfig) (generation.ImageOutput, error)
}

// ClipAnimator turns one approved image into a short video clip
type ClipAnimator interface {
	Animate(ctx context.Context, imageURL string, cfg types.ClipConfig) (generation.ClipOutput, error)
}

// VideoComposer stitches approved clips and audio into the final video
type VideoComposer interface {
	Compose(ctx context.Context, in generation.ComposeInput) (generation.ComposeOutput, error)
}

// Publisher uploads a composed video to an external platform
type Publisher interface {
	Publish(ctx context.Context, videoURL string, meta generation.VideoMetadata) (string, error)
}

// Executors bundles the stage executors. Music and Publisher are optional;
// the corresponding sub-steps are skipped when nil.
type Executors struct {
	Storyboard StoryboardGenerator
	Narration  NarrationSynthesizer
	Music      MusicComposer
	Images     ImageGenerator
	Clips      ClipAnimator
	Composer   VideoComposer
	Publisher  Publisher
}

// Orchestrator owns all session status writes. Stage invocations for the
// same session are serialized by the session lock, and every status change
// goes through the store's check-then-set so a repeated or out-of-order
// invocation is rejected instead of duplicated.
type Orchestrator struct {
	store    store.Store
	registry *broadcast.Registry
	locker   store.SessionLocker
	ex       Executors
	backoff  time.Duration
}

// New wires an Orchestrator. locker may be a NoopLocker in dev mode.
func New(st store.Store, registry *broadcast.Registry, locker store.SessionLocker, ex Executors) *Orchestrator {
	return &Orchestrator{
		store:    st,
		registry: registry,
		locker:   locker,
		ex:       ex,
		backoff:  config.RetryBackoff,
	}
}

// StoryboardRequest names the session and script for the first stage.
// SessionID may be empty; a fresh session is created either way when the id
// is unknown.
type StoryboardRequest struct {
	SessionID string
	UserID    string
	ScriptID  string
	Title     string
	Config    types.StoryboardConfig
}

// GenerateStoryboard plans the session's scenes. It creates the session on
// first invocation and leaves the status at pending; the storyboard itself
// is stored as one asset per scene carrying the image prompt.
func (o *Orchestrator) GenerateStoryboard(ctx context.Context, req StoryboardRequest) (*types.StageResult, error) {
	script, err := o.store.GetScript(ctx, req.ScriptID, req.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &types.NotFoundError{Resource: "script", ID: req.ScriptID}
	}
	if err != nil {
		return nil, err
	}

	session, err := o.getOrCreateSession(ctx, req, script)
	if err != nil {
		return nil, err
	}

	release, err := o.lock(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Checked under the lock: a concurrent invocation must observe the
	// assets the first one persisted before it releases.
	existing, err := o.store.ListAssets(ctx, session.ID, types.AssetStoryboard)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, &types.PreconditionError{Reason: fmt.Sprintf("session %s already has a storyboard", session.ID)}
	}

	o.progress(session.ID, config.StageStoryboard, 0, "planning scenes")

	out, planErr := withRetry(ctx, o.backoff, func(ctx context.Context) (generation.StoryboardOutput, error) {
		return o.ex.Storyboard.Plan(ctx, script, req.Config)
	})
	o.persistCost(ctx, session.ID, config.StageStoryboard, out.Cost, out.TokensUsed, nil)

	if planErr != nil {
		return errorResult(config.StageStoryboard, session.ID, out.Cost, planErr),
			o.failStage(ctx, session.ID, config.StageStoryboard, planErr)
	}

	assets := make([]*types.Asset, 0, len(out.Scenes))
	for _, scene := range out.Scenes {
		a := &types.Asset{
			ID:        uuid.NewString(),
			SessionID: session.ID,
			Kind:      types.AssetStoryboard,
			Ordinal:   scene.Index,
			Metadata: map[string]interface{}{
				"description":  scene.Description,
				"image_prompt": scene.ImagePrompt,
				"duration_sec": scene.DurationSec,
			},
		}
		if err := o.store.CreateAsset(ctx, a); err != nil {
			return errorResult(config.StageStoryboard, session.ID, out.Cost, err),
				o.failStage(ctx, session.ID, config.StageStoryboard, err)
		}
		assets = append(assets, a)
	}

	o.progress(session.ID, config.StageStoryboard, 100,
		fmt.Sprintf("storyboard ready: %d scenes", len(assets)))

	return &types.StageResult{
		Status:    "success",
		Stage:     config.StageStoryboard,
		SessionID: session.ID,
		Assets:    assets,
		TotalCost: out.Cost,
	}, nil
}

// GenerateAudio synthesizes one narration track per script section, plus an
// optional background music track. Partial failure is tolerated: the stage
// succeeds with item errors as long as at least one track was produced.
// Session status is unchanged; audio runs alongside the visual pipeline.
func (o *Orchestrator) GenerateAudio(ctx context.Context, sessionID, userID string, cfg types.AudioConfig) (*types.StageResult, error) {
	session, err := o.resolveSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	script, err := o.store.GetScript(ctx, session.ScriptID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &types.NotFoundError{Resource: "script", ID: session.ScriptID}
	}
	if err != nil {
		return nil, err
	}

	release, err := o.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Audio leaves the session status untouched, so the duplicate guard is
	// the presence of audio assets. It runs under the lock for the same
	// reason the other stages run their status check-then-set under it.
	existing, err := o.store.ListAssets(ctx, sessionID, types.AssetAudio)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, &types.PreconditionError{Reason: fmt.Sprintf("session %s already has audio", sessionID)}
	}

	n := len(script.Sections)
	o.progress(sessionID, config.StageAudio, 0, fmt.Sprintf("synthesizing %d narration tracks", n))

	results := runFanout(ctx, n, func(ctx context.Context, i int) (generation.AudioOutput, error) {
		sec := script.Sections[i]
		key := fmt.Sprintf("audio/%s/%02d_%s", sessionID, i, sec.Name)
		return withRetry(ctx, o.backoff, func(ctx context.Context) (generation.AudioOutput, error) {
			return o.ex.Narration.Synthesize(ctx, key, sec.Text, cfg)
		})
	})

	result := &types.StageResult{Status: "success", Stage: config.StageAudio, SessionID: sessionID}
	for i, r := range results {
		o.persistCost(ctx, sessionID, "tts", r.out.Cost, 0,
			map[string]interface{}{"section": script.Sections[i].Name})

		if r.err != nil {
			log.Printf("orchestrator: narration %d failed for session %s: %v", i, sessionID, r.err)
			result.ItemErrors = append(result.ItemErrors, types.ItemError{
				Index: i, Input: script.Sections[i].Name, Error: r.err.Error(),
			})
			result.TotalCost += r.out.Cost
			continue
		}

		a := &types.Asset{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Kind:      types.AssetAudio,
			URL:       r.out.URL,
			Ordinal:   i,
			Metadata: map[string]interface{}{
				"role":         "narration",
				"section":      script.Sections[i].Name,
				"duration_sec": r.out.DurationSec,
			},
		}
		if err := o.store.CreateAsset(ctx, a); err != nil {
			return errorResult(config.StageAudio, sessionID, result.TotalCost+r.out.Cost, err),
				o.failStage(ctx, sessionID, config.StageAudio, err)
		}
		result.Assets = append(result.Assets, a)
		result.TotalCost += r.out.Cost
		result.TotalDuration += r.out.DurationSec
		o.progress(sessionID, config.StageAudio, (i+1)*100/n,
			fmt.Sprintf("narration %d/%d ready", i+1, n))
	}

	if len(result.Assets) == 0 {
		err := fmt.Errorf("all %d narration calls failed", n)
		return errorResult(config.StageAudio, sessionID, result.TotalCost, err),
			o.failStage(ctx, sessionID, config.StageAudio, err)
	}

	if o.ex.Music != nil && cfg.MusicPrompt != "" && !cfg.SkipMusic {
		o.generateMusic(ctx, result, cfg.MusicPrompt, script.TotalDuration())
	}

	o.progress(sessionID, config.StageAudio, 100,
		fmt.Sprintf("audio ready: %d tracks", len(result.Assets)))
	return result, nil
}

// generateMusic runs the optional music sub-step. Failure is recorded as an
// item error, never fatal: the video composes fine without a music bed.
func (o *Orchestrator) generateMusic(ctx context.Context, result *types.StageResult, prompt string, durationSec float64) {
	out, err := withRetry(ctx, o.backoff, func(ctx context.Context) (generation.AudioOutput, error) {
		return o.ex.Music.Compose(ctx, prompt, durationSec)
	})
	o.persistCost(ctx, result.SessionID, "music", out.Cost, 0, nil)
	result.TotalCost += out.Cost

	if err != nil {
		log.Printf("orchestrator: music failed for session %s: %v", result.SessionID, err)
		// Index -1: music is not one of the fanned-out narration items, so
		// it must not collide with a narration item's index.
		result.ItemErrors = append(result.ItemErrors, types.ItemError{
			Index: -1, Input: "music", Error: err.Error(),
		})
		return
	}

	a := &types.Asset{
		ID:        uuid.NewString(),
		SessionID: result.SessionID,
		Kind:      types.AssetAudio,
		URL:       out.URL,
		Ordinal:   len(result.Assets),
		Metadata:  map[string]interface{}{"role": "music", "duration_sec": out.DurationSec},
	}
	if err := o.store.CreateAsset(ctx, a); err != nil {
		log.Printf("orchestrator: failed to store music asset for session %s: %v", result.SessionID, err)
		return
	}
	result.Assets = append(result.Assets, a)
}

// GenerateImages renders one image per storyboard scene. The session moves
// pending→generating_images on entry; a repeat invocation fails the status
// check and is rejected before any external call.
func (o *Orchestrator) GenerateImages(ctx context.Context, sessionID, userID string, cfg types.ImageConfig) (*types.StageResult, error) {
	if _, err := o.resolveSession(ctx, sessionID, userID); err != nil {
		return nil, err
	}

	scenes, err := o.store.ListAssets(ctx, sessionID, types.AssetStoryboard)
	if err != nil {
		return nil, err
	}
	if len(scenes) == 0 {
		return nil, &types.PreconditionError{Reason: fmt.Sprintf("session %s has no storyboard", sessionID)}
	}

	release, err := o.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := o.advance(ctx, sessionID, types.StatusPending, types.StatusGeneratingImages); err != nil {
		return nil, err
	}

	n := len(scenes)
	o.progress(sessionID, config.StageImages, 0, fmt.Sprintf("generating %d images", n))

	results := runFanout(ctx, n, func(ctx context.Context, i int) (generation.ImageOutput, error) {
		prompt, _ := scenes[i].Metadata["image_prompt"].(string)
		if prompt == "" {
			return generation.ImageOutput{}, fmt.Errorf("scene %d has no image prompt", scenes[i].Ordinal)
		}
		key := fmt.Sprintf("images/%s/scene_%02d", sessionID, scenes[i].Ordinal)
		return withRetry(ctx, o.backoff, func(ctx context.Context) (generation.ImageOutput, error) {
			return o.ex.Images.Generate(ctx, key, prompt, cfg)
		})
	})

	result := &types.StageResult{Status: "success", Stage: config.StageImages, SessionID: sessionID}
	for i, r := range results {
		o.persistCost(ctx, sessionID, "image", r.out.Cost, 0,
			map[string]interface{}{"scene": scenes[i].Ordinal})

		if r.err != nil {
			log.Printf("orchestrator: image %d failed for session %s: %v", i, sessionID, r.err)
			prompt, _ := scenes[i].Metadata["image_prompt"].(string)
			result.ItemErrors = append(result.ItemErrors, types.ItemError{
				Index: i, Input: prompt, Error: r.err.Error(),
			})
			result.TotalCost += r.out.Cost
			continue
		}

		a := &types.Asset{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Kind:      types.AssetImage,
			URL:       r.out.URL,
			Ordinal:   scenes[i].Ordinal,
			Metadata:  map[string]interface{}{"width": r.out.Width, "height": r.out.Height},
		}
		if err := o.store.CreateAsset(ctx, a); err != nil {
			return errorResult(config.StageImages, sessionID, result.TotalCost+r.out.Cost, err),
				o.failStage(ctx, sessionID, config.StageImages, err)
		}
		result.Assets = append(result.Assets, a)
		result.TotalCost += r.out.Cost
		o.progress(sessionID, config.StageImages, (i+1)*100/n,
			fmt.Sprintf("image %d/%d ready", i+1, n))
	}

	if len(result.Assets) == 0 {
		err := fmt.Errorf("all %d image generations failed", n)
		return errorResult(config.StageImages, sessionID, result.TotalCost, err),
			o.failStage(ctx, sessionID, config.StageImages, err)
	}

	o.progress(sessionID, config.StageImages, 100,
		fmt.Sprintf("%d images awaiting review", len(result.Assets)))
	return result, nil
}

// GenerateClips animates every approved image into a clip. It requires at
// least one approved image and advances the session through images_approved
// into generating_clips.
func (o *Orchestrator) GenerateClips(ctx context.Context, sessionID, userID string, cfg types.ClipConfig) (*types.StageResult, error) {
	if _, err := o.resolveSession(ctx, sessionID, userID); err != nil {
		return nil, err
	}

	images, err := o.store.ListAssets(ctx, sessionID, types.AssetImage)
	if err != nil {
		return nil, err
	}
	approved := approvedOnly(images)
	if len(approved) == 0 {
		return nil, &types.PreconditionError{Reason: fmt.Sprintf("session %s has no approved images", sessionID)}
	}

	release, err := o.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := o.advance(ctx, sessionID, types.StatusGeneratingImages, types.StatusImagesApproved); err != nil {
		return nil, err
	}
	if err := o.advance(ctx, sessionID, types.StatusImagesApproved, types.StatusGeneratingClips); err != nil {
		return nil, err
	}

	n := len(approved)
	o.progress(sessionID, config.StageClips, 0, fmt.Sprintf("animating %d clips", n))

	results := runFanout(ctx, n, func(ctx context.Context, i int) (generation.ClipOutput, error) {
		return withRetry(ctx, o.backoff, func(ctx context.Context) (generation.ClipOutput, error) {
			return o.ex.Clips.Animate(ctx, approved[i].URL, cfg)
		})
	})

	result := &types.StageResult{Status: "success", Stage: config.StageClips, SessionID: sessionID}
	for i, r := range results {
		o.persistCost(ctx, sessionID, "clip", r.out.Cost, 0,
			map[string]interface{}{"image_id": approved[i].ID})

		if r.err != nil {
			log.Printf("orchestrator: clip %d failed for session %s: %v", i, sessionID, r.err)
			result.ItemErrors = append(result.ItemErrors, types.ItemError{
				Index: i, Input: approved[i].URL, Error: r.err.Error(),
			})
			result.TotalCost += r.out.Cost
			continue
		}

		a := &types.Asset{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Kind:      types.AssetClip,
			URL:       r.out.URL,
			Ordinal:   approved[i].Ordinal,
			Metadata: map[string]interface{}{
				"source_image_id": approved[i].ID,
				"duration_sec":    r.out.DurationSec,
			},
		}
		if err := o.store.CreateAsset(ctx, a); err != nil {
			return errorResult(config.StageClips, sessionID, result.TotalCost+r.out.Cost, err),
				o.failStage(ctx, sessionID, config.StageClips, err)
		}
		result.Assets = append(result.Assets, a)
		result.TotalCost += r.out.Cost
		result.TotalDuration += r.out.DurationSec
		o.progress(sessionID, config.StageClips, (i+1)*100/n,
			fmt.Sprintf("clip %d/%d ready", i+1, n))
	}

	if len(result.Assets) == 0 {
		err := fmt.Errorf("all %d clip generations failed", n)
		return errorResult(config.StageClips, sessionID, result.TotalCost, err),
			o.failStage(ctx, sessionID, config.StageClips, err)
	}

	o.progress(sessionID, config.StageClips, 100,
		fmt.Sprintf("%d clips awaiting review", len(result.Assets)))
	return result, nil
}

// ComposeVideo stitches the approved clips with the audio tracks into the
// final video. It requires at least one approved clip, advances the session
// through clips_approved and composing, and ends it at completed with the
// video URL set. Composition failure is fatal.
func (o *Orchestrator) ComposeVideo(ctx context.Context, sessionID, userID string, cfg types.ComposeConfig) (*types.StageResult, error) {
	session, err := o.resolveSession(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	clips, err := o.store.ListAssets(ctx, sessionID, types.AssetClip)
	if err != nil {
		return nil, err
	}
	approved := approvedOnly(clips)
	if len(approved) == 0 {
		return nil, &types.PreconditionError{Reason: fmt.Sprintf("session %s has no approved clips", sessionID)}
	}

	audio, err := o.store.ListAssets(ctx, sessionID, types.AssetAudio)
	if err != nil {
		return nil, err
	}

	release, err := o.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := o.advance(ctx, sessionID, types.StatusGeneratingClips, types.StatusClipsApproved); err != nil {
		return nil, err
	}
	if err := o.advance(ctx, sessionID, types.StatusClipsApproved, types.StatusComposing); err != nil {
		return nil, err
	}

	o.progress(sessionID, config.StageCompose, 0,
		fmt.Sprintf("composing final video from %d clips", len(approved)))

	in := generation.ComposeInput{
		SessionID:   sessionID,
		TextOverlay: cfg.TextOverlay,
	}
	for _, c := range approved {
		in.ClipURLs = append(in.ClipURLs, c.URL)
	}
	for _, a := range audio {
		switch a.Metadata["role"] {
		case "music":
			if in.MusicURL == "" {
				in.MusicURL = a.URL
			}
		default:
			in.NarrationURLs = append(in.NarrationURLs, a.URL)
		}
	}

	out, composeErr := o.ex.Composer.Compose(ctx, in)
	o.persistCost(ctx, sessionID, config.StageCompose, out.Cost, 0, nil)

	if composeErr != nil {
		return errorResult(config.StageCompose, sessionID, out.Cost, composeErr),
			o.failStage(ctx, sessionID, config.StageCompose, composeErr)
	}

	video := &types.Asset{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Kind:      types.AssetVideo,
		URL:       out.URL,
		Approved:  true,
		Metadata:  map[string]interface{}{"duration_sec": out.DurationSec},
	}
	if err := o.store.CreateAsset(ctx, video); err != nil {
		return errorResult(config.StageCompose, sessionID, out.Cost, err),
			o.failStage(ctx, sessionID, config.StageCompose, err)
	}

	if err := o.store.SetSessionVideoURL(ctx, sessionID, out.URL); err != nil {
		return errorResult(config.StageCompose, sessionID, out.Cost, err),
			o.failStage(ctx, sessionID, config.StageCompose, err)
	}
	if err := o.advance(ctx, sessionID, types.StatusComposing, types.StatusCompleted); err != nil {
		return nil, err
	}

	o.registry.Publish(sessionID, types.ProgressEvent{
		Type:     config.EventComplete,
		Stage:    config.StageCompose,
		Progress: 100,
		Message:  "video ready",
		VideoURL: out.URL,
	})

	if cfg.Publish && o.ex.Publisher != nil {
		o.publishVideo(ctx, session, out.URL, cfg)
	}

	return &types.StageResult{
		Status:        "success",
		Stage:         config.StageCompose,
		SessionID:     sessionID,
		Assets:        []*types.Asset{video},
		TotalCost:     out.Cost,
		TotalDuration: out.DurationSec,
		VideoURL:      out.URL,
	}, nil
}

// publishVideo runs the optional post-completion upload. The session is
// already completed; a publish failure is logged, never surfaced.
func (o *Orchestrator) publishVideo(ctx context.Context, session *types.Session, videoURL string, cfg types.ComposeConfig) {
	title := cfg.Title
	if title == "" {
		title = session.Title
	}

	id, err := o.ex.Publisher.Publish(ctx, videoURL, generation.VideoMetadata{
		Title:       title,
		Description: cfg.Description,
	})
	if err != nil {
		log.Printf("orchestrator: publish failed for session %s: %v", session.ID, err)
		return
	}
	log.Printf("orchestrator: session %s published as %s", session.ID, id)
}

// FailStaleSessions marks sessions stuck mid-generation longer than
// StaleSessionAge as failed. Called from the cron sweeper.
func (o *Orchestrator) FailStaleSessions(ctx context.Context, olderThan time.Time) (int, error) {
	stale, err := o.store.ListStaleSessions(ctx, olderThan, []types.SessionStatus{
		types.StatusGeneratingImages,
		types.StatusGeneratingClips,
		types.StatusComposing,
	})
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, s := range stale {
		msg := fmt.Sprintf("session stalled in %s", s.Status)
		if err := o.store.FailSession(ctx, s.ID, msg); err != nil {
			log.Printf("orchestrator: failed to sweep session %s: %v", s.ID, err)
			continue
		}
		o.registry.Publish(s.ID, types.ProgressEvent{
			Type:  config.EventError,
			Error: msg,
		})
		failed++
	}
	return failed, nil
}

func (o *Orchestrator) getOrCreateSession(ctx context.Context, req StoryboardRequest, script *types.Script) (*types.Session, error) {
	if req.SessionID != "" {
		session, err := o.store.GetSession(ctx, req.SessionID, req.UserID)
		if err == nil {
			if session.Status.Terminal() {
				return nil, &types.PreconditionError{Reason: fmt.Sprintf("session %s is %s", session.ID, session.Status)}
			}
			return session, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	session := &types.Session{
		ID:       req.SessionID,
		UserID:   req.UserID,
		ScriptID: req.ScriptID,
		Title:    req.Title,
		Status:   types.StatusPending,
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.Title == "" {
		session.Title = script.Title
	}
	if err := o.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	log.Printf("orchestrator: created session %s for script %s", session.ID, req.ScriptID)
	return session, nil
}

// resolveSession loads a non-terminal session owned by the user
func (o *Orchestrator) resolveSession(ctx context.Context, sessionID, userID string) (*types.Session, error) {
	session, err := o.store.GetSession(ctx, sessionID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &types.NotFoundError{Resource: "session", ID: sessionID}
	}
	if err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, &types.PreconditionError{Reason: fmt.Sprintf("session %s is %s", sessionID, session.Status)}
	}
	return session, nil
}

// advance maps a store CAS conflict to a precondition failure
func (o *Orchestrator) advance(ctx context.Context, sessionID string, from, to types.SessionStatus) error {
	err := o.store.AdvanceSessionStatus(ctx, sessionID, from, to)
	if errors.Is(err, store.ErrStatusConflict) {
		return &types.PreconditionError{Reason: fmt.Sprintf("session %s is not in status %s", sessionID, from)}
	}
	return err
}

// lock serializes stage invocations per session. A held lock means another
// stage is mid-flight, which callers treat as a failed precondition.
func (o *Orchestrator) lock(ctx context.Context, sessionID string) (func(), error) {
	release, err := o.locker.Acquire(ctx, sessionID)
	if err != nil {
		return nil, &types.PreconditionError{Reason: err.Error()}
	}
	return release, nil
}

// persistCost appends one ledger row. Ledger writes are best effort relative
// to the stage: a failed insert is logged, not fatal.
func (o *Orchestrator) persistCost(ctx context.Context, sessionID, service string, cost float64, tokens int, detail map[string]interface{}) {
	row := &types.GenerationCost{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Service:    service,
		Cost:       cost,
		TokensUsed: tokens,
		Detail:     detail,
	}
	if err := o.store.CreateCost(ctx, row); err != nil {
		log.Printf("orchestrator: failed to record %s cost for session %s: %v", service, sessionID, err)
	}
}

// failStage marks the session failed, emits the terminal error event, and
// wraps the cause for the caller.
func (o *Orchestrator) failStage(ctx context.Context, sessionID, stage string, cause error) error {
	log.Printf("orchestrator: stage %s failed for session %s: %v", stage, sessionID, cause)

	if err := o.store.FailSession(ctx, sessionID, cause.Error()); err != nil {
		log.Printf("orchestrator: failed to mark session %s failed: %v", sessionID, err)
	}

	o.registry.Publish(sessionID, types.ProgressEvent{
		Type:  config.EventError,
		Stage: stage,
		Error: cause.Error(),
	})

	return &types.ExternalServiceError{Service: stage, Err: cause}
}

// progress emits one export_progress event
func (o *Orchestrator) progress(sessionID, stage string, pct int, msg string) {
	o.registry.Publish(sessionID, types.ProgressEvent{
		Type:     config.EventProgress,
		Stage:    stage,
		Progress: pct,
		Message:  msg,
	})
}

// errorResult builds the StageResult returned alongside a fatal stage error
func errorResult(stage, sessionID string, totalCost float64, err error) *types.StageResult {
	return &types.StageResult{
		Status:    "error",
		Stage:     stage,
		SessionID: sessionID,
		TotalCost: totalCost,
		Error:     err.Error(),
	}
}

// approvedOnly filters assets to those an external reviewer approved
func approvedOnly(assets []*types.Asset) []*types.Asset {
	out := make([]*types.Asset, 0, len(assets))
	for _, a := range assets {
		if a.Approved {
			out = append(out, a)
		}
	}
	return out
}
