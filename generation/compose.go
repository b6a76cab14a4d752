package generation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"reelsmith/config"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Composer stitches approved clips and audio tracks into the final video
// with ffmpeg and uploads the result to object storage. Composition runs
// locally, so the only cost is a flat infrastructure charge.
type Composer struct {
	uploader    Uploader
	workDir     string
	costPerCall float64
}

// NewComposer creates a Composer writing intermediates under workDir
// (defaults to the system temp dir).
func NewComposer(uploader Uploader, workDir string) *Composer {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Composer{
		uploader:    uploader,
		workDir:     workDir,
		costPerCall: costFromEnv("COMPOSE_COST_PER_CALL", 0.01),
	}
}

// Compose downloads every input, concatenates the clips, lays narration
// (and optionally music) underneath, and uploads the result.
func (c *Composer) Compose(ctx context.Context, in ComposeInput) (ComposeOutput, error) {
	out := ComposeOutput{Cost: c.costPerCall}

	if len(in.ClipURLs) == 0 {
		return out, fmt.Errorf("no clips to compose")
	}

	stageDir, err := os.MkdirTemp(c.workDir, "compose_"+in.SessionID+"_")
	if err != nil {
		return out, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(stageDir)

	clipList, err := c.downloadAll(ctx, stageDir, "clip", in.ClipURLs)
	if err != nil {
		return out, err
	}

	narrationList, err := c.downloadAll(ctx, stageDir, "narration", in.NarrationURLs)
	if err != nil {
		return out, err
	}

	musicPath := ""
	if in.MusicURL != "" {
		musicPath = filepath.Join(stageDir, "music.mp3")
		if err := downloadFile(ctx, in.MusicURL, musicPath); err != nil {
			return out, fmt.Errorf("download music: %w", err)
		}
	}

	outputPath := filepath.Join(stageDir, in.SessionID+".mp4")
	if err := c.render(stageDir, clipList, narrationList, musicPath, in.TextOverlay, outputPath); err != nil {
		return out, fmt.Errorf("ffmpeg failed: %w", err)
	}

	f, err := os.Open(outputPath)
	if err != nil {
		return out, fmt.Errorf("open composed video: %w", err)
	}
	defer f.Close()

	hosted, err := c.uploader.Upload(ctx, "videos/"+in.SessionID+".mp4", f, "video/mp4")
	if err != nil {
		return out, fmt.Errorf("upload composed video: %w", err)
	}

	out.URL = hosted
	out.LocalPath = outputPath
	return out, nil
}

func (c *Composer) downloadAll(ctx context.Context, dir, prefix string, urls []string) ([]string, error) {
	paths := make([]string, 0, len(urls))
	for i, u := range urls {
		path := filepath.Join(dir, fmt.Sprintf("%s_%03d", prefix, i))
		if err := downloadFile(ctx, u, path); err != nil {
			return nil, fmt.Errorf("download %s %d: %w", prefix, i, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// render builds and runs the ffmpeg graph: concat clips, concat narration,
// optional music mixed underneath, optional text overlay.
func (c *Composer) render(stageDir string, clips, narration []string, musicPath, overlay, outputPath string) error {
	clipListPath := filepath.Join(stageDir, "clips.txt")
	if err := writeConcatList(clipListPath, clips); err != nil {
		return err
	}

	video := ffmpeg.Input(clipListPath, ffmpeg.KwArgs{"f": "concat", "safe": "0"})
	video = ffmpeg.Filter([]*ffmpeg.Stream{video}, "scale",
		ffmpeg.Args{fmt.Sprintf("%d:%d", config.VideoWidth, config.VideoHeight)})

	if overlay != "" {
		video = ffmpeg.Filter([]*ffmpeg.Stream{video}, "drawtext", ffmpeg.Args{}, ffmpeg.KwArgs{
			"text":      overlay,
			"fontsize":  48,
			"fontcolor": "white",
			"x":         "(w-text_w)/2",
			"y":         "h*0.1",
			"box":       1,
			"boxcolor":  "black@0.5",
		})
	}

	streams := []*ffmpeg.Stream{video}

	if len(narration) > 0 {
		narrationListPath := filepath.Join(stageDir, "narration.txt")
		if err := writeConcatList(narrationListPath, narration); err != nil {
			return err
		}
		audio := ffmpeg.Input(narrationListPath, ffmpeg.KwArgs{"f": "concat", "safe": "0"})

		if musicPath != "" {
			music := ffmpeg.Input(musicPath)
			music = ffmpeg.Filter([]*ffmpeg.Stream{music}, "volume", ffmpeg.Args{config.MusicVolume})
			audio = ffmpeg.Filter([]*ffmpeg.Stream{audio, music}, "amix",
				ffmpeg.Args{}, ffmpeg.KwArgs{"inputs": 2, "duration": "first"})
		}
		streams = append(streams, audio)
	}

	return ffmpeg.Output(streams, outputPath, ffmpeg.KwArgs{
		"c:v":      config.VideoCodec,
		"c:a":      config.AudioCodec,
		"b:a":      config.AudioBitrate,
		"preset":   config.VideoPreset,
		"shortest": "",
	}).OverWriteOutput().Run()
}

// writeConcatList writes an ffmpeg concat demuxer list file
func writeConcatList(path string, files []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, file := range files {
		if _, err := fmt.Fprintf(f, "file '%s'\n", filepath.ToSlash(file)); err != nil {
			return err
		}
	}
	return nil
}
