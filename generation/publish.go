package generation

import (
	"context"
	"fmt"
	"log"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YouTubePublisher uploads a composed video to YouTube using a service
// account. Publishing is optional: sessions complete whether or not a
// publisher is configured.
type YouTubePublisher struct {
	service *youtube.Service
}

// NewYouTubePublisher reads the service account file named by
// YOUTUBE_SERVICE_ACCOUNT and builds an authenticated client.
func NewYouTubePublisher(ctx context.Context) (*YouTubePublisher, error) {
	accountFile := os.Getenv("YOUTUBE_SERVICE_ACCOUNT")
	if accountFile == "" {
		return nil, fmt.Errorf("YOUTUBE_SERVICE_ACCOUNT not set")
	}

	data, err := os.ReadFile(accountFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read service account file: %w", err)
	}

	jwtConfig, err := google.JWTConfigFromJSON(data, youtube.YoutubeUploadScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account: %w", err)
	}

	service, err := youtube.NewService(ctx, option.WithHTTPClient(jwtConfig.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create YouTube service: %w", err)
	}

	return &YouTubePublisher{service: service}, nil
}

// Publish fetches the composed video from its hosted URL and uploads it,
// returning the YouTube video id.
func (p *YouTubePublisher) Publish(ctx context.Context, videoURL string, meta VideoMetadata) (string, error) {
	tmp, err := os.CreateTemp("", "publish_*.mp4")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	localPath := tmp.Name()
	tmp.Close()
	defer os.Remove(localPath)

	if err := downloadFile(ctx, videoURL, localPath); err != nil {
		return "", fmt.Errorf("failed to fetch video for publishing: %w", err)
	}

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open video file: %w", err)
	}
	defer file.Close()

	categoryID := meta.CategoryID
	if categoryID == "" {
		categoryID = "28"
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       truncateTitle(meta.Title),
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  categoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           "unlisted",
			SelfDeclaredMadeForKids: false,
		},
	}

	call := p.service.Videos.Insert([]string{"snippet", "status"}, video)
	call = call.Media(file)

	response, err := call.Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload video: %w", err)
	}

	log.Printf("Published video: https://youtube.com/shorts/%s", response.Id)
	return response.Id, nil
}

func truncateTitle(title string) string {
	if len(title) > 100 {
		return title[:97] + "..."
	}
	return title
}
