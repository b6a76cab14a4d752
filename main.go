package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"reelsmith/api"
	"reelsmith/broadcast"
	"reelsmith/common"
	"reelsmith/config"
	"reelsmith/generation"
	"reelsmith/orchestrator"
	"reelsmith/shared/kafka"
	"reelsmith/store"
	"reelsmith/types"
)

func main() {
	// Load environment variables from .env if present (non-fatal if missing)
	_ = godotenv.Load()

	ctx := context.Background()

	st, closeStore := buildStore(ctx)
	defer closeStore()

	registry, closeKafkaSink := buildRegistry()
	defer registry.Close()
	defer closeKafkaSink()

	locker := buildLocker()

	uploader := buildUploader(ctx)
	orch := orchestrator.New(st, registry, locker, buildExecutors(ctx, uploader))

	closeReviewConsumer := startReviewConsumer(ctx, st)
	defer closeReviewConsumer()

	sweeper := startSweeper(orch)
	defer sweeper.Stop()

	addr := ":8080"
	if v := os.Getenv("PORT"); v != "" {
		addr = ":" + v
	}

	router := api.NewRouter(st, orch, registry, api.HeaderAuthenticator{})
	if os.Getenv("S3_BUCKET") == "" {
		// Serve locally stored artifacts in dev mode
		router.Static("/uploads", envOrDefault("UPLOAD_DIR", "./uploads"))
	}
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Printf("Starting API server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}

// buildStore picks Postgres when DATABASE_URL is set, otherwise the
// in-memory store for local development.
func buildStore(ctx context.Context) (store.Store, func()) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Println("DATABASE_URL not set, using in-memory store")
		return store.NewMemoryStore(), func() {}
	}

	pg, err := store.NewPostgresStore(ctx, dsn)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	log.Println("Connected to Postgres")
	return pg, func() { pg.Close() }
}

// buildRegistry creates the progress broadcaster, mirroring events to Kafka
// when brokers are configured.
func buildRegistry() (*broadcast.Registry, func()) {
	brokers := os.Getenv("KAFKA_BOOTSTRAP_SERVERS")
	if brokers == "" {
		return broadcast.NewRegistry(nil), func() {}
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: strings.Split(brokers, ","),
		Topic:   envOrDefault("KAFKA_PROGRESS_TOPIC", "reelsmith.progress"),
	})
	if err != nil {
		log.Printf("Kafka producer unavailable, progress mirror disabled: %v", err)
		return broadcast.NewRegistry(nil), func() {}
	}
	return broadcast.NewRegistry(producer), func() { producer.Close() }
}

func buildLocker() store.SessionLocker {
	if os.Getenv("REDIS_ADDR") == "" {
		log.Println("REDIS_ADDR not set, session locking disabled")
		return store.NoopLocker{}
	}

	locker, err := store.NewRedisLockerFromEnv(config.SessionLockTTL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	log.Println("Connected to Redis for session locking")
	return locker
}

// buildUploader uses S3 when a bucket is configured, otherwise a local
// directory served by the API process.
func buildUploader(ctx context.Context) generation.Uploader {
	bucket := os.Getenv("S3_BUCKET")
	if bucket == "" {
		dir := envOrDefault("UPLOAD_DIR", "./uploads")
		base := envOrDefault("UPLOAD_BASE_URL", "http://localhost:8080/uploads")
		local, err := common.NewLocalUploader(dir, base)
		if err != nil {
			log.Fatalf("Failed to set up local uploads: %v", err)
		}
		log.Printf("S3_BUCKET not set, storing artifacts under %s", dir)
		return local
	}

	s3c, err := common.NewS3(ctx, common.S3Config{
		Region:  os.Getenv("AWS_REGION"),
		Profile: os.Getenv("AWS_PROFILE"),
	})
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}
	log.Printf("Storing artifacts in s3://%s", bucket)
	return common.NewBucket(s3c, bucket, os.Getenv("S3_PREFIX"))
}

// buildExecutors wires every stage executor from the environment. Missing
// credentials for a required stage abort startup so the failure is not
// discovered mid-pipeline.
func buildExecutors(ctx context.Context, uploader generation.Uploader) orchestrator.Executors {
	storyboard, err := generation.NewStoryboardPlanner()
	if err != nil {
		log.Fatalf("Storyboard executor: %v", err)
	}

	tts, err := generation.NewTTSClient(envOrDefault("TTS_BASE_URL", config.DefaultTTSBaseURL), uploader)
	if err != nil {
		log.Fatalf("TTS executor: %v", err)
	}

	clips, err := generation.NewClipClient()
	if err != nil {
		log.Fatalf("Clip executor: %v", err)
	}

	ex := orchestrator.Executors{
		Storyboard: storyboard,
		Narration:  tts,
		Images:     generation.NewImageClient(uploader),
		Clips:      clips,
		Composer:   generation.NewComposer(uploader, os.Getenv("COMPOSE_WORK_DIR")),
	}

	if music, err := generation.NewMusicClient(); err == nil {
		ex.Music = music
	} else {
		log.Printf("Music disabled: %v", err)
	}

	if publisher, err := generation.NewYouTubePublisher(ctx); err == nil {
		ex.Publisher = publisher
		log.Println("YouTube publishing enabled")
	} else {
		log.Printf("YouTube publishing disabled: %v", err)
	}

	return ex
}

// startReviewConsumer consumes external asset-review messages when Kafka is
// configured. Reviews flip asset approval; everything else is ignored.
func startReviewConsumer(ctx context.Context, st store.Store) func() {
	brokers := os.Getenv("KAFKA_BOOTSTRAP_SERVERS")
	if brokers == "" {
		return func() {}
	}

	handler := &kafka.TypedMessageHandler[types.AssetReview]{
		Validate: func(msg *types.AssetReview) bool {
			return msg.AssetID != ""
		},
		Process: func(ctx context.Context, msg *types.AssetReview) error {
			log.Printf("Review: asset %s approved=%t by %s", msg.AssetID, msg.Approved, msg.Reviewer)
			return st.ApproveAsset(ctx, msg.AssetID, msg.Approved)
		},
		AlwaysMark: true,
	}

	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers: strings.Split(brokers, ","),
		Topic:   envOrDefault("KAFKA_REVIEW_TOPIC", "reelsmith.reviews"),
		GroupID: envOrDefault("KAFKA_GROUP_ID", "reelsmith-api"),
		Handler: handler,
	})
	if err != nil {
		log.Printf("Kafka review consumer unavailable: %v", err)
		return func() {}
	}
	if err := consumer.Start(ctx); err != nil {
		log.Printf("Kafka review consumer failed to start: %v", err)
		return func() {}
	}
	return func() { consumer.Close() }
}

// startSweeper runs the stale-session sweeper on a cron schedule
func startSweeper(orch *orchestrator.Orchestrator) *cron.Cron {
	c := cron.New()
	_, err := c.AddFunc(config.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		n, err := orch.FailStaleSessions(ctx, time.Now().Add(-config.StaleSessionAge))
		if err != nil {
			log.Printf("Stale-session sweep failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("Stale-session sweep marked %d sessions failed", n)
		}
	})
	if err != nil {
		log.Fatalf("Failed to schedule sweeper: %v", err)
	}
	c.Start()
	return c
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
