package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"

	appcmd "github.com/docfoundry/ingestcore/cmd"
	"github.com/docfoundry/ingestcore/ingest"
)

func main() {
	logFormat := getenvDefault("INGESTCORE_LOG_FORMAT", "text")
	logger := newLogger(logFormat)
	slog.SetDefault(logger)

	addr := getenvDefault("INGESTCORE_HTTP_ADDR", "127.0.0.1:8080")
	artifactRoot := getenvDefault("INGESTCORE_ARTIFACT_ROOT", "artifacts")
	workers := getenvIntDefault(logger, "INGESTCORE_INGEST_WORKERS", 4)

	ctx := context.Background()

	blobs := getBlobStore(ctx, logger)
	index, tracking := getIndexAndTracking(ctx, logger)
	embedder := getEmbedder(logger)

	store := ingest.NewArtifactStore(blobs, artifactRoot)
	dedup := ingest.NewDeduplicator(index, tracking)
	metrics := ingest.NewInMemAppMetrics()
	pipeline := ingest.NewPipeline(store, dedup, embedder,
		ingest.WithWorkers(workers),
		ingest.WithMetrics(metrics),
	)
	reader := ingest.NewFragmentReader(index, tracking)
	reader.Metrics = metrics

	appCfg := appcmd.AppConfig{
		Address:           addr,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		Logger:            logger,
		Metrics:           metrics,
	}
	app := appcmd.NewApp(pipeline, reader, appCfg)

	if err := app.Start(); err != nil {
		logger.Error("start app", "error", err)
		os.Exit(1)
	}
	logger.Info("ingestcore listening", "address", app.Address())

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
		defer cancel()
		if err := app.Stop(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	if err := app.Wait(); err != nil {
		logger.Error("app exited with error", "error", err)
		os.Exit(1)
	}
}

// getBlobStore selects artifact storage: "local" (default) or "s3".
func getBlobStore(ctx context.Context, logger *slog.Logger) ingest.BlobStore {
	provider := getenvDefault("INGESTCORE_BLOB_PROVIDER", "local")

	switch provider {
	case "local":
		root := getenvDefault("INGESTCORE_BLOB_ROOT", "./.data/blobs")
		logger.Info("configured local blob store", "root", root)
		return &ingest.LocalBlobStore{Root: root}
	case "s3":
		bucket := os.Getenv("INGESTCORE_S3_BUCKET")
		if bucket == "" {
			logger.Error("INGESTCORE_S3_BUCKET is required for the s3 blob provider")
			os.Exit(1)
		}
		prefix := os.Getenv("INGESTCORE_S3_PREFIX")
		endpoint := os.Getenv("INGESTCORE_S3_ENDPOINT")

		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("load aws config", "error", err)
			os.Exit(1)
		}
		client := s3.NewFromConfig(cfg, func(o *s3.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
				o.UsePathStyle = true
			}
		})
		logger.Info("configured s3 blob store", "bucket", bucket, "prefix", prefix)
		return ingest.NewS3BlobStore(client, bucket, prefix)
	default:
		logger.Error("unknown blob provider", "provider", provider, "valid", "local, s3")
		os.Exit(1)
		return nil
	}
}

// getIndexAndTracking selects the search index ("redis" or "memory") and
// the tracking store ("redis", "mongo", or "memory"). Tracking defaults to
// wherever the index lives.
func getIndexAndTracking(ctx context.Context, logger *slog.Logger) (ingest.SearchIndex, ingest.TrackingStore) {
	indexProvider := getenvDefault("INGESTCORE_INDEX_PROVIDER", "memory")

	var index ingest.SearchIndex
	var client redis.UniversalClient

	switch indexProvider {
	case "redis":
		redisURL := getenvDefault("INGESTCORE_REDIS_URL", "redis://localhost:6379/0")
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Error("invalid redis url", "error", err)
			os.Exit(1)
		}
		client = redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("redis ping", "error", err)
			os.Exit(1)
		}
		idx, err := ingest.NewRedisSearchIndex(client, os.Getenv("INGESTCORE_INDEX_PREFIX"))
		if err != nil {
			logger.Error("create redis index", "error", err)
			os.Exit(1)
		}
		index = idx
		logger.Info("configured redis search index", "url", redisURL)
	case "memory":
		index = ingest.NewInMemorySearchIndex()
		logger.Info("configured in-memory search index", "hint", "set INGESTCORE_INDEX_PROVIDER=redis for persistence")
	default:
		logger.Error("unknown index provider", "provider", indexProvider, "valid", "redis, memory")
		os.Exit(1)
	}

	trackingProvider := getenvDefault("INGESTCORE_TRACKING_PROVIDER", indexProvider)
	switch trackingProvider {
	case "redis":
		if client == nil {
			logger.Error("redis tracking requires INGESTCORE_INDEX_PROVIDER=redis")
			os.Exit(1)
		}
		tracking, err := ingest.NewRedisTrackingStore(client, os.Getenv("INGESTCORE_TRACKING_PREFIX"))
		if err != nil {
			logger.Error("create redis tracking store", "error", err)
			os.Exit(1)
		}
		return index, tracking
	case "mongo":
		uri := os.Getenv("INGESTCORE_TRACKING_MONGO_URI")
		if uri == "" {
			logger.Error("INGESTCORE_TRACKING_MONGO_URI is required for the mongo tracking provider")
			os.Exit(1)
		}
		db := getenvDefault("INGESTCORE_TRACKING_MONGO_DB", "ingestcore")
		collName := getenvDefault("INGESTCORE_TRACKING_MONGO_COLLECTION", "doc_tracking")

		mongoClient, err := mongo.Connect(mongooptions.Client().ApplyURI(uri))
		if err != nil {
			logger.Error("mongo connect", "error", err)
			os.Exit(1)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := mongoClient.Ping(pingCtx, nil); err != nil {
			logger.Error("mongo ping", "error", err)
			os.Exit(1)
		}
		logger.Info("configured mongo tracking store", "db", db, "collection", collName)
		return index, ingest.NewMongoTrackingStore(mongoClient.Database(db).Collection(collName))
	case "memory":
		return index, ingest.NewInMemoryTrackingStore()
	default:
		logger.Error("unknown tracking provider", "provider", trackingProvider, "valid", "redis, mongo, memory")
		os.Exit(1)
		return nil, nil
	}
}

func getEmbedder(logger *slog.Logger) ingest.Embedder {
	provider := getenvDefault("INGESTCORE_EMBEDDER_PROVIDER", "local")

	switch provider {
	case "ollama":
		url := getenvDefault("INGESTCORE_OLLAMA_URL", "http://localhost:11434")
		model := getenvDefault("INGESTCORE_OLLAMA_MODEL", "all-minilm")
		logger.Info("configured ollama embedder", "url", url, "model", model)
		return ingest.NewOllamaEmbedder(url, model)
	case "local":
		dim := getenvIntDefault(logger, "INGESTCORE_LOCAL_EMBED_DIM", 384)
		embedder, err := ingest.NewLocalEmbedder(dim)
		if err != nil {
			logger.Error("failed to create local embedder", "error", err)
			os.Exit(1)
		}
		logger.Info("configured local embedder", "dim", dim)
		return embedder
	default:
		logger.Error("unknown embedder provider", "provider", provider, "valid", "ollama, local")
		os.Exit(1)
		return nil
	}
}

func newLogger(format string) *slog.Logger {
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func getenvDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvIntDefault(logger *slog.Logger, key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("invalid integer env var", "key", key, "value", v, "error", err)
		os.Exit(1)
	}
	return n
}
