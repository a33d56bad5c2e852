// Command server is the polyglot broadcast gateway's entrypoint: it loads
// configuration, wires every component registry and service, and starts
// the Fiber application.
package main

import (
	"context"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	awstranslate "github.com/aws/aws-sdk-go-v2/service/translate"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/kjlabs/polyglot-broadcast/internal/asr"
	"github.com/kjlabs/polyglot-broadcast/internal/audio"
	"github.com/kjlabs/polyglot-broadcast/internal/auth"
	"github.com/kjlabs/polyglot-broadcast/internal/broadcast"
	"github.com/kjlabs/polyglot-broadcast/internal/config"
	"github.com/kjlabs/polyglot-broadcast/internal/connection"
	"github.com/kjlabs/polyglot-broadcast/internal/control"
	"github.com/kjlabs/polyglot-broadcast/internal/heartbeat"
	"github.com/kjlabs/polyglot-broadcast/internal/logging"
	"github.com/kjlabs/polyglot-broadcast/internal/partial"
	"github.com/kjlabs/polyglot-broadcast/internal/projection"
	"github.com/kjlabs/polyglot-broadcast/internal/ratelimit"
	"github.com/kjlabs/polyglot-broadcast/internal/server"
	"github.com/kjlabs/polyglot-broadcast/internal/session"
	"github.com/kjlabs/polyglot-broadcast/internal/storage"
	"github.com/kjlabs/polyglot-broadcast/internal/store"
	"github.com/kjlabs/polyglot-broadcast/internal/translate"
	"github.com/kjlabs/polyglot-broadcast/internal/tts"
	"github.com/kjlabs/polyglot-broadcast/internal/wsapi"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.Server.Env)
	defer log.Sync()

	ctx := context.Background()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWS.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, "")),
	)
	if err != nil {
		log.Fatal("failed to load AWS config", zap.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	kv := store.NewRedisKV(redisClient)

	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to open postgres", zap.Error(err))
	}

	sessions := session.NewRegistry(kv,
		cfg.Session.IDGenMaxAttempts, cfg.Session.IDGenOuterRetries,
		cfg.Session.IDGenBackoffBase, cfg.Session.MaxDuration, log)
	connections := connection.NewRegistry(kv, cfg.Session.MaxDuration)

	validator := auth.NewValidator(cfg.Auth.JWTSecret, cfg.Auth.IssuerKeyCacheTTL, cfg.Auth.AllowAnonymousListen)

	limiter := ratelimit.NewLimiter(map[ratelimit.Operation]ratelimit.Budget{
		ratelimit.OpConnectionAttempt: {Limit: cfg.RateLim.ConnectionAttemptMax, Window: cfg.RateLim.Window},
		ratelimit.OpSessionCreate:     {Limit: cfg.RateLim.SessionCreateMax, Window: cfg.RateLim.Window},
		ratelimit.OpListenerJoin:      {Limit: cfg.RateLim.ListenerJoinMax, Window: cfg.RateLim.Window},
		ratelimit.OpHeartbeat:         {Limit: cfg.RateLim.HeartbeatMax, Window: cfg.RateLim.Window},
		ratelimit.OpAudioChunk:        {Limit: cfg.RateLim.AudioChunkMax, Window: cfg.RateLim.Window},
		ratelimit.OpControlMessage:    {Limit: cfg.RateLim.ControlMessageMax, Window: cfg.RateLim.Window},
	}, cfg.RateLim.WarnAfterViolations, cfg.RateLim.CloseAfterViolations)

	gate := partial.NewFeatureGate(partial.StaticFlagSource{Config: partial.FlagConfig{
		Enabled:               true,
		RolloutPercentage:     cfg.Partial.RolloutPercentage,
		MinStabilityThreshold: cfg.Partial.MinStability,
		MaxBufferTimeout:      cfg.Partial.MaxBufferTimeout,
	}})

	asrManager := asr.NewManager(
		asr.NewAWSProvider(transcribestreaming.NewFromConfig(awsCfg), cfg.Audio.SampleRateHz),
		asr.StabilityHigh, log)

	translateCache := translate.NewCache(cfg.Translate.CacheTTL, cfg.Translate.MaxCacheEntries, cfg.Translate.EvictBatchPct)
	translator := translate.NewService(translateCache, translate.NewAWSProvider(awstranslate.NewFromConfig(awsCfg)))

	synth := tts.NewService(tts.NewAWSProvider(polly.NewFromConfig(awsCfg)), cfg.Synth.MaxConcurrentCalls, cfg.Synth.CallTimeout)

	hub := wsapi.NewHub()
	broadcaster := broadcast.NewHandler(connections, sessions, hub,
		cfg.Broadcast.MaxConcurrent, cfg.Broadcast.MaxRetries,
		time.Duration(cfg.Broadcast.RetryBackoffMs)*time.Millisecond, log)

	controlRouter := control.NewRouter(sessions, connections, limiter, log)

	reconnectSvc := storage.NewReconnectService(s3.NewFromConfig(awsCfg), cfg.S3.ReconnectBucket, cfg.S3.PresignExpiry)

	hbMonitor := heartbeat.NewMonitor(connections, reconnectSvc, heartbeat.Config{
		WarningAt:     time.Duration(cfg.Heartbeat.WarningMinutes) * time.Minute,
		RefreshAt:     time.Duration(cfg.Heartbeat.RefreshMinutes) * time.Minute,
		MissedTimeout: time.Duration(cfg.Heartbeat.MissedTimeoutSeconds) * time.Second,
	}, log)

	meter := otel.GetMeterProvider().Meter("polyglot-broadcast")

	deps := &wsapi.Deps{
		Cfg:         cfg,
		Log:         log,
		Sessions:    sessions,
		Connections: connections,
		Validator:   validator,
		Limiter:     limiter,
		Gate:        gate,
		ASR:         asrManager,
		Translator:  translator,
		Synth:       synth,
		Hub:         hub,
		Broadcaster: broadcaster,
		Control:     controlRouter,
		Heartbeat:   hbMonitor,
		Meter:       meter,
		FormatSpec: audio.FormatSpec{
			SampleRate:    uint32(cfg.Audio.SampleRateHz),
			Channels:      uint16(cfg.Audio.Channels),
			BitsPerSample: uint16(cfg.Audio.BitsPerSample),
		},
	}

	projWriter := projection.NewWriter(db, sessions, 10*time.Second, log)
	if err := projWriter.AutoMigrate(); err != nil {
		log.Warn("⚠️ session projection auto-migrate failed", zap.Error(err))
	} else {
		projCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go projWriter.Run(projCtx)
	}

	srv := server.New(cfg, log, deps)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
}
