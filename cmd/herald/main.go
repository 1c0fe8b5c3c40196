package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/ahfmawlrl/sns-solution/internal/dispatch"
	"github.com/ahfmawlrl/sns-solution/internal/fanout"
	"github.com/ahfmawlrl/sns-solution/internal/guard"
	"github.com/ahfmawlrl/sns-solution/internal/handlers"
	"github.com/ahfmawlrl/sns-solution/internal/platform"
	"github.com/ahfmawlrl/sns-solution/internal/store"
	"github.com/ahfmawlrl/sns-solution/internal/tasks"
	"github.com/ahfmawlrl/sns-solution/internal/workflow"
	"github.com/ahfmawlrl/sns-solution/pkg/config"
	"github.com/ahfmawlrl/sns-solution/pkg/database"
	"github.com/ahfmawlrl/sns-solution/pkg/logging"
	"github.com/ahfmawlrl/sns-solution/pkg/models"
	"github.com/ahfmawlrl/sns-solution/pkg/monitoring"
	redispkg "github.com/ahfmawlrl/sns-solution/pkg/redis"
	"github.com/ahfmawlrl/sns-solution/pkg/server"
	"github.com/ahfmawlrl/sns-solution/pkg/version"
)

const serviceName = "herald"

func main() {
	logger := logging.NewLoggerWithService(serviceName)
	config.LoadEnv(logger)
	logger.SetLevel(config.GetLogLevel())

	logger.WithFields(logging.Fields{
		"version":    version.Version,
		"git_commit": version.GitCommit,
	}).Info("Starting herald")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jwtSecret := []byte(config.RequireEnv("JWT_SECRET"))
	databaseURL := config.RequireEnv("DATABASE_URL")
	redisURL := config.GetEnv("REDIS_URL", "redis://localhost:6379")

	dbCfg := database.DefaultConfig()
	dbCfg.URL = databaseURL
	db := database.MustConnect(dbCfg, logger)
	defer db.Close()

	if err := database.ApplySchema(db, logger); err != nil {
		logger.WithError(err).Fatal("Failed to apply database schema")
	}

	redisClient, err := redispkg.NewClientFromURL(ctx, redisURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	clock := clockwork.NewRealClock()
	st := store.New(db, logger)

	// Outbound call protection.
	g := guard.New(guard.Config{
		Cooldown:    config.GetEnvDuration("BREAKER_COOLDOWN", 30*time.Second),
		CallTimeout: config.GetEnvDuration("CALL_TIMEOUT", 30*time.Second),
	}, redisClient, clock, logger)

	// Realtime fanout.
	hub := fanout.NewHub(fanout.DefaultConfig(), logger)
	notifier := fanout.NewNotifier(st, redisClient, hub, logger)

	// Quota warnings go to the admins once per window.
	g.Quota().OnWarn(func(service string, used, limit int64) {
		warnCtx, warnCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer warnCancel()

		admins, err := st.AdminUserIDs(warnCtx)
		if err != nil {
			logger.WithError(err).Warn("Cannot load admins for quota warning")
			return
		}
		detail, _ := json.Marshal(map[string]interface{}{
			"service": service,
			"used":    used,
			"limit":   limit,
		})
		if err := notifier.NotifyAll(warnCtx, admins, models.NotificationEvent{
			Type:     models.EventNotification,
			Title:    "API quota warning",
			Message:  fmt.Sprintf("%s quota at %d of %d this hour", service, used, limit),
			Payload:  detail,
			Priority: models.PriorityHigh,
		}); err != nil {
			logger.WithError(err).Warn("Failed to send quota warning")
		}
	})

	// Platform and AI clients.
	instagram := platform.NewMetaClient(platform.MetaConfig{
		BaseURL:  config.GetEnv("META_API_URL", ""),
		Platform: models.PlatformInstagram,
	}, g)
	facebook := platform.NewMetaClient(platform.MetaConfig{
		BaseURL:  config.GetEnv("META_API_URL", ""),
		Platform: models.PlatformFacebook,
	}, g)
	youtube := platform.NewYouTubeClient(platform.YouTubeConfig{
		BaseURL:      config.GetEnv("YOUTUBE_API_URL", ""),
		TokenURL:     config.GetEnv("YOUTUBE_TOKEN_URL", ""),
		ClientID:     config.GetEnv("YOUTUBE_CLIENT_ID", ""),
		ClientSecret: config.GetEnv("YOUTUBE_CLIENT_SECRET", ""),
	}, g)
	ai := platform.NewAIClient(platform.AIConfig{
		BaseURL: config.GetEnv("AI_API_URL", ""),
		APIKey:  config.GetEnv("AI_API_KEY", ""),
	}, g)

	info := version.GetInfo()
	metrics := monitoring.NewMetricsCollector(serviceName, info.Version, info.GitCommit)

	// Task dispatcher.
	dispatcher := dispatch.New(dispatch.Config{
		Workers: config.GetEnvInt("TASK_WORKERS", 8),
		Observe: func(kind dispatch.Kind, lane dispatch.Lane, outcome string) {
			metrics.TaskDone(string(kind), lane.String(), outcome)
		},
	}, clock, logger)

	metrics.TrackGauge("task_queue_depth", "Tasks waiting in the lane queues",
		func() float64 { return float64(dispatcher.QueueLen()) })
	metrics.TrackGauge("websocket_connections", "Open websocket connections on this instance",
		func() float64 { return float64(hub.Connections()) })
	for _, svc := range []string{"instagram", "facebook", "youtube", "llm"} {
		service := svc
		metrics.TrackServiceGauge("breaker_open", "1 when the service's circuit is open", service,
			func() float64 {
				if g.BreakerState(service) == guard.StateOpen {
					return 1
				}
				return 0
			})
		metrics.TrackServiceGauge("quota_used", "Calls consumed in the current quota window", service,
			func() float64 {
				scrapeCtx, scrapeCancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer scrapeCancel()
				used, err := g.Quota().Used(scrapeCtx, service)
				if err != nil {
					return 0
				}
				return float64(used)
			})
	}

	engine := workflow.NewEngine(st, notifier, dispatcher, logger)

	deps := tasks.Deps{
		Store:    st,
		Events:   notifier,
		Enqueuer: dispatcher,
		Publishers: map[models.Platform]platform.Publisher{
			models.PlatformInstagram: instagram,
			models.PlatformFacebook:  facebook,
			models.PlatformYouTube:   youtube,
		},
		Fetchers: map[models.Platform]platform.CommentFetcher{
			models.PlatformInstagram: instagram,
			models.PlatformFacebook:  facebook,
			models.PlatformYouTube:   youtube,
		},
		Insights: map[models.Platform]platform.InsightsFetcher{
			models.PlatformInstagram: instagram,
			models.PlatformFacebook:  facebook,
			models.PlatformYouTube:   youtube,
		},
		AI:     ai,
		Logger: logger,
	}
	tasks.RegisterAll(dispatcher, deps)

	// Periodic triggers.
	scans := tasks.NewScans(deps, engine)
	scheduler := dispatch.NewScheduler(logger)
	mustSchedule(scheduler, logger, "scheduled-posts", "@every 60s", func() { scans.ScheduledPosts(ctx) })
	mustSchedule(scheduler, logger, "comment-sync", "@every 300s", func() { scans.CommentSync(ctx) })
	mustSchedule(scheduler, logger, "kpi-collection", "@every 3600s", func() { scans.KPICollection(ctx) })
	mustSchedule(scheduler, logger, "token-refresh", "@every 3600s", func() { scans.TokenRefresh(ctx) })
	mustSchedule(scheduler, logger, "daily-reports", "0 8 * * *", func() { scans.DailyReports(ctx) })

	// Monitoring.
	health := monitoring.NewHealthChecker(serviceName, info.Version)
	health.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	health.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
	health.AddCheck("configuration", monitoring.ConfigurationHealthCheck(map[string]string{
		"JWT_SECRET":   string(jwtSecret),
		"DATABASE_URL": databaseURL,
	}))

	// HTTP surface.
	router := server.SetupRouter(logger)
	router.Use(metrics.MetricsMiddleware())
	h := handlers.New(st, engine, notifier, dispatcher, hub, jwtSecret, logger)
	h.RegisterRoutes(router, health, metrics)

	scheduler.Start()
	defer scheduler.Stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	group.Go(func() error {
		return notifier.RunRelay(ctx)
	})
	group.Go(func() error {
		return dispatcher.Run(ctx)
	})
	group.Go(func() error {
		defer cancel()
		return server.Start(ctx, server.DefaultConfig(serviceName, "8090"), router, logger)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.WithError(err).Fatal("Service exited with error")
	}
	logger.Info("Herald stopped")
}

func mustSchedule(s *dispatch.Scheduler, logger logging.Logger, name, spec string, fn func()) {
	if err := s.Add(name, spec, fn); err != nil {
		logger.WithError(err).WithField("job", name).Fatal("Failed to schedule job")
	}
}
