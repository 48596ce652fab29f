package cmd

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/gerlope/ugr-matrix-chatroom-manager/config"
	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/bot"
	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/chat"
	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/handlers"
	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/moodle"
	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/queue"
	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/realtime"
	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/services"
	"github.com/gerlope/ugr-matrix-chatroom-manager/internal/store"
	_ "github.com/gerlope/ugr-matrix-chatroom-manager/migrations"
	"github.com/gerlope/ugr-matrix-chatroom-manager/monitoring"
	"github.com/gerlope/ugr-matrix-chatroom-manager/security"
	"github.com/gerlope/ugr-matrix-chatroom-manager/utils"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// Connect to the chat fabric
	gateway, err := chat.Connect(chat.Options{
		URL:        cfg.NatsURL,
		ClientName: cfg.NatsClientName,
		BotUserID:  cfg.BotUserID,
		SendRate:   cfg.OutboundSendRate,
		SendBurst:  cfg.OutboundSendBurst,
	})
	if err != nil {
		return err
	}
	defer gateway.Close()

	// Live dashboard feed; nil when PubNub keys are not configured.
	publisher := realtime.NewPublisher(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubSecretKey, cfg.RealtimeSigningKey)
	defer publisher.Close()

	// Tutoring queue coordinator. Offers are delivered through the
	// gateway; everything else observes transitions via queue events.
	coordinator := queue.NewCoordinator(cfg.ConfirmationTimeout)
	coordinator.ConfigureNotifier(queue.NotifierFunc(gateway.SendMessage))

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor(redisClient, coordinator)
	}

	queueEvents := services.NewQueueEvents(redisClient, publisher, monitor, coordinator, cfg.PresenceTTL)
	coordinator.ConfigureObserver(queueEvents.Handle)
	queueEvents.Start()

	// Initialize services
	directory := store.New(app)
	moodleClient := moodle.NewClient(cfg.MoodleURL, cfg.MoodleToken, cfg.MoodleTimeout)
	limiter := security.NewRateLimiter(redisClient, cfg.CommandsPerMinute)
	sessions := security.NewSessionStore(redisClient, cfg.DashboardSessionTTL)

	tutorBot := bot.New(bot.Options{
		BotUserID:     cfg.BotUserID,
		ServerName:    cfg.ServerName,
		CommandPrefix: cfg.CommandPrefix,
		Gateway:       gateway,
		Store:         directory,
		Moodle:        moodleClient,
		Queue:         coordinator,
		Limiter:       limiter,
		Monitor:       monitor,
	})

	notifier := services.NewQuestionNotifier(directory, gateway, redisClient, publisher, monitor, cfg.QuestionPollInterval)

	// Initialize handlers
	dashboardHandler := handlers.NewDashboardHandler(directory, coordinator, sessions, gateway, cfg.ServerName)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Queues do not survive a restart; drop the mirror keys left
		// behind so the dashboard never shows ghost sessions.
		clearPresenceMirror(redisClient)

		if err := gateway.Subscribe(tutorBot.Handlers()); err != nil {
			return err
		}
		notifier.Start()

		// Dashboard endpoints
		e.Router.POST("/api/v1/dashboard/login", dashboardHandler.Login)
		e.Router.POST("/api/v1/dashboard/logout", dashboardHandler.Logout)
		e.Router.GET("/api/v1/dashboard/overview", dashboardHandler.Overview)
		e.Router.GET("/api/v1/dashboard/rooms/{roomId}", dashboardHandler.RoomDetail)
		e.Router.POST("/api/v1/dashboard/rooms/{roomId}/release", dashboardHandler.ReleaseCurrent)
		e.Router.POST("/api/v1/dashboard/rooms/{roomId}/remove", dashboardHandler.RemoveWaiter)
		e.Router.GET("/api/v1/dashboard/questions/{questionId}", dashboardHandler.QuestionDetail)
		e.Router.GET("/api/v1/dashboard/availability", dashboardHandler.GetAvailability)
		e.Router.PUT("/api/v1/dashboard/availability", dashboardHandler.UpdateAvailability)

		// Test endpoint for driving the bot without a chat client
		if cfg.Environment == "development" {
			botHandlers := tutorBot.Handlers()
			e.Router.POST("/api/v1/test/simulate-message", func(e *core.RequestEvent) error {
				var req struct {
					RoomID string `json:"room_id"`
					Sender string `json:"sender"`
					Body   string `json:"body"`
				}
				if err := e.BindBody(&req); err != nil {
					return apis.NewBadRequestError("Invalid request", err)
				}
				if req.RoomID == "" || req.Sender == "" {
					return apis.NewBadRequestError("room_id and sender required", nil)
				}
				botHandlers.Message(chat.Message{
					RoomID: req.RoomID,
					Sender: req.Sender,
					Body:   req.Body,
				})
				return e.JSON(http.StatusOK, map[string]string{"status": "dispatched"})
			})
		}

		// Metrics endpoint
		if cfg.EnableMetrics {
			e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		// Health check
		e.Router.GET("/api/v1/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			if !gateway.Connected() {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  "chat fabric disconnected",
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		slog.Info("Server routes registered")

		setupQuestionHooks(app, redisClient)

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		slog.Info("Shutdown signal received, cleaning up...")
		notifier.Shutdown()
		queueEvents.Shutdown()
		monitor.Shutdown()
		return e.Next()
	})

	// Start server
	return app.Start()
}

// clearPresenceMirror deletes every occupancy key. Called on startup,
// before the coordinator has any queues.
func clearPresenceMirror(redisClient *redis.Client) {
	ctx := context.Background()

	keys, err := redisClient.Keys(ctx, "tutoring:occupied:*").Result()
	if err != nil {
		slog.Warn("Failed to list presence mirror keys", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := redisClient.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("Failed to clear presence mirror", "error", err)
		return
	}
	slog.Info("Cleared stale presence mirror keys", "count", len(keys))
}

// setupQuestionHooks keeps the announcement dedup set consistent with
// dashboard edits to the questions collection.
func setupQuestionHooks(app *pocketbase.PocketBase, redisClient *redis.Client) {
	// Deleting a question frees its id: a recreated question with a new
	// id announces normally, but a restore of the same record must too.
	app.OnRecordDeleteRequest("questions").BindFunc(func(e *core.RecordRequestEvent) error {
		ctx := e.Request.Context()

		if err := redisClient.SRem(ctx, "questions:announced", e.Record.Id).Err(); err != nil {
			slog.Error("Failed to drop deleted question from announced set",
				"questionID", e.Record.Id,
				"error", err,
			)
			return e.Next()
		}
		slog.Info("Question removed from announced set", "questionID", e.Record.Id)
		return e.Next()
	})

	// Pushing start_at into the future re-arms the announcement.
	app.OnRecordUpdateRequest("questions").BindFunc(func(e *core.RecordRequestEvent) error {
		ctx := e.Request.Context()

		original := e.Record.Original()
		if e.Record.GetDateTime("start_at").Time().Equal(original.GetDateTime("start_at").Time()) {
			return e.Next()
		}

		if err := redisClient.SRem(ctx, "questions:announced", e.Record.Id).Err(); err != nil {
			slog.Error("Failed to re-arm rescheduled question",
				"questionID", e.Record.Id,
				"error", err,
			)
		}
		return e.Next()
	})
}
