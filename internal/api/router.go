package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/presence/internal/api/handlers"
	"github.com/your-org/presence/internal/api/ws"
	"github.com/your-org/presence/internal/auth"
	"github.com/your-org/presence/internal/engine"
	"github.com/your-org/presence/internal/queue"
	"github.com/your-org/presence/internal/storage"
	"github.com/your-org/presence/internal/stream"
)

type RouterConfig struct {
	APIKey     string
	DB         *storage.PostgresStore
	MinIO      *storage.MinIOStore
	Producer   *queue.Producer
	Hub        *ws.Hub
	Store      *engine.SessionStore
	Unknowns   *engine.UnknownQueue
	Reconciler *engine.Reconciler
	Supervisor *stream.Supervisor
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer, cfg.Supervisor)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Users
	userH := handlers.NewUserHandler(cfg.DB, cfg.MinIO)
	v1.POST("/users", userH.Create)
	v1.GET("/users", userH.List)
	v1.GET("/users/:id", userH.Get)
	v1.PUT("/users/:id", userH.Update)
	v1.DELETE("/users/:id", userH.Delete)
	v1.POST("/users/:id/image", userH.UploadImage)

	// Bad people
	badH := handlers.NewBadPersonHandler(cfg.DB, cfg.MinIO)
	v1.GET("/bad-people", badH.List)
	v1.PUT("/bad-people/:id", badH.Update)
	v1.DELETE("/bad-people/:id", badH.Delete)

	// Unknown queue
	unknownH := handlers.NewUnknownHandler(cfg.Unknowns, cfg.Reconciler, cfg.Producer)
	v1.GET("/unknowns", unknownH.List)
	v1.POST("/unknowns/:id/approve", unknownH.Approve)
	v1.POST("/unknowns/:id/mark-bad", unknownH.MarkBad)
	v1.DELETE("/unknowns/:id", unknownH.Ignore)

	// Presence
	presenceH := handlers.NewPresenceHandler(cfg.Store, cfg.DB, cfg.MinIO)
	v1.GET("/presence/live", presenceH.Live)
	v1.GET("/presence/events", presenceH.Events)
	v1.GET("/snapshots/*key", presenceH.Snapshot)

	// Attendance
	attendanceH := handlers.NewAttendanceHandler(cfg.DB)
	v1.GET("/attendance/:date", attendanceH.Get)
	v1.POST("/admin/attendance/:date", attendanceH.Generate)
	v1.POST("/admin/reload-embeddings", systemH.ReloadEmbeddings)

	return r
}
