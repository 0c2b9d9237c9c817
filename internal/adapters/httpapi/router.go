// Package httpapi exposes the team matching service over HTTP for the
// conversational front end.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"

	"teammatch/internal/blob"
	"teammatch/internal/core"
)

// DefaultMaxUploadBytes bounds theme uploads when Options leaves it unset.
const DefaultMaxUploadBytes = 10 << 20

// Options configures the router.
type Options struct {
	Blobs          blob.Store
	Logger         core.Logger
	AllowedOrigins []string
	MaxUploadBytes int64
	Metrics        http.Handler
}

// Handler serves the API on top of a core.Service.
type Handler struct {
	svc       *core.Service
	blobs     blob.Store
	logger    core.Logger
	maxUpload int64
}

// NewRouter builds the gin engine. The returned handler is wrapped with CORS.
func NewRouter(svc *core.Service, opts Options) http.Handler {
	h := &Handler{svc: svc, blobs: opts.Blobs, logger: opts.Logger, maxUpload: opts.MaxUploadBytes}
	if h.logger == nil {
		h.logger = nopLogger{}
	}
	if h.maxUpload <= 0 {
		h.maxUpload = DefaultMaxUploadBytes
	}

	router := gin.New()
	router.Use(gin.Recovery(), h.accessLog())
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	api := router.Group("/api/v1")
	api.POST("/uploads", h.upload)

	api.GET("/events", h.listEvents)
	api.POST("/events", h.createEvent)
	api.GET("/event-name-available", h.eventNameAvailable)
	api.GET("/events/:event", h.getEvent)
	api.DELETE("/events/:event", h.deleteEvent)

	api.GET("/events/:event/themes", h.listThemes)
	api.GET("/events/:event/themes/:theme", h.themeDetails)
	api.GET("/events/:event/themes/:theme/teams", h.teamsAvailableToJoin)
	api.GET("/events/:event/themes/:theme/can-lead", h.canLeadTheme)
	api.GET("/events/:event/lead-themes", h.themesAvailableToLead)
	api.GET("/events/:event/join-themes", h.themesAvailableToJoin)

	api.POST("/events/:event/teams", h.createTeam)
	api.GET("/events/:event/team-name-available", h.teamNameAvailable)
	api.GET("/events/:event/teams/:team", h.getTeam)
	api.DELETE("/events/:event/teams/:team", h.deleteTeam)
	api.GET("/events/:event/teams/:team/occupancy", h.teamOccupancy)
	api.GET("/events/:event/teams/:team/requests", h.pendingRequests)
	api.GET("/events/:event/teams/:team/members", h.teamMembers)
	api.POST("/events/:event/teams/:team/join", h.requestToJoin)
	api.POST("/events/:event/teams/:team/members/:member/accept", h.acceptMember)
	api.DELETE("/events/:event/teams/:team/members/:member", h.removeMember)
	api.POST("/events/:event/teams/:team/toggle", h.toggleOpen)
	api.PUT("/events/:event/teams/:team/needs", h.updateNeeds)
	api.GET("/events/:event/members/:member/team", h.teamOfMember)
	api.GET("/members/:member/alias", h.memberAlias)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(router)
}

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		h.logger.Debug("http request",
			"method", c.Request.Method, "path", c.FullPath(), "status", c.Writer.Status())
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
