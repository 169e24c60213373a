package http

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/dkeye/relay/internal/adapters/auth"
	"github.com/dkeye/relay/internal/adapters/rtc"
	"github.com/dkeye/relay/internal/adapters/signal"
	"github.com/dkeye/relay/internal/app/orch"
	"github.com/dkeye/relay/internal/config"
	"github.com/dkeye/relay/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type publishRequest struct {
	Channel string                  `json:"channel" binding:"required"`
	Title   string                  `json:"title"`
	Message string                  `json:"message"`
	Type    domain.NotificationType `json:"type"`
}

// OriginFilter rejects browser requests from origins outside the allow list.
// An empty list allows every origin.
func OriginFilter(allowed []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || len(allowed) == 0 {
			c.Next()
			return
		}
		if !slices.Contains(allowed, origin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Origin not allowed"})
			return
		}
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+auth.PublishKeyHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(OriginFilter(cfg.AllowedOrigins))

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RelaySessions", store))
	r.Use(signal.DeviceMiddleware())

	verifier := auth.NewVerifier(cfg.JWTSecret)
	ctrl := signal.NewSignalWSController(o, verifier, signal.Options{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		PongWait:       cfg.PongWait,
		WriteWait:      cfg.WriteWait,
		SendBuffer:     cfg.SendBuffer,
		JoinLimit:      cfg.JoinLimit,
		JoinInterval:   cfg.JoinInterval,
		AllowedOrigins: cfg.AllowedOrigins,
		ValidateSDP:    cfg.ValidateSDP,
	})
	iceServers := rtc.ICEServers(cfg.ICEServers)

	log.Info().Str("module", "adapters.http").Bool("anonymous", cfg.AllowAnonymous).Bool("publish", cfg.PublishKey != "").Msg("router setup")

	r.GET("/health", func(c *gin.Context) {
		st, err := o.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "closed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "stats": st})
	})

	api := r.Group("/api")

	api.GET("/ws/signal", auth.Identity(verifier, !cfg.AllowAnonymous), func(c *gin.Context) {
		ctrl.HandleSignal(ctx, c)
	})

	api.GET("/ice-servers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"iceServers": iceServers})
	})

	api.GET("/rooms", func(c *gin.Context) {
		rooms, err := o.ListRooms(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rooms": rooms})
	})

	api.GET("/rooms/:roomId", func(c *gin.Context) {
		room, ok, err := o.Room(c.Request.Context(), domain.RoomID(c.Param("roomId")))
		switch {
		case err != nil:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		case !ok:
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		default:
			c.JSON(http.StatusOK, room)
		}
	})

	api.POST("/notifications", auth.PublishKey(cfg.PublishKey), func(c *gin.Context) {
		var req publishRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		res, err := o.Publish(c.Request.Context(), domain.ChannelName(req.Channel), domain.Notification{
			Title:   req.Title,
			Message: req.Message,
			Type:    req.Type,
		})
		switch {
		case errors.Is(err, orch.ErrInvalidNotification):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case err != nil:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusAccepted, gin.H{"delivered": res.SentTo})
		}
	})

	return r
}
