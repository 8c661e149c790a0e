// Package httpapi serves a small read-only status API over the jam cache.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"jambot/internal/jam"
	"jambot/internal/notifier"
	rtsup "jambot/internal/runtime/supervisor"
	"jambot/internal/task/scheduler"
	logx "jambot/pkg/logx"
)

// Jams is the read side of jam.Service.
type Jams interface {
	Polls(ctx context.Context) ([]jam.Poll, error)
	Poll(ctx context.Context, id string) (jam.Poll, bool, error)
}

// Schedules reports scheduler state. Optional.
type Schedules interface {
	Snapshot() scheduler.Snapshot
}

// Runtime reports goroutine and delivery state. Optional.
type Runtime interface {
	// Supervisors maps a component name to its supervisor snapshot.
	Supervisors() map[string]rtsup.Snapshot
	// Deliveries returns recent notifier send attempts, oldest first.
	Deliveries() []notifier.HistoryItem
}

var ginMode sync.Once

func NewRouter(jams Jams, sched Schedules, rt Runtime, log logx.Logger) *gin.Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	ginMode.Do(func() { gin.SetMode(gin.ReleaseMode) })

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(recovery(log), requestID(), requestLog(log))

	r.NoRoute(func(c *gin.Context) { fail(c, http.StatusNotFound, "route not found") })
	r.NoMethod(func(c *gin.Context) { fail(c, http.StatusMethodNotAllowed, "method not allowed") })

	h := &handler{jams: jams, sched: sched, rt: rt}
	r.GET("/healthz", h.health)
	r.GET("/jams", h.listJams)
	r.GET("/jams/:id", h.getJam)
	if sched != nil {
		r.GET("/schedules", h.schedules)
	}
	if rt != nil {
		r.GET("/runtime", h.runtime)
	}
	return r
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func recovery(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("http panic recovered", logx.Any("panic", r), logx.String("path", c.Request.URL.Path))
				fail(c, http.StatusInternalServerError, "internal error")
			}
		}()
		c.Next()
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("rid", rid)
		c.Header("X-Request-ID", rid)
		c.Next()
	}
}

func requestLog(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			logx.String("rid", c.GetString("rid")),
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("dur", time.Since(start)),
		)
	}
}

// Server runs the router on a plain net/http server.
type Server struct {
	srv *http.Server
	log logx.Logger
}

func NewServer(addr string, h http.Handler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: log,
	}
}

// Run listens until ctx is done, then shuts down within 5s.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.log.Info("http api listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		return err
	}
	s.log.Info("http api stopped")
	return nil
}
