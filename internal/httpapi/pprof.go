package httpapi

import (
	hpprof "net/http/pprof"

	"github.com/gin-gonic/gin"
)

// MountPprof exposes the runtime profiler under /debug/pprof/. Keep the
// server on a loopback address when enabled.
func MountPprof(r *gin.Engine) {
	g := r.Group("/debug/pprof")
	g.GET("/", gin.WrapF(hpprof.Index))
	g.GET("/cmdline", gin.WrapF(hpprof.Cmdline))
	g.GET("/profile", gin.WrapF(hpprof.Profile))
	g.GET("/symbol", gin.WrapF(hpprof.Symbol))
	g.POST("/symbol", gin.WrapF(hpprof.Symbol))
	g.GET("/trace", gin.WrapF(hpprof.Trace))
	for _, p := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		g.GET("/"+p, gin.WrapH(hpprof.Handler(p)))
	}
}
