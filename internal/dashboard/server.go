// Package dashboard serves the JSON management surface consumed by the
// operations UI and CLI tooling.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/towops/impound/internal/notify"
	"github.com/towops/impound/internal/scheduler"
	"github.com/towops/impound/internal/store"
	"github.com/towops/impound/internal/workflow"
)

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Engine     *workflow.Engine
	Scheduler  *scheduler.Scheduler
	Dispatcher *notify.Dispatcher
	Store      *store.Store
	Port       int
	Out        io.Writer
}

// Start launches the management HTTP server. It blocks until ctx is
// cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Engine == nil {
		return fmt.Errorf("dashboard: engine is required")
	}
	if opts.Store == nil {
		return fmt.Errorf("dashboard: store is required")
	}
	if opts.Dispatcher == nil {
		return fmt.Errorf("dashboard: dispatcher is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	registerRoutes(router, opts)

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
