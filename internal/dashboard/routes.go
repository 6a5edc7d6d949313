package dashboard

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/towops/impound/internal/stage"
)

// snapshotMaxAge is how old the scheduler's hourly action snapshot may be
// before /api/actions recomputes instead of serving it.
const snapshotMaxAge = 5 * time.Minute

// registerRoutes sets up the JSON API on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/api/actions", handleActions(opts))
	router.GET("/api/vehicles", handleVehicleList(opts))
	router.GET("/api/vehicles/:id", handleVehicleDetail(opts))
	router.GET("/api/vehicles/:id/history", handleVehicleHistory(opts))
	router.GET("/api/notifications", handleNotifications(opts))
	router.GET("/api/scheduler/status", handleSchedulerStatus(opts))
	router.POST("/api/sweep", handleTriggerSweep(opts))
}

func handleActions(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Scheduler != nil {
			actions, at := opts.Scheduler.ActionsSnapshot()
			if actions != nil && time.Since(at) < snapshotMaxAge {
				c.JSON(http.StatusOK, gin.H{"actions": actions, "computed_at": at})
				return
			}
		}

		actions, err := opts.Engine.AllDueActions(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"actions": actions, "computed_at": time.Now()})
	}
}

func handleVehicleList(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		vehicles, err := opts.Store.ActiveVehicles(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"vehicles": vehicles})
	}
}

func handleVehicleDetail(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := opts.Store.GetVehicle(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		actions, err := opts.Engine.VehicleActions(c.Request.Context(), v.CallNumber)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"vehicle": v,
			"stage":   stage.FromStatus(v.Status),
			"actions": actions,
		})
	}
}

func handleVehicleHistory(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := opts.Store.History(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"history": entries})
	}
}

func handleNotifications(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		recs, err := opts.Dispatcher.List(c.Request.Context(), c.Query("status"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": recs})
	}
}

func handleSchedulerStatus(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Scheduler == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not running"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": opts.Scheduler.Status()})
	}
}

func handleTriggerSweep(opts StartOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		if opts.Scheduler == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not running"})
			return
		}
		result, err := opts.Scheduler.TriggerSweep(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
