package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/plateful/plateful/internal/service"
)

// handleCronPost runs one posting cycle. The executor is idempotent, so a
// late or double-fired cron trigger is harmless.
func (s *Server) handleCronPost(c *gin.Context) {
	result := s.Executor.ExecuteDuePost(c.Request.Context())

	if result.Status == "failed" || result.Status == "error" {
		for _, e := range result.Errors {
			if err := s.Monitoring.RecordError("ERROR", "poster", "posting cycle failed", e); err != nil {
				s.Logger.Error("Failed to record error", zap.Error(err))
			}
		}
	}

	c.JSON(http.StatusOK, result)
}

// handleCronInfo reports executor config without side effects.
func (s *Server) handleCronInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"grace_minutes": s.Config.Schedule.GraceMinutes,
		"posts_per_day": s.Config.Schedule.PostsPerDay,
		"slot_hours":    s.Config.Schedule.SlotHours,
		"days_ahead":    s.Config.Schedule.DaysAhead,
		"time":          time.Now().Unix(),
	})
}

func (s *Server) handleUpcomingSchedule(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer"})
		return
	}

	summary, err := s.Scheduler.UpcomingSchedule(days)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

type scheduleBatchRequest struct {
	DaysAhead   int `json:"days_ahead"`
	PostsPerDay int `json:"posts_per_day"`
}

func (s *Server) handleScheduleBatch(c *gin.Context) {
	var req scheduleBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.DaysAhead == 0 {
		req.DaysAhead = s.Config.Schedule.DaysAhead
	}
	if req.PostsPerDay == 0 {
		req.PostsPerDay = s.Config.Schedule.PostsPerDay
	}

	result, err := s.Scheduler.ScheduleNextBatch(req.DaysAhead, req.PostsPerDay)
	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type updateScheduledRequest struct {
	Action  string     `json:"action"`
	NewTime *time.Time `json:"new_time,omitempty"`
}

// handleUpdateScheduledContent cancels or reschedules one content item's
// slot.
func (s *Server) handleUpdateScheduledContent(c *gin.Context) {
	contentID := c.Param("id")

	var req updateScheduledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var err error
	switch req.Action {
	case "cancel":
		err = s.Scheduler.CancelScheduledContent(contentID)
	case "reschedule":
		if req.NewTime == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "new_time is required for reschedule"})
			return
		}
		err = s.Scheduler.RescheduleContent(contentID, *req.NewTime)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "action must be cancel or reschedule"})
		return
	}

	if err != nil {
		s.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "content_id": contentID, "action": req.Action})
}

func (s *Server) handleScanDecision(c *gin.Context) {
	c.JSON(http.StatusOK, s.ScanEngine.Decide())
}

func (s *Server) handleScanRun(c *gin.Context) {
	decision := s.ScanEngine.Decide()
	batch := s.ScanEngine.RunScans(c.Request.Context(), decision)

	for _, e := range batch.Errors {
		if err := s.Monitoring.RecordError("WARN", "scanner", "scan run error", e); err != nil {
			s.Logger.Error("Failed to record error", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, batch)
}

func (s *Server) handleRecentErrors(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	logs, err := s.Monitoring.RecentErrors(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load error log"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": logs})
}

func (s *Server) handleRecentStats(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "14"))
	stats, err := s.Monitoring.RecentStats(days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
func (s *Server) respondServiceError(c *gin.Context, err error) {
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, service.ReasonValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
	case strings.HasPrefix(msg, service.ReasonNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": msg})
	default:
		s.Logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
