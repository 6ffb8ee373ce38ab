package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alem-hub/attendance-tracker/internal/application/command"
	"github.com/alem-hub/attendance-tracker/internal/application/query"
	"github.com/alem-hub/attendance-tracker/internal/domain/attendance"
	"github.com/alem-hub/attendance-tracker/internal/domain/ledger"
	"github.com/alem-hub/attendance-tracker/internal/domain/shared"
	"github.com/alem-hub/attendance-tracker/internal/interface/http/handlers"
	"github.com/alem-hub/attendance-tracker/internal/interface/http/response"
	"github.com/alem-hub/attendance-tracker/pkg/logger"
	"github.com/alem-hub/attendance-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// GET /health
func (s *Server) handleHealth(c *gin.Context) {
	status := s.deps.HealthChecker.Check(c.Request.Context())
	if status.Version == "" {
		status.Version = s.config.Version
	}
	if !status.Healthy {
		c.JSON(http.StatusServiceUnavailable, response.Response{
			Code:    response.CodeUnavailable,
			Message: status.Message,
			Data:    status,
		})
		return
	}
	response.OK(c, status)
}

// GET /ready
func (s *Server) handleReady(c *gin.Context) {
	status := s.deps.HealthChecker.Check(c.Request.Context())
	if !status.Ready {
		response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, status.Message)
		return
	}
	response.OK(c, gin.H{"status": "ready"})
}

// GET /live
func (s *Server) handleLive(c *gin.Context) {
	response.OK(c, gin.H{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBJECT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type createSubjectRequest struct {
	Name               string `json:"name"`
	RequiredAttendance *int   `json:"required_attendance"`
	ParentID           string `json:"parent_id"`
	IsFolder           bool   `json:"is_folder"`
}

type updateSubjectRequest struct {
	Name               *string `json:"name"`
	RequiredAttendance *int    `json:"required_attendance"`
	ParentID           *string `json:"parent_id"`
}

// POST /api/v1/subjects
func (s *Server) handleCreateSubject(c *gin.Context) {
	var req createSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	sub, err := s.deps.Subjects.Create(c.Request.Context(), command.CreateSubjectCommand{
		Name:               req.Name,
		RequiredAttendance: req.RequiredAttendance,
		ParentID:           req.ParentID,
		IsFolder:           req.IsFolder,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	response.Created(c, sub)
}

// GET /api/v1/subjects?parent_id=...&roots=true
func (s *Server) handleListSubjects(c *gin.Context) {
	filter := attendance.SubjectFilter{ParentID: c.Query("parent_id")}
	if v := c.Query("roots"); v != "" {
		roots, err := strconv.ParseBool(v)
		if err != nil {
			response.BadRequest(c, "roots must be a boolean")
			return
		}
		filter.OnlyRoots = roots
	}

	subs, err := s.deps.Subjects.List(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	response.List(c, subs, len(subs))
}

// GET /api/v1/subjects/:id
func (s *Server) handleGetSubject(c *gin.Context) {
	sub, err := s.deps.GetSubject.Handle(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	response.OK(c, sub)
}

// PATCH /api/v1/subjects/:id
func (s *Server) handleUpdateSubject(c *gin.Context) {
	var req updateSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	sub, err := s.deps.Subjects.Update(c.Request.Context(), command.UpdateSubjectCommand{
		ID:                 c.Param("id"),
		Name:               req.Name,
		RequiredAttendance: req.RequiredAttendance,
		ParentID:           req.ParentID,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	response.OK(c, sub)
}

// DELETE /api/v1/subjects/:id
func (s *Server) handleDeleteSubject(c *gin.Context) {
	ids, err := s.deps.Subjects.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": ids})
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type setScheduleRequest struct {
	// Weekdays uses time.Weekday numbering: 0 is Sunday.
	Weekdays []int `json:"weekdays"`
}

// GET /api/v1/subjects/:id/schedule
func (s *Server) handleGetSchedule(c *gin.Context) {
	entries, err := s.deps.Schedule.Handle(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	response.List(c, entries, len(entries))
}

// PUT /api/v1/subjects/:id/schedule
func (s *Server) handleSetSchedule(c *gin.Context) {
	var req setScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	days := make([]time.Weekday, len(req.Weekdays))
	for i, d := range req.Weekdays {
		days[i] = time.Weekday(d)
	}

	entries, err := s.deps.Subjects.SetSchedule(c.Request.Context(), command.SetScheduleCommand{
		SubjectID: c.Param("id"),
		Weekdays:  days,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	response.List(c, entries, len(entries))
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type markStatusRequest struct {
	// Date is YYYY-MM-DD; empty means today.
	Date   string `json:"date"`
	Status string `json:"status" binding:"required"`
}

type setStatusRequest struct {
	Status      string `json:"status" binding:"required"`
	RepeatCount int    `json:"repeat_count"`
}

// MarkResponse is returned by the mark endpoint.
type MarkResponse struct {
	SubjectID  string              `json:"subject_id"`
	Date       string              `json:"date"`
	Transition string              `json:"transition"`
	Record     attendance.Record   `json:"record"`
	Counters   attendance.Counters `json:"counters"`
	Action     attendance.Action   `json:"action"`
}

// POST /api/v1/subjects/:id/attendance
func (s *Server) handleMarkStatus(c *gin.Context) {
	var req markStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		s.writeError(c, err)
		return
	}
	var date time.Time
	if req.Date != "" {
		if date, err = timeutil.ParseDate(req.Date); err != nil {
			response.BadRequest(c, "date must be YYYY-MM-DD")
			return
		}
	}

	res, err := s.deps.Engine.MarkStatus(c.Request.Context(), command.MarkStatusCommand{
		SubjectID: c.Param("id"),
		Date:      date,
		Status:    status,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	response.OK(c, MarkResponse{
		SubjectID:  res.SubjectID,
		Date:       timeutil.FormatDate(res.Date),
		Transition: res.Kind.String(),
		Record:     res.Record,
		Counters:   res.Counters,
		Action:     res.Action,
	})
}

// PUT /api/v1/subjects/:id/attendance/:date
//
// Writes the record as given. Counters and history are not touched.
func (s *Server) handleSetStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	date, err := timeutil.ParseDate(c.Param("date"))
	if err != nil {
		response.BadRequest(c, "date must be YYYY-MM-DD")
		return
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		s.writeError(c, err)
		return
	}
	repeat := req.RepeatCount
	if repeat == 0 {
		repeat = 1
	}

	rec, err := s.deps.Engine.SetStatusWithoutReconciliation(c.Request.Context(), command.SetStatusCommand{
		SubjectID:   c.Param("id"),
		Date:        date,
		Status:      status,
		RepeatCount: repeat,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	response.OK(c, rec)
}

// GET /api/v1/subjects/:id/records?from=...&to=...
func (s *Server) handleListSubjectRecords(c *gin.Context) {
	s.listRecords(c, c.Param("id"))
}

// GET /api/v1/records?from=...&to=...
func (s *Server) handleListRecords(c *gin.Context) {
	s.listRecords(c, c.Query("subject_id"))
}

func (s *Server) listRecords(c *gin.Context, subjectID string) {
	from, ok := dateQuery(c, "from")
	if !ok {
		return
	}
	to, ok := dateQuery(c, "to")
	if !ok {
		return
	}

	recs, err := s.deps.Records.Handle(c.Request.Context(), query.ListRecordsQuery{
		SubjectID: subjectID,
		From:      from,
		To:        to,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	response.List(c, recs, len(recs))
}

// GET /api/v1/subjects/:id/analytics?horizon_end=...
func (s *Server) handleAnalytics(c *gin.Context) {
	horizon, ok := dateQuery(c, "horizon_end")
	if !ok {
		return
	}

	report, err := s.deps.Analytics.Handle(c.Request.Context(), query.BuildAnalyticsQuery{
		SubjectID:  c.Param("id"),
		HorizonEnd: horizon,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	response.OK(c, report)
}

// ══════════════════════════════════════════════════════════════════════════════
// HISTORY HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// HistoryResponse is returned by undo and redo. Applied is false when the
// stack was empty.
type HistoryResponse struct {
	Applied  bool                 `json:"applied"`
	Action   *attendance.Action   `json:"action,omitempty"`
	Counters *attendance.Counters `json:"counters,omitempty"`
	Record   *attendance.Record   `json:"record,omitempty"`
	CanUndo  bool                 `json:"can_undo"`
	CanRedo  bool                 `json:"can_redo"`
}

// HistoryStateResponse is returned by GET /history.
type HistoryStateResponse struct {
	ledger.State
	CanUndo bool `json:"can_undo"`
	CanRedo bool `json:"can_redo"`
}

// POST /api/v1/history/undo
func (s *Server) handleUndo(c *gin.Context) {
	res, ok, err := s.deps.Engine.Undo(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	response.OK(c, s.historyResponse(res, ok))
}

// POST /api/v1/history/redo
func (s *Server) handleRedo(c *gin.Context) {
	res, ok, err := s.deps.Engine.Redo(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	response.OK(c, s.historyResponse(res, ok))
}

// GET /api/v1/history
func (s *Server) handleGetHistory(c *gin.Context) {
	st := s.deps.Engine.History()
	response.OK(c, HistoryStateResponse{State: st, CanUndo: st.CanUndo(), CanRedo: st.CanRedo()})
}

// DELETE /api/v1/history
func (s *Server) handleClearHistory(c *gin.Context) {
	s.deps.Engine.ClearHistory()
	c.Status(http.StatusNoContent)
}

func (s *Server) historyResponse(res *command.HistoryResult, ok bool) HistoryResponse {
	l := s.deps.Engine.Ledger()
	out := HistoryResponse{Applied: ok, CanUndo: l.CanUndo(), CanRedo: l.CanRedo()}
	if ok {
		out.Action = &res.Action
		out.Counters = &res.Counters
		out.Record = res.Record
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeError maps a domain error to a status and envelope. Only 5xx
// responses are logged here; the access log covers the rest.
func (s *Server) writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	message := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) {
		message = de.Message
	}

	switch {
	case shared.IsNotFound(err):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, message)
	case shared.IsAlreadyExists(err):
		response.Error(c, http.StatusConflict, response.CodeConflict, message)
	case shared.IsValidation(err):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, message)
	case shared.IsRetryable(err):
		response.ErrorWithDetails(c, http.StatusConflict, response.CodeConflict,
			"concurrent modification, retry the request", message)
	case shared.IsReconciliation(err):
		response.ErrorWithDetails(c, http.StatusUnprocessableEntity, response.CodeReconciliation,
			"stored attendance is inconsistent", message)
	case errors.Is(err, context.DeadlineExceeded):
		response.Error(c, http.StatusGatewayTimeout, response.CodeTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		response.Error(c, http.StatusServiceUnavailable, response.CodeUnavailable, "request canceled")
	default:
		s.logger.Error("request failed",
			logger.String("path", c.FullPath()),
			logger.String("request_id", handlers.GetRequestID(c)),
			logger.Err(err),
		)
		response.InternalError(c)
	}
}

// dateQuery parses an optional YYYY-MM-DD query parameter. On a bad value
// it writes 400 and returns ok=false.
func dateQuery(c *gin.Context, key string) (time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, true
	}
	d, err := timeutil.ParseDate(v)
	if err != nil {
		response.BadRequest(c, key+" must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}
