package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/curriculum-backend/internal/curriculum"
	"github.com/yungbote/curriculum-backend/internal/http/response"
	"github.com/yungbote/curriculum-backend/internal/inference/registry"
	"github.com/yungbote/curriculum-backend/internal/platform/apierr"
	"github.com/yungbote/curriculum-backend/internal/platform/logger"
	"github.com/yungbote/curriculum-backend/internal/services"
)

const defaultHeartbeat = 15 * time.Second

type GenerationHandler struct {
	log       *logger.Logger
	svc       services.GenerationService
	heartbeat time.Duration
}

func NewGenerationHandler(log *logger.Logger, svc services.GenerationService) *GenerationHandler {
	return &GenerationHandler{
		log:       log.With("handler", "GenerationHandler"),
		svc:       svc,
		heartbeat: defaultHeartbeat,
	}
}

// generateRequest accepts both JSON bodies and HTML form posts.
type generateRequest struct {
	Grade                int    `json:"grade" form:"grade"`
	Subject              string `json:"subject" form:"subject"`
	Topic                string `json:"topic" form:"topic"`
	SessionLengthMinutes int    `json:"session_length_minutes" form:"session_length"`
	NumDays              int    `json:"num_days" form:"num_days"`
	LearningGoalType     string `json:"learning_goal_type" form:"learning_goal_type"`
	GroupFormat          string `json:"group_format" form:"group_format"`
	PedagogicalApproach  string `json:"pedagogical_approach" form:"pedagogical_approach"`
	IncludeUDLDocs       bool   `json:"include_udl_docs" form:"include_udl_docs"`
	Model                string `json:"model" form:"model"`
	Strategy             string `json:"strategy" form:"strategy"`
}

func (r generateRequest) toRequest() curriculum.Request {
	return curriculum.Request{
		Grade:                r.Grade,
		Subject:              r.Subject,
		Topic:                r.Topic,
		SessionLengthMinutes: r.SessionLengthMinutes,
		NumDays:              r.NumDays,
		LearningGoalType:     r.LearningGoalType,
		GroupFormat:          r.GroupFormat,
		PedagogicalApproach:  r.PedagogicalApproach,
		IncludeUDLDocs:       r.IncludeUDLDocs,
		Model:                r.Model,
		Strategy:             r.Strategy,
	}
}

func (h *GenerationHandler) bind(c *gin.Context) (curriculum.Request, bool) {
	var body generateRequest
	if err := c.ShouldBind(&body); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("invalid request body: %w", err))
		return curriculum.Request{}, false
	}
	req, err := h.svc.Normalize(body.toRequest())
	if err != nil {
		var ve *curriculum.ValidationError
		if errors.As(err, &ve) {
			response.RespondFields(c, "validation_failed", err, ve.Fields)
		} else {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		}
		return curriculum.Request{}, false
	}
	return req, true
}

func (h *GenerationHandler) Generate(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	outcome, err := h.svc.Generate(c.Request.Context(), req)
	if err != nil {
		h.log.Error("Generate failed", "error", err)
		response.RespondAPIError(c, generationError(err))
		return
	}
	c.Set("session_id", outcome.SessionID)
	warnings := outcome.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	response.RespondOK(c, gin.H{
		"success":       true,
		"session_id":    outcome.SessionID,
		"document":      outcome.Document,
		"curriculum":    outcome.Result,
		"warnings":      warnings,
		"model":         outcome.Model,
		"fallback_used": outcome.FallbackUsed,
	})
}

// GenerateStream relays generation events as server-sent events, one
// "data: <json>" message each, with comment heartbeats while the model works.
func (h *GenerationHandler) GenerateStream(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.RespondError(c, http.StatusInternalServerError, "streaming_unsupported", errors.New("streaming unsupported"))
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := c.Request.Context()
	events := h.svc.Stream(ctx, req)
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			if ev.SessionID != "" {
				c.Set("session_id", ev.SessionID)
			}
			b, err := json.Marshal(ev)
			if err != nil {
				h.log.Error("encode event failed", "error", err, "type", ev.Type)
				continue
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		}
	}
}

// generationError keeps internal detail out of the response body.
func generationError(err error) *apierr.Error {
	msg := errors.New(curriculum.UserMessage(err))
	if errors.Is(err, registry.ErrUnknownModel) {
		return apierr.BadRequest("unknown_model", msg)
	}
	return apierr.New(http.StatusInternalServerError, "generation_failed", msg)
}

func (h *GenerationHandler) Models(c *gin.Context) {
	response.RespondOK(c, gin.H{"models": h.svc.Models()})
}

func (h *GenerationHandler) ListSessions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := h.svc.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("ListSessions failed", "error", err)
		response.RespondError(c, http.StatusInternalServerError, "load_sessions_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"sessions": runs})
}

func (h *GenerationHandler) GetSession(c *gin.Context) {
	run, err := h.svc.GetRun(c.Request.Context(), c.Param("id"))
	if errors.Is(err, services.ErrRunNotFound) {
		response.RespondError(c, http.StatusNotFound, "session_not_found", err)
		return
	}
	if err != nil {
		h.log.Error("GetSession failed", "error", err, "session_id", c.Param("id"))
		response.RespondError(c, http.StatusInternalServerError, "load_session_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"session": run})
}
