package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fooocus-orchestrator/internal/catalog"
	"fooocus-orchestrator/internal/config"
	"fooocus-orchestrator/internal/configeditor"
	"fooocus-orchestrator/internal/coordinator"
	"fooocus-orchestrator/internal/history"
	"fooocus-orchestrator/internal/monitoring"
	"fooocus-orchestrator/internal/progressbus"
	"fooocus-orchestrator/internal/scheduler"
	"fooocus-orchestrator/pkg/types"
)

// Handler performs no business logic of its own: it validates request
// shape and delegates straight into the Scheduler, Task Coordinator,
// and Catalog/History readers.
type Handler struct {
	coordinator *coordinator.Coordinator
	scheduler   *scheduler.Scheduler
	catalog     *catalog.Reader
	history     *history.Reader
	editor      *configeditor.Editor
	healthCheck *monitoring.HealthChecker
	historyCfg  config.HistoryConfig
	ws          *progressWebSocket
	logger      *zap.Logger
}

func NewHandler(
	coord *coordinator.Coordinator,
	sched *scheduler.Scheduler,
	catalogReader *catalog.Reader,
	historyReader *history.Reader,
	editor *configeditor.Editor,
	healthCheck *monitoring.HealthChecker,
	bus *progressbus.Bus,
	metrics *monitoring.Metrics,
	historyCfg config.HistoryConfig,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		coordinator: coord,
		scheduler:   sched,
		catalog:     catalogReader,
		history:     historyReader,
		editor:      editor,
		healthCheck: healthCheck,
		historyCfg:  historyCfg,
		ws:          newProgressWebSocket(bus, metrics, logger),
		logger:      logger,
	}
}

func (h *Handler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.Snapshot())
}

func (h *Handler) GetGPUs(c *gin.Context) {
	slots := h.scheduler.Slots()

	gpus := make([]types.GPUInfo, len(slots))
	for i, s := range slots {
		gpus[i] = types.GPUInfo{
			Device: s.Device,
			Name:   s.DisplayName,
			Weight: s.Weight,
			Busy:   s.Busy,
			Port:   s.Port,
		}
	}

	c.JSON(http.StatusOK, types.GPUListResponse{
		MultiGPUEnabled: len(slots) > 1,
		GPUCount:        len(slots),
		GPUs:            gpus,
	})
}

func (h *Handler) Generate(c *gin.Context) {
	var req types.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	resp, err := h.coordinator.Submit(c.Request.Context(), &req)
	if err != nil {
		h.logger.Error("failed to submit task", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit task", "details": err.Error()})
		return
	}

	if resp.Error != "" {
		c.JSON(http.StatusOK, resp)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) GetStatus(c *gin.Context) {
	taskID := c.Param("taskId")

	status, ok := h.coordinator.Status(taskID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	c.JSON(http.StatusOK, status)
}

func (h *Handler) Stop(c *gin.Context) {
	c.JSON(http.StatusOK, h.coordinator.StopAll(c.Request.Context()))
}

func (h *Handler) GetHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(h.historyCfg.DefaultLimit)))
	if err != nil || limit < 1 {
		limit = h.historyCfg.DefaultLimit
	}
	if limit > h.historyCfg.MaxLimit {
		limit = h.historyCfg.MaxLimit
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	page, err := h.history.List(limit, offset)
	if err != nil {
		h.logger.Error("failed to list history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list history", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetConfigEditor(c *gin.Context) {
	doc, err := h.editor.Read()
	if err != nil {
		h.logger.Error("failed to read config editor document", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read configuration", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) PostConfigEditor(c *gin.Context) {
	var doc map[string]interface{}
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	if err := h.editor.Write(doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid configuration", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "configuration saved, restart required to apply"})
}

func (h *Handler) Health(c *gin.Context) {
	status := h.healthCheck.CheckHealth(c.Request.Context())

	if status.Status == "healthy" {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, status)
}
