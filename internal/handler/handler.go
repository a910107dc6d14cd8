package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"campaign-mailer-go/internal/queue"
	"campaign-mailer-go/internal/scheduler"
	"campaign-mailer-go/internal/service"
)

// Deps are the collaborators the handlers serve
type Deps struct {
	DB         *gorm.DB
	Templates  *service.TemplateService
	Contacts   *service.ContactService
	Importer   *service.ContactImporter
	Campaigns  *service.CampaignService
	Sender     *service.CampaignSender
	Dispatcher queue.Publisher
	Scheduler  *scheduler.Scheduler
	Gatherer   prometheus.Gatherer
	Mailer     string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	db         *gorm.DB
	templates  *service.TemplateService
	contacts   *service.ContactService
	importer   *service.ContactImporter
	campaigns  *service.CampaignService
	sender     *service.CampaignSender
	dispatcher queue.Publisher
	scheduler  *scheduler.Scheduler
	gatherer   prometheus.Gatherer
	mailer     string
}

// NewHandlers creates new HTTP handlers
func NewHandlers(d Deps) *Handlers {
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handlers{
		db:         d.DB,
		templates:  d.Templates,
		contacts:   d.Contacts,
		importer:   d.Importer,
		campaigns:  d.Campaigns,
		sender:     d.Sender,
		dispatcher: d.Dispatcher,
		scheduler:  d.Scheduler,
		gatherer:   gatherer,
		mailer:     d.Mailer,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.GET("/templates", h.ListTemplates)
		api.POST("/templates", h.CreateTemplate)
		api.POST("/templates/placeholders", h.ExtractPlaceholders)
		api.GET("/templates/:id", h.GetTemplate)
		api.PUT("/templates/:id", h.UpdateTemplate)
		api.DELETE("/templates/:id", h.DeleteTemplate)
		api.PATCH("/templates/:id/archive", h.ArchiveTemplate)
		api.PATCH("/templates/:id/unarchive", h.UnarchiveTemplate)

		api.GET("/contacts", h.ListContacts)
		api.POST("/contacts", h.CreateContact)
		api.POST("/contacts/import", h.ImportContacts)
		api.GET("/contacts/export", h.ExportContacts)
		api.GET("/contacts/:id", h.GetContact)
		api.PUT("/contacts/:id", h.UpdateContact)
		api.DELETE("/contacts/:id", h.DeleteContact)
		api.PATCH("/contacts/:id/archive", h.ArchiveContact)
		api.PATCH("/contacts/:id/unarchive", h.UnarchiveContact)

		api.GET("/campaigns", h.ListCampaigns)
		api.POST("/campaigns", h.CreateCampaign)
		api.GET("/campaigns/:id", h.GetCampaign)
		api.PUT("/campaigns/:id", h.UpdateCampaign)
		api.DELETE("/campaigns/:id", h.DeleteCampaign)
		api.GET("/campaigns/:id/stats", h.GetCampaignStats)
		api.GET("/campaigns/:id/recipients", h.ListCampaignRecipients)
		api.POST("/campaigns/:id/preview", h.PreviewCampaign)
		api.POST("/campaigns/:id/send", h.SendCampaign)
		api.PUT("/campaigns/:id/recipients/:contactId/status", h.UpdateRecipientStatus)

		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Mailer:    h.mailer,
		Metrics:   make(map[string]string),
	}

	if err := h.db.WithContext(c.Request.Context()).Exec("SELECT 1").Error; err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.scheduler != nil && h.scheduler.IsRunning() {
		response.Metrics["scheduler"] = "running"
		response.Metrics["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
	} else {
		response.Metrics["scheduler"] = "stopped"
	}
	if h.scheduler != nil {
		if last := h.scheduler.GetLastRun(); !last.IsZero() {
			response.Metrics["last_run"] = last.Format(time.RFC3339)
		}
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}
