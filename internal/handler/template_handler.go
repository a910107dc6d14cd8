package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campaign-mailer-go/internal/repository"
	"campaign-mailer-go/internal/service"
)

// ListTemplates returns one page of templates
func (h *Handlers) ListTemplates(c *gin.Context) {
	archived, ok := queryBool(c, "archived")
	if !ok {
		return
	}
	f := repository.TemplateFilter{
		Search:   c.Query("search"),
		Archived: archived,
		Page:     queryPage(c),
	}

	templates, total, err := h.templates.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newListResponse(templates, f.Page, total))
}

// CreateTemplate creates a template and derives its placeholders
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var req service.TemplateInput
	if !bindJSON(c, &req) {
		return
	}

	t, err := h.templates.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handlers) GetTemplate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	t, err := h.templates.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handlers) UpdateTemplate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.TemplatePatch
	if !bindJSON(c, &req) {
		return
	}

	t, err := h.templates.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// DeleteTemplate deletes an unused template. A template that campaigns still
// reference is archived and returned instead.
func (h *Handlers) DeleteTemplate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	archived, err := h.templates.Delete(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if archived {
		c.JSON(http.StatusOK, gin.H{
			"message":  "Template is used by campaigns and was archived instead",
			"archived": true,
		})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) ArchiveTemplate(c *gin.Context) {
	h.setTemplateArchived(c, true)
}

func (h *Handlers) UnarchiveTemplate(c *gin.Context) {
	h.setTemplateArchived(c, false)
}

func (h *Handlers) setTemplateArchived(c *gin.Context, archived bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	t, err := h.templates.SetArchived(c.Request.Context(), id, archived)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// ExtractPlaceholders lists the placeholders of unsaved template text
func (h *Handlers) ExtractPlaceholders(c *gin.Context) {
	var req PlaceholderRequest
	if !bindJSON(c, &req) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"placeholders": h.templates.ExtractPlaceholders(req.Subject, req.Body),
	})
}
