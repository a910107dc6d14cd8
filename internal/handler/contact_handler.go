package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campaign-mailer-go/internal/repository"
	"campaign-mailer-go/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func contactFilter(c *gin.Context) (repository.ContactFilter, bool) {
	archived, ok := queryBool(c, "archived")
	if !ok {
		return repository.ContactFilter{}, false
	}
	return repository.ContactFilter{
		Search:   c.Query("search"),
		Tag:      c.Query("tag"),
		Archived: archived,
		Page:     queryPage(c),
	}, true
}

// ListContacts returns one page of contacts
func (h *Handlers) ListContacts(c *gin.Context) {
	f, ok := contactFilter(c)
	if !ok {
		return
	}

	contacts, total, err := h.contacts.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newListResponse(contacts, f.Page, total))
}

func (h *Handlers) CreateContact(c *gin.Context) {
	var req service.ContactInput
	if !bindJSON(c, &req) {
		return
	}

	contact, err := h.contacts.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contact)
}

func (h *Handlers) GetContact(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	contact, err := h.contacts.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (h *Handlers) UpdateContact(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.ContactPatch
	if !bindJSON(c, &req) {
		return
	}

	contact, err := h.contacts.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (h *Handlers) DeleteContact(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.contacts.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) ArchiveContact(c *gin.Context) {
	h.setContactArchived(c, true)
}

func (h *Handlers) UnarchiveContact(c *gin.Context) {
	h.setContactArchived(c, false)
}

func (h *Handlers) setContactArchived(c *gin.Context, archived bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	contact, err := h.contacts.SetArchived(c.Request.Context(), id, archived)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

// ImportContacts reads a CSV or XLSX upload from the "file" form field
func (h *Handlers) ImportContacts(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "A CSV or XLSX upload is required in the \"file\" field")
		return
	}

	f, err := header.Open()
	if err != nil {
		respondError(c, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer f.Close()

	result, err := h.importer.Import(c.Request.Context(), header.Filename, f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ExportContacts returns the matching contacts as an XLSX workbook
func (h *Handlers) ExportContacts(c *gin.Context) {
	f, ok := contactFilter(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.importer.ExportXLSX(c.Request.Context(), f, &buf); err != nil {
		respondError(c, err)
		return
	}

	filename := fmt.Sprintf("contacts-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
