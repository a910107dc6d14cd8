package handler

import (
	"time"

	"campaign-mailer-go/internal/model"
	"campaign-mailer-go/internal/repository"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Mailer    string            `json:"mailer"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Pagination describes one page of a listing
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalCount int64 `json:"total_count"`
	TotalPages int64 `json:"total_pages"`
}

// ListResponse wraps a page of results
type ListResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

func newListResponse(data interface{}, page repository.Page, total int64) ListResponse {
	page = page.Normalize()
	pages := total / int64(page.PageSize)
	if total%int64(page.PageSize) != 0 {
		pages++
	}
	return ListResponse{
		Data: data,
		Pagination: Pagination{
			Page:       page.Page,
			PageSize:   page.PageSize,
			TotalCount: total,
			TotalPages: pages,
		},
	}
}

// PlaceholderRequest asks for the placeholders of unsaved template text
type PlaceholderRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// PreviewRequest selects the contact a preview is rendered for
type PreviewRequest struct {
	ContactID uint `json:"contactId"`
}

// RecipientStatusRequest records a post-delivery event
type RecipientStatusRequest struct {
	Status model.RecipientStatus `json:"status"`
}

// SendAcceptedResponse is returned when a send was queued
type SendAcceptedResponse struct {
	Message    string `json:"message"`
	CampaignID uint   `json:"campaignId"`
	RequestID  string `json:"requestId"`
}
