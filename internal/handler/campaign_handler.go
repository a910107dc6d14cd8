package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"campaign-mailer-go/internal/apperrors"
	"campaign-mailer-go/internal/model"
	"campaign-mailer-go/internal/repository"
	"campaign-mailer-go/internal/service"
)

// ListCampaigns returns one page of campaigns, optionally filtered by status
func (h *Handlers) ListCampaigns(c *gin.Context) {
	f := repository.CampaignFilter{
		Status: model.CampaignStatus(c.Query("status")),
		Page:   queryPage(c),
	}

	campaigns, total, err := h.campaigns.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newListResponse(campaigns, f.Page, total))
}

func (h *Handlers) CreateCampaign(c *gin.Context) {
	var req service.CampaignInput
	if !bindJSON(c, &req) {
		return
	}

	campaign, err := h.campaigns.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

func (h *Handlers) GetCampaign(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	campaign, err := h.campaigns.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

func (h *Handlers) UpdateCampaign(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.CampaignPatch
	if !bindJSON(c, &req) {
		return
	}

	campaign, err := h.campaigns.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

func (h *Handlers) DeleteCampaign(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.campaigns.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) GetCampaignStats(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	stats, err := h.campaigns.Stats(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handlers) ListCampaignRecipients(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	page := queryPage(c)

	recipients, total, err := h.campaigns.Recipients(c.Request.Context(), id, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newListResponse(recipients, page, total))
}

// PreviewCampaign renders the campaign for one contact without sending
func (h *Handlers) PreviewCampaign(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req PreviewRequest
	if !bindJSON(c, &req) {
		return
	}

	preview, err := h.campaigns.Preview(c.Request.Context(), id, req.ContactID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

// SendCampaign sends to every pending recipient and returns the summary.
// With ?async=true the send is checked, queued and acknowledged with 202.
func (h *Handlers) SendCampaign(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	async := false
	if raw := c.Query("async"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "Invalid async: must be true or false")
			return
		}
		async = v
	}

	if !async {
		result, err := h.sender.SendCampaign(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	if h.dispatcher == nil {
		respondError(c, apperrors.Validation("asynchronous sending is not enabled"))
		return
	}
	if _, err := h.sender.ValidateSendable(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	job, err := h.dispatcher.PublishSend(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"campaign_id": id,
		"request_id":  job.RequestID,
	}).Info("Campaign send accepted")
	c.JSON(http.StatusAccepted, SendAcceptedResponse{
		Message:    "Campaign send queued",
		CampaignID: id,
		RequestID:  job.RequestID,
	})
}

// UpdateRecipientStatus records an Opened, Clicked or Bounced event
func (h *Handlers) UpdateRecipientStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	contactID, ok := pathID(c, "contactId")
	if !ok {
		return
	}
	var req RecipientStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	recipient, err := h.campaigns.RecordEvent(c.Request.Context(), id, contactID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, recipient)
}
