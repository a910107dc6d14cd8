package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"campaign-mailer-go/internal/config"
	"campaign-mailer-go/internal/database"
	"campaign-mailer-go/internal/mailer"
	"campaign-mailer-go/internal/metrics"
	"campaign-mailer-go/internal/queue"
	"campaign-mailer-go/internal/repository"
	"campaign-mailer-go/internal/scheduler"
	"campaign-mailer-go/internal/service"
)

type HandlerSuite struct {
	suite.Suite
	router     *gin.Engine
	repos      *repository.Repositories
	dispatcher *queue.Local

	mu     sync.Mutex
	sent   []mailer.Message
	failOn map[string]bool
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	db := database.NewTestDB(s.T())
	s.repos = repository.New(db)
	s.sent = nil
	s.failOn = map[string]bool{}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	transport := mailer.TransportFunc(func(_ context.Context, msg mailer.Message) (string, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failOn[msg.To] {
			return "", errors.New("550 mailbox unavailable")
		}
		s.sent = append(s.sent, msg)
		return fmt.Sprintf("msg-%d", len(s.sent)), nil
	})

	contacts := service.NewContactService(s.repos.Contacts)
	campaigns := service.NewCampaignService(s.repos)
	sender := service.NewCampaignSender(s.repos.Campaigns, transport, m)
	s.dispatcher = queue.NewLocal(context.Background(), func(ctx context.Context, job queue.SendJob) error {
		_, err := sender.SendCampaign(ctx, job.CampaignID)
		return err
	}, m)
	sched := scheduler.New(&config.SchedulerConfig{IntervalMinutes: 1}, campaigns, sender, nil, m)

	h := NewHandlers(Deps{
		DB:         db,
		Templates:  service.NewTemplateService(s.repos.Templates),
		Contacts:   contacts,
		Importer:   service.NewContactImporter(contacts, s.repos.Contacts, m),
		Campaigns:  campaigns,
		Sender:     sender,
		Dispatcher: s.dispatcher,
		Scheduler:  sched,
		Gatherer:   reg,
		Mailer:     "log",
	})

	s.router = gin.New()
	h.SetupRoutes(s.router)
}

func (s *HandlerSuite) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) decode(w *httptest.ResponseRecorder, v interface{}) {
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (s *HandlerSuite) errorOf(w *httptest.ResponseRecorder) ErrorResponse {
	var resp ErrorResponse
	s.decode(w, &resp)
	return resp
}

func (s *HandlerSuite) createTemplate(name string) uint {
	w := s.do(http.MethodPost, "/api/v1/templates", gin.H{
		"name":    name,
		"subject": "Hi {{firstName}}",
		"body":    "<p>Hello {{firstName}} from {{company}}</p>",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		ID uint `json:"id"`
	}
	s.decode(w, &resp)
	return resp.ID
}

func (s *HandlerSuite) createContact(email, first string) uint {
	w := s.do(http.MethodPost, "/api/v1/contacts", gin.H{"email": email, "firstName": first})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		ID uint `json:"id"`
	}
	s.decode(w, &resp)
	return resp.ID
}

func (s *HandlerSuite) createCampaign(templateID uint, contactIDs ...uint) uint {
	w := s.do(http.MethodPost, "/api/v1/campaigns", gin.H{
		"name":       "Spring launch",
		"templateId": templateID,
		"contactIds": contactIDs,
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		ID     uint   `json:"id"`
		Status string `json:"status"`
	}
	s.decode(w, &resp)
	s.Equal("Draft", resp.Status)
	return resp.ID
}

func (s *HandlerSuite) TestHealthz() {
	w := s.do(http.MethodGet, "/healthz", nil)
	s.Equal(http.StatusOK, w.Code)

	var resp HealthResponse
	s.decode(w, &resp)
	s.Equal("ok", resp.Status)
	s.Equal("ok", resp.Database)
	s.Equal("stopped", resp.Metrics["scheduler"])
}

func (s *HandlerSuite) TestMetricsEndpoint() {
	s.createTemplate("welcome")
	w := s.do(http.MethodGet, "/metrics", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "campaign_mailer_send_duration_seconds")
}

func (s *HandlerSuite) TestTemplateLifecycle() {
	id := s.createTemplate("welcome")

	w := s.do(http.MethodGet, fmt.Sprintf("/api/v1/templates/%d", id), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var tpl struct {
		CustomPlaceholders []string `json:"customPlaceholders"`
	}
	s.decode(w, &tpl)
	s.Equal([]string{"firstName", "company"}, tpl.CustomPlaceholders)

	w = s.do(http.MethodPost, "/api/v1/templates", gin.H{"name": "welcome", "subject": "s", "body": "b"})
	s.Equal(http.StatusConflict, w.Code)
	s.Equal("conflict", s.errorOf(w).Error)

	w = s.do(http.MethodPost, "/api/v1/templates", gin.H{"name": "other", "subject": "", "body": "b"})
	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(s.errorOf(w).Message, "subject")

	w = s.do(http.MethodPost, "/api/v1/templates", "{not json")
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPatch, fmt.Sprintf("/api/v1/templates/%d/archive", id), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"archived":true`)

	w = s.do(http.MethodGet, "/api/v1/templates?archived=true", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var list struct {
		Pagination Pagination `json:"pagination"`
	}
	s.decode(w, &list)
	s.EqualValues(1, list.Pagination.TotalCount)

	w = s.do(http.MethodGet, "/api/v1/templates?archived=maybe", nil)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/templates/%d", id), nil)
	s.Equal(http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/v1/templates/%d", id), nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal(ErrorResponse{Error: "not_found", Message: fmt.Sprintf("template %d not found", id), Code: 404}, s.errorOf(w))
}

func (s *HandlerSuite) TestInvalidIDs() {
	for _, path := range []string{"/api/v1/templates/abc", "/api/v1/templates/0", "/api/v1/contacts/-1", "/api/v1/campaigns/1.5"} {
		w := s.do(http.MethodGet, path, nil)
		s.Equal(http.StatusBadRequest, w.Code, path)
		s.Equal("invalid_id", s.errorOf(w).Error, path)
	}

	w := s.do(http.MethodPost, "/api/v1/campaigns/0/send", nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestExtractPlaceholders() {
	w := s.do(http.MethodPost, "/api/v1/templates/placeholders", gin.H{
		"subject": "{{a}} {{{b}}}",
		"body":    "{{ c }} {{a}}",
	})
	s.Require().Equal(http.StatusOK, w.Code)
	var resp struct {
		Placeholders []string `json:"placeholders"`
	}
	s.decode(w, &resp)
	s.Equal([]string{"a", "c"}, resp.Placeholders)
}

func (s *HandlerSuite) TestContactsPaginationAndConflict() {
	for i := 0; i < 3; i++ {
		s.createContact(fmt.Sprintf("user%d@example.com", i), "User")
	}

	w := s.do(http.MethodPost, "/api/v1/contacts", gin.H{"email": "USER0@example.com", "firstName": "Dup"})
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/api/v1/contacts?page=2&page_size=2", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var list struct {
		Data       []map[string]interface{} `json:"data"`
		Pagination Pagination               `json:"pagination"`
	}
	s.decode(w, &list)
	s.Len(list.Data, 1)
	s.Equal(Pagination{Page: 2, PageSize: 2, TotalCount: 3, TotalPages: 2}, list.Pagination)
}

func (s *HandlerSuite) TestSendCampaignSync() {
	tpl := s.createTemplate("welcome")
	ana := s.createContact("ana@example.com", "Ana")
	bo := s.createContact("bo@example.com", "Bo")
	id := s.createCampaign(tpl, ana, bo)
	s.failOn["bo@example.com"] = true

	w := s.do(http.MethodPost, fmt.Sprintf("/api/v1/campaigns/%d/send", id), nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var result service.SendResult
	s.decode(w, &result)
	s.Equal("Campaign sent: 1 succeeded, 1 failed out of 2 recipients", result.Message)
	s.Equal(1, result.Sent)
	s.Equal(1, result.Failed)
	s.Equal(2, result.TotalRecipients)

	s.Require().Len(s.sent, 1)
	s.Equal("Hi Ana", s.sent[0].Subject)
	s.Equal("<p>Hello Ana from </p>", s.sent[0].Body)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/v1/campaigns/%d/stats", id), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var stats service.CampaignStats
	s.decode(w, &stats)
	s.Equal("Partially Sent", string(stats.Status))
	s.EqualValues(1, stats.ByStatus["Sent"])
	s.EqualValues(1, stats.ByStatus["Failed"])

	w = s.do(http.MethodPost, fmt.Sprintf("/api/v1/campaigns/%d/send", id), nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Equal("campaign has no pending recipients", s.errorOf(w).Message)

	w = s.do(http.MethodPut, fmt.Sprintf("/api/v1/campaigns/%d", id), gin.H{"name": "again"})
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/api/v1/campaigns/999/send", nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlerSuite) TestSendCampaignAsync() {
	tpl := s.createTemplate("welcome")
	ana := s.createContact("ana@example.com", "Ana")
	id := s.createCampaign(tpl, ana)

	w := s.do(http.MethodPost, fmt.Sprintf("/api/v1/campaigns/%d/send?async=true", id), nil)
	s.Require().Equal(http.StatusAccepted, w.Code, w.Body.String())
	var accepted SendAcceptedResponse
	s.decode(w, &accepted)
	s.Equal(id, accepted.CampaignID)
	s.NotEmpty(accepted.RequestID)

	s.Require().NoError(s.dispatcher.Close())

	w = s.do(http.MethodGet, fmt.Sprintf("/api/v1/campaigns/%d", id), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"status":"Sent"`)

	// nothing pending any more, so the precheck refuses to queue
	w = s.do(http.MethodPost, fmt.Sprintf("/api/v1/campaigns/%d/send?async=true", id), nil)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, fmt.Sprintf("/api/v1/campaigns/%d/send?async=soon", id), nil)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestPreviewAndRecipientEvents() {
	tpl := s.createTemplate("welcome")
	ana := s.createContact("ana@example.com", "Ana")
	id := s.createCampaign(tpl, ana)

	w := s.do(http.MethodPost, fmt.Sprintf("/api/v1/campaigns/%d/preview", id), gin.H{"contactId": ana})
	s.Require().Equal(http.StatusOK, w.Code)
	var preview service.Preview
	s.decode(w, &preview)
	s.Equal("Hi Ana", preview.Subject)
	s.Equal("ana@example.com", preview.To)
	s.Empty(s.sent)

	path := fmt.Sprintf("/api/v1/campaigns/%d/recipients/%d/status", id, ana)
	w = s.do(http.MethodPut, path, gin.H{"status": "Opened"})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"status":"Opened"`)

	w = s.do(http.MethodPut, path, gin.H{"status": "Sent"})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/v1/campaigns/%d/recipients", id), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"total_count":1`)
}

func (s *HandlerSuite) TestDeleteReferencedEntities() {
	tpl := s.createTemplate("welcome")
	ana := s.createContact("ana@example.com", "Ana")
	id := s.createCampaign(tpl, ana)

	w := s.do(http.MethodDelete, fmt.Sprintf("/api/v1/contacts/%d", ana), nil)
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/templates/%d", tpl), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"archived":true`)

	w = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/campaigns/%d", id), nil)
	s.Equal(http.StatusNoContent, w.Code)

	w = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/contacts/%d", ana), nil)
	s.Equal(http.StatusNoContent, w.Code)
}

func (s *HandlerSuite) TestImportAndExportContacts() {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "contacts.csv")
	s.Require().NoError(err)
	_, err = part.Write([]byte("email,first_name,tags\nana@example.com,Ana,vip\nbad,Bo,\n"))
	s.Require().NoError(err)
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/contacts/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var result service.ImportResult
	s.decode(w, &result)
	s.Equal(2, result.Total)
	s.Equal(1, result.Imported)
	s.Len(result.Errors, 1)

	w = s.do(http.MethodPost, "/api/v1/contacts/import", nil)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/contacts/export?tag=vip", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(xlsxContentType, w.Header().Get("Content-Type"))
	s.True(strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment;"))
	s.NotZero(w.Body.Len())
}

func (s *HandlerSuite) TestSchedulerEndpoints() {
	tpl := s.createTemplate("welcome")
	ana := s.createContact("ana@example.com", "Ana")
	w := s.do(http.MethodPost, "/api/v1/campaigns", gin.H{
		"name":        "due",
		"templateId":  tpl,
		"contactIds":  []uint{ana},
		"scheduledAt": "2020-01-01T00:00:00Z",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	s.Contains(w.Body.String(), `"status":"Scheduled"`)

	w = s.do(http.MethodPost, "/api/v1/scheduler/run-once", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var report scheduler.RunReport
	s.decode(w, &report)
	s.Equal(1, report.Due)
	s.Len(report.Sent, 1)
	s.Len(s.sent, 1)

	w = s.do(http.MethodPost, "/api/v1/scheduler/start", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	w = s.do(http.MethodPost, "/api/v1/scheduler/start", nil)
	s.Equal(http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, "/api/v1/scheduler/status", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"status":"running"`)

	w = s.do(http.MethodPost, "/api/v1/scheduler/stop", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"status":"stopped"`)
}
