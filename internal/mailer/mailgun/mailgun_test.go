package mailgun

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-mailer-go/internal/mailer"
)

func TestSendPostsFormToDomain(t *testing.T) {
	var form map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mg.example.com/messages", r.URL.Path)
		// the client posts url-encoded without attachments, multipart with them
		_ = r.ParseMultipartForm(1 << 20)
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"Queued. Thank you.","id":"<20240501.1@mg.example.com>"}`))
	}))
	defer srv.Close()

	tr, err := New("mg.example.com", "key-test",
		SetFrom("news@example.com"),
		SetReplyTo("support@example.com"),
		SetAPIBase(srv.URL+"/v3"),
	)
	require.NoError(t, err)

	id, err := tr.Send(context.Background(), mailer.Message{To: "ana@example.com", Subject: "Hi Ana", Body: "<p>Hello</p>"})
	require.NoError(t, err)
	assert.Equal(t, "<20240501.1@mg.example.com>", id)

	assert.Equal(t, []string{"news@example.com"}, form["from"])
	assert.Equal(t, []string{"ana@example.com"}, form["to"])
	assert.Equal(t, []string{"Hi Ana"}, form["subject"])
	assert.Equal(t, []string{"Hello"}, form["text"])
	assert.Equal(t, []string{"<p>Hello</p>"}, form["html"])
	assert.Equal(t, []string{"support@example.com"}, form["h:Reply-To"])
}

func TestSendWrapsProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr, err := New("mg.example.com", "bad-key", SetFrom("news@example.com"), SetAPIBase(srv.URL+"/v3"))
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), mailer.Message{To: "ana@example.com", Subject: "s", Body: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ana@example.com")
}
