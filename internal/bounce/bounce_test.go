package bounce

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-mailer-go/internal/database"
	"campaign-mailer-go/internal/metrics"
	"campaign-mailer-go/internal/model"
	"campaign-mailer-go/internal/repository"
)

const dsnReport = `From: Mail Delivery System <MAILER-DAEMON@mx.example.com>
To: campaigns@example.com
Subject: Undelivered Mail Returned to Sender
Message-Id: <dsn-1@mx.example.com>
MIME-Version: 1.0
Content-Type: multipart/report; report-type=delivery-status; boundary="BOUNDARY"

--BOUNDARY
Content-Type: text/plain; charset=us-ascii

Your message could not be delivered to one or more recipients.

--BOUNDARY
Content-Type: message/delivery-status

Reporting-MTA: dns; mx.example.com
Arrival-Date: Mon, 1 Apr 2024 10:00:00 +0000

Final-Recipient: rfc822; Ana@Example.com
Original-Recipient: rfc822;ana@example.com
Action: failed
Status: 5.1.1

Final-Recipient: rfc822; slow@example.com
Action: delayed
Status: 4.4.1

--BOUNDARY--
`

const eximBounce = `From: Mail Delivery System <Mailer-Daemon@relay.example.com>
To: campaigns@example.com
Subject: Mail delivery failed: returning message to sender
Message-Id: <exim-7@relay.example.com>
X-Failed-Recipients: bo@example.com, <CY@example.com>
Content-Type: text/plain; charset=us-ascii

This message was created automatically by mail delivery software.
`

const returnedHeadersReport = `From: MAILER-DAEMON@mx.example.com
To: campaigns@example.com
Subject: Delivery Status Notification (Failure)
Message-Id: <dsn-2@mx.example.com>
MIME-Version: 1.0
Content-Type: multipart/report; report-type=delivery-status; boundary="B2"

--B2
Content-Type: text/plain; charset=us-ascii

Delivery to ana@example.com failed permanently.

--B2
Content-Type: message/delivery-status

Reporting-MTA: dns; mx.example.com

Final-Recipient: rfc822; ana@example.com
Action: failed
Status: 5.1.1

--B2
Content-Type: text/rfc822-headers

From: campaigns@example.com
To: ana@example.com
Subject: Hi Ana
Message-ID: <jan-ana@mg.example.com>

--B2--
`

const plainReply = `From: Ana <ana@example.com>
To: campaigns@example.com
Subject: Re: Spring launch
Message-Id: <reply-1@example.com>
Content-Type: text/plain; charset=us-ascii

Thanks!
`

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		messageID string
		want      []string
		original  []string
	}{
		{"delivery status report", dsnReport, "<dsn-1@mx.example.com>", []string{"ana@example.com"}, nil},
		{"x-failed-recipients header", eximBounce, "<exim-7@relay.example.com>", []string{"bo@example.com", "cy@example.com"}, nil},
		{"ordinary reply", plainReply, "<reply-1@example.com>", []string{}, nil},
		{"returned headers", returnedHeadersReport, "<dsn-2@mx.example.com>", []string{"ana@example.com"}, []string{"<jan-ana@mg.example.com>"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := Parse(strings.NewReader(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.messageID, report.MessageID)
			assert.Equal(t, tt.want, report.Recipients)
			assert.Equal(t, tt.original, report.OriginalMessageIDs)
		})
	}
}

func TestParseMalformedHeader(t *testing.T) {
	_, err := Parse(strings.NewReader(" leading space\n\nbody"))
	assert.Error(t, err)
}

type fakeMailbox struct {
	messages []RawMessage
	seen     []uint32
	closed   bool
}

func (m *fakeMailbox) Unread(context.Context) ([]RawMessage, error) { return m.messages, nil }

func (m *fakeMailbox) MarkSeen(_ context.Context, uids []uint32) error {
	m.seen = append(m.seen, uids...)
	return nil
}

func (m *fakeMailbox) Close() error {
	m.closed = true
	return nil
}

func dialer(mb Mailbox) Dialer {
	return func(context.Context) (Mailbox, error) { return mb, nil }
}

func seedSentCampaign(t *testing.T, repos *repository.Repositories, emails ...string) *model.Campaign {
	t.Helper()
	ctx := context.Background()

	tpl := &model.Template{Name: "t", Subject: "s", Body: "b"}
	require.NoError(t, repos.Templates.Create(ctx, tpl))

	ids := make([]uint, 0, len(emails))
	for _, email := range emails {
		c := &model.Contact{Email: email, FirstName: "x"}
		require.NoError(t, repos.Contacts.Create(ctx, c))
		ids = append(ids, c.ID)
	}

	camp := &model.Campaign{Name: "c", TemplateID: tpl.ID, Status: model.CampaignDraft}
	require.NoError(t, repos.Campaigns.Create(ctx, camp, ids))
	for _, id := range ids {
		_, err := repos.Campaigns.UpdateRecipientStatus(ctx, camp.ID, id, repository.RecipientUpdate{Status: model.RecipientSent})
		require.NoError(t, err)
	}
	require.NoError(t, repos.Campaigns.UpdateCampaignStatus(ctx, camp.ID, model.CampaignSent))
	return camp
}

func TestSweepMarksBouncedOnce(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(database.NewTestDB(t))
	camp := seedSentCampaign(t, repos, "ana@example.com", "bo@example.com", "dee@example.com")

	mb := &fakeMailbox{messages: []RawMessage{
		{UID: 1, Body: []byte(dsnReport)},
		{UID: 2, Body: []byte(eximBounce)},
		{UID: 3, Body: []byte(plainReply)},
	}}
	sweeper := NewSweeper(dialer(mb), repos.Campaigns, repos.Bounces, metrics.NewNopMetrics())

	res, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Messages)
	assert.Equal(t, 2, res.Reports)
	assert.Equal(t, 1, res.Ignored)
	assert.EqualValues(t, 2, res.Bounced)
	assert.Equal(t, []uint32{1, 2, 3}, mb.seen)
	assert.True(t, mb.closed)

	stats, err := repos.Campaigns.RecipientStats(ctx, camp.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats[model.RecipientBounced])
	assert.EqualValues(t, 1, stats[model.RecipientSent])

	// the same notification delivered again is recognised and not recounted
	mb2 := &fakeMailbox{messages: []RawMessage{{UID: 9, Body: []byte(dsnReport)}}}
	res, err = NewSweeper(dialer(mb2), repos.Campaigns, repos.Bounces, nil).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Duplicates)
	assert.EqualValues(t, 0, res.Bounced)
	assert.Equal(t, []uint32{9}, mb2.seen)
}

func TestSweepBouncesOnlyTheReturnedMessage(t *testing.T) {
	ctx := context.Background()
	repos := repository.New(database.NewTestDB(t))

	tpl := &model.Template{Name: "t", Subject: "s", Body: "b"}
	require.NoError(t, repos.Templates.Create(ctx, tpl))
	ana := &model.Contact{Email: "ana@example.com", FirstName: "Ana"}
	require.NoError(t, repos.Contacts.Create(ctx, ana))

	january := &model.Campaign{Name: "january", TemplateID: tpl.ID, Status: model.CampaignDraft}
	february := &model.Campaign{Name: "february", TemplateID: tpl.ID, Status: model.CampaignDraft}
	for _, c := range []*model.Campaign{january, february} {
		require.NoError(t, repos.Campaigns.Create(ctx, c, []uint{ana.ID}))
		_, err := repos.Campaigns.UpdateRecipientStatus(ctx, c.ID, ana.ID, repository.RecipientUpdate{
			Status:    model.RecipientSent,
			MessageID: "<" + c.Name[:3] + "-ana@mg.example.com>",
		})
		require.NoError(t, err)
	}

	mb := &fakeMailbox{messages: []RawMessage{{UID: 1, Body: []byte(returnedHeadersReport)}}}
	res, err := NewSweeper(dialer(mb), repos.Campaigns, repos.Bounces, nil).Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Bounced)

	stats, err := repos.Campaigns.RecipientStats(ctx, january.ID)
	require.NoError(t, err)
	assert.Equal(t, map[model.RecipientStatus]int64{model.RecipientBounced: 1}, stats)

	stats, err = repos.Campaigns.RecipientStats(ctx, february.ID)
	require.NoError(t, err)
	assert.Equal(t, map[model.RecipientStatus]int64{model.RecipientSent: 1}, stats)
}

type failingRecipients struct{}

func (failingRecipients) MarkBounced(context.Context, string, []string) (int64, error) {
	return 0, errors.New("database is locked")
}

func TestSweepLeavesFailedMessagesUnread(t *testing.T) {
	repos := repository.New(database.NewTestDB(t))
	mb := &fakeMailbox{messages: []RawMessage{
		{UID: 4, Body: []byte(dsnReport)},
		{UID: 5, Body: []byte(plainReply)},
	}}

	res, err := NewSweeper(dialer(mb), failingRecipients{}, repos.Bounces, nil).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Reports)
	assert.Equal(t, []uint32{5}, mb.seen)

	done, err := repos.Bounces.IsProcessed(context.Background(), "<dsn-1@mx.example.com>")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestSweepDialError(t *testing.T) {
	dial := func(context.Context) (Mailbox, error) { return nil, errors.New("connection refused") }
	_, err := NewSweeper(dial, failingRecipients{}, nil, nil).Sweep(context.Background())
	assert.EqualError(t, err, "connection refused")
}
