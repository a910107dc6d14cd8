package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"campaign-mailer-go/internal/apperrors"
	"campaign-mailer-go/internal/metrics"
)

type ackRecord struct {
	acked    bool
	nacked   bool
	rejected bool
	requeue  bool
}

func (a *ackRecord) Ack(uint64, bool) error {
	a.acked = true
	return nil
}

func (a *ackRecord) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *ackRecord) Reject(_ uint64, requeue bool) error {
	a.rejected = true
	a.requeue = requeue
	return nil
}

func delivery(t *testing.T, ack *ackRecord, body interface{}, redelivered bool) amqp.Delivery {
	t.Helper()
	raw, ok := body.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	return amqp.Delivery{Acknowledger: ack, Body: raw, Redelivered: redelivered}
}

func TestHandleDelivery(t *testing.T) {
	job := SendJob{CampaignID: 7, RequestID: "req-1"}

	tests := []struct {
		name        string
		body        interface{}
		redelivered bool
		err         error
		want        ackRecord
	}{
		{"success acks", job, false, nil, ackRecord{acked: true}},
		{"missing campaign acks", job, false, apperrors.NotFound("campaign 7 not found"), ackRecord{acked: true}},
		{"nothing pending acks", job, false, apperrors.ErrNoPendingRecipients, ackRecord{acked: true}},
		{"transient failure requeues", job, false, errors.New("database is locked"), ackRecord{nacked: true, requeue: true}},
		{"second failure drops", job, true, errors.New("database is locked"), ackRecord{nacked: true}},
		{"invalid body rejected", []byte("not json"), false, nil, ackRecord{rejected: true}},
		{"zero campaign rejected", SendJob{RequestID: "req-2"}, false, nil, ackRecord{rejected: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &ackRecord{}
			var got *SendJob
			handle := func(_ context.Context, j SendJob) error {
				got = &j
				return tt.err
			}

			handleDelivery(context.Background(), delivery(t, ack, tt.body, tt.redelivered), handle)
			assert.Equal(t, tt.want, *ack)
			if tt.want.rejected {
				assert.Nil(t, got)
			} else {
				require.NotNil(t, got)
				assert.Equal(t, job, *got)
			}
		})
	}
}

func TestLocalRunsJobsInBackground(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var mu sync.Mutex
	var ran []uint
	handle := func(ctx context.Context, j SendJob) error {
		// the publishing request is already gone
		assert.NoError(t, ctx.Err())
		mu.Lock()
		ran = append(ran, j.CampaignID)
		mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	local := NewLocal(ctx, handle, metrics.NewNopMetrics())
	cancel()

	first, err := local.PublishSend(context.Background(), 3)
	require.NoError(t, err)
	second, err := local.PublishSend(context.Background(), 4)
	require.NoError(t, err)
	require.NoError(t, local.Close())

	assert.NotEqual(t, first.RequestID, second.RequestID)
	assert.ElementsMatch(t, []uint{3, 4}, ran)
}
