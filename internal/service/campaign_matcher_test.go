package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/queue"
	"github.com/unclebandit/mailflow/internal/repository"
	"github.com/unclebandit/mailflow/internal/service"
)

func seededCampaigns() *repository.MemoryCampaignRepository {
	return repository.NewMemoryCampaignRepository(
		&model.Campaign{ID: 7, Name: "VIP welcome", TriggerTag: "vip", TemplateID: 3, Active: true},
		&model.Campaign{ID: 8, Name: "VIP upsell", TriggerTag: "VIP", TemplateID: 4, Active: true},
		&model.Campaign{ID: 9, Name: "VIP archived", TriggerTag: "vip", TemplateID: 5, Active: false},
		&model.Campaign{ID: 10, Name: "Churn", TriggerTag: "churn-risk", TemplateID: 6, Active: true},
	)
}

func newMatcher(t *testing.T, pub queue.Publisher) *service.CampaignMatcher {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return &service.CampaignMatcher{
		Campaigns: seededCampaigns(),
		Publisher: pub,
		Metrics:   &countingSink{},
		Log:       zaptest.NewLogger(t),
		Now:       func() time.Time { return now },
	}
}

func TestFanOutPublishesOneTriggerPerActiveCampaign(t *testing.T) {
	bus := &recordingPublisher{}
	m := newMatcher(t, bus)

	triggers, err := m.FanOut(context.Background(), "src-1", model.ContactTaggedEvent{ContactID: 42, Tag: "  VIP "})

	require.NoError(t, err)
	require.Len(t, triggers, 2)
	assert.Equal(t, model.TriggerEvent{CampaignID: 7, ContactID: 42, TemplateID: 3, EventID: "src-1:7", Timestamp: triggers[0].Timestamp}, triggers[0])
	assert.Equal(t, int64(8), triggers[1].CampaignID)
	assert.Equal(t, int64(4), triggers[1].TemplateID)
	assert.Equal(t, "src-1:8", triggers[1].EventID)

	require.Len(t, bus.events, 2)
	for i, p := range bus.events {
		assert.Equal(t, queue.TopicCampaignTriggered, p.topic)
		assert.Equal(t, triggers[i].EventID, p.env.EventID)
		var got model.TriggerEvent
		require.NoError(t, p.env.Decode(queue.KindCampaignTriggered, &got))
		assert.Equal(t, triggers[i].CampaignID, got.CampaignID)
	}
}

func TestFanOutWithoutMatchPublishesNothing(t *testing.T) {
	bus := &recordingPublisher{}
	m := newMatcher(t, bus)

	triggers, err := m.FanOut(context.Background(), "src-2", model.ContactTaggedEvent{ContactID: 42, Tag: "newsletter"})

	require.NoError(t, err)
	assert.Empty(t, triggers)
	assert.Empty(t, bus.events)
}

func TestFanOutWithoutSourceIDGeneratesEventIDs(t *testing.T) {
	m := newMatcher(t, &recordingPublisher{})

	triggers, err := m.FanOut(context.Background(), "", model.ContactTaggedEvent{ContactID: 42, Tag: "vip"})

	require.NoError(t, err)
	require.Len(t, triggers, 2)
	assert.NotEmpty(t, triggers[0].EventID)
	assert.NotEqual(t, triggers[0].EventID, triggers[1].EventID)
}

func TestFanOutReturnsPublishErrors(t *testing.T) {
	boom := errors.New("broker down")
	m := newMatcher(t, &recordingPublisher{err: boom})

	triggers, err := m.FanOut(context.Background(), "src-3", model.ContactTaggedEvent{ContactID: 42, Tag: "vip"})

	assert.ErrorIs(t, err, boom)
	assert.Empty(t, triggers)
}

func TestMatcherHandleRejectsWrongKind(t *testing.T) {
	m := newMatcher(t, &recordingPublisher{})
	env, err := queue.NewEnvelope(queue.KindEmailSent, model.StatusEvent{})
	require.NoError(t, err)

	assert.ErrorIs(t, m.Handle(context.Background(), env), queue.ErrUnexpectedKind)
}

type recordingDeliverer struct {
	mu    sync.Mutex
	calls []model.TriggerEvent
}

func (d *recordingDeliverer) Deliver(_ context.Context, campaignID, contactID, templateID int64) *model.Email {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, model.TriggerEvent{CampaignID: campaignID, ContactID: contactID, TemplateID: templateID})
	return &model.Email{CampaignID: campaignID, ContactID: contactID, TemplateID: templateID, Status: model.StatusSent}
}

type mapDeduplicator struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (d *mapDeduplicator) FirstSeen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func TestTriggerConsumerSkipsDuplicates(t *testing.T) {
	deliverer := &recordingDeliverer{}
	sink := &countingSink{}
	c := &service.TriggerConsumer{
		Delivery: deliverer,
		Dedupe:   &mapDeduplicator{seen: map[string]bool{}},
		Metrics:  sink,
		Log:      zaptest.NewLogger(t),
	}
	ev := model.TriggerEvent{CampaignID: 7, ContactID: 42, TemplateID: 3, EventID: "src-1:7"}

	first := c.Process(context.Background(), ev)
	second := c.Process(context.Background(), ev)

	require.NotNil(t, first)
	assert.Nil(t, second)
	assert.Len(t, deliverer.calls, 1)
	assert.Equal(t, int32(1), sink.duplicates.Load())
	assert.Equal(t, "trigger:7:42:3:src-1:7", service.TriggerKey(ev))
}

func TestTriggerConsumerFailsOpen(t *testing.T) {
	deliverer := &recordingDeliverer{}
	c := &service.TriggerConsumer{
		Delivery: deliverer,
		Dedupe:   &mapDeduplicator{err: errors.New("redis: connection refused")},
		Metrics:  &countingSink{},
		Log:      zaptest.NewLogger(t),
	}
	ev := model.TriggerEvent{CampaignID: 7, ContactID: 42, TemplateID: 3, EventID: "src-1:7"}

	c.Process(context.Background(), ev)
	c.Process(context.Background(), ev)

	assert.Len(t, deliverer.calls, 2)
}

func TestTriggerConsumerWithoutEventIDIsNotDeduped(t *testing.T) {
	deliverer := &recordingDeliverer{}
	c := &service.TriggerConsumer{
		Delivery: deliverer,
		Dedupe:   &mapDeduplicator{seen: map[string]bool{}},
		Metrics:  &countingSink{},
		Log:      zaptest.NewLogger(t),
	}
	ev := model.TriggerEvent{CampaignID: 7, ContactID: 42, TemplateID: 3}

	c.Process(context.Background(), ev)
	c.Process(context.Background(), ev)

	assert.Len(t, deliverer.calls, 2)
}

func TestTriggerConsumerHandleUsesEnvelopeEventID(t *testing.T) {
	deliverer := &recordingDeliverer{}
	dedupe := &mapDeduplicator{seen: map[string]bool{}}
	c := &service.TriggerConsumer{Delivery: deliverer, Dedupe: dedupe, Metrics: &countingSink{}, Log: zaptest.NewLogger(t)}

	env, err := queue.NewEnvelope(queue.KindCampaignTriggered, model.TriggerEvent{CampaignID: 7, ContactID: 42, TemplateID: 3})
	require.NoError(t, err)

	require.NoError(t, c.Handle(context.Background(), env))
	require.NoError(t, c.Handle(context.Background(), env))

	assert.Len(t, deliverer.calls, 1)
	assert.True(t, dedupe.seen["trigger:7:42:3:"+env.EventID])
}
