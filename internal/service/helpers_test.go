package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/mail"
	"github.com/unclebandit/mailflow/internal/metrics"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/queue"
	"github.com/unclebandit/mailflow/internal/repository"
	"github.com/unclebandit/mailflow/internal/service"
	"github.com/unclebandit/mailflow/internal/testutil"
	"github.com/unclebandit/mailflow/internal/workpool"
)

const baseURL = "http://track.test"

type mockContacts struct {
	mu       sync.Mutex
	contacts map[int64]*model.Contact
	err      error
}

func (m *mockContacts) GetContact(_ context.Context, id int64) (*model.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.contacts[id]
	if !ok {
		return nil, appErrors.NewNotFound("contact", id)
	}
	return c, nil
}

type mockTemplates struct {
	mu        sync.Mutex
	getErr    error
	renderErr error
	nilRender bool
	renders   int
}

func (m *mockTemplates) GetTemplate(_ context.Context, id int64) (*model.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &model.Template{ID: id, Name: "welcome", Subject: "Hi {{firstName}}", Format: model.FormatHTML}, nil
}

func (m *mockTemplates) RenderTemplate(_ context.Context, _ int64, vars map[string]string) (*model.RenderedTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.renders++
	if m.renderErr != nil {
		return nil, m.renderErr
	}
	if m.nilRender {
		return nil, nil
	}
	return &model.RenderedTemplate{
		Subject: "Hi " + vars["firstName"],
		Content: `<html><body><p>Hello ` + vars["fullName"] + `</p><a href="https://shop.test/sale">Shop</a></body></html>`,
	}, nil
}

type mockTransport struct {
	mu   sync.Mutex
	sent []*mail.Message
	err  error
}

func (m *mockTransport) Send(_ context.Context, msg *mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockTransport) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockTransport) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type published struct {
	topic string
	env   queue.Envelope
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, env queue.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{topic: topic, env: env})
	return nil
}

func (p *recordingPublisher) statusEvents(t *testing.T) []model.StatusEvent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.StatusEvent
	for _, e := range p.events {
		if e.topic != queue.TopicEmailEvents {
			continue
		}
		var ev model.StatusEvent
		kind := queue.KindEmailStatus
		if e.env.Kind == queue.KindEmailSent {
			kind = queue.KindEmailSent
		}
		if err := e.env.Decode(kind, &ev); err != nil {
			t.Fatalf("decode status event: %v", err)
		}
		out = append(out, ev)
	}
	return out
}

type countingSink struct {
	metrics.NoopSink
	conflicts  atomic.Int32
	duplicates atomic.Int32
	cycles     atomic.Int32
	succeeded  atomic.Int32
}

func (s *countingSink) VersionConflict()  { s.conflicts.Add(1) }
func (s *countingSink) DuplicateTrigger() { s.duplicates.Add(1) }

func (s *countingSink) RetryCycle(_, succeeded int, _ error) {
	s.cycles.Add(1)
	s.succeeded.Add(int32(succeeded))
}

// racingRepo slips a concurrent write in ahead of the next Update once armed.
type racingRepo struct {
	*repository.MemoryEmailRepository
	armed atomic.Bool
}

func (r *racingRepo) Update(ctx context.Context, e *model.Email) error {
	if r.armed.CompareAndSwap(true, false) {
		other := *e
		if err := r.MemoryEmailRepository.Update(ctx, &other); err != nil {
			return err
		}
	}
	return r.MemoryEmailRepository.Update(ctx, e)
}

type harness struct {
	emails    *racingRepo
	contacts  *mockContacts
	templates *mockTemplates
	transport *mockTransport
	bus       *recordingPublisher
	sink      *countingSink
	clock     *testutil.FakeClock
	pool      *workpool.Pool

	delivery *service.DeliveryService
	tracking *service.TrackingService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	clock := testutil.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	mem := repository.NewMemoryEmailRepository()
	mem.Now = clock.Now

	h := &harness{
		emails: &racingRepo{MemoryEmailRepository: mem},
		contacts: &mockContacts{contacts: map[int64]*model.Contact{
			42: {ID: 42, Email: "ada@example.com", FirstName: "Ada", LastName: "Lovelace"},
		}},
		templates: &mockTemplates{},
		transport: &mockTransport{},
		bus:       &recordingPublisher{},
		sink:      &countingSink{},
		clock:     clock,
		pool:      workpool.New(4),
	}

	status := &service.StatusPublisher{Publisher: h.bus, Metrics: h.sink, Log: log}
	h.delivery = &service.DeliveryService{
		Emails:    h.emails,
		Contacts:  h.contacts,
		Templates: h.templates,
		Transport: h.transport,
		Status:    status,
		Pool:      h.pool,
		Metrics:   h.sink,
		Log:       log,
		BaseURL:   baseURL,
		From:      "campaigns@example.com",
		Now:       clock.Now,
	}
	h.tracking = &service.TrackingService{
		Emails:  h.emails,
		Status:  status,
		Metrics: h.sink,
		Log:     log,
		Now:     clock.Now,
	}
	return h
}

func (h *harness) stored(t *testing.T, id int64) *model.Email {
	t.Helper()
	e, err := h.emails.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("load email %d: %v", id, err)
	}
	return e
}

var errSMTP = errors.New("smtp: 451 temporary failure")
