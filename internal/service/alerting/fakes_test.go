package alerting

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/splax/slaguard/internal/domain"
	"github.com/splax/slaguard/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2024, time.March, 14, 12, 0, 0, 0, time.UTC)

type fakeSettings struct {
	values map[string][]byte
	getErr error
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{values: map[string][]byte{}}
}

func (f *fakeSettings) GetSetting(_ context.Context, key string) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	value, ok := f.values[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return value, nil
}

func (f *fakeSettings) PutSetting(_ context.Context, key string, value []byte) error {
	f.values[key] = value
	return nil
}

func (f *fakeSettings) DeleteSetting(_ context.Context, key string) error {
	if _, ok := f.values[key]; !ok {
		return repository.ErrNotFound
	}
	delete(f.values, key)
	return nil
}

type fakeRollups struct {
	byName  map[string][]domain.MetricRollup
	errFor  map[string]error
	queries []repository.RollupQuery
}

func (f *fakeRollups) ListRollups(_ context.Context, query repository.RollupQuery) ([]domain.MetricRollup, error) {
	f.queries = append(f.queries, query)
	if err := f.errFor[query.Name]; err != nil {
		return nil, err
	}
	var out []domain.MetricRollup
	for _, r := range f.byName[query.Name] {
		if query.ServiceID != "" && r.ServiceID != query.ServiceID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type fakeServices struct {
	services []domain.Service
	err      error
}

func (f fakeServices) FirstService(context.Context) (*domain.Service, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.services) == 0 {
		return nil, repository.ErrNotFound
	}
	first := f.services[0]
	return &first, nil
}

type fakeIncidents struct {
	mu        sync.Mutex
	incidents []domain.Incident
	events    []domain.IncidentEvent
	findErr   error
	createErr error
	claimed   map[string]bool
	claims    int
}

func (f *fakeIncidents) ListIncidentsInWindow(context.Context, string, domain.IncidentTimeField, domain.TimeRange) ([]domain.IncidentTimes, error) {
	return nil, nil
}

func (f *fakeIncidents) FindOpenIncidentByDedupKey(_ context.Context, key string) (*domain.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, inc := range f.incidents {
		if inc.DedupKey == key && inc.Status != domain.IncidentResolved {
			found := inc
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeIncidents) CreateIncident(_ context.Context, incident *domain.Incident, event domain.IncidentEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.incidents = append(f.incidents, *incident)
	f.events = append(f.events, event)
	return nil
}

func (f *fakeIncidents) ClaimAndCreateIncident(ctx context.Context, incident *domain.Incident, event domain.IncidentEvent) (bool, error) {
	f.mu.Lock()
	f.claims++
	if f.claimed[incident.DedupKey] {
		f.mu.Unlock()
		return false, nil
	}
	f.mu.Unlock()
	if err := f.CreateIncident(ctx, incident, event); err != nil {
		return false, err
	}
	return true, nil
}

type recordingEscalator struct {
	calls []string
	err   error
}

func (r *recordingEscalator) ExecuteEscalation(_ context.Context, incidentID string) error {
	r.calls = append(r.calls, incidentID)
	return r.err
}

type recordingNotifier struct {
	calls      []string
	events     []string
	recipients [][]string
	err        error
}

func (r *recordingNotifier) SendIncidentNotifications(_ context.Context, incidentID, event string, recipients []string) error {
	r.calls = append(r.calls, incidentID)
	r.events = append(r.events, event)
	r.recipients = append(r.recipients, recipients)
	return r.err
}

var errStore = errors.New("store unavailable")
