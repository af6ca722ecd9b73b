package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venwatch/venwatch/internal/adapter"
	"github.com/venwatch/venwatch/internal/bus"
	"github.com/venwatch/venwatch/internal/correlation"
	"github.com/venwatch/venwatch/internal/event"
	"github.com/venwatch/venwatch/internal/graph"
	"github.com/venwatch/venwatch/internal/llm"
	"github.com/venwatch/venwatch/internal/persistence"
	"github.com/venwatch/venwatch/internal/score/daily"
	"github.com/venwatch/venwatch/internal/trending"
)

type memEntities struct {
	persistence.EntityStore
	mentions []persistence.Mention
	ents     map[string]persistence.Entity
}

func (m *memEntities) MentionsSince(context.Context, time.Time) ([]persistence.Mention, error) {
	return m.mentions, nil
}

func (m *memEntities) Get(_ context.Context, id string) (*persistence.Entity, error) {
	if e, ok := m.ents[id]; ok {
		return &e, nil
	}
	return nil, persistence.ErrNotFound
}

func (m *memEntities) DailyMentionCounts(context.Context, string, time.Time, time.Time) (map[time.Time]int, error) {
	return map[time.Time]int{}, nil
}

type memEvents struct {
	persistence.EventStore
	evs map[string]*event.Event
}

func (m *memEvents) Get(_ context.Context, id string) (*event.Event, error) {
	if ev, ok := m.evs[id]; ok {
		return ev, nil
	}
	return nil, persistence.ErrNotFound
}

func (m *memEvents) ListWindow(context.Context, time.Time, time.Time) ([]*event.Event, error) {
	var out []*event.Event
	for _, ev := range m.evs {
		out = append(out, ev)
	}
	return out, nil
}

func (m *memEvents) DailyTypeCounts(context.Context, string, time.Time, time.Time) (map[time.Time]int, error) {
	return map[time.Time]int{}, nil
}

type memIndicators struct {
	persistence.IndicatorStore
	series map[string][]persistence.IndicatorPoint
}

func (m *memIndicators) Range(_ context.Context, id string, _, _ time.Time) ([]persistence.IndicatorPoint, error) {
	return m.series[id], nil
}

type noopAdapter struct{}

func (noopAdapter) Source() string { return event.SourceGDELT }
func (noopAdapter) Schedule() adapter.Schedule {
	return adapter.Schedule{Frequency: time.Hour, DefaultLookback: time.Hour}
}
func (noopAdapter) Fetch(context.Context, time.Time, time.Time) ([]*event.Event, error) {
	return nil, nil
}

type echoClient struct{ answer string }

func (c echoClient) Complete(context.Context, llm.Tier, string, string) (string, error) {
	return c.answer, nil
}

type staticTrending struct{ entries []trending.Entry }

func (s staticTrending) Top(context.Context, int) ([]trending.Entry, error) {
	return s.entries, nil
}

func testServer(t *testing.T) (*Server, *bus.StubBus) {
	t.Helper()
	b := bus.NewStubBus(bus.DefaultConfig())
	reg := adapter.NewRegistry(b)
	reg.Register(noopAdapter{}, 100, 100)

	day := func(d int) time.Time { return time.Date(2026, 8, d, 0, 0, 0, 0, time.UTC) }
	ents := &memEntities{
		ents: map[string]persistence.Entity{
			"pdvsa": {ID: "pdvsa", PrimaryName: "PDVSA", EntityType: "organization"},
			"gov":   {ID: "gov", PrimaryName: "Government", EntityType: "government"},
		},
		mentions: []persistence.Mention{
			{EventID: "e1", CanonicalID: "pdvsa", MentionedAt: day(20)},
			{EventID: "e1", CanonicalID: "gov", MentionedAt: day(20)},
			{EventID: "e2", CanonicalID: "pdvsa", MentionedAt: day(21)},
			{EventID: "e2", CanonicalID: "gov", MentionedAt: day(21)},
		},
	}
	evs := &memEvents{evs: map[string]*event.Event{
		"e1": {ID: "e1", Title: "refinery fire", Category: event.CategoryEnergy, EventTimestamp: day(20),
			Severity: event.SeverityP2, RiskScore: event.Float64(80)},
		"e2": {ID: "e2", Title: "fuel shortage", Category: event.CategoryEnergy, EventTimestamp: day(21),
			Severity: event.SeverityP3, RiskScore: event.Float64(60)},
	}}
	inds := &memIndicators{series: map[string][]persistence.IndicatorPoint{
		"DCOILWTICO":   {{Date: day(1), Value: 70}, {Date: day(2), Value: 72}, {Date: day(3), Value: 74}, {Date: day(4), Value: 76}},
		"DCOILBRENTEU": {{Date: day(1), Value: 75}, {Date: day(2), Value: 77}, {Date: day(3), Value: 79}, {Date: day(4), Value: 81}},
	}}

	s := NewServer(Deps{
		Registry: reg,
		Bus:      b,
		Graphs:   graph.NewBuilder(ents, evs),
		Loader:   correlation.NewLoader(evs, ents, inds),
		Events:   evs,
		Daily:    daily.New(daily.DefaultCategoryWeights()),
		Chat:     echoClient{answer: "PDVSA output fell sharply this week."},
		Trending: staticTrending{entries: []trending.Entry{{EntityID: "pdvsa", Score: 9.1}}},
	})
	return s, b
}

func TestTrigger(t *testing.T) {
	s, _ := testServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/trigger/gdelt", "application/json",
		bytes.NewBufferString(`{"lookback_hours": 2}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var tr triggerResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	assert.Equal(t, "queued", tr.Status)
	assert.Equal(t, "ingest-gdelt", tr.TaskName)
	assert.NotEmpty(t, tr.TaskID)

	resp, err = http.Post(srv.URL+"/trigger/nope", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCorrelationCompute(t *testing.T) {
	s, _ := testServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	body := `{"variables":["indicator:DCOILWTICO","indicator:DCOILBRENTEU"],
		"start_date":"2026-08-01","end_date":"2026-08-10",
		"method":"pearson","min_effect_size":0.3,"alpha":0.05}`
	resp, err := http.Post(srv.URL+"/correlation/compute", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result correlation.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 1, result.NTested)
	require.Len(t, result.Correlations, 1, "perfectly linear series correlate")
	assert.InDelta(t, 1.0, result.Correlations[0].R, 1e-9)

	resp, err = http.Post(srv.URL+"/correlation/compute", "application/json",
		strings.NewReader(`{"variables":["indicator:DCOILWTICO"],"start_date":"2026-08-01","end_date":"2026-08-10"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGraphEndpoints(t *testing.T) {
	s, _ := testServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/graph/entities?min_cooccurrence=2&time_range=7d")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var g graph.Graph
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&g))
	require.Len(t, g.Edges, 1)
	assert.Equal(t, 2, g.Edges[0].Weight)

	resp, err = http.Get(srv.URL + "/graph/narrative/pdvsa/gov")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var n graph.Narrative
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&n))
	assert.Contains(t, n.Text, "PDVSA")
	assert.NotEmpty(t, n.SupportingEvents)
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var h healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, "ok", h.Status)
	require.Len(t, h.Adapters, 1)
	assert.Equal(t, "gdelt", h.Adapters[0].Source)
}

func TestForecastUnconfigured(t *testing.T) {
	s, _ := testServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/forecast/pdvsa")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestPushDelivery(t *testing.T) {
	s, b := testServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	var got []byte
	require.NoError(t, b.Subscribe(context.Background(), bus.TopicIngestEvent, "push-test",
		func(_ context.Context, msg *bus.Message) error {
			got = msg.Payload
			return nil
		}))

	payload := []byte(`{"id":"e7","title":"port closure"}`)
	body, err := bus.EncodePush(&bus.Message{ID: "m1", Key: "e7", Payload: payload, PublishTime: time.Now().UTC()})
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/push/ingest-event", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.JSONEq(t, string(payload), string(got))

	resp, err = http.Post(srv.URL+"/push/ingest-event", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/push/not-a-topic", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDailyScores(t *testing.T) {
	s, _ := testServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/scores/daily?window=7d")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ds dailyScoresResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ds))
	assert.Equal(t, 2, ds.EventCount)
	assert.Equal(t, 0, ds.P1Count)
	// Severity-weighted avg (80*3+60*2)/5 = 72, volume boost 1.04.
	assert.InDelta(t, 74.88, ds.CategoryScores[event.CategoryEnergy], 1e-9)
	assert.InDelta(t, 0.20*74.88, ds.Composite, 1e-9)

	resp, err = http.Get(srv.URL + "/scores/daily?window=bogus")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatSSE(t *testing.T) {
	s, _ := testServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/chat", "application/json",
		strings.NewReader(`{"message":"what happened to oil output?"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var frames []chatFrame
	for _, line := range strings.Split(readAll(t, resp), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var f chatFrame
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &f))
		frames = append(frames, f)
	}
	require.GreaterOrEqual(t, len(frames), 3)
	assert.Equal(t, "tool_use", frames[0].Type)
	assert.Equal(t, "trending_entities", frames[0].Tool)
	assert.Equal(t, "content", frames[1].Type)
	assert.Contains(t, frames[1].Text, "PDVSA output")
	assert.Equal(t, "done", frames[len(frames)-1].Type)
}

func TestChatValidation(t *testing.T) {
	s, _ := testServer(t)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(`{"message":" "}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebsocketTail(t *testing.T) {
	s, b := testServer(t)
	require.NoError(t, s.AttachTail(context.Background(), "ws-test"))

	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the handler to register the client before publishing.
	require.Eventually(t, func() bool {
		s.tail.mu.Lock()
		defer s.tail.mu.Unlock()
		return len(s.tail.clients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// The stub bus delivers synchronously, so the broadcast happens
	// before Publish returns.
	payload := []byte(`{"id":"e9","title":"grid failure"}`)
	require.NoError(t, b.Publish(context.Background(), bus.TopicIngestEvent, "e9", payload))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(got))
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			return sb.String()
		}
	}
}
