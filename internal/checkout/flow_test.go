package checkout

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quill-hq/quill/internal/storage"
	"github.com/quill-hq/quill/pkg/billing"
	"github.com/quill-hq/quill/pkg/notifiers"
)

type route struct {
	status int
	body   string
}

type fakeAPI struct {
	mu     sync.Mutex
	routes map[string]route
	hits   []string
}

func (f *fakeAPI) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits = append(f.hits, r.Method+" "+r.URL.Path)
	rt, ok := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rt.status)
	_, _ = w.Write([]byte(rt.body))
}

type recordingAlerter struct{ msgs []string }

func (r *recordingAlerter) Alert(msg string) { r.msgs = append(r.msgs, msg) }

type recordingOpener struct{ urls []string }

func (r *recordingOpener) Open(url string) error {
	r.urls = append(r.urls, url)
	return nil
}

type recordingPublisher struct{ events []notifiers.Event }

func (r *recordingPublisher) Publish(_ context.Context, evt notifiers.Event) (int, error) {
	r.events = append(r.events, evt)
	return 1, nil
}

type logEntry struct {
	level, msg string
}

type recordingLogger struct{ entries []logEntry }

func (r *recordingLogger) InfoObj(msg, _ string, _ interface{}) {
	r.entries = append(r.entries, logEntry{"info", msg})
}
func (r *recordingLogger) DebugObj(msg, _ string, _ interface{}) {
	r.entries = append(r.entries, logEntry{"debug", msg})
}
func (r *recordingLogger) WarnObj(msg, _ string, _ interface{}) {
	r.entries = append(r.entries, logEntry{"warn", msg})
}
func (r *recordingLogger) ErrorObj(msg, _ string, _ interface{}) {
	r.entries = append(r.entries, logEntry{"error", msg})
}

func (r *recordingLogger) errors() int {
	n := 0
	for _, e := range r.entries {
		if e.level == "error" {
			n++
		}
	}
	return n
}

type harness struct {
	flow    *Flow
	api     *fakeAPI
	out     *bytes.Buffer
	store   storage.Store
	alerter *recordingAlerter
	opener  *recordingOpener
	pub     *recordingPublisher
	log     *recordingLogger
}

func newHarness(t *testing.T, routes map[string]route) *harness {
	t.Helper()
	api := &fakeAPI{routes: routes}
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	t.Cleanup(srv.Close)

	client, err := billing.New(billing.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	store, err := storage.NewStore("memory", "", storage.Options{})
	require.NoError(t, err)

	h := &harness{
		api:     api,
		out:     &bytes.Buffer{},
		store:   store,
		alerter: &recordingAlerter{},
		opener:  &recordingOpener{},
		pub:     &recordingPublisher{},
		log:     &recordingLogger{},
	}
	h.flow, err = NewFlow(Deps{
		API:       client,
		Store:     store,
		Out:       h.out,
		Alerter:   h.alerter,
		Opener:    h.opener,
		Publisher: h.pub,
		Log:       h.log,
	})
	require.NoError(t, err)
	return h
}

func TestNewFlowRequiresAPIAndStore(t *testing.T) {
	_, err := NewFlow(Deps{})
	assert.Error(t, err)

	client, err := billing.New(billing.Config{BaseURL: "http://localhost"})
	require.NoError(t, err)
	_, err = NewFlow(Deps{API: client})
	assert.Error(t, err)
}

func TestSubscribeStoresSessionAndOpensCheckout(t *testing.T) {
	h := newHarness(t, map[string]route{
		"POST /subscriptions/create": {http.StatusOK, `{"success":true,"checkout_url":"https://pay.example/cs_1","session_id":"cs_1"}`},
	})

	sess, err := h.flow.Subscribe(context.Background(), "pro")
	require.NoError(t, err)
	assert.Equal(t, "cs_1", sess.SessionID)

	stored, ok, err := h.store.Get(SessionKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cs_1", stored)
	assert.Equal(t, []string{"https://pay.example/cs_1"}, h.opener.urls)

	require.Len(t, h.pub.events, 1)
	assert.Equal(t, notifiers.EventSubscriptionCheckout, h.pub.events[0].Type)
	assert.Equal(t, "pro", h.pub.events[0].Plan)
	assert.Empty(t, h.alerter.msgs)
}

func TestSubscribeFailureLogsAndAlerts(t *testing.T) {
	h := newHarness(t, map[string]route{
		"POST /subscriptions/create": {http.StatusPaymentRequired, `{}`},
	})

	_, err := h.flow.Subscribe(context.Background(), "pro")
	require.Error(t, err)
	assert.True(t, billing.IsHTTPError(err, http.StatusPaymentRequired))

	assert.Len(t, h.alerter.msgs, 1)
	assert.Equal(t, 1, h.log.errors())
	assert.Empty(t, h.opener.urls)
	assert.Empty(t, h.pub.events)
	_, ok, _ := h.store.Get(SessionKey)
	assert.False(t, ok)
}

func TestSubscribeRejectedBody(t *testing.T) {
	h := newHarness(t, map[string]route{
		"POST /subscriptions/create": {http.StatusOK, `{"success":false}`},
	})

	_, err := h.flow.Subscribe(context.Background(), "pro")
	assert.ErrorIs(t, err, ErrRejected)
	assert.Len(t, h.alerter.msgs, 1)
}

func TestBuyCreditsDisplaysTotalCredits(t *testing.T) {
	h := newHarness(t, map[string]route{
		"POST /credits/purchase": {http.StatusOK, `{"success":true,"total_credits":120}`},
	})

	purchase, err := h.flow.BuyCredits(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 120, purchase.TotalCredits)
	assert.Contains(t, h.out.String(), "120")

	// No session id or url in the response: nothing stored or opened.
	_, ok, _ := h.store.Get(SessionKey)
	assert.False(t, ok)
	assert.Empty(t, h.opener.urls)

	require.Len(t, h.pub.events, 1)
	assert.Equal(t, 100, h.pub.events[0].Amount)
}

func TestShowStatusUnlimited(t *testing.T) {
	h := newHarness(t, map[string]route{
		"GET /subscriptions/status": {http.StatusOK, `{"success":true,"tier":"free","credits":-1}`},
	})

	status, err := h.flow.ShowStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Unlimited())
	assert.Equal(t, "Tier: free\nCredits: Unlimited\n", h.out.String())
}

func TestShowStatusNumeric(t *testing.T) {
	h := newHarness(t, map[string]route{
		"GET /subscriptions/status": {http.StatusOK, `{"success":true,"tier":"pro","credits":42}`},
	})

	_, err := h.flow.ShowStatus(context.Background())
	require.NoError(t, err)
	assert.Contains(t, h.out.String(), "Credits: 42")
}

func TestDisplayPlansServerErrorDisplaysNothing(t *testing.T) {
	h := newHarness(t, map[string]route{
		"GET /pricing/plans": {http.StatusInternalServerError, `boom`},
	})

	err := h.flow.DisplayPlans(context.Background())
	require.Error(t, err)
	assert.Empty(t, h.out.String())
	assert.Equal(t, 1, h.log.errors())
}

func TestDisplayPlansRendersSortedCatalogue(t *testing.T) {
	h := newHarness(t, map[string]route{
		"GET /pricing/plans": {http.StatusOK, `{"success":true,"plans":{
			"subscriptions":{
				"unlimited":{"name":"Unlimited","price":49,"credits":-1,"interval":"month"},
				"basic":{"name":"Basic","price":"9.5","credits":100,"interval":"month"}},
			"credits":{"small":{"name":"Small","price":5,"credits":100,"bonus":20}}}}`},
	})

	require.NoError(t, h.flow.DisplayPlans(context.Background()))
	out := h.out.String()
	assert.Contains(t, out, "$9.50/month")
	assert.Contains(t, out, "unlimited credits")
	assert.Contains(t, out, "120 credits")
	assert.Less(t, bytes.Index(h.out.Bytes(), []byte("basic")), bytes.Index(h.out.Bytes(), []byte("unlimited ")))
}

func TestHandleSuccessRefreshesAndClearsSession(t *testing.T) {
	h := newHarness(t, map[string]route{
		"GET /subscriptions/status": {http.StatusOK, `{"success":true,"tier":"pro","credits":500}`},
	})
	require.NoError(t, h.store.Set(SessionKey, "cs_1"))

	status, err := h.flow.HandleSuccess(context.Background(), "https://app.example/success?session_id=cs_1")
	require.NoError(t, err)
	assert.Equal(t, "pro", status.Tier)
	assert.Contains(t, h.out.String(), "Payment successful!")

	_, ok, _ := h.store.Get(SessionKey)
	assert.False(t, ok)

	require.Len(t, h.pub.events, 1)
	assert.Equal(t, notifiers.EventCheckoutCompleted, h.pub.events[0].Type)
	assert.Equal(t, "cs_1", h.pub.events[0].SessionID)
}

func TestHandleSuccessWithoutSessionDoesNothing(t *testing.T) {
	h := newHarness(t, map[string]route{})
	require.NoError(t, h.store.Set(SessionKey, "cs_1"))

	_, err := h.flow.HandleSuccess(context.Background(), "https://app.example/success")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Empty(t, h.api.hits)

	stored, ok, _ := h.store.Get(SessionKey)
	assert.True(t, ok)
	assert.Equal(t, "cs_1", stored)
}

func TestHandleSuccessKeepsSessionWhenStatusFails(t *testing.T) {
	h := newHarness(t, map[string]route{
		"GET /subscriptions/status": {http.StatusBadGateway, ``},
	})
	require.NoError(t, h.store.Set(SessionKey, "cs_1"))

	_, err := h.flow.HandleSuccess(context.Background(), "/success?session_id=cs_1")
	require.Error(t, err)
	assert.Len(t, h.alerter.msgs, 1)

	_, ok, _ := h.store.Get(SessionKey)
	assert.True(t, ok)
}

func TestShowAnalyticsPrintsJSON(t *testing.T) {
	h := newHarness(t, map[string]route{
		"GET /users/analytics": {http.StatusOK, `{"requests":12}`},
	})

	data, err := h.flow.ShowAnalytics(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, float64(12), data["requests"])
	assert.JSONEq(t, `{"requests":12}`, h.out.String())
}

func TestConsoleAlerterWritesMessage(t *testing.T) {
	var buf bytes.Buffer
	NewConsoleAlerter(&buf).Alert("hello")
	assert.Contains(t, buf.String(), "hello")
}
