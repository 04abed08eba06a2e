package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/idrecon/internal/contact"
	"github.com/roach88/idrecon/internal/metrics"
	"github.com/roach88/idrecon/internal/reconcile"
	"github.com/roach88/idrecon/internal/server/middleware"
	"github.com/roach88/idrecon/internal/server/response"
	"github.com/roach88/idrecon/internal/store"
	"github.com/roach88/idrecon/internal/testutil"
)

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, pinger Pinger) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.db")
	st, err := store.Open(path, store.WithClock(testutil.NewDeterministicClock().Now))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	if pinger == nil {
		pinger = st
	}
	return New(reconcile.New(st, reconcile.WithRecorder(m)), pinger, Config{
		Metrics:   m,
		Gatherer:  reg,
		RequestID: testutil.NewSequentialIDGenerator("req").Generate,
		Logger:    zerolog.Nop(),
	})
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeContact(t *testing.T, w *httptest.ResponseRecorder) contact.Consolidated {
	t.Helper()
	var body struct {
		Contact contact.Consolidated `json:"contact"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Contact
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) response.Error {
	t.Helper()
	var body response.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return *body.Error
}

func TestRoot(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"idrecon API is up"}`, w.Body.String())
	assert.Equal(t, "req-000001", w.Header().Get(middleware.RequestIDHeader))
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/ready", "").Code)
}

func TestReady_StoreDown(t *testing.T) {
	s := newTestServer(t, downPinger{})

	w := do(t, s, http.MethodGet, "/ready", "")

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, response.CodeServiceUnavailable, decodeError(t, w).Code)
}

func TestIdentify_NewContact(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodPost, "/identify", `{"email":"lorraine@hillvalley.edu","phoneNumber":"123456"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"contact":{
		"primaryContactId": 1,
		"emails": ["lorraine@hillvalley.edu"],
		"phoneNumbers": ["123456"],
		"secondaryContactIds": []
	}}`, w.Body.String())
}

func TestIdentify_NumericPhone(t *testing.T) {
	s := newTestServer(t, nil)

	do(t, s, http.MethodPost, "/identify", `{"email":"lorraine@hillvalley.edu","phoneNumber":"123456"}`)
	w := do(t, s, http.MethodPost, "/identify", `{"email":"mcfly@hillvalley.edu","phoneNumber":123456}`)

	require.Equal(t, http.StatusOK, w.Code)
	view := decodeContact(t, w)
	assert.Equal(t, int64(1), view.PrimaryContactID)
	assert.Equal(t, []string{"lorraine@hillvalley.edu", "mcfly@hillvalley.edu"}, view.Emails)
	assert.Equal(t, []string{"123456"}, view.PhoneNumbers)
	assert.Equal(t, []int64{2}, view.SecondaryContactIDs)
}

func TestIdentify_NullPhone(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodPost, "/identify", `{"email":"doc@hillvalley.edu","phoneNumber":null}`)

	require.Equal(t, http.StatusOK, w.Code)
	view := decodeContact(t, w)
	assert.Equal(t, []string{"doc@hillvalley.edu"}, view.Emails)
	assert.Empty(t, view.PhoneNumbers)
}

func TestIdentify_EmptyFragment(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodPost, "/identify", `{"email":null,"phoneNumber":null}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(contact.ErrCodeInvalidRequest), decodeError(t, w).Code)
}

func TestIdentify_MalformedJSON(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodPost, "/identify", `{"email":`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeBadRequest, decodeError(t, w).Code)
}

func TestIdentify_PhoneWrongType(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodPost, "/identify", `{"phoneNumber":true}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.CodeBadRequest, decodeError(t, w).Code)
}

func TestIdentify_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/identify", "")

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAddContact_AndShow(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodPost, "/add-contact", `{"email":"george@hillvalley.edu","phoneNumber":"919191"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Contact added successfully","contact_id":1}`, w.Body.String())

	w = do(t, s, http.MethodPost, "/add-contact", `{"email":"biff@hillvalley.edu","linkedId":1,"linkPrecedence":"secondary"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/contact/2", "")
	require.Equal(t, http.StatusOK, w.Code)
	view := decodeContact(t, w)
	assert.Equal(t, int64(1), view.PrimaryContactID)
	assert.Equal(t, []string{"george@hillvalley.edu", "biff@hillvalley.edu"}, view.Emails)
	assert.Equal(t, []int64{2}, view.SecondaryContactIDs)
}

func TestAddContact_InvalidPrecedence(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodPost, "/add-contact", `{"email":"a@x.io","linkPrecedence":"tertiary"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(contact.ErrCodeInvalidRequest), decodeError(t, w).Code)
}

func TestDeleteContact(t *testing.T) {
	s := newTestServer(t, nil)
	do(t, s, http.MethodPost, "/add-contact", `{"email":"a@x.io"}`)

	w := do(t, s, http.MethodDelete, "/contact/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Contact 1 deleted successfully"}`, w.Body.String())

	w = do(t, s, http.MethodDelete, "/contact/1", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(contact.ErrCodeNotFound), decodeError(t, w).Code)
}

func TestContactID_NotInteger(t *testing.T) {
	s := newTestServer(t, nil)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		w := do(t, s, method, "/contact/abc", "")
		require.Equal(t, http.StatusBadRequest, w.Code, method)
		assert.Equal(t, string(contact.ErrCodeInvalidRequest), decodeError(t, w).Code)
	}
}

func TestShowContact_NotFound(t *testing.T) {
	s := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/contact/42", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	do(t, s, http.MethodPost, "/identify", `{"email":"a@x.io"}`)

	w := do(t, s, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `idrecon_http_requests_total{route="POST /identify",status="200"} 1`)
	assert.Contains(t, body, `idrecon_identify_total{outcome="created"} 1`)
}

func TestMetricsEndpoint_Disabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "contacts.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	s := New(reconcile.New(st), st, Config{Logger: zerolog.Nop()})

	w := do(t, s, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServe_GracefulShutdown(t *testing.T) {
	s := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after context cancel")
	}
}

func TestFlexString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *string
	}{
		{"string", `"123456"`, contact.String("123456")},
		{"integer", `123456`, contact.String("123456")},
		{"decimal", `12.5`, contact.String("12.5")},
		{"null", `null`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f flexString
			require.NoError(t, json.Unmarshal([]byte(tt.input), &f))
			assert.Equal(t, tt.want, f.Value)
		})
	}
}
