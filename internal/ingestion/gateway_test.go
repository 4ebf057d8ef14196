package ingestion

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prreview/orchestrator/internal/domain"
	"github.com/prreview/orchestrator/internal/logging"
	"github.com/prreview/orchestrator/internal/store/memstore"
)

const testSecret = "test-webhook-secret"

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

type fakeEnqueuer struct {
	events []domain.TriggerEvent
	err    error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, event domain.TriggerEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

func newTestGateway(t *testing.T, enq Enqueuer) *Gateway {
	t.Helper()
	delivery := memstore.NewDeliveryStore()
	return New(testSecret, delivery, nil, enq, logging.New("test"), 100, time.Hour)
}

func doRequest(g *Gateway, event, delivery string, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/github", bytes.NewReader(body))
	if event != "" {
		req.Header.Set("X-Event-Name", event)
	}
	if delivery != "" {
		req.Header.Set("X-Delivery-Id", delivery)
	}
	if signature != "" {
		req.Header.Set("X-Signature-256", signature)
	}
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)
	return rec
}

func TestSignatureRejection(t *testing.T) {
	enq := &fakeEnqueuer{}
	g := newTestGateway(t, enq)

	body := []byte(`{"a":1}`)
	rec := doRequest(g, "pull_request", "d1", body, "sha256=deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, enq.events)
}

func TestSignatureRejectionOnSingleByteFlip(t *testing.T) {
	enq := &fakeEnqueuer{}
	g := newTestGateway(t, enq)

	body := []byte(`{"action":"opened","pull_request":{"number":1,"head":{"sha":"abc"}},"repository":{"full_name":"o/r"}}`)
	validSig := sign(testSecret, body)

	flipped := []byte(validSig)
	flipped[len(flipped)-1] ^= 0x01

	rec := doRequest(g, "pull_request", "d2", body, string(flipped))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDuplicateDelivery(t *testing.T) {
	enq := &fakeEnqueuer{}
	g := newTestGateway(t, enq)

	body := []byte(`{"action":"opened","pull_request":{"number":7,"head":{"sha":"a"}},"repository":{"full_name":"o/r"}}`)
	sig := sign(testSecret, body)

	rec1 := doRequest(g, "pull_request", "X", body, sig)
	require.Equal(t, http.StatusOK, rec1.Code)
	assert.Contains(t, rec1.Body.String(), `"accepted"`)

	rec2 := doRequest(g, "pull_request", "X", body, sig)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Contains(t, rec2.Body.String(), `"duplicate"`)

	require.Len(t, enq.events, 1)
}

func TestDraftDiscardedUnlessReadyForReview(t *testing.T) {
	enq := &fakeEnqueuer{}
	g := newTestGateway(t, enq)

	body := []byte(`{"action":"synchronize","pull_request":{"number":3,"draft":true,"head":{"sha":"a"}},"repository":{"full_name":"o/r"}}`)
	sig := sign(testSecret, body)

	rec := doRequest(g, "pull_request", "d3", body, sig)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"skipped"`)
	assert.Empty(t, enq.events)
}

func TestReadyForReviewAdmitsDraft(t *testing.T) {
	enq := &fakeEnqueuer{}
	g := newTestGateway(t, enq)

	body := []byte(`{"action":"ready_for_review","pull_request":{"number":3,"draft":true,"head":{"sha":"a"}},"repository":{"full_name":"o/r"}}`)
	sig := sign(testSecret, body)

	rec := doRequest(g, "pull_request", "d4", body, sig)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"accepted"`)
	require.Len(t, enq.events, 1)
	assert.Equal(t, domain.ActionReadyForReview, enq.events[0].Action)
}

func TestUnhandledActionIsSkipped(t *testing.T) {
	enq := &fakeEnqueuer{}
	g := newTestGateway(t, enq)

	body := []byte(`{"action":"labeled","pull_request":{"number":3,"head":{"sha":"a"}},"repository":{"full_name":"o/r"}}`)
	sig := sign(testSecret, body)

	rec := doRequest(g, "pull_request", "d5", body, sig)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"skipped"`)
}

func TestEnqueueFailureReturns503(t *testing.T) {
	enq := &fakeEnqueuer{err: assertErr{}}
	g := newTestGateway(t, enq)

	body := []byte(`{"action":"opened","pull_request":{"number":3,"head":{"sha":"a"}},"repository":{"full_name":"o/r"}}`)
	sig := sign(testSecret, body)

	rec := doRequest(g, "pull_request", "d6", body, sig)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
