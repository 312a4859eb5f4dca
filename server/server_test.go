package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-assistant/chat"
	"github.com/becomeliminal/nim-assistant/engine"
	"github.com/becomeliminal/nim-assistant/ingest"
	"github.com/becomeliminal/nim-assistant/memory/embedder/mock"
	"github.com/becomeliminal/nim-assistant/memory/store/chromem"
	"github.com/becomeliminal/nim-assistant/observability"
	"github.com/becomeliminal/nim-assistant/store/memstore"
	"github.com/becomeliminal/nim-assistant/tools"
)

type stubProcessor struct{}

func (stubProcessor) Process(_ context.Context, input *engine.Input) *engine.Output {
	return &engine.Output{Response: "you said: " + input.Message, ConversationID: input.ConversationID}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	index, err := chromem.New()
	require.NoError(t, err)
	kb := tools.NewKnowledgeBase(ctx, index, mock.New(), "docs")
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())

	srv := New(
		Config{CORSOrigins: []string{"http://localhost:5173"}},
		chat.NewService(st, stubProcessor{}),
		ingest.NewService(st, kb, ingest.WithRecorder(metrics)),
		metrics,
	)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, v interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	res, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func TestRootAndHealth(t *testing.T) {
	ts := newTestServer(t)

	var root map[string]interface{}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/", &root))
	assert.Equal(t, "running", root["status"])

	var health map[string]interface{}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/health", &health))
	assert.Equal(t, "healthy", health["status"])
}

func TestChatFlow(t *testing.T) {
	ts := newTestServer(t)

	res := postJSON(t, ts.URL+"/api/chat/message", map[string]string{"user_id": "u1", "message": "hello"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	var sent chat.Response
	require.NoError(t, json.NewDecoder(res.Body).Decode(&sent))
	assert.Equal(t, "you said: hello", sent.Response)
	require.NotEmpty(t, sent.ConversationID)

	var convs []map[string]interface{}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/chat/users/u1/conversations", &convs))
	require.Len(t, convs, 1)
	assert.Equal(t, "hello", convs[0]["title"])
	assert.Equal(t, float64(2), convs[0]["message_count"])

	var msgs []map[string]interface{}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/chat/conversations/"+sent.ConversationID+"/messages", &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0]["role"])
	assert.Equal(t, float64(1), msgs[0]["sequence_number"])
	assert.Equal(t, "assistant", msgs[1]["role"])
}

func TestChatErrors(t *testing.T) {
	ts := newTestServer(t)

	res := postJSON(t, ts.URL+"/api/chat/message", map[string]string{"user_id": "u1", "conversation_id": "missing", "message": "hi"})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = postJSON(t, ts.URL+"/api/chat/message", map[string]string{"user_id": "u1"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	var convs []interface{}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/chat/users/nobody/conversations", &convs))
	assert.Empty(t, convs)
}

func TestChatWebSocket(t *testing.T) {
	ts := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/chat/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"message": "no user"}))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "Missing user_id or message", frame["error"])

	// The connection stays usable after an error frame.
	require.NoError(t, conn.WriteJSON(map[string]string{"user_id": "u1", "message": "ping"}))
	var resp chat.Response
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "you said: ping", resp.Response)
	assert.NotEmpty(t, resp.ConversationID)
}

func upload(t *testing.T, url, filename, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	res, err := http.Post(url, mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func TestDocumentUpload(t *testing.T) {
	ts := newTestServer(t)

	res := upload(t, ts.URL+"/api/documents/upload?user_id=u1", "notes.txt", "remember the milk and the eggs")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var result ingest.Result
	require.NoError(t, json.NewDecoder(res.Body).Decode(&result))
	assert.Equal(t, "completed", string(result.Status))
	assert.Equal(t, 1, result.Chunks)

	res = upload(t, ts.URL+"/api/documents/upload?user_id=u1", "slides.pptx", "PK")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	var errBody errorResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&errBody))
	assert.Equal(t, "Unsupported file type: pptx", errBody.Error)

	res = upload(t, ts.URL+"/api/documents/upload?user_id=u1", "scan.pdf", "%PDF-1.7")
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	errBody = errorResponse{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&errBody))
	assert.Equal(t, "unreadable_file", errBody.Code)

	res = upload(t, ts.URL+"/api/documents/upload", "notes.txt", "x")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	var docs []map[string]interface{}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/documents/u1", &docs))
	require.Len(t, docs, 3)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/chat/message", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "http://localhost:5173", res.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")
	res, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Empty(t, res.Header.Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	upload(t, ts.URL+"/api/documents/upload?user_id=u1", "a.md", "# hello")

	res, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(res.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `test_documents_ingested_total{status="completed"} 1`)
}
