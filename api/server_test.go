package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orchestratorx "github.com/tanpawarit/PolicyPilot/agent/agents/orchestrator"
	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
	ingestx "github.com/tanpawarit/PolicyPilot/agent/ingest"
)

type fakeChat struct {
	mu      sync.Mutex
	threads []string
	handle  func(ctx context.Context, threadID, text string) (orchestratorx.Reply, error)
}

func (f *fakeChat) HandleMessage(ctx context.Context, threadID, text string) (orchestratorx.Reply, error) {
	f.mu.Lock()
	f.threads = append(f.threads, threadID)
	f.mu.Unlock()
	return f.handle(ctx, threadID, text)
}

func echoChat(reply string) *fakeChat {
	return &fakeChat{handle: func(_ context.Context, threadID, _ string) (orchestratorx.Reply, error) {
		return orchestratorx.Reply{ThreadID: threadID, Route: contractx.RoutePolicy, Text: reply}, nil
	}}
}

type fakeUploader struct {
	err error
}

func (f fakeUploader) Submit(_ context.Context, filename, category string, content []byte) (ingestx.Job, error) {
	if f.err != nil {
		return ingestx.Job{}, f.err
	}
	cat, err := ingestx.Validate(filename, category, content)
	if err != nil {
		return ingestx.Job{}, err
	}
	return ingestx.Job{ID: "job-1", Category: cat, Source: filename}, nil
}

type discardIndexer struct{}

func (discardIndexer) Add(_ context.Context, chunks []contractx.PolicyChunk) (int, error) {
	return len(chunks), nil
}

func newTestServer(t *testing.T, chat ChatService, uploads Uploader) *httptest.Server {
	t.Helper()

	s, err := New(Config{AllowedOrigins: []string{"http://localhost:5173"}, MaxUploadBytes: 1 << 20}, chat, uploads)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func multipartBody(t *testing.T, category, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("category", category))
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func postUpload(t *testing.T, ts *httptest.Server, category, filename string, content []byte) (int, map[string]any) {
	t.Helper()

	body, contentType := multipartBody(t, category, filename, content)
	resp, err := http.Post(ts.URL+"/api/upload", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, echoChat("hi"), fakeUploader{})
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCategories(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, echoChat("hi"), fakeUploader{})
	resp, err := http.Get(ts.URL + "/api/categories")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out categoriesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, []string{"health_insurance", "car_insurance", "term_insurance", "travel_insurance", "other"}, out.Categories)
}

func TestUploadRejectsUnknownCategoryWithoutScheduling(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ing, err := ingestx.New(ingestx.Config{UploadDir: dir, Workers: 1, QueueSize: 1}, discardIndexer{})
	require.NoError(t, err)

	ts := newTestServer(t, echoChat("hi"), ing)
	status, out := postUpload(t, ts, "bogus_category", "policy.pdf", []byte("%PDF-1.4 body"))

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, out["detail"], "Invalid category. Allowed:")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// The queue still has its single slot, so nothing was enqueued.
	_, err = ing.Submit(context.Background(), "ok.pdf", "other", []byte("%PDF-1.4 body"))
	require.NoError(t, err)
}

func TestUploadRejectsNonPDF(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, echoChat("hi"), fakeUploader{})

	status, out := postUpload(t, ts, "health_insurance", "notes.txt", []byte("%PDF-1.4"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "A PDF file is required", out["detail"])

	status, out = postUpload(t, ts, "health_insurance", "policy.pdf", []byte("plain text"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "File must be a PDF", out["detail"])

	status, out = postUpload(t, ts, "health_insurance", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "A PDF file is required", out["detail"])
}

func TestUploadAccepted(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, echoChat("hi"), fakeUploader{})
	status, out := postUpload(t, ts, "car_insurance", "hdfc motor.pdf", []byte("%PDF-1.7 body"))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "File uploaded and ingestion started.", out["message"])
	assert.Equal(t, "car_insurance", out["category"])
	assert.Equal(t, "hdfc motor.pdf", out["filename"])
}

func TestUploadQueueFull(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, echoChat("hi"), fakeUploader{err: ingestx.ErrQueueFull})
	status, _ := postUpload(t, ts, "car_insurance", "a.pdf", []byte("%PDF-1.7"))
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func dialChat(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) outboundFrame {
	t.Helper()

	var f outboundFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// readTurn collects frames up to and including end or error.
func readTurn(t *testing.T, conn *websocket.Conn) []outboundFrame {
	t.Helper()

	var frames []outboundFrame
	for {
		f := readFrame(t, conn)
		frames = append(frames, f)
		if f.Type == frameEnd || f.Type == frameError {
			return frames
		}
	}
}

func TestChatStreamsReply(t *testing.T) {
	t.Parallel()

	reply := "Room rent is capped at 1% of the sum insured.\nSee page 4."
	ts := newTestServer(t, echoChat(reply), fakeUploader{})
	conn := dialChat(t, ts, "?thread_id=thread-42")

	require.NoError(t, conn.WriteJSON(inboundFrame{Message: "room rent limit?"}))
	frames := readTurn(t, conn)

	require.GreaterOrEqual(t, len(frames), 3)
	assert.Equal(t, outboundFrame{Type: frameStart, ThreadID: "thread-42"}, frames[0])
	assert.Equal(t, frameEnd, frames[len(frames)-1].Type)

	var sb strings.Builder
	for _, f := range frames[1 : len(frames)-1] {
		assert.Equal(t, frameToken, f.Type)
		sb.WriteString(f.Content)
	}
	assert.Equal(t, reply, sb.String())
}

func TestChatAssignsThreadID(t *testing.T) {
	t.Parallel()

	chat := echoChat("ok")
	ts := newTestServer(t, chat, fakeUploader{})
	conn := dialChat(t, ts, "")

	require.NoError(t, conn.WriteJSON(inboundFrame{Message: "one"}))
	first := readTurn(t, conn)
	require.NoError(t, conn.WriteJSON(inboundFrame{Message: "two"}))
	second := readTurn(t, conn)

	_, err := uuid.Parse(first[0].ThreadID)
	require.NoError(t, err)
	assert.Equal(t, first[0].ThreadID, second[0].ThreadID)

	chat.mu.Lock()
	defer chat.mu.Unlock()
	assert.Equal(t, []string{first[0].ThreadID, first[0].ThreadID}, chat.threads)
}

func TestChatMalformedFrameKeepsSession(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, echoChat("fine"), fakeUploader{})
	conn := dialChat(t, ts, "?thread_id=t1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := readFrame(t, conn)
	assert.Equal(t, frameError, f.Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"other": "field"}))
	f = readFrame(t, conn)
	assert.Equal(t, frameError, f.Type)

	require.NoError(t, conn.WriteJSON(inboundFrame{Message: "hello"}))
	frames := readTurn(t, conn)
	assert.Equal(t, frameStart, frames[0].Type)
	assert.Equal(t, frameEnd, frames[len(frames)-1].Type)
}

func TestChatTurnErrorAfterStart(t *testing.T) {
	t.Parallel()

	chat := &fakeChat{handle: func(context.Context, string, string) (orchestratorx.Reply, error) {
		return orchestratorx.Reply{}, &contractx.LoopExhaustedError{Agent: contractx.AgentTypePolicy, Iterations: 8}
	}}
	ts := newTestServer(t, chat, fakeUploader{})
	conn := dialChat(t, ts, "?thread_id=t1")

	require.NoError(t, conn.WriteJSON(inboundFrame{Message: "loop forever"}))
	frames := readTurn(t, conn)

	require.Len(t, frames, 2)
	assert.Equal(t, frameStart, frames[0].Type)
	assert.Equal(t, frameError, frames[1].Type)
	assert.NotEmpty(t, frames[1].Content)
}

func TestChatDisconnectCancelsTurn(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	cancelled := make(chan error, 1)
	chat := &fakeChat{handle: func(ctx context.Context, _, _ string) (orchestratorx.Reply, error) {
		close(started)
		<-ctx.Done()
		cancelled <- ctx.Err()
		return orchestratorx.Reply{}, ctx.Err()
	}}
	ts := newTestServer(t, chat, fakeUploader{})
	conn := dialChat(t, ts, "?thread_id=t1")

	require.NoError(t, conn.WriteJSON(inboundFrame{Message: "slow question"}))
	assert.Equal(t, frameStart, readFrame(t, conn).Type)
	<-started
	require.NoError(t, conn.Close())

	select {
	case err := <-cancelled:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("turn was not cancelled after disconnect")
	}
}

func TestChatRejectsForeignOrigin(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, echoChat("hi"), fakeUploader{})
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
	header := http.Header{"Origin": []string{"http://evil.example"}}

	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSplitTokens(t *testing.T) {
	t.Parallel()

	assert.Nil(t, splitTokens(""))
	assert.Equal(t, []string{"one ", "two\n", "three"}, splitTokens("one two\nthree"))
	assert.Equal(t, []string{"  lead ", "x  "}, splitTokens("  lead x  "))
}
