package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/kaiwa/adapters"
	"github.com/satriahrh/kaiwa/adapters/llm"
	"github.com/satriahrh/kaiwa/adapters/speech"
	"github.com/satriahrh/kaiwa/domain/entities"
	"github.com/satriahrh/kaiwa/internal/persona"
	"github.com/satriahrh/kaiwa/usecase"
)

type testServer struct {
	hub      *Hub
	sessions *usecase.SessionManager
	url      string
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()

	catalog, err := persona.Default()
	if err != nil {
		t.Fatalf("persona.Default: %v", err)
	}
	stt := speech.NewMockSpeechToText(logger)
	stt.Text = "Hello there"
	tuning := usecase.DefaultTuning
	tuning.RevealInterval = 0

	orch, err := usecase.NewOrchestrator(usecase.Config{
		LLM:      &llm.MockLLM{Replies: []string{"Nice to meet you."}},
		STT:      stt,
		TTS:      speech.NewMockTextToSpeech(logger),
		Assessor: speech.NewMockPronunciationAssessor(logger),
		Personas: catalog,
		Tuning:   tuning,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	sessions := usecase.NewSessionManager(adapters.NewMemorySessionRepository(), orch, time.Hour, time.Hour, logger)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(sessions, logger)
	go hub.Run(ctx)

	e := echo.New()
	e.GET("/ws", func(c echo.Context) error {
		return HandleWebSocketWithAuth(hub, c, c.QueryParam("session"), logger)
	})
	server := httptest.NewServer(e)

	t.Cleanup(func() {
		server.Close()
		cancel()
		sessions.Shutdown(context.Background())
	})
	return &testServer{hub: hub, sessions: sessions, url: "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"}
}

func (s *testServer) dial(t *testing.T, mode entities.Mode) (*websocket.Conn, string) {
	t.Helper()
	session, err := s.sessions.Create(context.Background(), mode, "en-US", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	ws, _, err := websocket.DefaultDialer.Dial(s.url+"?session="+session.ID, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws, session.ID
}

// readUntil reads frames until one of type want arrives; an empty want
// leaves the choice to match alone.
func readUntil(t *testing.T, ws *websocket.Conn, want MessageType, match func(map[string]interface{}) bool) map[string]interface{} {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("invalid frame %s: %v", data, err)
		}
		if (want == "" || msg["type"] == string(want)) && (match == nil || match(msg)) {
			return msg
		}
	}
}

func TestWebSocketHelloAndSnapshot(t *testing.T) {
	s := setupTestServer(t)
	ws, sessionID := s.dial(t, entities.ModeTutoring)

	hello := readUntil(t, ws, MessageTypeHello, nil)
	if hello["session_id"] != sessionID || hello["mode"] != "tutoring" || hello["state"] != "idle" {
		t.Errorf("hello = %v", hello)
	}
	transcript := readUntil(t, ws, MessageTypeTranscript, nil)
	if turns, ok := transcript["turns"].([]interface{}); !ok || len(turns) != 0 {
		t.Errorf("initial transcript = %v", transcript)
	}

	deadline := time.Now().Add(time.Second)
	for s.hub.ConnectedClients() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := s.hub.ConnectedClients(); n != 1 {
		t.Errorf("ConnectedClients = %d, want 1", n)
	}
}

func TestWebSocketTutoringTurn(t *testing.T) {
	s := setupTestServer(t)
	ws, _ := s.dial(t, entities.ModeTutoring)
	readUntil(t, ws, MessageTypeHello, nil)

	if err := ws.WriteMessage(websocket.BinaryMessage, []byte("RIFF-recording")); err != nil {
		t.Fatalf("write capture: %v", err)
	}
	recognized := readUntil(t, ws, MessageTypeRecognized, nil)
	if recognized["text"] != "Hello there" {
		t.Errorf("recognized = %v", recognized)
	}
	readUntil(t, ws, MessageTypeState, func(m map[string]interface{}) bool { return m["state"] == "recognized" })

	// the capture command may still be finishing when its last update arrives
	var final map[string]interface{}
	for attempt := 0; final == nil && attempt < 50; attempt++ {
		if err := ws.WriteJSON(map[string]string{"type": "submit", "text": "Hello there!"}); err != nil {
			t.Fatalf("write submit: %v", err)
		}
		msg := readUntil(t, ws, "", func(m map[string]interface{}) bool {
			return m["type"] == string(MessageTypeError) || m["state"] == "awaiting_reply"
		})
		if msg["type"] == string(MessageTypeError) {
			if msg["error_code"] != "session_busy" {
				t.Fatalf("submit rejected: %v", msg)
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		final = msg
	}
	if final == nil {
		t.Fatal("submit was never accepted")
	}

	final = readUntil(t, ws, MessageTypeTranscript, func(m map[string]interface{}) bool {
		turns, _ := m["turns"].([]interface{})
		if len(turns) != 1 {
			return false
		}
		reply, _ := turns[0].(map[string]interface{})["assistant"].(string)
		return strings.Contains(reply, "<audio")
	})
	turn := final["turns"].([]interface{})[0].(map[string]interface{})
	if !strings.HasPrefix(turn["user"].(string), "Hello there!\n\n<audio") {
		t.Errorf("user = %q", turn["user"])
	}
	if !strings.HasPrefix(turn["assistant"].(string), "Nice to meet you.\n\n<audio") {
		t.Errorf("assistant = %q", turn["assistant"])
	}

	readUntil(t, ws, MessageTypeInputCleared, nil)
	pipeline := readUntil(t, ws, MessageTypePipeline, func(m map[string]interface{}) bool { return m["state"] == "completed" })
	if id, _ := pipeline["pipeline_id"].(string); !strings.HasPrefix(id, "tutoring_turn_") {
		t.Errorf("pipeline = %v", pipeline)
	}
}

func TestWebSocketPingAndInvalidMessages(t *testing.T) {
	s := setupTestServer(t)
	ws, _ := s.dial(t, entities.ModeTutoring)
	readUntil(t, ws, MessageTypeHello, nil)

	ws.WriteJSON(map[string]string{"type": "ping", "data": "test-ping"})
	pong := readUntil(t, ws, MessageTypePong, nil)
	if pong["data"] != "test-ping" {
		t.Errorf("pong = %v", pong)
	}

	ws.WriteMessage(websocket.TextMessage, []byte(`{invalid json}`))
	if msg := readUntil(t, ws, MessageTypeError, nil); msg["error_code"] != "invalid_message" {
		t.Errorf("error = %v", msg)
	}

	ws.WriteJSON(map[string]string{"type": "kick_start"})
	if msg := readUntil(t, ws, MessageTypeError, nil); msg["error_code"] != "invalid_transition" {
		t.Errorf("error = %v", msg)
	}
}

func TestWebSocketUnknownSession(t *testing.T) {
	s := setupTestServer(t)

	ws, _, err := websocket.DefaultDialer.Dial(s.url+"?session=missing", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ws.Close()

	readUntil(t, ws, MessageTypeError, nil)
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Error("connection should be closed after a failed attach")
	}
}

func TestHubReplacesReconnectingClient(t *testing.T) {
	s := setupTestServer(t)
	first, sessionID := s.dial(t, entities.ModeTutoring)
	readUntil(t, first, MessageTypeHello, nil)

	second, _, err := websocket.DefaultDialer.Dial(s.url+"?session="+sessionID, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer second.Close()
	readUntil(t, second, MessageTypeHello, nil)

	// the first connection is closed by the server
	first.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	second.WriteJSON(map[string]string{"type": "clear"})
	readUntil(t, second, MessageTypeTranscript, nil)
	if n := s.hub.ConnectedClients(); n != 1 {
		t.Errorf("ConnectedClients = %d, want 1", n)
	}
}

type countingReaper struct {
	calls chan struct{}
}

func (r *countingReaper) ReapInactive(ctx context.Context) (int, error) {
	r.calls <- struct{}{}
	return 1, nil
}

func TestSessionCleanupService(t *testing.T) {
	reaper := &countingReaper{calls: make(chan struct{}, 10)}
	service := NewSessionCleanupService(reaper, 10*time.Millisecond, zaptest.NewLogger(t))
	service.Start()

	select {
	case <-reaper.calls:
	case <-time.After(time.Second):
		t.Fatal("reaper was not called")
	}
	service.Stop()
}
