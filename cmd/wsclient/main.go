// Command wsclient drives one conversation against a running server: it
// creates a session, connects the WebSocket and sends either a recorded WAV
// file or typed text, printing every server message it receives.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type sessionResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

type serverMessage struct {
	Type      string          `json:"type"`
	State     string          `json:"state,omitempty"`
	Text      string          `json:"text,omitempty"`
	Code      string          `json:"error_code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Turns     json.RawMessage `json:"turns,omitempty"`
	Grades    json.RawMessage `json:"grades,omitempty"`
	Submit    *bool           `json:"submit_enabled,omitempty"`
	Pipeline  string          `json:"pipeline_id,omitempty"`
	Selection json.RawMessage `json:"selection,omitempty"`
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server host:port")
	mode := flag.String("mode", "tutoring", "tutoring or pronunciation")
	language := flag.String("language", "", "persona language, empty for the default")
	topic := flag.String("topic", "", "practice topic, empty for the default")
	wavPath := flag.String("wav", "", "16 kHz mono WAV file to send as the capture")
	text := flag.String("text", "", "text to submit in tutoring mode")
	wait := flag.Duration("wait", 20*time.Second, "how long to wait for the reply")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	session, err := createSession(*addr, *mode, *language, *topic)
	if err != nil {
		logger.Fatal("Failed to create session", zap.Error(err))
	}
	logger.Info("Session created", zap.String("sessionID", session.SessionID))

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: "token=" + url.QueryEscape(session.Token)}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		logger.Fatal("dial", zap.Error(err))
	}
	defer c.Close()

	states := make(chan string, 16)
	done := make(chan struct{})
	go readMessages(c, logger, states, done)

	if err := runTurn(c, *mode, *wavPath, *text, states, *wait); err != nil {
		logger.Error("Turn failed", zap.Error(err))
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	select {
	case <-done:
	case <-interrupt:
	case <-time.After(time.Second):
	}
	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func createSession(addr, mode, language, topic string) (*sessionResponse, error) {
	body, _ := json.Marshal(map[string]string{"mode": mode, "language": language, "topic": topic})
	resp, err := http.Post("http://"+addr+"/api/v1/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("create session: %s: %s", resp.Status, raw)
	}

	var session sessionResponse
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// runTurn performs one exchange and returns once the conversation is back at rest
func runTurn(c *websocket.Conn, mode, wavPath, text string, states <-chan string, wait time.Duration) error {
	if mode == "pronunciation" {
		if err := c.WriteJSON(map[string]string{"type": "kick_start"}); err != nil {
			return err
		}
		if err := awaitIdle(states, wait); err != nil {
			return err
		}
	}

	if wavPath != "" {
		audio, err := os.ReadFile(wavPath)
		if err != nil {
			return err
		}
		if err := c.WriteMessage(websocket.BinaryMessage, audio); err != nil {
			return err
		}
		if mode == "tutoring" {
			if err := awaitState(states, "recognized", wait); err != nil {
				return err
			}
		}
	}

	switch {
	case mode == "pronunciation" && wavPath != "":
		if err := c.WriteJSON(map[string]string{"type": "practice_submit"}); err != nil {
			return err
		}
	case mode == "tutoring" && (wavPath != "" || text != ""):
		if err := c.WriteJSON(map[string]string{"type": "submit", "text": text}); err != nil {
			return err
		}
	default:
		return nil
	}
	return awaitIdle(states, wait)
}

func awaitIdle(states <-chan string, wait time.Duration) error {
	return awaitState(states, "idle", wait)
}

func awaitState(states <-chan string, want string, wait time.Duration) error {
	timeout := time.After(wait)
	for {
		select {
		case s, ok := <-states:
			if !ok {
				return fmt.Errorf("connection closed before state %q", want)
			}
			if s == want {
				return nil
			}
		case <-timeout:
			return fmt.Errorf("timed out waiting for state %q", want)
		}
	}
}

func readMessages(c *websocket.Conn, logger *zap.Logger, states chan<- string, done chan<- struct{}) {
	defer close(done)
	defer close(states)

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Debug("read", zap.Error(err))
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Warn("Undecodable message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case "state":
			logger.Info("State", zap.String("state", msg.State))
			select {
			case states <- msg.State:
			default:
			}
		case "recognized":
			logger.Info("Recognized", zap.String("text", msg.Text))
		case "transcript":
			logger.Info("Transcript", zap.Int("bytes", len(msg.Turns)))
		case "assessment":
			logger.Info("Assessment", zap.ByteString("grades", msg.Grades))
		case "error":
			logger.Warn("Server error", zap.String("code", msg.Code), zap.String("message", msg.Message))
		default:
			logger.Info("Message", zap.String("type", msg.Type), zap.ByteString("raw", truncate(raw, 200)))
		}
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
