// Package testhelpers provides common utilities and helper functions for testing the chat server.
//
// This package contains reusable test utilities that are shared across integration tests.
// It provides functions for starting fully wired test servers, making HTTP requests, reading
// server-sent events and talking to the WebSocket endpoint.
package testhelpers

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/sse-chat/internal/broadcast"
	"github.com/Tyrowin/sse-chat/internal/config"
	"github.com/Tyrowin/sse-chat/internal/server"
)

// TestOrigin is the Origin header sent by WebSocket test clients.
const TestOrigin = "http://localhost:3000"

// ErrTimeout is returned when no frame arrives in time.
var ErrTimeout = errors.New("timed out waiting for frame")

// TestServer is a running server wired exactly like the production binary.
type TestServer struct {
	*httptest.Server
	Broadcaster *broadcast.Broadcaster
	Config      *config.Config

	cancel context.CancelFunc
}

// StartTestServer starts a server with the default configuration, optionally
// adjusted by customize. It is shut down when the test ends.
func StartTestServer(t *testing.T, customize func(cfg *config.Config)) *TestServer {
	t.Helper()

	cfg := config.Default()
	if customize != nil {
		customize(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := broadcast.NewBroadcaster(zerolog.Nop())
	router := server.SetupRoutes(server.NewHandlers(b, cfg, zerolog.Nop()))

	ts := httptest.NewUnstartedServer(router)
	ts.Config = server.CreateServer(ctx, "", router)
	ts.Start()

	s := &TestServer{Server: ts, Broadcaster: b, Config: cfg, cancel: cancel}
	t.Cleanup(s.Shutdown)
	return s
}

// CancelRequests cancels the base context of every request, as the binary does
// before shutting down.
func (s *TestServer) CancelRequests() {
	s.cancel()
}

// Shutdown ends every open stream and closes the server. It is safe to call twice.
func (s *TestServer) Shutdown() {
	s.cancel()
	s.Close()
}

// WebSocketURL returns the ws:// URL of the WebSocket endpoint.
func (s *TestServer) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
}

// WaitForListeners blocks until the broadcaster holds want listeners.
func (s *TestServer) WaitForListeners(t *testing.T, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for s.Broadcaster.Len() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d listeners, have %d", want, s.Broadcaster.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
// It fails the test with a descriptive error message if the content types don't match.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, target string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, target, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ReadBody reads and closes the response body.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	return string(body)
}

// Publish sends a chat message through the publish endpoint.
func Publish(t *testing.T, baseURL, message string) {
	t.Helper()
	resp := MakeRequest(t, http.MethodGet, baseURL+"/chat?message="+url.QueryEscape(message))
	AssertStatusCode(t, resp, http.StatusOK)
	_ = ReadBody(t, resp)
}

// SSEClient is an open event stream.
type SSEClient struct {
	Response *http.Response
	frames   chan string
	ctx      context.Context
	cancel   context.CancelFunc
}

// OpenSSE connects to streamURL and starts collecting frames. The stream is closed
// when the test ends.
func OpenSSE(t *testing.T, streamURL string) *SSEClient {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, http.NoBody)
	if err != nil {
		cancel()
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("Failed to open event stream: %v", err)
	}

	c := &SSEClient{Response: resp, frames: make(chan string, 64), ctx: ctx, cancel: cancel}
	go c.readFrames()
	t.Cleanup(c.Close)
	return c
}

// readFrames splits the stream into frames terminated by a blank line.
func (c *SSEClient) readFrames() {
	defer close(c.frames)

	scanner := bufio.NewScanner(c.Response.Body)
	var frame strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		frame.WriteString(line)
		frame.WriteString("\n")
		if line == "" {
			select {
			case c.frames <- frame.String():
			case <-c.ctx.Done():
				return
			}
			frame.Reset()
		}
	}
}

// ReadFrame returns the next raw frame, including its trailing blank line.
func (c *SSEClient) ReadFrame(timeout time.Duration) (string, error) {
	select {
	case frame, ok := <-c.frames:
		if !ok {
			return "", io.EOF
		}
		return frame, nil
	case <-time.After(timeout):
		return "", ErrTimeout
	}
}

// ExpectFrame fails the test unless the next frame equals want.
func (c *SSEClient) ExpectFrame(t *testing.T, want string) {
	t.Helper()
	got, err := c.ReadFrame(2 * time.Second)
	if err != nil {
		t.Fatalf("Expected frame %q: %v", want, err)
	}
	if got != want {
		t.Errorf("Expected frame %q, got %q", want, got)
	}
}

// ExpectNoFrame fails the test if a frame arrives within timeout.
func (c *SSEClient) ExpectNoFrame(t *testing.T, timeout time.Duration) {
	t.Helper()
	frame, err := c.ReadFrame(timeout)
	if err == nil {
		t.Errorf("Expected no frame, got %q", frame)
	}
}

// Close disconnects the client.
func (c *SSEClient) Close() {
	c.cancel()
	_ = c.Response.Body.Close()
}

// ConnectWebSocket creates a WebSocket connection to wsURL with the given
// Origin header. An empty origin sends none.
func ConnectWebSocket(wsURL, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(wsURL, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// SendMessage sends a JSON message with a "content" field over the WebSocket connection.
func SendMessage(conn *websocket.Conn, content string) error {
	return conn.WriteJSON(server.Message{Content: content})
}

// ReceiveMessage reads a JSON message from the WebSocket connection within timeout.
func ReceiveMessage(conn *websocket.Conn, timeout time.Duration) (server.Message, error) {
	var message server.Message
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return message, err
	}
	err := conn.ReadJSON(&message)
	return message, err
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return fmt.Errorf("write close frame: %w", err)
	}
	return conn.Close()
}
