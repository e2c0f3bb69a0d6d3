package integration

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/sse-chat/internal/config"
	"github.com/Tyrowin/sse-chat/test/testhelpers"
)

// TestStaticEndpointsIntegration exercises every stateless endpoint through the real router.
func TestStaticEndpointsIntegration(t *testing.T) {
	srv := testhelpers.StartTestServer(t, nil)

	tests := []struct {
		name        string
		path        string
		status      int
		contentType string
		body        string
	}{
		{name: "text", path: "/text", status: http.StatusOK, contentType: "text/plain", body: "hi"},
		{name: "json", path: "/json", status: http.StatusOK, contentType: "application/json; charset=utf-8", body: `{"text":"hi","numbers":[1,2,3]}`},
		{name: "json ignores params", path: "/json?numbers=9", status: http.StatusOK, contentType: "application/json; charset=utf-8", body: `{"text":"hi","numbers":[1,2,3]}`},
		{name: "echo", path: "/echo?input=hello", status: http.StatusOK, contentType: "application/json; charset=utf-8", body: `{"normal":"hello","shouty":"HELLO","charCount":5,"backwards":"olleh"}`},
		{name: "echo without input", path: "/echo", status: http.StatusOK, contentType: "application/json; charset=utf-8", body: `{"normal":"","shouty":"","charCount":0,"backwards":""}`},
		{name: "unknown path", path: "/does-not-exist", status: http.StatusNotFound, contentType: "text/plain", body: "Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := testhelpers.MakeRequest(t, http.MethodGet, srv.URL+tt.path)
			body := testhelpers.ReadBody(t, resp)

			testhelpers.AssertStatusCode(t, resp, tt.status)
			testhelpers.AssertContentType(t, resp, tt.contentType)
			if body != tt.body {
				t.Errorf("Expected body %q, got %q", tt.body, body)
			}
		})
	}
}

// TestChatPageIntegration verifies the chat page and its stylesheet are served.
func TestChatPageIntegration(t *testing.T) {
	srv := testhelpers.StartTestServer(t, nil)

	resp := testhelpers.MakeRequest(t, http.MethodGet, srv.URL+"/")
	body := testhelpers.ReadBody(t, resp)
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	testhelpers.AssertContentType(t, resp, "text/html; charset=utf-8")
	if !strings.Contains(body, "/sse") || !strings.Contains(body, "/chat?message=") {
		t.Errorf("Chat page does not reference the chat endpoints: %q", body)
	}

	resp = testhelpers.MakeRequest(t, http.MethodGet, srv.URL+"/chat.css")
	_ = testhelpers.ReadBody(t, resp)
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/css") {
		t.Errorf("Expected text/css, got %s", ct)
	}
}

// TestServerTimeouts tests that the server has proper timeout configurations
func TestServerTimeouts(t *testing.T) {
	srv := testhelpers.StartTestServer(t, nil)

	if srv.Config.Port != "3000" {
		t.Errorf("Expected default port 3000, got %s", srv.Config.Port)
	}

	httpServer := srv.Server.Config
	if httpServer.ReadTimeout != 15*time.Second {
		t.Errorf("Expected read timeout 15s, got %v", httpServer.ReadTimeout)
	}
	if httpServer.WriteTimeout != 15*time.Second {
		t.Errorf("Expected write timeout 15s, got %v", httpServer.WriteTimeout)
	}
	if httpServer.IdleTimeout != 60*time.Second {
		t.Errorf("Expected idle timeout 60s, got %v", httpServer.IdleTimeout)
	}
}

// TestSSEBroadcastIntegration publishes through /chat and checks every open stream receives it.
func TestSSEBroadcastIntegration(t *testing.T) {
	srv := testhelpers.StartTestServer(t, nil)

	first := testhelpers.OpenSSE(t, srv.URL+"/sse")
	second := testhelpers.OpenSSE(t, srv.URL+"/sse")

	testhelpers.AssertStatusCode(t, first.Response, http.StatusOK)
	testhelpers.AssertContentType(t, first.Response, "text/event-stream")
	if conn := first.Response.Header.Get("Cache-Control"); conn != "no-cache" {
		t.Errorf("Expected Cache-Control no-cache, got %q", conn)
	}

	srv.WaitForListeners(t, 2)
	testhelpers.Publish(t, srv.URL, "hello")

	first.ExpectFrame(t, "data: hello\n\n")
	second.ExpectFrame(t, "data: hello\n\n")
}

// TestSSEMessageOrderIntegration verifies consecutive publishes arrive in order.
func TestSSEMessageOrderIntegration(t *testing.T) {
	srv := testhelpers.StartTestServer(t, nil)

	stream := testhelpers.OpenSSE(t, srv.URL+"/sse")
	srv.WaitForListeners(t, 1)

	messages := []string{"one", "two", "three", "hello world", ""}
	for _, msg := range messages {
		testhelpers.Publish(t, srv.URL, msg)
	}
	for _, msg := range messages {
		stream.ExpectFrame(t, "data: "+msg+"\n\n")
	}
}

// TestSSEClosedStreamIntegration closes one of two streams and checks only the other receives.
func TestSSEClosedStreamIntegration(t *testing.T) {
	srv := testhelpers.StartTestServer(t, nil)

	remaining := testhelpers.OpenSSE(t, srv.URL+"/sse")
	closing := testhelpers.OpenSSE(t, srv.URL+"/sse")
	srv.WaitForListeners(t, 2)

	closing.Close()
	srv.WaitForListeners(t, 1)

	testhelpers.Publish(t, srv.URL, "after close")

	remaining.ExpectFrame(t, "data: after close\n\n")
	if frame, err := closing.ReadFrame(100 * time.Millisecond); err == nil {
		t.Errorf("Closed stream received %q", frame)
	}
}

// TestPublishWithoutListenersIntegration verifies publishing to nobody succeeds.
func TestPublishWithoutListenersIntegration(t *testing.T) {
	srv := testhelpers.StartTestServer(t, nil)

	resp := testhelpers.MakeRequest(t, http.MethodGet, srv.URL+"/chat?message=nobody")
	body := testhelpers.ReadBody(t, resp)

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)
	if body != "" {
		t.Errorf("Expected empty body, got %q", body)
	}
}

// TestSSEKeepAliveIntegration enables keep-alive comments and checks one arrives.
func TestSSEKeepAliveIntegration(t *testing.T) {
	srv := testhelpers.StartTestServer(t, func(cfg *config.Config) {
		cfg.SSE.KeepAliveInterval = 20 * time.Millisecond
	})

	stream := testhelpers.OpenSSE(t, srv.URL+"/sse")
	stream.ExpectFrame(t, ": keepalive\n\n")
}

// TestStalledSSEClientDoesNotBlockPublishers opens an event stream that never
// reads its response and checks that publishing and other requests still complete.
func TestStalledSSEClientDoesNotBlockPublishers(t *testing.T) {
	srv := testhelpers.StartTestServer(t, nil)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("Failed to parse server URL: %v", err)
	}
	conn, err := net.Dial("tcp", u.Host)
	if err != nil {
		t.Fatalf("Failed to dial server: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if _, err := fmt.Fprintf(conn, "GET /sse HTTP/1.1\r\nHost: %s\r\n\r\n", u.Host); err != nil {
		t.Fatalf("Failed to send request: %v", err)
	}
	srv.WaitForListeners(t, 1)

	// Far more than the socket buffers hold, so a direct write would block.
	payload := strings.Repeat("x", 64*1024)
	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; i < 1600; i++ {
			srv.Broadcaster.Publish(payload)
		}
	}()

	select {
	case <-published:
	case <-time.After(5 * time.Second):
		t.Fatal("Publishing blocked on a client that does not read")
	}

	testhelpers.Publish(t, srv.URL, "still flowing")
}
