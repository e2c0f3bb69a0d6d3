// Package server defines shared payload types and utility helpers that are
// reused across handlers and WebSocket clients.
package server

import (
	"strings"
	"unicode/utf8"
)

// Message represents the JSON message format exchanged with WebSocket clients.
type Message struct {
	Content string `json:"content"`
}

// EchoResponse is the body returned by the echo endpoint.
type EchoResponse struct {
	Normal    string `json:"normal"`
	Shouty    string `json:"shouty"`
	CharCount int    `json:"charCount"`
	Backwards string `json:"backwards"`
}

// Greeting is the fixed body returned by the JSON endpoint.
type Greeting struct {
	Text    string `json:"text"`
	Numbers []int  `json:"numbers"`
}

// Echo returns input unchanged, upper-cased, measured in characters and
// reversed character by character.
func Echo(input string) EchoResponse {
	return EchoResponse{
		Normal:    input,
		Shouty:    strings.ToUpper(input),
		CharCount: utf8.RuneCountInString(input),
		Backwards: reverse(input),
	}
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
