// Package server implements the HTTP surface of the chat: static and JSON
// endpoints, the server-sent events stream, the publish endpoint and the
// WebSocket bridge, all sharing one injected broadcaster.
//
// The implementation is organized into specialized files for handlers, event
// streams, WebSocket clients, routing and server lifecycle.
package server
