// Package web embeds the chat page and the static asset directory served by
// the HTTP server.
package web

import (
	"embed"
	"io/fs"
)

// ChatPage is the file name of the chat page within Files.
const ChatPage = "chat.html"

// PublicDir is the directory within Files whose contents are served at the
// site root.
const PublicDir = "public"

// Files holds the chat page and the public directory.
//
//go:embed chat.html public
var Files embed.FS

// Public returns the public directory as a file system rooted at its contents.
func Public() fs.FS {
	sub, err := fs.Sub(Files, PublicDir)
	if err != nil {
		// The directory is embedded at build time.
		panic(err)
	}
	return sub
}
