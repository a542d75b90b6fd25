// Package dashboard provides the embedded status page for the billpoll CLI.
//
// The page lists every poll session and follows /api/sse for live updates.
// It is embedded at compile time so the binary needs no asset files.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the status page.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - status page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
