package static

import _ "embed"

// Favicon is served at /favicon.ico.
//
//go:embed favicon.ico
var Favicon []byte
