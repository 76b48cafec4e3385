package assets

import _ "embed"

// Embedded browser collector, compiled into the binary at build time.

//go:embed collector.js
var CollectorJS []byte
