// Package diag turns small internal structs into zerolog fields for
// one-line connection-state logging, without every caller hand-listing
// field names.
package diag

import (
	"github.com/fatih/structs"
	"github.com/rs/zerolog"
)

// Fields flattens v (a struct or pointer to struct) into a zerolog field
// map keyed by its exported field names.
func Fields(v interface{}) map[string]interface{} {
	s := structs.New(v)
	s.TagName = "diag"
	return s.Map()
}

// Log attaches Fields(v) to e under key and returns e for chaining.
func Log(e *zerolog.Event, key string, v interface{}) *zerolog.Event {
	return e.Fields(map[string]interface{}{key: Fields(v)})
}
