// Package market describes the immutable identity of one trading pair
// on one venue: what it's called, where to connect, and which
// translation scheme applies to it.
package market

import "strings"

// Market is a (exchange, market type, base symbol, quote symbol) tuple
// plus the transport details needed to open a Session for it. It is
// created at configuration time and never mutated.
type Market struct {
	Exchange     string
	Type         string
	Base         string
	Quote        string
	Endpoint     string
	Translator   string
	PingRequired bool
}

// Tag is the canonical downstream identifier:
// <EXCHANGE>.<TYPE>:<BASE>-<QUOTE>, fully uppercased. Fields contain no
// dots, colons, or hyphens, so the tag round-trips unambiguously.
func (m Market) Tag() string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(m.Exchange))
	b.WriteByte('.')
	b.WriteString(strings.ToUpper(m.Type))
	b.WriteByte(':')
	b.WriteString(strings.ToUpper(m.Base))
	b.WriteByte('-')
	b.WriteString(strings.ToUpper(m.Quote))
	return b.String()
}
