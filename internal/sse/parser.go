// Package sse implements an incremental parser for server-sent-event byte
// streams. It makes no assumption about where network chunk boundaries fall:
// bytes are accumulated in a buffer and blocks are only extracted once their
// terminating blank line has arrived, so feeding a stream one byte at a time
// yields the same payloads as feeding it whole.
package sse

import (
	"bytes"
	"strings"
)

const dataPrefix = "data:"

// DoneSentinel is the reserved payload signalling end of stream.
const DoneSentinel = "[DONE]"

// Parser converts an arbitrarily-chunked SSE byte stream into discrete
// data-line payloads. It is single-use: one Parser per stream attempt.
type Parser struct {
	buf  []byte
	done bool
}

func NewParser() *Parser {
	return &Parser{}
}

// Feed appends chunk to the internal buffer and returns the payloads of every
// block completed by this chunk. The trailing, possibly incomplete block stays
// buffered for the next call. After the done sentinel has been seen, Feed
// consumes nothing and returns nil.
func (p *Parser) Feed(chunk []byte) []string {
	if p.done {
		return nil
	}

	p.buf = append(p.buf, chunk...)

	// Upstreams may frame with CRLF. Normalizing the whole buffer keeps the
	// split below single-form; a lone trailing \r from a chunk boundary
	// mid-CRLF stays buffered and collapses once its \n arrives.
	p.buf = bytes.ReplaceAll(p.buf, []byte("\r\n"), []byte("\n"))

	// Splitting on the raw separator bytes is safe for UTF-8 input: a
	// newline byte never occurs inside a multi-byte rune, so a chunk
	// boundary mid-rune just leaves the partial rune buffered.
	blocks := bytes.Split(p.buf, []byte("\n\n"))
	if len(blocks) == 1 {
		return nil
	}

	// Every block but the last is complete; the last becomes the new buffer.
	tail := blocks[len(blocks)-1]
	p.buf = append(p.buf[:0], tail...)

	var payloads []string
	for _, block := range blocks[:len(blocks)-1] {
		extracted, done := parseBlock(block)
		payloads = append(payloads, extracted...)
		if done {
			p.done = true
			p.buf = nil
			break
		}
	}
	return payloads
}

// Flush parses whatever remains buffered as a final block. Call it once the
// upstream body reaches EOF; streams that end without a trailing blank line
// still deliver their last event this way.
func (p *Parser) Flush() []string {
	if p.done || len(p.buf) == 0 {
		return nil
	}
	block := p.buf
	p.buf = nil
	extracted, done := parseBlock(block)
	if done {
		p.done = true
	}
	return extracted
}

// Done reports whether the done sentinel has been seen.
func (p *Parser) Done() bool {
	return p.done
}

// parseBlock extracts the data-line payloads of one complete block. Payloads
// after the done sentinel within the same block are discarded.
func parseBlock(block []byte) (payloads []string, done bool) {
	for _, line := range strings.Split(string(block), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, dataPrefix) {
			// event:/id:/comment lines are the writer's concern on the
			// outbound side; inbound we only care about data.
			continue
		}
		payload := strings.TrimSpace(line[len(dataPrefix):])
		if IsDoneSentinel(payload) {
			return payloads, true
		}
		payloads = append(payloads, payload)
	}
	return payloads, false
}

// IsDoneSentinel reports whether payload is the end-of-stream marker, with or
// without surrounding quotes (some upstreams JSON-encode the sentinel).
func IsDoneSentinel(payload string) bool {
	trimmed := strings.Trim(strings.TrimSpace(payload), `"`)
	return trimmed == DoneSentinel
}
