package stream

import (
	"encoding/json"
	"strings"
)

const dataPrefix = "data:"

// responsePrefixes are stripped once, in this order, from the decoded text.
var responsePrefixes = []string{
	"Answer:",
	"Answer :",
	"AI:",
	"AI :",
	"Assistant:",
	"Assistant :",
}

type tokenEvent struct {
	Type string  `json:"type"`
	Data *string `json:"data"`
}

type lineKind int

const (
	lineIgnored lineKind = iota
	lineToken
	lineSkipped
	lineUnframed
)

// classifyLine inspects one logical line. final marks the unterminated last
// line of the buffer, which may still grow into a data line.
func classifyLine(line string, final bool) (lineKind, string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return lineIgnored, ""
	}
	if !strings.HasPrefix(line, dataPrefix) {
		if final && strings.HasPrefix(dataPrefix, line) {
			return lineIgnored, ""
		}
		return lineUnframed, ""
	}

	payload := strings.TrimSpace(line[len(dataPrefix):])
	var evt tokenEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		// Incomplete or garbled JSON. A later buffer may complete it.
		return lineSkipped, ""
	}
	if evt.Type != "token" || evt.Data == nil {
		return lineIgnored, ""
	}
	return lineToken, *evt.Data
}

// Decoder accumulates a chunked event stream and exposes its decoded text.
// Completed lines are parsed once; only the unterminated tail is looked at
// again on every Projection call.
type Decoder struct {
	raw      strings.Builder
	tail     string
	text     strings.Builder
	unframed bool
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Write appends a chunk. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.WriteString(string(p))
	return len(p), nil
}

// WriteString appends a chunk given as text.
func (d *Decoder) WriteString(chunk string) {
	d.raw.WriteString(chunk)
	if d.unframed {
		return
	}

	pending := d.tail + chunk
	last := strings.LastIndexByte(pending, '\n')
	if last < 0 {
		d.tail = pending
		return
	}
	d.tail = pending[last+1:]

	for _, line := range strings.Split(pending[:last], "\n") {
		kind, data := classifyLine(line, false)
		switch kind {
		case lineToken:
			d.text.WriteString(data)
		case lineUnframed:
			d.unframed = true
			d.text.Reset()
			d.tail = ""
			return
		}
	}
}

// Projection returns the decoded text for everything written so far.
func (d *Decoder) Projection() string {
	return d.project(true)
}

// Final returns the decoded text once the stream has ended. The unterminated
// tail is read as a complete line, so it can no longer be pending.
func (d *Decoder) Final() string {
	return d.project(false)
}

func (d *Decoder) project(open bool) string {
	if d.unframed {
		return StripResponsePrefix(d.raw.String())
	}
	kind, data := classifyLine(d.tail, open)
	switch kind {
	case lineToken:
		return StripResponsePrefix(d.text.String() + data)
	case lineUnframed:
		return StripResponsePrefix(d.raw.String())
	}
	return StripResponsePrefix(d.text.String())
}

// Buffer returns the raw accumulated stream.
func (d *Decoder) Buffer() string {
	return d.raw.String()
}

// Len reports the number of raw bytes accumulated.
func (d *Decoder) Len() int {
	return d.raw.Len()
}

// Decode is the stateless form of Decoder: the projection of buffer.
func Decode(buffer string) string {
	d := NewDecoder()
	d.WriteString(buffer)
	return d.Projection()
}

// StripResponsePrefix trims text and removes at most one leading response
// label such as "Answer:".
func StripResponsePrefix(text string) string {
	text = strings.TrimSpace(text)
	for _, prefix := range responsePrefixes {
		if strings.HasPrefix(text, prefix) {
			return strings.TrimSpace(text[len(prefix):])
		}
	}
	return text
}
