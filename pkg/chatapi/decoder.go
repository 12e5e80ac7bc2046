package chatapi

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/user/studychat/internal/types"
)

// doneSentinel is the frame marking a clean end of stream.
const doneSentinel = "[DONE]"

const dataPrefix = "data:"

// Decoder turns the raw byte stream of a streaming send response into a
// lazy, finite, non-restartable sequence of StreamEvent. It is not safe for
// concurrent use; a single consumer calls Next until io.EOF.
type Decoder struct {
	r       io.Reader
	buf     []byte
	readBuf []byte
	pending []types.StreamEvent

	sawInit  bool
	terminal bool // a terminal event has been queued; remaining input is ignored
	eof      bool
	err      error
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:       r,
		readBuf: make([]byte, 4096),
	}
}

// Next returns the next decoded event. It returns io.EOF after the terminal
// event (done, error, or stream close) has been delivered.
func (d *Decoder) Next() (types.StreamEvent, error) {
	for {
		if len(d.pending) > 0 {
			ev := d.pending[0]
			d.pending = d.pending[1:]
			return ev, nil
		}
		if d.err != nil {
			return types.StreamEvent{}, d.err
		}
		if d.terminal || d.eof {
			return types.StreamEvent{}, io.EOF
		}

		n, err := d.r.Read(d.readBuf)
		if n > 0 {
			d.buf = append(d.buf, d.readBuf[:n]...)
			d.drainLines()
		}
		if err != nil {
			if err == io.EOF {
				// Flush the trailing partial line once, then end.
				if rest := strings.TrimSpace(string(d.buf)); rest != "" {
					d.processLine(rest)
				}
				d.buf = nil
				d.eof = true
				continue
			}
			d.err = err
		}
	}
}

// drainLines processes every complete line in the buffer, keeping the
// trailing partial line for the next read.
func (d *Decoder) drainLines() {
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			return
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]
		d.processLine(line)
	}
}

func (d *Decoder) processLine(line string) {
	if d.terminal {
		return
	}
	line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
	if line == "" {
		return
	}
	if strings.HasPrefix(line, dataPrefix) {
		d.processFrame(strings.TrimSpace(line[len(dataPrefix):]))
		return
	}
	// A non-blank line with no recognized prefix: defensive fallback for
	// plain-text frames.
	d.push(types.StreamEvent{Kind: types.EventChunk, Text: line})
}

// protocolFrame is the wire shape of a JSON data frame. Content is a pointer
// so that an explicitly present empty string is distinguishable from an
// absent field.
type protocolFrame struct {
	Event     string          `json:"event"`
	SessionID types.SessionID `json:"session_id"`
	Title     string          `json:"title"`
	Content   *string         `json:"content"`
	Detail    string          `json:"detail"`
}

func (d *Decoder) processFrame(frame string) {
	if frame == "" {
		return
	}
	if frame == doneSentinel {
		d.push(types.StreamEvent{Kind: types.EventDone})
		return
	}

	var f protocolFrame
	if err := json.Unmarshal([]byte(frame), &f); err != nil {
		// Malformed frame: treat the raw text itself as content.
		d.push(types.StreamEvent{Kind: types.EventChunk, Text: frame})
		return
	}

	switch f.Event {
	case "session_initialized":
		// First session id wins: duplicate or re-ordered init frames are
		// dropped whole.
		if d.sawInit {
			return
		}
		d.sawInit = true
		d.push(types.StreamEvent{Kind: types.EventSessionInit, SessionID: f.SessionID, Title: f.Title})
		if f.Content != nil && *f.Content != "" {
			d.push(types.StreamEvent{Kind: types.EventChunk, Text: *f.Content})
		}
	case "error":
		d.push(types.StreamEvent{Kind: types.EventError, Detail: f.Detail})
	default:
		if f.Content != nil {
			d.push(types.StreamEvent{Kind: types.EventChunk, Text: *f.Content})
			return
		}
		d.push(types.StreamEvent{Kind: types.EventUnrecognized, Raw: frame})
	}
}

func (d *Decoder) push(ev types.StreamEvent) {
	d.pending = append(d.pending, ev)
	if ev.Terminal() {
		d.terminal = true
	}
}
