// Package frame implements the wire framing used by the build-configuration
// server: JSON payloads sandwiched between sentinel lines, one frame per
// request or server-initiated push.
package frame

import (
	"bufio"
	"bytes"
	"io"
)

const (
	startSentinel = "[== CMake Server ==["
	endSentinel   = "]== CMake Server ==]"
)

// Decoder scans a byte stream for sentinel-delimited frames and yields their
// raw JSON payloads. It is not safe for concurrent use.
type Decoder struct {
	r       *bufio.Reader
	inFrame bool
	payload bytes.Buffer
}

// NewDecoder returns a Decoder that reads frames from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next blocks until a complete frame has been read and returns its raw JSON
// payload. Bytes outside of a frame (noise before the start sentinel, or
// between frames) are silently discarded. Next returns io.EOF once the
// underlying reader is exhausted with no frame in progress.
func (d *Decoder) Next() ([]byte, error) {
	for {
		line, err := d.r.ReadString('\n')
		if len(line) == 0 && err != nil {
			return nil, err
		}

		line = stripNewline(line)

		switch line {
		case startSentinel:
			d.payload.Reset()
			d.inFrame = true
		case endSentinel:
			if d.inFrame {
				out := append([]byte(nil), d.payload.Bytes()...)
				d.payload.Reset()
				d.inFrame = false
				return out, nil
			}
		default:
			if d.inFrame {
				d.payload.WriteString(line)
				d.payload.WriteByte('\n')
			}
		}

		if err != nil {
			return nil, err
		}
	}
}

// stripNewline removes a trailing LF and an optional preceding CR.
func stripNewline(line string) string {
	line = bytes.NewBufferString(line).String()
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

// Encoder writes sentinel-delimited frames to an underlying writer. It does
// not serialize writes itself — callers (the transport) are responsible for
// ensuring only one frame is in flight at a time.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder that writes frames to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes payload wrapped in sentinel lines, LF-terminated, with a
// leading LF before the start sentinel as the wire format requires.
func (e *Encoder) Encode(payload []byte) error {
	var buf bytes.Buffer
	buf.WriteByte('\n')
	buf.WriteString(startSentinel)
	buf.WriteByte('\n')
	buf.Write(payload)
	if n := buf.Len(); n == 0 || buf.Bytes()[n-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString(endSentinel)
	buf.WriteByte('\n')

	_, err := e.w.Write(buf.Bytes())
	return err
}
