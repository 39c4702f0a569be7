package mcp

import (
	"bufio"
	"io"
	"strings"

	"github.com/bytedance/sonic"
)

// decodeEventStream consumes a text/event-stream body and returns the most
// recently decoded JSON frame. Frames are blank-line delimited; within a
// frame all "data:" line payloads are concatenated before decoding. Earlier
// frames are interim results and discarded. If the stream ends without a
// single decodable frame, a final decode of any residual "data:" lines in
// the trailing buffer is attempted before giving up.
func decodeEventStream(r io.Reader) ([]byte, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)

	var dataLines []string
	var last []byte

	decode := func(lines []string) {
		if len(lines) == 0 {
			return
		}
		payload := strings.Join(lines, "\n")
		var probe any
		if err := sonic.UnmarshalString(payload, &probe); err == nil {
			last = []byte(payload)
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			decode(dataLines)
			dataLines = dataLines[:0]
			continue
		}
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			dataLines = append(dataLines, strings.TrimSpace(rest))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &TransportError{Err: err}
	}

	// Residual "data:" lines are only consulted when no complete frame
	// decoded; a decoded frame always wins over the trailing buffer.
	if last == nil {
		decode(dataLines)
	}

	if last == nil {
		return nil, &ProtocolError{Reason: "no JSON payload found in event stream"}
	}
	return last, nil
}
