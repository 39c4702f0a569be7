package mcp

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeEventStreamLastFrameWins(t *testing.T) {
	t.Parallel()
	stream := "data: {\"a\":1}\n\ndata: {\"a\":2}\n\n"
	got, err := decodeEventStream(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if string(got) != `{"a":2}` {
		t.Errorf("got %s, want last frame", got)
	}
}

func TestDecodeEventStreamMultiLineData(t *testing.T) {
	t.Parallel()
	stream := "data: {\"a\":\ndata: 1}\n\n"
	got, err := decodeEventStream(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if string(got) != "{\"a\":\n1}" {
		t.Errorf("data lines not concatenated: %q", got)
	}
}

func TestDecodeEventStreamSkipsNonJSONFrames(t *testing.T) {
	t.Parallel()
	stream := "data: {\"ok\":true}\n\ndata: [interim ping]\n\n"
	got, err := decodeEventStream(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if string(got) != `{"ok":true}` {
		t.Errorf("undecodable trailing frame must not win: %q", got)
	}
}

func TestDecodeEventStreamTrailingBufferFallback(t *testing.T) {
	t.Parallel()
	// Stream ends without the final blank-line delimiter.
	stream := "data: {\"tail\":true}"
	got, err := decodeEventStream(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if string(got) != `{"tail":true}` {
		t.Errorf("residual data lines not decoded: %q", got)
	}
}

func TestDecodeEventStreamNoFramesIsProtocolError(t *testing.T) {
	t.Parallel()
	cases := []string{
		"",
		": comment only\n\n",
		"data: not json\n\n",
	}
	for _, stream := range cases {
		_, err := decodeEventStream(strings.NewReader(stream))
		var protoErr *ProtocolError
		if !errors.As(err, &protoErr) {
			t.Errorf("stream %q: err = %v, want ProtocolError", stream, err)
		}
	}
}
