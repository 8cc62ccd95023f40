package dap

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	content := []byte(`{"seq":1,"type":"request","command":"initialize"}`)

	var buf bytes.Buffer
	if err := writeMessage(&buf, newMessage(content)); err != nil {
		t.Fatalf("writeMessage failed: %v", err)
	}

	if !strings.HasPrefix(buf.String(), "Content-Length: ") {
		t.Errorf("missing Content-Length header: %q", buf.String())
	}

	msg, err := readMessage(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("readMessage failed: %v", err)
	}
	if msg.ContentLength != len(content) {
		t.Errorf("content length = %d, want %d", msg.ContentLength, len(content))
	}
	if !bytes.Equal(msg.Content, content) {
		t.Errorf("content = %s, want %s", msg.Content, content)
	}
}

func TestCodecMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	first := []byte(`{"seq":1,"type":"request","command":"threads"}`)
	second := []byte(`{"seq":2,"type":"request","command":"pause"}`)
	if err := writeMessage(&buf, newMessage(first)); err != nil {
		t.Fatalf("write first: %v", err)
	}
	if err := writeMessage(&buf, newMessage(second)); err != nil {
		t.Fatalf("write second: %v", err)
	}

	reader := bufio.NewReader(&buf)
	msg, err := readMessage(reader)
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	if !bytes.Equal(msg.Content, first) {
		t.Errorf("first = %s, want %s", msg.Content, first)
	}
	msg, err = readMessage(reader)
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if !bytes.Equal(msg.Content, second) {
		t.Errorf("second = %s, want %s", msg.Content, second)
	}
}

func TestCodecHeaderCaseInsensitive(t *testing.T) {
	raw := "content-length: 2\r\n\r\n{}"
	msg, err := readMessage(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("readMessage failed: %v", err)
	}
	if string(msg.Content) != "{}" {
		t.Errorf("content = %s, want {}", msg.Content)
	}
}

func TestCodecMissingContentLength(t *testing.T) {
	raw := "X-Other: 1\r\n\r\n{}"
	if _, err := readMessage(bufio.NewReader(strings.NewReader(raw))); err == nil {
		t.Fatal("expected error for missing Content-Length")
	}
}

func TestCodecRejectsOversizeMessage(t *testing.T) {
	raw := "Content-Length: 99999999999\r\n\r\n"
	if _, err := readMessage(bufio.NewReader(strings.NewReader(raw))); err == nil {
		t.Fatal("expected error for oversize content length")
	}
}
