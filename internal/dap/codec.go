// Package dap implements the Debug Adapter Protocol client side: message
// framing, transports, and a sequence-correlated request client.
package dap

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Message is one framed DAP message: headers plus JSON content.
type Message struct {
	// ContentLength is the length of the content.
	ContentLength int

	// Content is the JSON content.
	Content json.RawMessage
}

// MaxContentLength is the maximum allowed content length for DAP messages (10MB).
const MaxContentLength = 10 * 1024 * 1024

// writeMessage writes a DAP message with a Content-Length header.
func writeMessage(w io.Writer, msg *Message) error {
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(msg.Content))

	if _, err := io.WriteString(w, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(msg.Content); err != nil {
		return fmt.Errorf("write content: %w", err)
	}
	return nil
}

// readMessage reads one framed DAP message from the reader.
func readMessage(r *bufio.Reader) (*Message, error) {
	var contentLength int

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break // End of headers
		}

		parts := strings.SplitN(line, ": ", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid header: %s", line)
		}

		if strings.EqualFold(parts[0], "content-length") {
			length, err := strconv.Atoi(parts[1])
			if err != nil {
				return nil, fmt.Errorf("invalid content-length: %w", err)
			}
			if length < 0 || length > MaxContentLength {
				return nil, fmt.Errorf("content-length %d exceeds maximum allowed %d", length, MaxContentLength)
			}
			contentLength = length
		}
		// Ignore Content-Type and other headers.
	}

	if contentLength == 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}

	content := make([]byte, contentLength)
	if _, err := io.ReadFull(r, content); err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}

	return &Message{
		ContentLength: contentLength,
		Content:       content,
	}, nil
}

// newMessage wraps already-marshalled content in a Message.
func newMessage(content []byte) *Message {
	return &Message{
		ContentLength: len(content),
		Content:       content,
	}
}
