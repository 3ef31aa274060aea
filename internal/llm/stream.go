package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// consumeStream reads server-sent events from body until the terminal done
// event arrives. Lines that are not data frames or fail to parse are skipped;
// the upstream interleaves keep-alives and comments.
func consumeStream(ctx context.Context, body io.Reader, onChunk func(string) error) (*StreamResult, error) {
	scanner := bufio.NewScanner(body)

	// Large increments arrive as one SSE frame; the default 64KB token
	// limit is too small for them.
	const maxCapacity = 1024 * 1024
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	var full strings.Builder

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}

		switch event.Type {
		case "chunk":
			full.WriteString(event.Content)
			if onChunk != nil {
				if err := onChunk(event.Content); err != nil {
					return nil, err
				}
			}
		case "done":
			reply := event.Reply
			if reply == "" {
				reply = full.String()
			}
			return &StreamResult{Reply: reply, Embeddings: event.Embeddings}, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: stream read: %v", ErrUpstreamUnavailable, err)
	}

	// Stream ended without a done event; fall back to what accumulated.
	return &StreamResult{Reply: full.String()}, nil
}
