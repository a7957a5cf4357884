package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxEventSize bounds a hook payload read from stdin.
const maxEventSize = 4 * 1024 * 1024

// Bridge is the one-shot stdio side of hook handling: it reads a single
// event from a reader, forwards it to the daemon over HTTP, and writes
// the response JSON to a writer. Claude Code invokes the bridge binary
// once per hook event.
//
// The bridge itself is transport and must fail open: if the daemon is
// unreachable the event is allowed through, because a dead orchestrator
// must not take the assistant down with it. Policy decisions fail closed
// inside the daemon, not here.
type Bridge struct {
	daemonURL string
	client    *http.Client
}

// NewBridge creates a bridge targeting the daemon base URL.
func NewBridge(daemonURL string) *Bridge {
	return &Bridge{
		daemonURL: daemonURL,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Run processes one hook event: read, forward, respond.
func (b *Bridge) Run(ctx context.Context, hookType Type, in io.Reader, out io.Writer) error {
	payload, err := io.ReadAll(io.LimitReader(in, maxEventSize))
	if err != nil {
		return writeResponse(out, Allow())
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return writeResponse(out, Allow())
	}

	resp, err := b.forward(ctx, hookType, &event)
	if err != nil {
		return writeResponse(out, Allow())
	}
	return writeResponse(out, resp)
}

// forward POSTs the event to the daemon's hook endpoint.
func (b *Bridge) forward(ctx context.Context, hookType Type, event *Event) (*Response, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/v1/hooks/%s", b.daemonURL, pathFor(hookType))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon returned %d", httpResp.StatusCode)
	}

	var resp Response
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, maxEventSize)).Decode(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// pathFor maps a hook type to its daemon endpoint segment.
func pathFor(hookType Type) string {
	switch hookType {
	case TypePreToolUse:
		return "pre-tool-use"
	case TypePostToolUse:
		return "post-tool-use"
	case TypeUserPromptSubmit:
		return "user-prompt-submit"
	case TypeStop:
		return "stop"
	case TypePreCompact:
		return "pre-compact"
	case TypeSessionEnd:
		return "session-end"
	}
	return "unknown"
}

func writeResponse(out io.Writer, resp *Response) error {
	enc := json.NewEncoder(out)
	return enc.Encode(resp)
}
