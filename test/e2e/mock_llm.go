package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Call kinds the backend distinguishes, matched from the system message
// each pipeline stage sends.
const (
	callChat        = "chat"
	callFrustration = "frustration"
	callRewrite     = "rewrite"
)

// ScriptedBackend is a chat-completions endpoint the generator adapter
// talks to over real HTTP. Responses are scripted per call kind; chat
// entries are consumed in order with the last entry repeating.
type ScriptedBackend struct {
	mu sync.Mutex

	srv *httptest.Server

	chatReplies       []string
	chatIndex         int
	frustrationRating string
	rewriteReply      string

	failStatus int             // when non-zero every call returns this status
	blockCh    <-chan struct{} // when non-nil chat calls block until closed or the request context ends
	onBlock    chan<- struct{} // notified once a chat call starts blocking

	calls map[string]int
}

// NewScriptedBackend starts the backend with benign defaults: calm
// frustration ratings and no rewrite improvement.
func NewScriptedBackend() *ScriptedBackend {
	b := &ScriptedBackend{
		frustrationRating: "2",
		calls:             make(map[string]int),
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.handle))
	return b
}

// URL returns the base URL for the generator adapter configuration.
func (b *ScriptedBackend) URL() string { return b.srv.URL }

// Close shuts the backend down.
func (b *ScriptedBackend) Close() { b.srv.Close() }

// ScriptChat appends replies consumed in order by chatbot calls.
func (b *ScriptedBackend) ScriptChat(replies ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chatReplies = append(b.chatReplies, replies...)
}

// ScriptFrustration sets the numeric rating returned to the frustration
// analyzer.
func (b *ScriptedBackend) ScriptFrustration(rating string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frustrationRating = rating
}

// ScriptRewrite sets the response returned to quality rewrite calls.
func (b *ScriptedBackend) ScriptRewrite(reply string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rewriteReply = reply
}

// FailWith makes every subsequent call return the given HTTP status.
func (b *ScriptedBackend) FailWith(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failStatus = status
}

// BlockChat makes chat calls block until release is closed or the caller
// gives up. onBlock, if non-nil, receives one value when blocking starts.
func (b *ScriptedBackend) BlockChat(release <-chan struct{}, onBlock chan<- struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blockCh = release
	b.onBlock = onBlock
}

// Calls returns how many requests of the given kind arrived.
func (b *ScriptedBackend) Calls(kind string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[kind]
}

type completionRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func (b *ScriptedBackend) handle(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	kind := classify(&req)

	b.mu.Lock()
	b.calls[kind]++
	failStatus := b.failStatus
	blockCh := b.blockCh
	onBlock := b.onBlock
	text := ""
	switch kind {
	case callFrustration:
		text = b.frustrationRating
	case callRewrite:
		text = b.rewriteReply
	default:
		if len(b.chatReplies) > 0 {
			i := b.chatIndex
			if i >= len(b.chatReplies) {
				i = len(b.chatReplies) - 1
			}
			text = b.chatReplies[i]
			b.chatIndex++
		}
	}
	b.mu.Unlock()

	if failStatus != 0 {
		http.Error(w, "scripted failure", failStatus)
		return
	}

	if kind == callChat && blockCh != nil {
		if onBlock != nil {
			onBlock <- struct{}{}
		}
		select {
		case <-blockCh:
		case <-r.Context().Done():
			return
		}
	}

	resp := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": text}},
		},
		"usage": map[string]int{"total_tokens": len(strings.Fields(text)) + 4},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// classify matches the system message against the stage instructions.
func classify(req *completionRequest) string {
	for _, m := range req.Messages {
		if m.Role != "system" {
			continue
		}
		switch {
		case strings.Contains(m.Content, "rate customer frustration"):
			return callFrustration
		case strings.Contains(m.Content, "improve customer-service responses"):
			return callRewrite
		}
	}
	return callChat
}
