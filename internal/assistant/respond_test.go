package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/local/outreach/internal/store"
	"github.com/local/outreach/internal/tools"
)

type fakeUsers struct {
	mu    sync.Mutex
	users map[int64]store.User
}

func newFakeUsers(seed ...store.User) *fakeUsers {
	f := &fakeUsers{users: make(map[int64]store.User)}
	for _, u := range seed {
		f.users[u.UserID] = u
	}
	return f
}

func (f *fakeUsers) GetUser(ctx context.Context, userID int64) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) UpdateUserParam(ctx context.Context, userID int64, column string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[userID]
	u.UserID = userID
	switch column {
	case "conversation_id":
		u.ConversationID = value.(string)
	case "display_name":
		u.DisplayName = value.(string)
	default:
		return errors.New("unexpected column " + column)
	}
	f.users[userID] = u
	return nil
}

func TestParseReply(t *testing.T) {
	r, err := parseReply(`{"answer": "привет", "send": true, "file": false, "wait": true, "reply": 42}`)
	if err != nil {
		t.Fatalf("parseReply: %v", err)
	}
	if r.Answer != "привет" || !r.Send || r.File || !r.Wait || r.ReplyTo != 42 {
		t.Fatalf("unexpected reply: %+v", r)
	}

	if _, err := parseReply("not json"); err == nil {
		t.Fatal("expected error for malformed output_text")
	}
}

// TestRespondToolLoop drives a full turn against a fake service: the first
// response asks for a tool call, the second (after the tool output is
// resubmitted) carries the final directive.
func TestRespondToolLoop(t *testing.T) {
	var (
		mu            sync.Mutex
		responseCalls int
		sawToolOutput bool
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/conversations", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "conv_1"})
	})
	mux.HandleFunc("/responses", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Conversation string          `json:"conversation"`
			Input        json.RawMessage `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Conversation != "conv_1" {
			t.Errorf("wrong conversation id: %q", req.Conversation)
		}

		mu.Lock()
		responseCalls++
		n := responseCalls
		mu.Unlock()

		switch n {
		case 1:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"output": []map[string]any{{
					"type":      "function_call",
					"name":      "save_user_name",
					"call_id":   "call_1",
					"arguments": `{"name": "Иван"}`,
				}},
			})
		default:
			var outputs []struct {
				Type   string `json:"type"`
				CallID string `json:"call_id"`
				Output string `json:"output"`
			}
			if err := json.Unmarshal(req.Input, &outputs); err == nil {
				for _, o := range outputs {
					if o.Type == "function_call_output" && o.CallID == "call_1" && o.Output == "Имя сохранено" {
						mu.Lock()
						sawToolOutput = true
						mu.Unlock()
					}
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"output":      []map[string]any{{"type": "message"}},
				"output_text": `{"answer": "Рад знакомству, Иван!", "send": true, "file": false, "wait": false, "reply": 0}`,
			})
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	users := newFakeUsers(store.User{UserID: 7})
	registry := tools.NewRegistry(nil)
	tools.RegisterAll(registry, nil, nil)

	c := New(Config{BaseURL: srv.URL, Model: "test-model"}, users, registry, nil, nil)

	reply, err := c.Respond(context.Background(), 7, "Привет")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !reply.Send || reply.Answer != "Рад знакомству, Иван!" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if !sawToolOutput {
		t.Fatal("tool output was never resubmitted")
	}

	u, _ := users.GetUser(context.Background(), 7)
	if u.DisplayName != "Иван" {
		t.Fatalf("tool did not run: %+v", u)
	}
	if u.ConversationID != "conv_1" {
		t.Fatalf("conversation id not persisted: %+v", u)
	}

	// A second turn reuses the persisted conversation instead of creating a
	// new one.
	mu.Lock()
	responseCalls = 1 // next /responses call takes the final-directive branch
	mu.Unlock()
	if _, err := c.Respond(context.Background(), 7, "Еще вопрос"); err != nil {
		t.Fatalf("second Respond: %v", err)
	}
}
