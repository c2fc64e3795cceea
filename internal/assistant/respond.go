package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/local/outreach/internal/conversation"
	"github.com/local/outreach/internal/tools"
)

// silentPrompt is the synthetic input the inactivity timer submits when the
// prospect has gone quiet (spec.md §4.4 step 7).
const silentPrompt = "SYSTEM: Пользователь молчит. Реши, стоит ли напомнить о себе, и ответь по формату."

// outputItem is one element of a response's output list. Function calls
// carry name/call_id/arguments; everything else is opaque to this adapter.
type outputItem struct {
	Type      string          `json:"type"`
	Name      string          `json:"name,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type apiResponse struct {
	Output     []outputItem `json:"output"`
	OutputText string       `json:"output_text"`
}

// responseFormat pins the model to the structured reply object the runtime
// dispatches on (spec.md §6).
var responseFormat = json.RawMessage(`{
	"format": {
		"type": "json_schema",
		"name": "reply",
		"schema": {
			"type": "object",
			"properties": {
				"answer": {"type": "string"},
				"send":   {"type": "boolean"},
				"file":   {"type": "boolean"},
				"wait":   {"type": "boolean"},
				"reply":  {"type": "integer"}
			},
			"required": ["answer", "send", "file", "wait", "reply"],
			"additionalProperties": false
		}
	}
}`)

// Respond submits the coalesced prompt for userID and returns the parsed
// directive, running the tool-dispatch loop until no function-call items
// remain (spec.md §6: "tool-call outputs are resubmitted until no
// function-call items remain").
func (c *Client) Respond(ctx context.Context, userID int64, prompt string) (conversation.Reply, error) {
	c.record(userID, "user", prompt)

	input := []map[string]any{{"role": "user", "content": prompt}}
	reply, err := c.converse(ctx, userID, input)
	if err != nil {
		return conversation.Reply{}, err
	}
	c.record(userID, "assistant", reply.Answer)
	return reply, nil
}

// Nudge submits the synthetic "user silent" prompt (spec.md §4.4 step 7).
func (c *Client) Nudge(ctx context.Context, userID int64) (conversation.Reply, error) {
	c.record(userID, "system", silentPrompt)

	input := []map[string]any{{"role": "user", "content": silentPrompt}}
	reply, err := c.converse(ctx, userID, input)
	if err != nil {
		return conversation.Reply{}, err
	}
	c.record(userID, "assistant", reply.Answer)
	return reply, nil
}

func (c *Client) converse(ctx context.Context, userID int64, input []map[string]any) (conversation.Reply, error) {
	convID, err := c.GetOrCreateConversation(ctx, userID)
	if err != nil {
		return conversation.Reply{}, err
	}

	resp, err := c.createResponse(ctx, convID, input)
	if err != nil {
		return conversation.Reply{}, err
	}

	for {
		calls := functionCalls(resp.Output)
		if len(calls) == 0 {
			break
		}

		outputs := make([]map[string]any, 0, len(calls))
		for _, call := range calls {
			out := c.registry.Execute(ctx, tools.Context{UserID: userID, Users: c.users}, call.Name, decodeArgs(call.Arguments))
			outputs = append(outputs, map[string]any{
				"type":    "function_call_output",
				"call_id": call.CallID,
				"output":  out,
			})
		}

		resp, err = c.createResponse(ctx, convID, outputs)
		if err != nil {
			return conversation.Reply{}, err
		}
	}

	return parseReply(resp.OutputText)
}

func (c *Client) createResponse(ctx context.Context, convID string, input any) (*apiResponse, error) {
	start := time.Now()
	var resp apiResponse
	err := c.post(ctx, "responses", map[string]any{
		"model":               c.cfg.Model,
		"instructions":        c.cfg.Prompt,
		"conversation":        convID,
		"input":               input,
		"tools":               c.registry.Defs(),
		"text":                responseFormat,
		"temperature":         1,
		"parallel_tool_calls": true,
		"store":               true,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("assistant: create response: %w", err)
	}
	if c.log != nil {
		c.log.LLMCall(c.cfg.Model, 0, 0, time.Since(start).Milliseconds())
	}
	return &resp, nil
}

// decodeArgs unwraps function-call arguments: the service encodes them as a
// JSON string containing the encoded object, so a quoted payload is
// unquoted before it reaches the handler.
func decodeArgs(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if len(trimmed) == 0 {
		return json.RawMessage(`{}`)
	}
	if trimmed[0] != '"' {
		return raw
	}
	var inner string
	if err := json.Unmarshal(raw, &inner); err != nil || inner == "" {
		return json.RawMessage(`{}`)
	}
	return json.RawMessage(inner)
}

func functionCalls(items []outputItem) []outputItem {
	var calls []outputItem
	for _, item := range items {
		if item.Type == "function_call" {
			calls = append(calls, item)
		}
	}
	return calls
}

// parseReply decodes the output_text directive. A response that is not the
// expected JSON object is a per-prospect error the runtime logs and skips
// (spec.md §7), not a crash.
func parseReply(outputText string) (conversation.Reply, error) {
	var wire struct {
		Answer string `json:"answer"`
		Send   bool   `json:"send"`
		File   bool   `json:"file"`
		Wait   bool   `json:"wait"`
		Reply  int64  `json:"reply"`
	}
	if err := json.Unmarshal([]byte(outputText), &wire); err != nil {
		return conversation.Reply{}, fmt.Errorf("assistant: malformed reply %.200q: %w", outputText, err)
	}
	return conversation.Reply{
		Answer:  wire.Answer,
		Send:    wire.Send,
		File:    wire.File,
		Wait:    wire.Wait,
		ReplyTo: wire.Reply,
	}, nil
}

func (c *Client) record(userID int64, role, text string) {
	if c.transcripts != nil {
		c.transcripts.Record(userID, role, text)
	}
}

var _ conversation.Assistant = (*Client)(nil)
