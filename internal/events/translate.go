// ABOUTME: Translates loosely-typed agent-origin events into the outbound vocabulary
// ABOUTME: Pure mapping; unknown discriminants yield no event instead of an error

package events

import "encoding/json"

// AgentEvent is a raw event emitted by a backing container: a string type
// discriminant plus a bag of named values. Containers evolve independently of
// the gateway, so anything beyond the discriminant is treated as untrusted
// and coerced field by field.
type AgentEvent struct {
	Type   string
	ID     string
	Fields map[string]any
}

// UnmarshalJSON decodes a raw agent event from a single JSON object. The
// "type" and "id" keys are lifted out; everything else stays in Fields.
func (e *AgentEvent) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Type, _ = raw["type"].(string)
	e.ID, _ = raw["id"].(string)
	delete(raw, "type")
	delete(raw, "id")
	e.Fields = raw
	return nil
}

// Translate maps a raw agent-origin event to exactly one outbound variant,
// stamped with agentID. It returns false for unrecognized discriminants:
// unknown agent chatter is dropped silently so that a newer container never
// crashes or blocks the pipeline. Translate has no side effects; the
// heartbeat liveness update happens in the ingest path before broadcast.
func Translate(agentID string, ev AgentEvent) (*Outbound, bool) {
	out := &Outbound{Type: ev.Type, AgentID: agentID}

	switch ev.Type {
	case TypeAgentStarted:
		out.Status = stringField(ev.Fields, "status")
	case TypeAgentThinking, TypeAgentText, TypeAgentTextDelta, TypeAgentComplete:
		out.Content = stringField(ev.Fields, "content")
	case TypeAgentToolStart:
		out.Tool = stringField(ev.Fields, "tool")
		out.Args = rawField(ev.Fields, "args")
		out.CallID = stringField(ev.Fields, "callId")
	case TypeAgentToolEnd:
		out.Tool = stringField(ev.Fields, "tool")
		out.Result = rawField(ev.Fields, "result")
		out.CallID = stringField(ev.Fields, "callId")
		out.Success = boolField(ev.Fields, "success")
	case TypeAgentError:
		out.Error = stringField(ev.Fields, "error")
	case TypeAgentHeartbeat:
		out.Status = stringField(ev.Fields, "status")
		out.Uptime = floatField(ev.Fields, "uptime")
	case TypeWindowOpen:
		out.WindowID = stringField(ev.Fields, "windowId")
		out.Title = stringField(ev.Fields, "title")
		out.App = stringField(ev.Fields, "app")
		out.Bounds = boundsField(ev.Fields, "bounds")
	case TypeWindowClose, TypeWindowFocus:
		out.WindowID = stringField(ev.Fields, "windowId")
	case TypeWindowUpdate:
		out.WindowID = stringField(ev.Fields, "windowId")
		out.Title = stringField(ev.Fields, "title")
		out.Bounds = boundsField(ev.Fields, "bounds")
	case TypeBrowserNavigating:
		out.URL = stringField(ev.Fields, "url")
	case TypeBrowserNavigated:
		out.URL = stringField(ev.Fields, "url")
		out.Title = stringField(ev.Fields, "title")
	case TypeBrowserScreenshot:
		out.Data = stringField(ev.Fields, "data")
	case TypeBrowserSnapshot:
		out.Snapshot = rawField(ev.Fields, "snapshot")
	case TypeBrowserAction:
		out.Action = rawField(ev.Fields, "action")
	case TypeTerminalCommand:
		out.Command = stringField(ev.Fields, "command")
	case TypeTerminalOutput:
		out.Data = stringField(ev.Fields, "data")
	case TypeTerminalExit:
		out.ExitCode = intField(ev.Fields, "exitCode")
	case TypeFSRead, TypeFSWrite, TypeFSEdit:
		out.Path = stringField(ev.Fields, "path")
	default:
		return nil, false
	}

	return out, true
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

// floatField returns nil when the field is missing or not a number.
// encoding/json decodes all JSON numbers as float64.
func floatField(fields map[string]any, key string) *float64 {
	f, ok := fields[key].(float64)
	if !ok {
		return nil
	}
	return &f
}

func intField(fields map[string]any, key string) *int {
	f, ok := fields[key].(float64)
	if !ok {
		return nil
	}
	i := int(f)
	return &i
}

func boolField(fields map[string]any, key string) *bool {
	b, ok := fields[key].(bool)
	if !ok {
		return nil
	}
	return &b
}

// rawField re-serializes an arbitrary field so it passes through to clients
// byte-for-byte as JSON, whatever shape the container gave it.
func rawField(fields map[string]any, key string) json.RawMessage {
	v, ok := fields[key]
	if !ok || v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func boundsField(fields map[string]any, key string) *WindowBounds {
	m, ok := fields[key].(map[string]any)
	if !ok {
		return nil
	}
	b := &WindowBounds{}
	if x, ok := m["x"].(float64); ok {
		b.X = x
	}
	if y, ok := m["y"].(float64); ok {
		b.Y = y
	}
	if w, ok := m["width"].(float64); ok {
		b.Width = w
	}
	if h, ok := m["height"].(float64); ok {
		b.Height = h
	}
	return b
}
