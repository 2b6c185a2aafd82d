package executor

import (
	"strings"
	"testing"
)

func TestCollectEvents(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"message","text":"working on it"}`,
		``,
		`this line is not json and gets skipped`,
		`{"type":"tool_use","tool":"search"}`,
		`{"type":"tool_result","tool":"search","text":"3 hits"}`,
		`{"type":"message","text":"done"}`,
		`{"type":"result","usage":{"input_tokens":120,"output_tokens":45,"cost_usd":0.01}}`,
	}, "\n")

	res, err := collectEvents(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Output != "working on it\ndone" {
		t.Errorf("unexpected output: %q", res.Output)
	}
	if len(res.Events) != 5 {
		t.Errorf("expected 5 parsed events, got %d", len(res.Events))
	}
	if res.Usage.InputTokens != 120 || res.Usage.OutputTokens != 45 {
		t.Errorf("usage not captured: %+v", res.Usage)
	}

	text, ok := res.ToolResult("search")
	if !ok || text != "3 hits" {
		t.Errorf("expected tool result, got %q (found=%v)", text, ok)
	}
}

func TestCollectEvents_ErrorEventAborts(t *testing.T) {
	stream := `{"type":"message","text":"so far so good"}` + "\n" +
		`{"type":"error","text":"model overloaded"}` + "\n"

	_, err := collectEvents(strings.NewReader(stream))
	if err == nil {
		t.Fatal("expected error event to abort the run")
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("expected agent error text, got: %v", err)
	}
}

func TestCollectEvents_Empty(t *testing.T) {
	res, err := collectEvents(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Events) != 0 || res.Output != "" {
		t.Errorf("expected empty result, got %+v", res)
	}
}
