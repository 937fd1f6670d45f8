package inference

import (
	"strings"
	"testing"
)

func TestParseEvents_Frames(t *testing.T) {
	body := "event: generating\ndata: null\n\n" +
		": keep-alive\n" +
		"event: complete\r\ndata: [1,\r\ndata: 2]\r\nid: 7\r\n\r\n"

	events, err := ParseEvents(strings.NewReader(body))
	if err != nil {
		t.Fatalf("ParseEvents error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %+v", len(events), events)
	}
	if events[0].Name != EventGenerating || events[0].Data != "null" || events[0].Partial {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Name != EventComplete || events[1].Data != "[1,\n2]" || events[1].Partial {
		t.Errorf("unexpected second event: %+v", events[1])
	}
}

func TestParseEvents_TrailingFrameIsPartial(t *testing.T) {
	events, err := ParseEvents(strings.NewReader("event: heartbeat\ndata: \n\nevent: complete\ndata: [{}]"))
	if err != nil {
		t.Fatalf("ParseEvents error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Name != EventHeartbeat || events[0].Partial {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Name != EventComplete || events[1].Data != "[{}]" || !events[1].Partial {
		t.Errorf("expected partial complete event, got %+v", events[1])
	}
}

func TestParseEvents_Empty(t *testing.T) {
	for _, body := range []string{"", "\n\n", ": only a comment\n\n"} {
		events, err := ParseEvents(strings.NewReader(body))
		if err != nil {
			t.Fatalf("ParseEvents(%q) error: %v", body, err)
		}
		if len(events) != 0 {
			t.Errorf("ParseEvents(%q): expected no events, got %+v", body, events)
		}
	}
}

func TestParseEvents_DataWithoutSpace(t *testing.T) {
	events, err := ParseEvents(strings.NewReader("event:error\ndata:boom\n\n"))
	if err != nil {
		t.Fatalf("ParseEvents error: %v", err)
	}
	if len(events) != 1 || events[0].Name != EventError || events[0].Data != "boom" {
		t.Errorf("unexpected events: %+v", events)
	}
}
