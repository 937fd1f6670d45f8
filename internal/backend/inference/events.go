package inference

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

const (
	EventComplete   = "complete"
	EventError      = "error"
	EventGenerating = "generating"
	EventHeartbeat  = "heartbeat"
)

// Event is one server-sent event frame
type Event struct {
	Name string
	Data string
	// Partial is set for a trailing frame that was not terminated by a blank line
	Partial bool
}

// ParseEvents reads a text/event-stream body into frames. Comment lines and unknown
// fields are skipped; multiple data lines are joined with newlines.
func ParseEvents(r io.Reader) ([]Event, error) {
	reader := bufio.NewReader(r)

	var (
		events  []Event
		current Event
		data    []string
		started bool
	)
	dispatch := func(partial bool) {
		if started {
			current.Data = strings.Join(data, "\n")
			current.Partial = partial
			events = append(events, current)
		}
		current = Event{}
		data = nil
		started = false
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return events, err
		}
		atEOF := errors.Is(err, io.EOF)
		if atEOF && line == "" {
			break
		}

		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			dispatch(false)
		case strings.HasPrefix(line, ":"):
			// comment
		default:
			field, value := splitField(line)
			switch field {
			case "event":
				current.Name = value
				started = true
			case "data":
				data = append(data, value)
				started = true
			}
		}

		if atEOF {
			break
		}
	}
	dispatch(true)

	return events, nil
}

func splitField(line string) (string, string) {
	field, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	return field, strings.TrimPrefix(value, " ")
}
