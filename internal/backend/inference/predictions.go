package inference

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Prediction is one label and its score
type Prediction struct {
	Label string
	Score float64
}

// Predictions is a JSON object of label → score that keeps the key order of the
// service response. Positions in Scores() follow that order.
type Predictions []Prediction

// UnmarshalJSON decodes an object while preserving key order. A repeated label keeps
// its first position and takes the last value.
func (p *Predictions) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*p = nil
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	token, err := decoder.Token()
	if err != nil {
		return err
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("predictions must be a JSON object, got %v", token)
	}

	result := Predictions{}
	index := map[string]int{}
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return err
		}
		label, ok := token.(string)
		if !ok {
			return fmt.Errorf("unexpected prediction key %v", token)
		}
		var score *float64
		if err := decoder.Decode(&score); err != nil {
			return fmt.Errorf("prediction %q: %w", label, err)
		}
		if score == nil {
			return fmt.Errorf("prediction %q has no score", label)
		}
		if i, seen := index[label]; seen {
			result[i].Score = *score
			continue
		}
		index[label] = len(result)
		result = append(result, Prediction{Label: label, Score: *score})
	}
	if _, err := decoder.Token(); err != nil {
		return err
	}

	*p = result
	return nil
}

// MarshalJSON encodes the predictions as an object in their stored order
func (p Predictions) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, prediction := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		label, err := json.Marshal(prediction.Label)
		if err != nil {
			return nil, err
		}
		score, err := json.Marshal(prediction.Score)
		if err != nil {
			return nil, err
		}
		buf.Write(label)
		buf.WriteByte(':')
		buf.Write(score)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Scores flattens the predictions into their values, in order
func (p Predictions) Scores() []float64 {
	scores := make([]float64, 0, len(p))
	for _, prediction := range p {
		scores = append(scores, prediction.Score)
	}
	return scores
}
