package main

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Direction is the orientation of an answer in the grid.
type Direction uint8

const (
	Across Direction = iota
	Down
)

func (d Direction) String() string {
	switch d {
	case Across:
		return "Across"
	case Down:
		return "Down"
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// MarshalJSON encodes the direction by name ("Across" or "Down").
func (d Direction) MarshalJSON() ([]byte, error) {
	switch d {
	case Across, Down:
		return json.Marshal(d.String())
	}
	return nil, fmt.Errorf("invalid direction %d", uint8(d))
}

// UnmarshalJSON accepts "Across" or "Down".
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("direction must be a string: %w", err)
	}
	return d.parse(s)
}

// MarshalYAML and UnmarshalYAML keep puzzle files readable.
func (d Direction) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Direction) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("direction must be a string: %w", err)
	}
	return d.parse(s)
}

func (d *Direction) parse(s string) error {
	switch s {
	case "Across", "across":
		*d = Across
	case "Down", "down":
		*d = Down
	default:
		return fmt.Errorf("unknown direction %q", s)
	}
	return nil
}

// CoordinatePair is a grid position; x is the column and y the row.
type CoordinatePair struct {
	X uint8 `json:"x" yaml:"x"`
	Y uint8 `json:"y" yaml:"y"`
}

// Answer is one entry of a puzzle's answer key.
// Answers are fixed when the puzzle is created and never edited afterwards.
type Answer struct {
	Num       uint8          `json:"num" yaml:"num"`
	Start     CoordinatePair `json:"start" yaml:"start"`
	Direction Direction      `json:"direction" yaml:"direction" validate:"lte=1"`
	Length    uint8          `json:"length" yaml:"length" validate:"gte=1"`
	Clue      string         `json:"clue" yaml:"clue" validate:"required,max=512"`
}

// cloneAnswers copies an answer list so callers cannot alias stored records.
func cloneAnswers(answers []Answer) []Answer {
	if answers == nil {
		return nil
	}
	cp := make([]Answer, len(answers))
	copy(cp, answers)
	return cp
}
