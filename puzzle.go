package main

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PuzzleStatus is either Unsolved or Solved. The set is closed: only the two
// types in this file implement it.
type PuzzleStatus interface {
	isPuzzleStatus()
}

// Unsolved is the status every puzzle is created with.
type Unsolved struct{}

// Solved records the memo left by the first correct solver.
type Solved struct {
	Memo string `json:"memo"`
}

func (Unsolved) isPuzzleStatus() {}
func (Solved) isPuzzleStatus()   {}

// IsUnsolved reports whether status is the Unsolved variant.
func IsUnsolved(status PuzzleStatus) bool {
	_, ok := status.(Unsolved)
	return ok
}

// Encoded as "Unsolved" or {"Solved":{"memo":"..."}}.
func marshalStatus(status PuzzleStatus) ([]byte, error) {
	switch s := status.(type) {
	case Unsolved:
		return json.Marshal("Unsolved")
	case Solved:
		return json.Marshal(map[string]Solved{"Solved": s})
	case nil:
		return nil, fmt.Errorf("missing puzzle status")
	default:
		return nil, fmt.Errorf("unknown puzzle status %T", status)
	}
}

func unmarshalStatus(data []byte) (PuzzleStatus, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return nil, err
		}
		if tag != "Unsolved" {
			return nil, fmt.Errorf("unknown puzzle status %q", tag)
		}
		return Unsolved{}, nil
	}

	var tagged struct {
		Solved *Solved `json:"Solved"`
	}
	if err := json.Unmarshal(data, &tagged); err != nil {
		return nil, fmt.Errorf("decode puzzle status: %w", err)
	}
	if tagged.Solved == nil {
		return nil, fmt.Errorf("unknown puzzle status %s", data)
	}
	return *tagged.Solved, nil
}

// StatusJSON adapts a PuzzleStatus for encoding/json.
type StatusJSON struct {
	PuzzleStatus
}

func (s StatusJSON) MarshalJSON() ([]byte, error) {
	return marshalStatus(s.PuzzleStatus)
}

func (s *StatusJSON) UnmarshalJSON(data []byte) error {
	status, err := unmarshalStatus(data)
	if err != nil {
		return err
	}
	s.PuzzleStatus = status
	return nil
}

// Puzzle is the stored record for one solution hash. The plaintext solution
// is never part of it.
type Puzzle struct {
	Status  PuzzleStatus
	Answers []Answer
}

type puzzleJSON struct {
	Status StatusJSON `json:"status"`
	Answer []Answer   `json:"answer"`
}

func (p Puzzle) MarshalJSON() ([]byte, error) {
	return json.Marshal(puzzleJSON{Status: StatusJSON{p.Status}, Answer: p.Answers})
}

func (p *Puzzle) UnmarshalJSON(data []byte) error {
	var raw puzzleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Status = raw.Status.PuzzleStatus
	p.Answers = raw.Answer
	return nil
}

// UnsolvedPuzzle is one entry of the unsolved listing.
type UnsolvedPuzzle struct {
	SolutionHash string     `json:"solution_hash"`
	Status       StatusJSON `json:"status"`
	Answer       []Answer   `json:"answer"`
}
