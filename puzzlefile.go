package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// PuzzleDefinition is one puzzle in a YAML puzzle file. Either SolutionHash
// or the plaintext Solution must be set; a plaintext solution is hashed on
// load and never stored.
type PuzzleDefinition struct {
	SolutionHash string   `yaml:"solution_hash"`
	Solution     string   `yaml:"solution"`
	Answers      []Answer `yaml:"answers"`
}

type puzzleFile struct {
	Puzzles []PuzzleDefinition `yaml:"puzzles"`
}

// ReadPuzzleFile decodes and checks a puzzle file. The returned definitions
// carry a lowercase SolutionHash and no plaintext.
func ReadPuzzleFile(r io.Reader) ([]PuzzleDefinition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file puzzleFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("puzzle file is empty")
		}
		return nil, fmt.Errorf("decode puzzle file: %w", err)
	}

	defs := make([]PuzzleDefinition, 0, len(file.Puzzles))
	for i, def := range file.Puzzles {
		hash := strings.ToLower(strings.TrimSpace(def.SolutionHash))
		if def.Solution != "" {
			computed := HashSolution(def.Solution)
			if hash != "" && hash != computed {
				return nil, fmt.Errorf("puzzle %d: solution does not match solution_hash", i)
			}
			hash = computed
		}
		if err := validate.Var(hash, "required,len=64,hexadecimal"); err != nil {
			return nil, fmt.Errorf("puzzle %d: solution_hash or solution is required", i)
		}
		if len(def.Answers) == 0 {
			return nil, fmt.Errorf("puzzle %d: answers are required", i)
		}
		if err := validateAnswers(def.Answers); err != nil {
			return nil, fmt.Errorf("puzzle %d: %w", i, err)
		}
		defs = append(defs, PuzzleDefinition{SolutionHash: hash, Answers: def.Answers})
	}
	return defs, nil
}
