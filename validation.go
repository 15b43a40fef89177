package main

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateAnswers checks every answer of a puzzle's answer key.
func validateAnswers(answers []Answer) error {
	for i, a := range answers {
		if err := validate.Struct(a); err != nil {
			return fmt.Errorf("answer %d: %w", i, err)
		}
	}
	return nil
}
