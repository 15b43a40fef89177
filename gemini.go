package main

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/genai"
)

const extractPrompt = `Analyse cette photo de grille de mots croisés numérotée.

Extrais la liste complète des réponses au format JSON suivant :
{
  "answers": [
    {"num": 1, "start": {"x": 0, "y": 0}, "direction": "Across", "length": 5, "clue": "Définition"},
    ...
  ]
}

Règles :
- "num" est le numéro imprimé dans la case de départ.
- "start.x" est la colonne et "start.y" la ligne de la case de départ, en partant de 0 en haut à gauche.
- "direction" vaut "Across" pour une réponse horizontale, "Down" pour une réponse verticale.
- "length" est le nombre de cases de la réponse.
- "clue" est la définition telle qu'imprimée.
- Ne donne JAMAIS les réponses elles-mêmes.
- Réponds UNIQUEMENT avec le JSON, sans commentaire ni markdown.`

// ExtractAnswers sends a photographed grid to Gemini and returns its answer
// key: positions, directions, lengths and clues, without the solutions.
func (g *GeminiClient) ExtractAnswers(ctx context.Context, imageData []byte, mimeType string) ([]Answer, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.modelName,
		[]*genai.Content{{
			Role: "user",
			Parts: []*genai.Part{
				{Text: extractPrompt},
				{InlineData: &genai.Blob{MIMEType: mimeType, Data: imageData}},
			},
		}},
		&genai.GenerateContentConfig{
			Temperature:      genai.Ptr(float32(0.1)),
			TopP:             genai.Ptr(float32(1)),
			ResponseMIMEType: "application/json",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty gemini response")
	}
	return parseExtractedAnswers(text)
}

func parseExtractedAnswers(text string) ([]Answer, error) {
	var out struct {
		Answers []Answer `json:"answers"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("parse answers JSON: %w\nraw response: %s", err, text)
	}
	if len(out.Answers) == 0 {
		return nil, fmt.Errorf("no answers in gemini response")
	}
	if err := validateAnswers(out.Answers); err != nil {
		return nil, fmt.Errorf("invalid extracted answers: %w", err)
	}
	return out.Answers, nil
}
