package echo

import (
	"fmt"

	"github.com/MrWong99/soulecho/pkg/provider/llm"
)

// Prompt returns the generation request for a player level.
func Prompt(level int) string {
	return fmt.Sprintf(`You are a wise psychological guide in a relaxation game.
Generate a unique "Soul Echo" - a metaphorical item that represents a piece of wisdom or a calming thought for a busy, stressed modern person.
The player level is %d. Higher levels should yield more abstract or profound concepts.
Return the response in JSON format.`, level)
}

// Schema describes the JSON object the model must return.
func Schema() *llm.Schema {
	rarities := make([]string, len(Rarities))
	for i, r := range Rarities {
		rarities[i] = string(r)
	}
	return &llm.Schema{
		Type: llm.TypeObject,
		Properties: map[string]*llm.Schema{
			"title": {
				Type:        llm.TypeString,
				Description: "A poetic name for the item, e.g., 'Compass of Clarity'",
			},
			"description": {
				Type:        llm.TypeString,
				Description: "A soothing, 1-2 sentence piece of advice or philosophical thought related to the item.",
			},
			"icon": {
				Type:        llm.TypeString,
				Description: "A single emoji representing the item.",
			},
			"color": {
				Type:        llm.TypeString,
				Description: "A tailwind css background color class (e.g., 'bg-blue-100', 'bg-purple-100') that matches the mood. Use pastel colors.",
			},
			"rarity": {
				Type:        llm.TypeString,
				Description: "Rarity based on the profundity of the thought.",
				Enum:        rarities,
			},
		},
		Required: []string{"title", "description", "icon", "color", "rarity"},
		Order:    []string{"title", "description", "icon", "color", "rarity"},
	}
}
