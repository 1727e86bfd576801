package echo

import (
	"errors"
	"fmt"
	"strings"
)

// Rarity grades how profound an echo is.
type Rarity string

const (
	Common    Rarity = "Common"
	Rare      Rarity = "Rare"
	Epic      Rarity = "Epic"
	Legendary Rarity = "Legendary"
)

// Rarities lists every rarity from least to most profound.
var Rarities = []Rarity{Common, Rare, Epic, Legendary}

// IsValid reports whether r is one of [Rarities].
func (r Rarity) IsValid() bool {
	switch r {
	case Common, Rare, Epic, Legendary:
		return true
	}
	return false
}

// Content is the generated part of a soul echo.
type Content struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
	Rarity      Rarity `json:"rarity"`
}

// ErrInvalidContent is returned when a response does not describe a complete
// echo.
var ErrInvalidContent = errors.New("echo: invalid content")

// Validate trims every field and checks that none is empty and the rarity is
// known.
func (c *Content) Validate() error {
	c.Title = strings.TrimSpace(c.Title)
	c.Description = strings.TrimSpace(c.Description)
	c.Icon = strings.TrimSpace(c.Icon)
	c.Color = strings.TrimSpace(c.Color)
	c.Rarity = Rarity(strings.TrimSpace(string(c.Rarity)))

	var missing []string
	for _, f := range []struct{ name, value string }{
		{"title", c.Title},
		{"description", c.Description},
		{"icon", c.Icon},
		{"color", c.Color},
	} {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidContent, strings.Join(missing, ", "))
	}
	if !c.Rarity.IsValid() {
		return fmt.Errorf("%w: rarity %q", ErrInvalidContent, c.Rarity)
	}
	return nil
}

var fallbacks = []Content{
	{
		Title:       "Quiet Moment",
		Description: "Sometimes, silence is the loudest answer you need.",
		Icon:        "🍃",
		Color:       "bg-green-100",
		Rarity:      Common,
	},
	{
		Title:       "Stream of Patience",
		Description: "A river cuts through rock, not because of its power, but its persistence.",
		Icon:        "💧",
		Color:       "bg-blue-100",
		Rarity:      Common,
	},
	{
		Title:       "Feather of Letting Go",
		Description: "Allow your worries to be as light as a feather, and let the wind carry them away.",
		Icon:        "🪶",
		Color:       "bg-gray-100",
		Rarity:      Common,
	},
	{
		Title:       "Seed of Potential",
		Description: "Within you is the strength and resilience of a mighty tree, waiting to grow.",
		Icon:        "🌱",
		Color:       "bg-emerald-100",
		Rarity:      Common,
	},
	{
		Title:       "Whisper of Courage",
		Description: "Courage doesn't always roar. Sometimes it's the quiet voice at the end of the day that says 'I will try again tomorrow'.",
		Icon:        "💬",
		Color:       "bg-rose-100",
		Rarity:      Rare,
	},
}

// Fallbacks returns a copy of the built-in echoes used when generation
// fails.
func Fallbacks() []Content {
	return append([]Content(nil), fallbacks...)
}
