package game

import (
	"math"
	"time"

	"github.com/MrWong99/soulecho/internal/echo"
)

// Tuning constants of the focus loop.
const (
	// FocusCost is spent on every reflection.
	FocusCost = 100.0

	// TickGain is the passive clarity gained per tick while idle.
	TickGain = 0.5

	// BreatheGain is the clarity gained per breath.
	BreatheGain = 5.0

	// DefaultMaxFocus caps clarity for new players.
	DefaultMaxFocus = 100.0

	// TickInterval is the passive gain cadence.
	TickInterval = time.Second
)

// PlayerStats is the persistent progress of the player.
type PlayerStats struct {
	Focus           float64 `json:"focus"`
	Level           int     `json:"level"`
	MaxFocus        float64 `json:"maxFocus"`
	EchoesCollected int     `json:"echoesCollected"`
}

// DefaultStats returns the stats of a new player.
func DefaultStats() PlayerStats {
	return PlayerStats{Focus: 0, Level: 1, MaxFocus: DefaultMaxFocus, EchoesCollected: 0}
}

// sanitize repairs values that violate the stats invariants.
func (s PlayerStats) sanitize() PlayerStats {
	if s.MaxFocus <= 0 || math.IsNaN(s.MaxFocus) || math.IsInf(s.MaxFocus, 0) {
		s.MaxFocus = DefaultMaxFocus
	}
	if s.Level < 1 {
		s.Level = 1
	}
	if s.EchoesCollected < 0 {
		s.EchoesCollected = 0
	}
	if math.IsNaN(s.Focus) || s.Focus < 0 {
		s.Focus = 0
	}
	s.Focus = min(s.Focus, s.MaxFocus)
	return s
}

// Rarity grades an echo. See [echo.Rarity].
type Rarity = echo.Rarity

const (
	Common    = echo.Common
	Rare      = echo.Rare
	Epic      = echo.Epic
	Legendary = echo.Legendary
)

// Echo is a collected soul echo. Echoes are never modified after creation.
type Echo struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Icon          string    `json:"icon"`
	Color         string    `json:"color"`
	Rarity        Rarity    `json:"rarity"`
	DateCollected time.Time `json:"dateCollected"`
}

// NewEcho materialises generated content.
func NewEcho(id string, c echo.Content, at time.Time) Echo {
	return Echo{
		ID:            id,
		Title:         c.Title,
		Description:   c.Description,
		Icon:          c.Icon,
		Color:         c.Color,
		Rarity:        c.Rarity,
		DateCollected: at,
	}
}

// ShareText is the text copied when an echo is shared.
func (e Echo) ShareText() string {
	return `I found "` + e.Title + `" in Mindful Echoes: ` + e.Description
}
