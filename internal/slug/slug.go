// Package slug generates human readable project identifiers such as
// "brave-quiet-otter".
package slug

import (
	"math/rand/v2"
	"strings"
)

var adjectives = []string{
	"able", "ancient", "autumn", "billowing", "bitter", "black", "blue", "bold",
	"brave", "breezy", "brief", "bright", "broad", "broken", "calm", "cold",
	"cool", "crimson", "curly", "damp", "dark", "dawn", "delicate", "divine",
	"dry", "empty", "falling", "fancy", "flat", "floral", "fragrant", "frosty",
	"gentle", "green", "hidden", "holy", "icy", "jolly", "late", "lingering",
	"little", "lively", "long", "lucky", "misty", "morning", "muddy", "mute",
	"nameless", "noisy", "odd", "old", "orange", "patient", "plain", "polished",
	"proud", "purple", "quiet", "rapid", "raspy", "red", "restless", "rough",
	"round", "royal", "shiny", "shrill", "shy", "silent", "small", "snowy",
	"soft", "solitary", "sparkling", "spring", "square", "steep", "still", "summer",
	"super", "sweet", "swift", "throbbing", "tight", "tiny", "twilight", "wandering",
	"weathered", "white", "wild", "winter", "wispy", "withered", "yellow", "young",
}

var nouns = []string{
	"art", "band", "bar", "base", "bird", "block", "boat", "bonus",
	"bread", "breeze", "brook", "bush", "butterfly", "cake", "cell", "cherry",
	"cloud", "credit", "darkness", "dawn", "dew", "disk", "dream", "dust",
	"feather", "field", "fire", "firefly", "flower", "fog", "forest", "frog",
	"frost", "glade", "glitter", "grass", "hall", "hat", "haze", "heart",
	"hill", "king", "lab", "lake", "leaf", "limit", "math", "meadow",
	"mode", "moon", "morning", "mountain", "mouse", "mud", "night", "paper",
	"pine", "poetry", "pond", "queen", "rain", "recipe", "resonance", "rice",
	"river", "salad", "scene", "sea", "shadow", "shape", "silence", "sky",
	"smoke", "snow", "snowflake", "sound", "star", "sun", "sunset", "surf",
	"term", "thunder", "tooth", "tree", "truth", "union", "unit", "violet",
	"voice", "water", "waterfall", "wave", "wildflower", "wind", "wood", "otter",
}

// Generator produces slugs from an injectable source of randomness.
type Generator struct {
	intn func(n int) int
}

// New returns a generator backed by the process-wide random source.
func New() Generator {
	return Generator{intn: rand.IntN}
}

// NewWithSource returns a generator drawing from the given source. Used in tests.
func NewWithSource(src rand.Source) Generator {
	r := rand.New(src)
	return Generator{intn: r.IntN}
}

// Generate returns a three word adjective-adjective-noun slug.
func (g Generator) Generate() string {
	intn := g.intn
	if intn == nil {
		intn = rand.IntN
	}
	parts := []string{
		adjectives[intn(len(adjectives))],
		adjectives[intn(len(adjectives))],
		nouns[intn(len(nouns))],
	}
	return strings.Join(parts, "-")
}

// Valid reports whether s has the shape of a generated slug: lowercase
// words joined by single hyphens.
func Valid(s string) bool {
	if s == "" || strings.HasPrefix(s, "-") || strings.HasSuffix(s, "-") || strings.Contains(s, "--") {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}
