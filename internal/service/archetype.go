package service

import (
	"fmt"
	"strings"

	"github.com/fredhq/companion/internal/model"
)

// NoArchetypeData is returned when the user's metadata carries none of the
// onboarding answer categories. The generation prompt embeds it verbatim so
// the model knows there is nothing to tailor to.
const NoArchetypeData = "No founder archetype data available."

// archetypeCategory maps one onboarding question's answer codes to
// descriptive phrases for the generation prompt. The code tables are closed;
// an unrecognized code passes through as its raw value so a new answer
// added upstream degrades gracefully instead of vanishing.
type archetypeCategory struct {
	key     string // metadata key the onboarding flow writes
	label   string
	phrases map[string]string
}

var archetypeCategories = []archetypeCategory{
	{
		key:   "dream_home_archetype",
		label: "Dream home",
		phrases: map[string]string{
			"manhattan": "a penthouse in Manhattan: sharp suits, sharper dinners, status as fuel",
			"seaside":   "a seaside villa: slow days, long mornings, success that buys calm",
			"family":    "a family home: warmth, mess, and meaning over polish",
			"nomadic":   "a nomadic life: new cities, new energy, freedom as the endgame",
			"nature":    "a nature retreat: green sights and a clear mind",
			"system":    "no home, just a system: still figuring out what landing looks like",
		},
	},
	{
		key:   "calendar_style",
		label: "Calendar style",
		phrases: map[string]string{
			"back_to_back":   "back-to-back: speed is clarity, momentum over margin",
			"fully_blocked":  "fully blocked: focus is protection, deep work is sacred",
			"rhythmic":       "rhythmic: rituals first, then flow",
			"wide_open":      "wide open: moves with energy, not with the clock",
			"light_reactive": "light and reactive: keeps it loose, responds in the moment",
			"figuring_out":   "still figuring it out: finding a rhythm",
		},
	},
	{
		key:   "spirit_animal_archetype",
		label: "Spirit animal",
		phrases: map[string]string{
			"fox":      "the fox: sharp, strategic, always a move ahead",
			"horse":    "the horse: fast, intense, will not slow down",
			"whale":    "the whale: calm, deep, shifts the tide without noise",
			"parrot":   "the parrot: charming, bright, cuts through noise",
			"dragon":   "the dragon: fierce, visionary, commands the room",
			"becoming": "still becoming: discovering their power",
		},
	},
	{
		key:   "peak_moment_trigger",
		label: "Peak moment",
		phrases: map[string]string{
			"starting": "starting something no one believes in: pioneering the impossible",
			"cracking": "cracking a stuck problem: breakthrough clarity",
			"pitching": "pitching and feeling the room shift: moving hearts and minds",
			"hearing":  "hearing \"this changed how I think\": impact that lasts",
			"flow":     "hitting flow on the edge of chaos: peak performance",
			"finding":  "has not found it yet: still discovering",
		},
	},
}

// ArchetypeSummary renders a user's onboarding answers as a human-readable
// psychology sketch for the generation prompt.
//
// Rules: categories are emitted in a fixed order; an absent category is
// simply omitted; an unrecognized answer code passes through raw; and if no
// category is present at all the NoArchetypeData sentinel is returned.
func ArchetypeSummary(user *model.User) string {
	if user == nil || user.Metadata == nil {
		return NoArchetypeData
	}

	var lines []string
	for _, cat := range archetypeCategories {
		code, ok := metadataString(user.Metadata, cat.key)
		if !ok || code == "" {
			continue
		}
		phrase, known := cat.phrases[code]
		if !known {
			phrase = code // unrecognized codes pass through raw
		}
		lines = append(lines, fmt.Sprintf("%s: %s", cat.label, phrase))
	}

	if len(lines) == 0 {
		return NoArchetypeData
	}
	return strings.Join(lines, "\n")
}

// metadataString resolves a key either at the metadata's top level or under
// the provider's "public_metadata" envelope (the identity webhook stores the
// raw provider payload, where onboarding answers live one level down).
func metadataString(metadata map[string]any, key string) (string, bool) {
	if v, ok := metadata[key].(string); ok {
		return v, true
	}
	if pm, ok := metadata["public_metadata"].(map[string]any); ok {
		if v, ok := pm[key].(string); ok {
			return v, true
		}
	}
	return "", false
}
