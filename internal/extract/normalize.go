package extract

import "strings"

// accentFold maps the accented characters that occur in Portuguese
// customer messages to their ASCII base letters. Messages come from
// WhatsApp keyboards, so this fixed set covers the real input space
// without pulling in a full Unicode normalization pass.
var accentFold = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "õ", "o", "ö", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ç", "c", "ñ", "n",
	"Á", "a", "À", "a", "Â", "a", "Ã", "a", "Ä", "a",
	"É", "e", "È", "e", "Ê", "e", "Ë", "e",
	"Í", "i", "Ì", "i", "Î", "i", "Ï", "i",
	"Ó", "o", "Ò", "o", "Ô", "o", "Õ", "o", "Ö", "o",
	"Ú", "u", "Ù", "u", "Û", "u", "Ü", "u",
	"Ç", "c", "Ñ", "n",
)

// Normalize lowercases, folds accents, replaces every non-alphanumeric
// rune with a space, and collapses runs of whitespace. All matching in
// this package and in the tool executor's catalog search runs over
// normalized text so "Catamarã" and "catamara" compare equal.
func Normalize(s string) string {
	s = accentFold.Replace(strings.ToLower(s))

	var sb strings.Builder
	sb.Grow(len(s))
	lastSpace := true
	for _, r := range s {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if alnum {
			sb.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			sb.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(sb.String())
}
