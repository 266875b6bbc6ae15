// Package extract implements the slot extractor: pure pattern and
// heuristic matching that pulls structured booking fields out of a raw
// WhatsApp message before any model call. Every function returns a
// zero value plus false rather than guessing; ambiguity is resolved by
// the model asking the customer, not here.
package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/calebstour/caleb-sales-agent/internal/conv"
)

var numberWords = map[string]int{
	"uma": 1, "um": 1,
	"duas": 2, "dois": 2,
	"tres": 3, "quatro": 4, "cinco": 5,
	"seis": 6, "sete": 7, "oito": 8, "nove": 9, "dez": 10,
}

var (
	partySizeRe = regexp.MustCompile(`\b(\d{1,2})\s*(pessoas?|adultos?|criancas?|pax)\b`)
	emailRe     = regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`)
	digitsRe    = regexp.MustCompile(`\D`)
	menuPickRe  = regexp.MustCompile(`^(?:opcao |numero |n |o |a )?(\d{1,2})$`)
	nameIntroRe = regexp.MustCompile(`(?i)(?:meu nome e|meu nome é|me chamo|sou o|sou a)\s+([^.,!\n]+)`)
)

// PartySize finds an integer (or spelled-out number word, one through
// ten) directly adjacent to a person-count noun. A bare digit with no
// such noun is never treated as a head count.
func PartySize(text string) (int, bool) {
	t := Normalize(text)

	if m := partySizeRe.FindStringSubmatch(t); m != nil {
		n, _ := strconv.Atoi(m[1])
		if n >= 1 && n <= 99 {
			return n, true
		}
		return 0, false
	}

	for word, n := range numberWords {
		if strings.Contains(t, word+" pessoa") || strings.Contains(t, word+" adulto") {
			return n, true
		}
	}

	return 0, false
}

// CPF returns the bare digits of a CPF (11) or CNPJ (14) found in the
// text. Any other digit-sequence length is rejected; checksum
// validation is the payment provider's job.
func CPF(text string) (string, bool) {
	for _, field := range strings.Fields(text) {
		digits := digitsRe.ReplaceAllString(field, "")
		if len(digits) == 11 || len(digits) == 14 {
			return digits, true
		}
	}
	return "", false
}

// Email returns the first token shaped like an email address.
func Email(text string) (string, bool) {
	if m := emailRe.FindString(text); m != "" {
		return m, true
	}
	return "", false
}

// PaymentType matches the two canonical payment methods. The compact
// token "pix" is unambiguous; "boleto" likewise. Anything else returns
// false so the model asks instead of assuming.
func PaymentType(text string) (string, bool) {
	t := Normalize(text)
	switch {
	case strings.Contains(t, "boleto"):
		return "BOLETO", true
	case strings.Contains(t, "pix"):
		return "PIX", true
	}
	return "", false
}

// lowercaseConnectors are the Portuguese name particles that stay
// lowercase when title-casing a name.
var lowercaseConnectors = map[string]bool{
	"de": true, "da": true, "do": true, "das": true, "dos": true, "e": true,
}

// tourKeywords disqualify a leading phrase from being read as a name:
// "passeio de barco, amanhã" is a booking request, not a customer
// called Passeio De Barco.
var tourKeywords = []string{
	"passeio", "barco", "buggy", "quadriciclo", "mergulho", "snorkel",
	"lancha", "escuna", "catamara", "transfer", "city", "combo", "tour",
	"reserva", "preco", "valor", "pagamento", "pix", "boleto",
}

// Name looks for an explicit self-introduction first; failing that it
// treats the text before the first comma as a candidate when it is 2-5
// words, digit-free, and contains no tour vocabulary. The result is
// title-cased with connector particles kept lowercase.
func Name(text string) (string, bool) {
	if m := nameIntroRe.FindStringSubmatch(text); m != nil {
		return TitleCaseName(strings.TrimSpace(m[1])), true
	}

	head, _, found := strings.Cut(text, ",")
	if !found {
		return "", false
	}
	head = strings.TrimSpace(head)
	words := strings.Fields(head)
	if len(words) < 2 || len(words) > 5 {
		return "", false
	}
	if strings.ContainsAny(head, "0123456789") {
		return "", false
	}
	normalized := Normalize(head)
	for _, kw := range tourKeywords {
		if strings.Contains(normalized, kw) {
			return "", false
		}
	}
	return TitleCaseName(head), true
}

// TitleCaseName uppercases the first letter of each word except the
// connector particles (de, da, do, das, dos, e).
func TitleCaseName(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		if i > 0 && lowercaseConnectors[w] {
			continue
		}
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// MenuSelection matches a bare integer (optionally prefixed by a
// generic ordinal word) within [1, menuLen]. Anything else, including
// out-of-range numbers, returns false.
func MenuSelection(text string, menuLen int) (int, bool) {
	if menuLen <= 0 {
		return 0, false
	}
	m := menuPickRe.FindStringSubmatch(Normalize(text))
	if m == nil {
		return 0, false
	}
	n, _ := strconv.Atoi(m[1])
	if n < 1 || n > menuLen {
		return 0, false
	}
	return n, true
}

// Apply runs every extractor over the message and merges hits into the
// conversation. All slots are last-write-wins — a later message
// supersedes an earlier guess — except the customer name, which is
// write-once (conv.Conversation.SetName).
func Apply(c *conv.Conversation, text string, today time.Time) {
	if nome, ok := Name(text); ok {
		c.SetName(nome)
	}
	if date, ok := ResolveDate(text, today); ok {
		c.Slots.Data = date
	}
	if n, ok := PartySize(text); ok {
		c.Slots.NumPessoas = n
	}
	if cpf, ok := CPF(text); ok {
		c.Slots.CPF = cpf
	}
	if email, ok := Email(text); ok {
		c.Slots.Email = email
	}
	if tipo, ok := PaymentType(text); ok {
		c.Slots.TipoPag = tipo
	}
}
