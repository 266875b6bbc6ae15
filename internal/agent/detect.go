package agent

import (
	"regexp"
	"strings"

	"github.com/calebstour/caleb-sales-agent/internal/extract"
)

// Corrective instructions injected as system messages when a
// completion is rejected. They stay in history so the model sees what
// it did wrong on the retry.
const (
	instrForceTool = "INSTRUÇÃO: Sua resposta anterior foi inválida porque você não chamou uma ferramenta quando precisava. " +
		"Agora responda APENAS com um bloco [TOOL:...]...[/TOOL] adequado. Não escreva texto."

	instrAnswerFromResult = "INSTRUÇÃO: Não mostre JSON/tags internas ao cliente. " +
		"Responda apenas com texto natural, usando o último <tool_result> como fonte."

	instrEmptyReply = "INSTRUÇÃO: Sua resposta anterior veio vazia. " +
		"Responda o cliente em texto natural ou chame uma ferramenta com [TOOL:...]...[/TOOL]."
)

// forceKeywords are action/price terms in a user message that demand
// grounded data. While no tool result exists anywhere in the
// conversation, prose answers to such messages are rejected unless
// they are clarifying questions.
var forceKeywords = []string{
	"preco", "valor", "quanto", "custa", "tabela",
	"passeio", "barco", "buggy", "quadriciclo", "mergulho",
	"snorkel", "paramotor", "jetski", "jet ski", "escuna",
	"lancha", "transfer", "city", "combo", "open bar",
}

// stallPhrases mark a reply that narrates an action instead of taking
// one. Only short replies count; a long answer that happens to include
// one of these is usually a real answer.
var stallPhrases = []string{
	"deixa eu ver", "aguarde", "um instante", "ja estou verificando", "ja vou ver",
}

const stallMaxLen = 180

var hallucinationMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<tool_result`),
	regexp.MustCompile(`(?i)resultado\s+da\s+ferramenta`),
	regexp.MustCompile(`(?i)"success"\s*:`),
	regexp.MustCompile(`(?i)\btool_result\b`),
	regexp.MustCompile(`(?i)<\|assistant`),
	regexp.MustCompile(`(?i)<\|channel\|>`),
}

var questionCues = []string{
	"qual ", "quais ", "quando ", "que dia", "quantas pessoas",
	"para quantas", "me diz", "me conta", "pode me dizer",
}

func shouldForceTool(userMessage string) bool {
	t := extract.Normalize(userMessage)
	if t == "" {
		return false
	}
	for _, k := range forceKeywords {
		if strings.Contains(t, k) {
			return true
		}
	}
	return false
}

func looksLikeStall(text string) bool {
	t := extract.Normalize(text)
	if t == "" || len(t) >= stallMaxLen {
		return false
	}
	for _, p := range stallPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}

func looksLikeHallucinatedToolResult(text string) bool {
	if text == "" {
		return false
	}
	for _, re := range hallucinationMarkers {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func containsToolResultMarker(text string) bool {
	return strings.Contains(text, "<tool_result")
}

// looksLikeQuestion reports whether a reply is a clarifying question
// back to the customer, which is always an acceptable final reply even
// when the user message carried force keywords.
func looksLikeQuestion(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	t := extract.Normalize(text)
	for _, cue := range questionCues {
		if strings.Contains(t, cue) {
			return true
		}
	}
	return false
}

var multiSpaceRe = regexp.MustCompile(`[ \t]{2,}`)

// stripEmoji removes emoji and pictographic characters. House style:
// replies go out without emoji, whatever the model produced.
func stripEmoji(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isEmoji(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(b.String(), " "))
}

func isEmoji(r rune) bool {
	switch {
	case r == 0xFE0F || r == 0x200D: // variation selector, ZWJ
		return true
	case r >= 0x1F000 && r <= 0x1FAFF: // pictographs, emoticons, flags
		return true
	case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
		return true
	case r >= 0x2B00 && r <= 0x2BFF: // arrows, stars
		return true
	}
	return false
}
