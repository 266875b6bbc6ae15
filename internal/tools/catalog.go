package tools

import (
	"context"
	"strings"

	"github.com/calebstour/caleb-sales-agent/internal/conv"
	"github.com/calebstour/caleb-sales-agent/internal/extract"
	"github.com/calebstour/caleb-sales-agent/internal/store"
)

// menuLimit caps how many catalog options are remembered for numeric
// menu selection on the next user turn.
const menuLimit = 12

func passeioSummary(p store.Passeio) map[string]any {
	return map[string]any{
		"id":        p.ID,
		"nome":      p.Nome,
		"categoria": p.Categoria,
		"descricao": truncate(p.Descricao, 280),
		"local":     p.Local,
		"duracao":   p.Duracao,
		"preco_min": p.PrecoMin,
		"preco_max": p.PrecoMax,
		"horarios":  p.Horarios,
	}
}

func rememberMenu(c *conv.Conversation, passeios []store.Passeio) {
	n := min(len(passeios), menuLimit)
	names := make([]string, n)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = passeios[i].Nome
		ids[i] = passeios[i].ID
	}
	c.Slots.SetMenu(names, ids)
}

func (e *Executor) handleConsultarPasseios(_ context.Context, params map[string]any, c *conv.Conversation) Result {
	passeios, err := e.store.GetAllPasseios()
	if err != nil {
		return fail("tool_error", "Erro ao consultar passeios.")
	}

	termo := strParam(params, "termo")
	filtered := passeios
	if termo != "" {
		query := extract.Normalize(termo)
		tokens := queryTokens(query)
		filtered = nil
		for _, p := range passeios {
			hay := passeioHaystack(p)
			if len(tokens) == 0 {
				if strings.Contains(hay, query) {
					filtered = append(filtered, p)
				}
				continue
			}
			all := true
			for _, t := range tokens {
				if !strings.Contains(hay, t) {
					all = false
					break
				}
			}
			if all {
				filtered = append(filtered, p)
			}
		}
	}

	data := make([]map[string]any, len(filtered))
	for i, p := range filtered {
		data[i] = passeioSummary(p)
	}
	rememberMenu(c, filtered)

	return ok(data)
}

func (e *Executor) handleBuscarPasseio(_ context.Context, params map[string]any, c *conv.Conversation) Result {
	termo := strParam(params, "termo", "query", "passeio", "nome")
	if termo == "" {
		return Result{Success: false, Error: &ResultError{
			Code:    "missing_term",
			Message: "Parâmetro termo é obrigatório.",
			Missing: []string{"termo"},
		}}
	}

	passeios, err := e.store.GetAllPasseios()
	if err != nil {
		return fail("tool_error", "Erro ao buscar passeios.")
	}

	matches := scorePasseios(passeios, termo)
	data := make([]map[string]any, len(matches))
	selected := make([]store.Passeio, len(matches))
	for i, m := range matches {
		data[i] = passeioSummary(m.passeio)
		selected[i] = m.passeio
	}
	rememberMenu(c, selected)

	return ok(data)
}

func (e *Executor) handleConsultarConhecimento(_ context.Context, params map[string]any, _ *conv.Conversation) Result {
	termo := strParam(params, "termo", "query", "pergunta", "assunto")
	if termo == "" {
		return Result{Success: false, Error: &ResultError{
			Code:    "missing_term",
			Message: "Parâmetro termo é obrigatório.",
			Missing: []string{"termo"},
		}}
	}

	chunks, err := e.knowledge.get(e.store.GetAllKnowledgeChunks)
	if err != nil {
		return fail("tool_error", "Erro ao consultar base de conhecimento.")
	}

	matches := scoreKnowledge(chunks, termo, maxMatches)
	data := make([]map[string]any, len(matches))
	for i, m := range matches {
		data[i] = map[string]any{
			"slug":    m.Slug,
			"title":   m.Title,
			"content": truncate(m.Content, 1400),
			"source":  m.Source,
			"tags":    m.Tags,
		}
	}

	return ok(data)
}
