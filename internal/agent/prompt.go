package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/calebstour/caleb-sales-agent/internal/conv"
	"github.com/calebstour/caleb-sales-agent/internal/llm"
	"github.com/calebstour/caleb-sales-agent/internal/store"
)

const promptHeader = `# IDENTIDADE
Você é o CALEB, assistente virtual da Caleb's Tour em Cabo Frio/RJ. Você é um guia local: simpático, praiano, direto e convidativo.

# OBJETIVO
Ajudar o cliente a escolher passeios, tirar dúvidas, fechar reserva e gerar pagamento (PIX ou boleto).

# REGRAS INVIOLÁVEIS
1) DADOS REAIS: não invente preços, roteiros, horários, regras ou disponibilidade.
2) SEM FERRAMENTA = SEM DADO: se a mensagem exigir dados (preço/passeio/reserva/pagamento), você DEVE chamar uma ferramenta.
3) RESULTADOS SÓ VÊM DO SISTEMA: você só tem acesso a resultados quando receber uma mensagem system no formato:
   <tool_result name="NOME">{"success":...}</tool_result>
4) PROIBIDO INVENTAR TOOL RESULT: nunca escreva "Resultado da ferramenta", nunca invente JSON e nunca simule que chamou ferramenta.
5) NUNCA diga "consultando banco/sistema". Fale como humano (ex: "Deixa eu ver pra você").
6) Não recomece do zero nem se reapresente a cada mensagem. Use o histórico para entender respostas curtas tipo "1", "amanhã", "PIX".
7) Se faltar alguma informação para reservar/pagar, faça 1 pergunta objetiva por vez.
8) CPF é pedido por último, somente depois que o cliente autorizar gerar o pagamento.
9) Não mostre IDs, JSON ou tags internas para o cliente.
10) Não use emojis.

# FERRAMENTAS
Quando precisar agir, responda com APENAS o bloco da ferramenta (nada antes/depois).
Sintaxe EXATA (maiúsculas):
[TOOL:nome]{json}[/TOOL]
Chame apenas 1 ferramenta por vez.

Ferramentas disponíveis:`

const promptFooter = `# COMO RESPONDER
- Se a ferramenta retornar success=false, explique de forma humana e peça exatamente o que falta.
- Mensagens curtas estilo WhatsApp.`

// buildMessages assembles the full prompt for one model call: fixed
// system instruction, date context, customer name, the recent history
// window, and a fresh state summary placed immediately before the
// latest user turn so the model weighs it most.
func (a *Agent) buildMessages(c *conv.Conversation) []llm.Message {
	msgs := []llm.Message{
		{Role: conv.RoleSystem, Content: a.systemPrompt()},
		{Role: conv.RoleSystem, Content: "Data atual (America/Sao_Paulo): " + a.today().Format("2006-01-02")},
	}
	if c.Nome != "" {
		msgs = append(msgs, llm.Message{Role: conv.RoleSystem, Content: "Nome do cliente (se útil): " + c.Nome})
	}

	summary := llm.Message{Role: conv.RoleSystem, Content: stateSummary(c)}
	recent := c.Recent(conv.PromptWindow)
	lastUser := -1
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].Role == conv.RoleUser {
			lastUser = i
			break
		}
	}

	for i, m := range recent {
		if i == lastUser {
			msgs = append(msgs, summary)
		}
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	if lastUser == -1 {
		msgs = append(msgs, summary)
	}
	return msgs
}

// systemPrompt renders the fixed instruction plus the live tool list
// and a catalog excerpt.
func (a *Agent) systemPrompt() string {
	var b strings.Builder
	b.WriteString(promptHeader)
	b.WriteString("\n")

	for _, t := range a.tools.List() {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		if len(t.Params) > 0 {
			keys := make([]string, 0, len(t.Params))
			for k := range t.Params {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, k+": "+t.Params[k])
			}
			fmt.Fprintf(&b, "  parâmetros: %s\n", strings.Join(parts, ", "))
		}
	}

	if excerpt := a.catalogExcerpt(); excerpt != "" {
		b.WriteString("\n# CATÁLOGO (resumo)\n")
		b.WriteString(excerpt)
	}

	b.WriteString("\n")
	b.WriteString(promptFooter)
	return b.String()
}

// catalogExcerpt lists every tour in one line each so the model knows
// what exists without calling a tool for trivial "what do you have"
// questions. Prices still come from tools; this is orientation only.
func (a *Agent) catalogExcerpt() string {
	passeios, err := a.catalog.GetAllPasseios()
	if err != nil {
		a.logger.Warn("catalog excerpt unavailable", "error", err)
		return ""
	}

	var b strings.Builder
	for _, p := range passeios {
		fmt.Fprintf(&b, "ID: %s | %s | %s | %s\n",
			p.ID, p.Nome, priceLabel(p), orLabel(p.Local, "Cabo Frio"))
	}
	return b.String()
}

func priceLabel(p store.Passeio) string {
	switch {
	case p.PrecoMin == nil && p.PrecoMax == nil:
		return "R$ consulte"
	case p.PrecoMin != nil && p.PrecoMax != nil && *p.PrecoMin != *p.PrecoMax:
		return fmt.Sprintf("R$ %.0f a %.0f", *p.PrecoMin, *p.PrecoMax)
	case p.PrecoMin != nil:
		return fmt.Sprintf("R$ %.0f", *p.PrecoMin)
	default:
		return fmt.Sprintf("R$ %.0f", *p.PrecoMax)
	}
}

func orLabel(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// stateSummary renders everything the loop already knows about the
// booking so the model never re-asks for collected data.
func stateSummary(c *conv.Conversation) string {
	var lines []string
	s := &c.Slots

	if c.Nome != "" {
		lines = append(lines, "- Nome: "+c.Nome)
	}
	if s.PasseioNome != "" || s.PasseioID != "" {
		lines = append(lines, fmt.Sprintf("- Passeio escolhido: %s (id: %s)", orLabel(s.PasseioNome, "?"), orLabel(s.PasseioID, "?")))
	}
	if s.Data != "" {
		lines = append(lines, "- Data: "+s.Data)
	}
	if s.NumPessoas > 0 {
		lines = append(lines, fmt.Sprintf("- Pessoas: %d", s.NumPessoas))
	}
	if s.TipoPag != "" {
		lines = append(lines, "- Pagamento: "+s.TipoPag)
	}
	if s.CPF != "" {
		lines = append(lines, "- CPF: já informado")
	}
	if s.Email != "" {
		lines = append(lines, "- Email: já informado")
	}
	if s.ReservaID != "" {
		lines = append(lines, fmt.Sprintf("- Reserva em andamento: sim (id: %s, total R$ %.2f)", s.ReservaID, s.ValorTotal))
	}
	if s.HasMenu() {
		lines = append(lines, "- Menu exibido ao cliente:")
		for i, nome := range s.OptionList {
			lines = append(lines, fmt.Sprintf("  %d. %s", i+1, nome))
		}
		lines = append(lines, "  (resposta com um número é uma escolha desse menu)")
	}

	if len(lines) == 0 {
		return "SITUAÇÃO ATUAL DA CONVERSA: nenhum dado coletado ainda."
	}
	return "SITUAÇÃO ATUAL DA CONVERSA:\n" + strings.Join(lines, "\n")
}
