package tools

import (
	"context"
	"fmt"
	"math"
	"regexp"

	"github.com/calebstour/caleb-sales-agent/internal/conv"
	"github.com/calebstour/caleb-sales-agent/internal/events"
	"github.com/calebstour/caleb-sales-agent/internal/extract"
	"github.com/calebstour/caleb-sales-agent/internal/store"
)

var (
	nonDigitsRe = regexp.MustCompile(`\D`)
	emailRe     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (e *Executor) handleCriarReserva(_ context.Context, params map[string]any, c *conv.Conversation) Result {
	nome := strParam(params, "nome")
	if nome == "" {
		nome = c.Nome
	}
	passeioID := strParam(params, "passeio_id", "passeioId")
	passeioTerm := strParam(params, "passeio", "nome_passeio", "passeio_nome", "categoria")
	if passeioID == "" && passeioTerm == "" {
		passeioID = c.Slots.PasseioID
		passeioTerm = c.Slots.PasseioNome
	}
	dataRaw := strParam(params, "data", "data_passeio", "dia")
	if dataRaw == "" {
		dataRaw = c.Slots.Data
	}
	numPessoas, hasPessoas := intParam(params, "num_pessoas", "numPessoas", "pessoas", "qtd", "quantidade")
	if !hasPessoas && c.Slots.NumPessoas > 0 {
		numPessoas, hasPessoas = c.Slots.NumPessoas, true
	}

	var missing []string
	if nome == "" {
		missing = append(missing, "nome")
	}
	if dataRaw == "" {
		missing = append(missing, "data")
	}
	if !hasPessoas {
		missing = append(missing, "num_pessoas")
	}
	if passeioID == "" && passeioTerm == "" {
		missing = append(missing, "passeio_id|passeio")
	}
	if len(missing) > 0 {
		return failMissing("Faltam dados para criar a reserva.", missing)
	}

	dataISO, valid := extract.ResolveDate(dataRaw, e.today())
	if !valid {
		return failDetails("invalid_date", "Data inválida. Use YYYY-MM-DD ou dd/mm.", map[string]any{"data": dataRaw})
	}

	passeios, err := e.store.GetAllPasseios()
	if err != nil {
		return fail("tool_error", "Erro ao consultar passeios.")
	}

	var passeio *store.Passeio
	if passeioID != "" {
		for i := range passeios {
			if passeios[i].ID == passeioID {
				passeio = &passeios[i]
				break
			}
		}
		if passeio == nil {
			passeio, _ = e.store.GetPasseioByID(passeioID)
		}
	}

	if passeio == nil && passeioTerm != "" {
		matches := scorePasseios(passeios, passeioTerm)
		switch {
		case len(matches) == 1:
			passeio = &matches[0].passeio
		case len(matches) > 1:
			// More than one plausible tour is always bounced back to the
			// user as a choice, never silently picked.
			sugestoes := make([]map[string]any, len(matches))
			for i, m := range matches {
				sugestoes[i] = map[string]any{
					"id":        m.passeio.ID,
					"nome":      m.passeio.Nome,
					"categoria": m.passeio.Categoria,
					"preco_min": m.passeio.PrecoMin,
					"preco_max": m.passeio.PrecoMax,
				}
			}
			return failDetails("ambiguous_passeio", "Encontrei mais de um passeio possível para esse termo.",
				map[string]any{"termo": passeioTerm, "sugestoes": sugestoes})
		}
	}

	if passeio == nil {
		return failDetails("passeio_not_found", "Passeio não encontrado.",
			map[string]any{"passeio_id": passeioID, "passeio": passeioTerm})
	}

	if passeio.PrecoMin == nil && passeio.PrecoMax == nil {
		return failDetails("price_unknown", "Passeio sem preço cadastrado.", map[string]any{"passeio_id": passeio.ID})
	}

	valorPorPessoa := 0.0
	if passeio.PrecoMin != nil {
		valorPorPessoa = *passeio.PrecoMin
	} else {
		valorPorPessoa = *passeio.PrecoMax
	}
	hasRange := passeio.PrecoMin != nil && passeio.PrecoMax != nil && *passeio.PrecoMin != *passeio.PrecoMax
	valorTotal := valorPorPessoa * float64(numPessoas)

	cliente, err := e.store.GetOrCreateCliente(c.Telefone, nome)
	if err != nil {
		return fail("cliente_error", "Erro ao criar/buscar cliente.")
	}

	observacoes := "Reserva via WhatsApp"
	if hasRange {
		observacoes = fmt.Sprintf("Reserva via WhatsApp | Faixa de preço: R$ %.2f - R$ %.2f", *passeio.PrecoMin, *passeio.PrecoMax)
	}

	reserva := &store.Reserva{
		ClienteID:   cliente.ID,
		PasseioID:   passeio.ID,
		DataPasseio: dataISO,
		NumPessoas:  numPessoas,
		Voucher:     store.GenerateVoucherCode(),
		Status:      store.StatusPendente,
		ValorTotal:  valorTotal,
		Observacoes: observacoes,
	}
	if err := e.store.CreateReserva(reserva); err != nil {
		return fail("reserva_error", "Erro ao criar reserva.")
	}
	e.bus.Publish(events.Event{
		Source: events.SourceTools,
		Kind:   events.KindReservationCreated,
		Data:   map[string]any{"telefone": c.Telefone, "passeio": passeio.Nome, "valor_total": round2(valorTotal)},
	})

	c.ForceName(nome)
	c.Slots.ReservaID = reserva.ID
	c.Slots.ValorTotal = valorTotal
	c.Slots.PasseioNome = passeio.Nome
	c.Slots.PasseioID = passeio.ID
	c.Slots.Data = dataISO
	c.Slots.NumPessoas = numPessoas

	return ok(map[string]any{
		"status":                   store.StatusPendente,
		"valor_total":              round2(valorTotal),
		"passeio_nome":             passeio.Nome,
		"data":                     dataISO,
		"num_pessoas":              numPessoas,
		"preco_min":                passeio.PrecoMin,
		"preco_max":                passeio.PrecoMax,
		"valor_por_pessoa":         valorPorPessoa,
		"requer_confirmacao_valor": hasRange,
	})
}

func (e *Executor) handleGerarPagamento(ctx context.Context, params map[string]any, c *conv.Conversation) Result {
	if err := requireSafeToCharge(); err != nil {
		return fail("tool_error", err.Error())
	}

	reservaID := strParam(params, "reserva_id", "reservaId")
	if reservaID == "" {
		reservaID = c.Slots.ReservaID
	}
	if reservaID == "" {
		return failMissing("Faltam dados para gerar pagamento.", []string{"reserva_id"})
	}

	tipo := pickPaymentType(params)
	if strParam(params, "tipo_pagamento", "tipoPagamento", "tipo", "forma_pagamento", "forma") == "" && c.Slots.TipoPag != "" {
		tipo = c.Slots.TipoPag
	}

	includePix := false
	for _, key := range []string{"incluir_pix", "include_pix", "incluir_copia_cola"} {
		switch params[key] {
		case true, "true":
			includePix = true
		}
	}

	existing, err := e.store.GetPendingCobrancaByReservaID(reservaID, tipo)
	if err != nil {
		return fail("tool_error", "Erro ao consultar cobranças.")
	}
	if existing != nil {
		data := map[string]any{
			"status":     existing.Status,
			"tipo":       existing.Tipo,
			"valor":      existing.Valor,
			"vencimento": existing.Vencimento,
		}
		if existing.Tipo == store.TipoPix {
			pix := map[string]any{}
			if includePix {
				pix["copia_cola"] = existing.PixCopiaCola
			}
			data["pix"] = pix
		} else {
			data["boleto"] = map[string]any{"url": existing.BoletoURL, "vencimento": existing.Vencimento}
		}
		return ok(data)
	}

	cpfInput := strParam(params, "cpf", "cpf_cnpj", "cpfCnpj")
	if cpfInput == "" {
		cpfInput = c.Slots.CPF
	}
	cpfDigits := nonDigitsRe.ReplaceAllString(cpfInput, "")
	if cpfInput != "" && cpfDigits != "" && len(cpfDigits) != 11 && len(cpfDigits) != 14 {
		return failDetails("invalid_cpf", "CPF/CNPJ inválido. Envie só números.", map[string]any{"cpf": cpfInput})
	}

	email := strParam(params, "email")
	if email == "" {
		email = c.Slots.Email
	}
	if email != "" && !emailRe.MatchString(email) {
		return failDetails("invalid_email", "E-mail inválido. Pode reenviar?", map[string]any{"email": email})
	}

	if cpfDigits != "" {
		c.Slots.CPF = cpfDigits
	}
	if email != "" {
		c.Slots.Email = email
	}

	var missing []string
	if cpfDigits == "" {
		missing = append(missing, "cpf")
	}
	if tipo == store.TipoBoleto && email == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return failMissing("Faltam dados para gerar pagamento.", missing)
	}

	reserva, err := e.store.GetReservaByID(reservaID)
	if err != nil || reserva == nil {
		return failDetails("reserva_not_found", "Reserva não encontrada.", map[string]any{"reserva_id": reservaID})
	}

	cliente, err := e.store.GetClienteByID(reserva.ClienteID)
	if err != nil || cliente == nil {
		return failDetails("cliente_not_found", "Cliente não encontrado.", map[string]any{"cliente_id": reserva.ClienteID})
	}

	passeio, _ := e.store.GetPasseioByID(reserva.PasseioID)
	if passeio != nil && passeio.PrecoMin != nil && passeio.PrecoMax != nil && *passeio.PrecoMin != *passeio.PrecoMax {
		return failDetails("requires_price_confirmation",
			"Esse passeio tem faixa de preço. Precisa confirmar o valor exato antes de gerar cobrança.",
			map[string]any{"preco_min": *passeio.PrecoMin, "preco_max": *passeio.PrecoMax})
	}

	valor := reserva.ValorTotal
	if math.IsNaN(valor) || math.IsInf(valor, 0) || valor <= 0 {
		return failDetails("invalid_amount", "Valor da reserva inválido.", map[string]any{"valor_total": reserva.ValorTotal})
	}

	// Idempotent under retries: an already-confirmed reservation never
	// produces a second charge.
	if reserva.Status == store.StatusConfirmado {
		return ok(map[string]any{"status": store.StatusConfirmado, "message": "Reserva já está confirmada."})
	}

	nome := strParam(params, "nome")
	if nome == "" {
		nome = cliente.Nome
	}
	billingEmail := email
	if billingEmail == "" {
		billingEmail = cliente.Email
	}
	customer, err := e.payments.FindOrCreateCustomer(ctx, nome, cpfDigits, billingEmail, cliente.Telefone)
	if err != nil {
		return fail("tool_error", "Erro ao resolver cliente de cobrança.")
	}

	passeioNome := "Passeio"
	if passeio != nil {
		passeioNome = passeio.Nome
	}
	descricao := fmt.Sprintf("%s - %s (%d pessoa(s))", passeioNome, reserva.DataPasseio, reserva.NumPessoas)

	if tipo == store.TipoPix {
		pay, qr, err := e.payments.CreatePixCharge(ctx, customer.ID, valor, descricao, reservaID)
		if err != nil {
			return fail("tool_error", "Erro ao criar cobrança PIX.")
		}

		vencimento := qr.ExpirationDate
		if vencimento == "" {
			vencimento = pay.DueDate
		}
		if vencimento == "" {
			vencimento = e.today().AddDate(0, 0, 1).Format("2006-01-02")
		}

		cob := &store.Cobranca{
			ReservaID:    reservaID,
			ClienteID:    cliente.ID,
			AsaasID:      pay.ID,
			Tipo:         store.TipoPix,
			Valor:        valor,
			Status:       store.StatusPendente,
			PixQRCode:    qr.EncodedImage,
			PixCopiaCola: qr.Payload,
			Vencimento:   vencimento,
		}
		if err := e.store.CreateCobranca(cob); err != nil {
			e.logger.Error("charge created upstream but not persisted", "asaas_id", pay.ID, "reserva_id", reservaID, "error", err)
			e.bus.Publish(events.Event{
				Source: events.SourceTools,
				Kind:   events.KindChargeSaveFailed,
				Data:   map[string]any{"reserva_id": reservaID, "tipo": store.TipoPix},
			})
			return fail("cobranca_save_failed", "Erro ao salvar cobrança.")
		}
		e.bus.Publish(events.Event{
			Source: events.SourceTools,
			Kind:   events.KindChargeCreated,
			Data:   map[string]any{"telefone": c.Telefone, "tipo": store.TipoPix, "valor": valor},
		})

		c.Slots.CPF = ""
		c.Slots.Email = ""

		pix := map[string]any{"expiracao": vencimento}
		if includePix {
			pix["copia_cola"] = qr.Payload
		}
		return ok(map[string]any{
			"status":     store.StatusPendente,
			"tipo":       store.TipoPix,
			"valor":      valor,
			"vencimento": cob.Vencimento,
			"pix":        pix,
		})
	}

	pay, err := e.payments.CreateBoletoCharge(ctx, customer.ID, valor, descricao, reservaID)
	if err != nil {
		return fail("tool_error", "Erro ao criar boleto.")
	}

	vencimento := pay.DueDate
	if vencimento == "" {
		vencimento = e.today().AddDate(0, 0, 3).Format("2006-01-02")
	}

	cob := &store.Cobranca{
		ReservaID:  reservaID,
		ClienteID:  cliente.ID,
		AsaasID:    pay.ID,
		Tipo:       store.TipoBoleto,
		Valor:      valor,
		Status:     store.StatusPendente,
		BoletoURL:  pay.BankSlipURL,
		Vencimento: vencimento,
	}
	if err := e.store.CreateCobranca(cob); err != nil {
		e.logger.Error("charge created upstream but not persisted", "asaas_id", pay.ID, "reserva_id", reservaID, "error", err)
		e.bus.Publish(events.Event{
			Source: events.SourceTools,
			Kind:   events.KindChargeSaveFailed,
			Data:   map[string]any{"reserva_id": reservaID, "tipo": store.TipoBoleto},
		})
		return fail("cobranca_save_failed", "Erro ao salvar boleto.")
	}
	e.bus.Publish(events.Event{
		Source: events.SourceTools,
		Kind:   events.KindChargeCreated,
		Data:   map[string]any{"telefone": c.Telefone, "tipo": store.TipoBoleto, "valor": valor},
	})

	c.Slots.CPF = ""
	c.Slots.Email = ""

	return ok(map[string]any{
		"status":     store.StatusPendente,
		"tipo":       store.TipoBoleto,
		"valor":      valor,
		"vencimento": cob.Vencimento,
		"boleto":     map[string]any{"url": pay.BankSlipURL, "vencimento": vencimento},
	})
}

func (e *Executor) handleGerarVoucher(_ context.Context, params map[string]any, c *conv.Conversation) Result {
	reservaID := strParam(params, "reserva_id", "reservaId")
	if reservaID == "" {
		reservaID = c.Slots.ReservaID
	}
	if reservaID == "" {
		return failMissing("Faltam dados para gerar voucher.", []string{"reserva_id"})
	}

	reserva, err := e.store.GetReservaByID(reservaID)
	if err != nil || reserva == nil {
		return failDetails("reserva_not_found", "Reserva não encontrada.", map[string]any{"reserva_id": reservaID})
	}

	cliente, err := e.store.GetClienteByID(reserva.ClienteID)
	if err != nil || cliente == nil {
		return fail("cliente_not_found", "Cliente não encontrado.")
	}

	if reserva.Status != store.StatusConfirmado {
		return failDetails("not_confirmed", "Reserva ainda não está confirmada.", map[string]any{"status": reserva.Status})
	}

	passeio, _ := e.store.GetPasseioByID(reserva.PasseioID)
	passeioNome, horarios, local := "Passeio", "", ""
	if passeio != nil {
		passeioNome = passeio.Nome
		horarios = passeio.Horarios
		local = passeio.Local
	}

	return ok(map[string]any{
		"voucher_code":   reserva.Voucher,
		"cliente_nome":   cliente.Nome,
		"passeio_nome":   passeioNome,
		"data":           reserva.DataPasseio,
		"horario":        FormatHorarios(horarios),
		"num_pessoas":    reserva.NumPessoas,
		"valor_total":    reserva.ValorTotal,
		"ponto_encontro": FormatPontoEncontro(local),
	})
}

func (e *Executor) handleCancelarReserva(_ context.Context, params map[string]any, _ *conv.Conversation) Result {
	reservaID := strParam(params, "reserva_id", "reservaId")
	voucher := strParam(params, "voucher", "voucher_code", "voucherCode")

	if reservaID == "" && voucher == "" {
		return failMissing("Faltam dados para cancelar.", []string{"reserva_id|voucher"})
	}

	var reserva *store.Reserva
	var err error
	if reservaID != "" {
		reserva, err = e.store.GetReservaByID(reservaID)
	} else {
		reserva, err = e.store.GetReservaByVoucher(voucher)
	}
	if err != nil || reserva == nil {
		return failDetails("reserva_not_found", "Não encontrei essa reserva.",
			map[string]any{"reserva_id": reservaID, "voucher": voucher})
	}

	if reserva.Status == store.StatusCancelado {
		return ok(map[string]any{
			"status":       store.StatusCancelado,
			"voucher_code": reserva.Voucher,
			"message":      "Reserva já estava cancelada.",
		})
	}

	if err := e.store.UpdateReservaStatus(reserva.ID, store.StatusCancelado); err != nil {
		return fail("cancel_failed", "Não consegui cancelar agora. Tente novamente.")
	}

	return ok(map[string]any{
		"status":       store.StatusCancelado,
		"voucher_code": reserva.Voucher,
	})
}
