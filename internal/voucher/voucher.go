// Package voucher renders confirmed-reservation vouchers and delivers
// them to the customer: a WhatsApp text message always, plus an email
// with an embedded PIX QR code when the customer left an address.
package voucher

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// Data is everything a voucher needs to render. Assembled by the
// payment webhook handler from the reservation, customer, and tour
// rows.
type Data struct {
	Voucher       string
	ClienteNome   string
	ClienteEmail  string
	PasseioNome   string
	Data          string // ISO calendar date
	Horario       string
	NumPessoas    int
	ValorTotal    float64
	PontoEncontro string
	// PixCopiaCola, when present, is rendered as a QR code in the
	// email so the customer can re-scan the payment receipt.
	PixCopiaCola string
}

// WhatsAppMessage renders the voucher as a short plain-text message.
func WhatsAppMessage(d Data) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reserva confirmada! Voucher: %s\n\n", d.Voucher)
	fmt.Fprintf(&b, "Passeio: %s\n", d.PasseioNome)
	fmt.Fprintf(&b, "Data: %s\n", d.Data)
	if d.Horario != "" {
		fmt.Fprintf(&b, "Horário: %s\n", d.Horario)
	}
	fmt.Fprintf(&b, "Pessoas: %d\n", d.NumPessoas)
	fmt.Fprintf(&b, "Valor: R$ %.2f\n", d.ValorTotal)
	if d.PontoEncontro != "" {
		fmt.Fprintf(&b, "Ponto de encontro: %s\n", d.PontoEncontro)
	}
	b.WriteString("\nApresente este voucher no embarque. Bom passeio!")
	return b.String()
}

// Markdown renders the voucher body used for the email (converted to
// text/plain and text/html parts by ComposeEmail).
func Markdown(d Data) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Voucher %s\n\n", d.Voucher)
	fmt.Fprintf(&b, "Olá, **%s**! Sua reserva está confirmada.\n\n", d.ClienteNome)
	fmt.Fprintf(&b, "- **Passeio**: %s\n", d.PasseioNome)
	fmt.Fprintf(&b, "- **Data**: %s\n", d.Data)
	if d.Horario != "" {
		fmt.Fprintf(&b, "- **Horário**: %s\n", d.Horario)
	}
	fmt.Fprintf(&b, "- **Pessoas**: %d\n", d.NumPessoas)
	fmt.Fprintf(&b, "- **Valor**: R$ %.2f\n", d.ValorTotal)
	if d.PontoEncontro != "" {
		fmt.Fprintf(&b, "- **Ponto de encontro**: %s\n", d.PontoEncontro)
	}
	b.WriteString("\nApresente este voucher no embarque.\n")
	if d.PixCopiaCola != "" {
		b.WriteString("\nO QR code do seu pagamento PIX segue em anexo.\n")
	}
	return b.String()
}

// QRCodePNG encodes a PIX copy-paste payload as a PNG QR code.
func QRCodePNG(payload string) ([]byte, error) {
	png, err := qrcode.Encode(payload, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode pix qr code: %w", err)
	}
	return png, nil
}
