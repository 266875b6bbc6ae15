package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed booking store.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the booking database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clientes (
		id TEXT PRIMARY KEY,
		nome TEXT NOT NULL,
		telefone TEXT NOT NULL UNIQUE,
		email TEXT,
		cpf TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_clientes_telefone ON clientes(telefone);

	CREATE TABLE IF NOT EXISTS passeios (
		id TEXT PRIMARY KEY,
		nome TEXT NOT NULL,
		categoria TEXT,
		descricao TEXT,
		local TEXT,
		duracao TEXT,
		preco_min REAL,
		preco_max REAL,
		includes TEXT,
		horarios TEXT
	);

	CREATE TABLE IF NOT EXISTS reservas (
		id TEXT PRIMARY KEY,
		cliente_id TEXT NOT NULL,
		passeio_id TEXT NOT NULL,
		data_passeio TEXT NOT NULL,
		num_pessoas INTEGER NOT NULL,
		voucher TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		valor_total REAL NOT NULL,
		observacoes TEXT,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (cliente_id) REFERENCES clientes(id),
		FOREIGN KEY (passeio_id) REFERENCES passeios(id)
	);
	CREATE INDEX IF NOT EXISTS idx_reservas_cliente ON reservas(cliente_id);
	CREATE INDEX IF NOT EXISTS idx_reservas_voucher ON reservas(voucher);

	CREATE TABLE IF NOT EXISTS cobrancas (
		id TEXT PRIMARY KEY,
		reserva_id TEXT NOT NULL,
		cliente_id TEXT NOT NULL,
		asaas_id TEXT,
		tipo TEXT NOT NULL,
		valor REAL NOT NULL,
		status TEXT NOT NULL,
		pix_qrcode TEXT,
		pix_copiacola TEXT,
		boleto_url TEXT,
		vencimento TEXT NOT NULL,
		pago_em TEXT,
		FOREIGN KEY (reserva_id) REFERENCES reservas(id),
		FOREIGN KEY (cliente_id) REFERENCES clientes(id)
	);
	CREATE INDEX IF NOT EXISTS idx_cobrancas_reserva ON cobrancas(reserva_id, status);
	CREATE INDEX IF NOT EXISTS idx_cobrancas_asaas ON cobrancas(asaas_id);

	CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id TEXT PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		source TEXT,
		tags TEXT,
		created_at TIMESTAMP NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetOrCreateCliente finds a customer by phone number, creating the row
// if it does not exist. A non-empty nome that differs from the stored
// one updates the record.
func (s *Store) GetOrCreateCliente(telefone, nome string) (*Cliente, error) {
	c, err := s.clienteByTelefone(telefone)
	if err != nil {
		return nil, err
	}
	if c != nil {
		if nome != "" && nome != c.Nome {
			if _, err := s.db.Exec(`UPDATE clientes SET nome = ? WHERE id = ?`, nome, c.ID); err != nil {
				return nil, fmt.Errorf("update cliente nome: %w", err)
			}
			c.Nome = nome
		}
		return c, nil
	}

	if nome == "" {
		nome = "Cliente"
	}

	id, _ := uuid.NewV7()
	now := time.Now()
	_, err = s.db.Exec(`
		INSERT INTO clientes (id, nome, telefone, created_at)
		VALUES (?, ?, ?, ?)
	`, id.String(), nome, telefone, now)
	if err != nil {
		return nil, fmt.Errorf("insert cliente: %w", err)
	}

	return &Cliente{ID: id.String(), Nome: nome, Telefone: telefone, CreatedAt: now}, nil
}

func (s *Store) clienteByTelefone(telefone string) (*Cliente, error) {
	row := s.db.QueryRow(`
		SELECT id, nome, telefone, email, cpf, created_at
		FROM clientes WHERE telefone = ?
	`, telefone)
	return scanCliente(row)
}

// GetClienteByID retrieves a customer by id. Returns nil when absent.
func (s *Store) GetClienteByID(id string) (*Cliente, error) {
	row := s.db.QueryRow(`
		SELECT id, nome, telefone, email, cpf, created_at
		FROM clientes WHERE id = ?
	`, id)
	return scanCliente(row)
}

func scanCliente(row *sql.Row) (*Cliente, error) {
	var c Cliente
	var email, cpf sql.NullString
	err := row.Scan(&c.ID, &c.Nome, &c.Telefone, &email, &cpf, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan cliente: %w", err)
	}
	c.Email = email.String
	c.CPF = cpf.String
	return &c, nil
}

// UpdateClienteContato fills in billing contact fields. Empty values
// leave the stored ones untouched.
func (s *Store) UpdateClienteContato(id, cpf, email string) error {
	if cpf != "" {
		if _, err := s.db.Exec(`UPDATE clientes SET cpf = ? WHERE id = ?`, cpf, id); err != nil {
			return fmt.Errorf("update cliente cpf: %w", err)
		}
	}
	if email != "" {
		if _, err := s.db.Exec(`UPDATE clientes SET email = ? WHERE id = ?`, email, id); err != nil {
			return fmt.Errorf("update cliente email: %w", err)
		}
	}
	return nil
}

// CreatePasseio inserts a catalog entry. Used by the import path and
// tests; the agent itself only reads the catalog.
func (s *Store) CreatePasseio(p *Passeio) error {
	if p.ID == "" {
		id, _ := uuid.NewV7()
		p.ID = id.String()
	}
	_, err := s.db.Exec(`
		INSERT INTO passeios (id, nome, categoria, descricao, local, duracao, preco_min, preco_max, includes, horarios)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Nome, p.Categoria, p.Descricao, p.Local, p.Duracao, nullFloat(p.PrecoMin), nullFloat(p.PrecoMax), p.Includes, p.Horarios)
	if err != nil {
		return fmt.Errorf("insert passeio: %w", err)
	}
	return nil
}

// GetAllPasseios returns the full catalog ordered by name.
func (s *Store) GetAllPasseios() ([]Passeio, error) {
	rows, err := s.db.Query(`
		SELECT id, nome, categoria, descricao, local, duracao, preco_min, preco_max, includes, horarios
		FROM passeios ORDER BY nome
	`)
	if err != nil {
		return nil, fmt.Errorf("query passeios: %w", err)
	}
	defer rows.Close()

	var passeios []Passeio
	for rows.Next() {
		p, err := scanPasseio(rows)
		if err != nil {
			return nil, err
		}
		passeios = append(passeios, *p)
	}
	return passeios, rows.Err()
}

// GetPasseioByID retrieves a catalog entry by id. Returns nil when absent.
func (s *Store) GetPasseioByID(id string) (*Passeio, error) {
	rows, err := s.db.Query(`
		SELECT id, nome, categoria, descricao, local, duracao, preco_min, preco_max, includes, horarios
		FROM passeios WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query passeio: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanPasseio(rows)
}

func scanPasseio(rows *sql.Rows) (*Passeio, error) {
	var p Passeio
	var categoria, descricao, local, duracao, includes, horarios sql.NullString
	var precoMin, precoMax sql.NullFloat64
	err := rows.Scan(&p.ID, &p.Nome, &categoria, &descricao, &local, &duracao, &precoMin, &precoMax, &includes, &horarios)
	if err != nil {
		return nil, fmt.Errorf("scan passeio: %w", err)
	}
	p.Categoria = categoria.String
	p.Descricao = descricao.String
	p.Local = local.String
	p.Duracao = duracao.String
	p.Includes = includes.String
	p.Horarios = horarios.String
	if precoMin.Valid {
		v := precoMin.Float64
		p.PrecoMin = &v
	}
	if precoMax.Valid {
		v := precoMax.Float64
		p.PrecoMax = &v
	}
	return &p, nil
}

// CreateReserva inserts a reservation row, assigning id and created_at.
func (s *Store) CreateReserva(r *Reserva) error {
	id, _ := uuid.NewV7()
	r.ID = id.String()
	r.CreatedAt = time.Now()

	_, err := s.db.Exec(`
		INSERT INTO reservas (id, cliente_id, passeio_id, data_passeio, num_pessoas, voucher, status, valor_total, observacoes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.ClienteID, r.PasseioID, r.DataPasseio, r.NumPessoas, r.Voucher, r.Status, r.ValorTotal, r.Observacoes, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert reserva: %w", err)
	}
	return nil
}

// GetReservaByID retrieves a reservation by id. Returns nil when absent.
func (s *Store) GetReservaByID(id string) (*Reserva, error) {
	return s.reservaWhere(`id = ?`, id)
}

// GetReservaByVoucher retrieves a reservation by voucher code.
func (s *Store) GetReservaByVoucher(voucher string) (*Reserva, error) {
	return s.reservaWhere(`voucher = ?`, voucher)
}

func (s *Store) reservaWhere(cond string, arg any) (*Reserva, error) {
	row := s.db.QueryRow(`
		SELECT id, cliente_id, passeio_id, data_passeio, num_pessoas, voucher, status, valor_total, observacoes, created_at
		FROM reservas WHERE `+cond, arg)

	var r Reserva
	var observacoes sql.NullString
	err := row.Scan(&r.ID, &r.ClienteID, &r.PasseioID, &r.DataPasseio, &r.NumPessoas, &r.Voucher, &r.Status, &r.ValorTotal, &observacoes, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan reserva: %w", err)
	}
	r.Observacoes = observacoes.String
	return &r, nil
}

// UpdateReservaStatus transitions a reservation to the given status.
func (s *Store) UpdateReservaStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE reservas SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update reserva status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reserva not found: %s", id)
	}
	return nil
}

// CreateCobranca inserts a charge row, assigning an id.
func (s *Store) CreateCobranca(c *Cobranca) error {
	id, _ := uuid.NewV7()
	c.ID = id.String()

	_, err := s.db.Exec(`
		INSERT INTO cobrancas (id, reserva_id, cliente_id, asaas_id, tipo, valor, status, pix_qrcode, pix_copiacola, boleto_url, vencimento, pago_em)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.ReservaID, c.ClienteID, c.AsaasID, c.Tipo, c.Valor, c.Status, c.PixQRCode, c.PixCopiaCola, c.BoletoURL, c.Vencimento, c.PagoEm)
	if err != nil {
		return fmt.Errorf("insert cobranca: %w", err)
	}
	return nil
}

// GetPendingCobrancaByReservaID returns an existing PENDENTE charge of
// the given type for the reservation, or nil. Payment generation uses
// this to stay idempotent under retried tool calls.
func (s *Store) GetPendingCobrancaByReservaID(reservaID, tipo string) (*Cobranca, error) {
	return s.cobrancaWhere(`reserva_id = ? AND tipo = ? AND status = ?`, reservaID, tipo, StatusPendente)
}

// GetCobrancaByAsaasID retrieves a charge by the provider's payment id.
func (s *Store) GetCobrancaByAsaasID(asaasID string) (*Cobranca, error) {
	return s.cobrancaWhere(`asaas_id = ?`, asaasID)
}

func (s *Store) cobrancaWhere(cond string, args ...any) (*Cobranca, error) {
	row := s.db.QueryRow(`
		SELECT id, reserva_id, cliente_id, asaas_id, tipo, valor, status, pix_qrcode, pix_copiacola, boleto_url, vencimento, pago_em
		FROM cobrancas WHERE `+cond, args...)

	var c Cobranca
	var asaasID, pixQR, pixCopia, boletoURL, pagoEm sql.NullString
	err := row.Scan(&c.ID, &c.ReservaID, &c.ClienteID, &asaasID, &c.Tipo, &c.Valor, &c.Status, &pixQR, &pixCopia, &boletoURL, &c.Vencimento, &pagoEm)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan cobranca: %w", err)
	}
	c.AsaasID = asaasID.String
	c.PixQRCode = pixQR.String
	c.PixCopiaCola = pixCopia.String
	c.BoletoURL = boletoURL.String
	c.PagoEm = pagoEm.String
	return &c, nil
}

// UpdateCobrancaByAsaasID updates the charge matching the provider id.
// pagoEm is only written when non-empty.
func (s *Store) UpdateCobrancaByAsaasID(asaasID, status, pagoEm string) (*Cobranca, error) {
	var err error
	if pagoEm != "" {
		_, err = s.db.Exec(`UPDATE cobrancas SET status = ?, pago_em = ? WHERE asaas_id = ?`, status, pagoEm, asaasID)
	} else {
		_, err = s.db.Exec(`UPDATE cobrancas SET status = ? WHERE asaas_id = ?`, status, asaasID)
	}
	if err != nil {
		return nil, fmt.Errorf("update cobranca: %w", err)
	}
	return s.GetCobrancaByAsaasID(asaasID)
}

// AddKnowledgeChunk inserts a knowledge-base entry.
func (s *Store) AddKnowledgeChunk(k *KnowledgeChunk) error {
	if k.ID == "" {
		id, _ := uuid.NewV7()
		k.ID = id.String()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now()
	}

	tags, err := json.Marshal(k.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO knowledge_chunks (id, slug, title, content, source, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, k.ID, k.Slug, k.Title, k.Content, k.Source, string(tags), k.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert knowledge chunk: %w", err)
	}
	return nil
}

// GetAllKnowledgeChunks returns the knowledge base, newest first.
func (s *Store) GetAllKnowledgeChunks() ([]KnowledgeChunk, error) {
	rows, err := s.db.Query(`
		SELECT id, slug, title, content, source, tags, created_at
		FROM knowledge_chunks ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query knowledge chunks: %w", err)
	}
	defer rows.Close()

	var chunks []KnowledgeChunk
	for rows.Next() {
		var k KnowledgeChunk
		var source, tags sql.NullString
		if err := rows.Scan(&k.ID, &k.Slug, &k.Title, &k.Content, &source, &tags, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan knowledge chunk: %w", err)
		}
		k.Source = source.String
		if tags.Valid && tags.String != "" {
			_ = json.Unmarshal([]byte(tags.String), &k.Tags)
		}
		chunks = append(chunks, k)
	}
	return chunks, rows.Err()
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
