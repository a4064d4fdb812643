package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"signflow.dev/internal/apperr"
	"signflow.dev/internal/dbx"
	"signflow.dev/internal/otp"
	"signflow.dev/internal/signer"
)

// Signers implements signer.SignerStore.
type Signers struct{}

const signerSelect = `
	select id, document_id, name, email, coalesce(cpf,''), coalesce(phone_e164,''), coalesce(qualification,''),
		auth_channels, "order", status, signed_at, coalesce(ip,''),
		coalesce(signature_uuid,''), coalesce(signature_hash,''), coalesce(signature_artefact_path,''),
		coalesce(position_x,0), coalesce(position_y,0), coalesce(position_page,0), created_at, updated_at
	from signers`

func scanSigner(row *sql.Row) (*signer.Signer, error) {
	var s signer.Signer
	var status string
	var channels []byte
	err := row.Scan(&s.ID, &s.DocumentID, &s.Name, &s.Email, &s.CPF, &s.PhoneE164, &s.Qualification,
		&channels, &s.Order, &status, &s.SignedAt, &s.IP,
		&s.SignatureUUID, &s.SignatureHash, &s.SignatureArtefactPath,
		&s.PositionX, &s.PositionY, &s.PositionPage, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: signer", apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	s.Status = signer.Status(status)
	var rawChannels []string
	_ = json.Unmarshal(channels, &rawChannels)
	for _, c := range rawChannels {
		s.AuthChannels = append(s.AuthChannels, otp.Channel(c))
	}
	return &s, nil
}

func (Signers) Create(ctx context.Context, q dbx.Querier, s *signer.Signer) error {
	channels := make([]string, len(s.AuthChannels))
	for i, c := range s.AuthChannels {
		channels[i] = string(c)
	}
	raw, err := json.Marshal(channels)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		insert into signers (id, document_id, name, email, cpf, phone_e164, qualification,
			auth_channels, "order", status, created_at, updated_at)
		values ($1,$2,$3,$4,nullif($5,''),nullif($6,''),nullif($7,''),$8,$9,$10,$11,$12)
	`, s.ID, s.DocumentID, s.Name, s.Email, s.CPF, s.PhoneE164, s.Qualification,
		raw, s.Order, string(s.Status), s.CreatedAt, s.UpdatedAt)
	return err
}

func (Signers) FindByID(ctx context.Context, q dbx.Querier, id string) (*signer.Signer, error) {
	return scanSigner(q.QueryRowContext(ctx, signerSelect+` where id = $1`, id))
}

func (Signers) Update(ctx context.Context, q dbx.Querier, s *signer.Signer) error {
	_, err := q.ExecContext(ctx, `
		update signers set status=$2, signed_at=$3, ip=nullif($4,''),
			signature_uuid=nullif($5,''), signature_hash=nullif($6,''), signature_artefact_path=nullif($7,''),
			position_x=nullif($8,0), position_y=nullif($9,0), position_page=nullif($10,0), updated_at=$11
		where id = $1
	`, s.ID, string(s.Status), s.SignedAt, s.IP, s.SignatureUUID, s.SignatureHash, s.SignatureArtefactPath,
		s.PositionX, s.PositionY, s.PositionPage, s.UpdatedAt)
	return err
}

func (Signers) ListByDocument(ctx context.Context, q dbx.Querier, documentID string) ([]signer.Signer, error) {
	rows, err := q.QueryContext(ctx, signerSelect+` where document_id = $1 order by "order" asc`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []signer.Signer
	for rows.Next() {
		var s signer.Signer
		var status string
		var channels []byte
		if err := rows.Scan(&s.ID, &s.DocumentID, &s.Name, &s.Email, &s.CPF, &s.PhoneE164, &s.Qualification,
			&channels, &s.Order, &status, &s.SignedAt, &s.IP,
			&s.SignatureUUID, &s.SignatureHash, &s.SignatureArtefactPath,
			&s.PositionX, &s.PositionY, &s.PositionPage, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Status = signer.Status(status)
		var rawChannels []string
		_ = json.Unmarshal(channels, &rawChannels)
		for _, c := range rawChannels {
			s.AuthChannels = append(s.AuthChannels, otp.Channel(c))
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
