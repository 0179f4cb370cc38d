package postgres

import (
	"context"
	"errors"
	"fmt"

	"quiz-attempt-service/internal/domain"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	uniqueViolation    = "23505"
	certificateCodeKey = "certificates_code_key"
)

const certificateColumns = `id, attempt_id, user_id, quiz_id, code, score, issued_at`

// CertificateStore keeps issued certificates; attempt_id and code are unique.
type CertificateStore struct {
	pool *pgxpool.Pool
}

func NewCertificateStore(pool *pgxpool.Pool) *CertificateStore {
	return &CertificateStore{pool: pool}
}

func (s *CertificateStore) GetCertificateByAttempt(ctx context.Context, attemptID string) (domain.Certificate, error) {
	return s.get(ctx, `attempt_id`, attemptID)
}

func (s *CertificateStore) GetCertificateByCode(ctx context.Context, code string) (domain.Certificate, error) {
	return s.get(ctx, `code`, code)
}

// CreateCertificate inserts cert unless the attempt already has one, in which
// case the stored certificate wins.
func (s *CertificateStore) CreateCertificate(ctx context.Context, cert domain.Certificate) (domain.Certificate, error) {
	row := s.pool.QueryRow(ctx, `
INSERT INTO certificates (`+certificateColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (attempt_id) DO NOTHING
RETURNING `+certificateColumns,
		cert.ID, cert.AttemptID, cert.UserID, cert.QuizID, cert.Code, cert.Score, cert.IssuedAt)
	created, err := scanCertificate(row)
	if err == nil {
		return created, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == certificateCodeKey {
		return domain.Certificate{}, domain.ErrCertificateCodeTaken
	}
	if errors.Is(err, domain.ErrCertificateNotFound) {
		return s.GetCertificateByAttempt(ctx, cert.AttemptID)
	}
	return domain.Certificate{}, fmt.Errorf("create certificate: %w", err)
}

func (s *CertificateStore) get(ctx context.Context, column, value string) (domain.Certificate, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+certificateColumns+` FROM certificates WHERE `+column+` = $1`, value)
	return scanCertificate(row)
}

func scanCertificate(row pgx.Row) (domain.Certificate, error) {
	var c domain.Certificate
	err := row.Scan(&c.ID, &c.AttemptID, &c.UserID, &c.QuizID, &c.Code, &c.Score, &c.IssuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	if err != nil {
		return domain.Certificate{}, fmt.Errorf("scan certificate: %w", err)
	}
	return c, nil
}
