package memory

import (
	"context"
	"sync"

	"quiz-attempt-service/internal/domain"
)

// CertificateStore keeps certificates unique by attempt and by code.
type CertificateStore struct {
	mu        sync.RWMutex
	byAttempt map[string]domain.Certificate
	byCode    map[string]string // code -> attempt ID
}

func NewCertificateStore() *CertificateStore {
	return &CertificateStore{
		byAttempt: make(map[string]domain.Certificate),
		byCode:    make(map[string]string),
	}
}

func (s *CertificateStore) GetCertificateByAttempt(_ context.Context, attemptID string) (domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cert, ok := s.byAttempt[attemptID]
	if !ok {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	return cert, nil
}

func (s *CertificateStore) GetCertificateByCode(_ context.Context, code string) (domain.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attemptID, ok := s.byCode[code]
	if !ok {
		return domain.Certificate{}, domain.ErrCertificateNotFound
	}
	return s.byAttempt[attemptID], nil
}

func (s *CertificateStore) CreateCertificate(_ context.Context, cert domain.Certificate) (domain.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byAttempt[cert.AttemptID]; ok {
		return existing, nil
	}
	if _, taken := s.byCode[cert.Code]; taken {
		return domain.Certificate{}, domain.ErrCertificateCodeTaken
	}
	s.byAttempt[cert.AttemptID] = cert
	s.byCode[cert.Code] = cert.AttemptID
	return cert, nil
}
