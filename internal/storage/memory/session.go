package memory

import (
	"context"

	"github.com/rryowa/listarr/internal/models"
	"github.com/rryowa/listarr/internal/storage"
)

func (s *Storage) CreateSession(ctx context.Context, session models.RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.Selector] = session
	s.log.Debugw("Session created", "sessionID", session.ID, "userID", session.UserID)
	return nil
}

func (s *Storage) GetSessionBySelector(ctx context.Context, selector string) (*models.RefreshSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[selector]
	if !ok {
		s.log.Debugw("Session not found", "selector", selector)
		return nil, storage.ErrSessionNotFound
	}
	return &session, nil
}

func (s *Storage) RotateSession(ctx context.Context, oldSelector string, next models.RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.sessions[oldSelector]
	if !ok {
		return storage.ErrSessionNotFound
	}
	if old.Status != models.SessionActive {
		return storage.ErrSessionNotActive
	}
	old.Status = models.SessionUsed
	s.sessions[oldSelector] = old
	s.sessions[next.Selector] = next
	return nil
}

func (s *Storage) RevokeSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sel, session := range s.sessions {
		if session.ID == id && session.Status == models.SessionActive {
			session.Status = models.SessionRevoked
			s.sessions[sel] = session
		}
	}
	return nil
}

func (s *Storage) RevokeAllUserSessions(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revokeUserSessionsLocked(userID)
	return nil
}

func (s *Storage) revokeUserSessionsLocked(userID string) {
	for sel, session := range s.sessions {
		if session.UserID == userID && session.Status == models.SessionActive {
			session.Status = models.SessionRevoked
			s.sessions[sel] = session
		}
	}
}
