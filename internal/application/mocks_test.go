package application_test

import (
	"context"
	"sync"

	"github.com/ericfisherdev/homevault/internal/domain/model"
)

// memVault is an in-memory CredentialStore and AuditStore. Mutations append
// their audit entry under the same lock, mirroring the transactional stores.
type memVault struct {
	mu        sync.Mutex
	creds     []model.Credential
	entries   []model.AuditEntry
	nextID    int64
	nextEntry int64

	findCalls int
	findFn    func(ctx context.Context) error
	findErr   error
	addErr    error
	getErr    error
	allErr    error
	listErr   error
	deleteErr error
	recordErr error
}

func newMemVault() *memVault {
	return &memVault{}
}

func (m *memVault) appendEntry(e model.AuditEntry) int64 {
	m.nextEntry++
	e.ID = m.nextEntry
	m.entries = append(m.entries, e)
	return e.ID
}

func (m *memVault) Add(_ context.Context, cred *model.Credential, entry model.AuditEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return 0, m.addErr
	}
	m.nextID++
	c := *cred
	c.ID = m.nextID
	m.creds = append(m.creds, c)
	m.appendEntry(entry)
	return c.ID, nil
}

func (m *memVault) Find(ctx context.Context, target model.Target, username string) (*model.Credential, error) {
	m.mu.Lock()
	m.findCalls++
	findFn, findErr := m.findFn, m.findErr
	m.mu.Unlock()

	if findFn != nil {
		if err := findFn(ctx); err != nil {
			return nil, err
		}
	}
	if findErr != nil {
		return nil, findErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.creds {
		if c.TargetType != target.Type {
			continue
		}
		if c.TargetID != target.ID && c.TargetName != target.ID {
			continue
		}
		if username != "" && c.Username != username {
			continue
		}
		found := c
		return &found, nil
	}
	return nil, nil
}

func (m *memVault) Get(_ context.Context, id int64) (*model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, c := range m.creds {
		if c.ID == id {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

func (m *memVault) List(_ context.Context) ([]model.CredentialSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.CredentialSummary
	for _, c := range m.creds {
		out = append(out, model.CredentialSummary{
			ID:          c.ID,
			TargetType:  c.TargetType,
			TargetID:    c.TargetID,
			Username:    c.Username,
			AuthType:    c.AuthType,
			HasPassword: c.PasswordCiphertext != "",
			HasAPIToken: c.APITokenCiphertext != "",
			CreatedAt:   c.CreatedAt,
			UpdatedAt:   c.UpdatedAt,
		})
	}
	return out, nil
}

func (m *memVault) All(_ context.Context) ([]model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allErr != nil {
		return nil, m.allErr
	}
	return append([]model.Credential(nil), m.creds...), nil
}

func (m *memVault) Delete(_ context.Context, id int64, entry model.AuditEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	for i, c := range m.creds {
		if c.ID == id {
			m.creds = append(m.creds[:i], m.creds[i+1:]...)
			m.appendEntry(entry)
			return true, nil
		}
	}
	return false, nil
}

func (m *memVault) Record(_ context.Context, entry model.AuditEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return 0, m.recordErr
	}
	return m.appendEntry(entry), nil
}

func (m *memVault) Query(_ context.Context, filter model.AuditFilter) ([]model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AuditEntry
	for i := len(m.entries) - 1; i >= 0 && len(out) < filter.EffectiveLimit(); i-- {
		e := m.entries[i]
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.TargetType != "" && e.TargetType != filter.TargetType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// auditLog returns a snapshot of recorded entries, oldest first.
func (m *memVault) auditLog() []model.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.AuditEntry(nil), m.entries...)
}

func (m *memVault) set(fn func(m *memVault)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

// tamper edits a stored credential in place.
func (m *memVault) tamper(id int64, fn func(c *model.Credential)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.creds {
		if m.creds[i].ID == id {
			fn(&m.creds[i])
		}
	}
}
