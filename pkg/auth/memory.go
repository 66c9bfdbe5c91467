package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"

	"github.com/NicolasHaas/gorelay/pkg/model"
	"github.com/NicolasHaas/gorelay/pkg/rbac"
)

// MemoryProvider keeps accounts in process memory. Nothing survives a restart.
// It mirrors SQLProvider behavior for validation and error handling.
type MemoryProvider struct {
	mu sync.RWMutex

	seeds    []model.Account
	accounts []*model.Account // registration order
	byLogin  map[string]*model.Account
}

// NewMemory creates a MemoryProvider holding DefaultAdmin plus the given seeds.
// Seeds whose login already exists are skipped.
func NewMemory(seeds ...model.Account) *MemoryProvider {
	return &MemoryProvider{
		seeds:   append([]model.Account{DefaultAdmin}, seeds...),
		byLogin: make(map[string]*model.Account),
	}
}

// Initialize loads the seed accounts. Calling it again is a no-op.
func (p *MemoryProvider) Initialize(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, seed := range p.seeds {
		if _, exists := p.byLogin[seed.Login]; exists {
			continue
		}
		if !seed.Role.Valid() {
			return fmt.Errorf("auth: seed %q: invalid role %d", seed.Login, seed.Role)
		}
		acct := seed
		p.accounts = append(p.accounts, &acct)
		p.byLogin[acct.Login] = &acct
	}
	return nil
}

// Authenticate checks login and password.
func (p *MemoryProvider) Authenticate(_ context.Context, login, password string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	acct, ok := p.byLogin[login]
	if !ok || subtle.ConstantTimeCompare([]byte(acct.Password), []byte(password)) != 1 {
		return "", ErrInvalidCredentials
	}
	if acct.Banned {
		return "", ErrAccountBanned
	}
	return acct.DisplayName, nil
}

// Register creates a new RoleUser account.
func (p *MemoryProvider) Register(_ context.Context, login, password, displayName string) (string, error) {
	if err := model.ValidateRegistration(login, password, displayName); err != nil {
		return "", fmt.Errorf("auth: register: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byLogin[login]; exists {
		return "", ErrLoginTaken
	}
	if p.findByNameLocked(displayName) != nil {
		return "", ErrDisplayNameTaken
	}
	acct := &model.Account{
		Login:       login,
		Password:    password,
		DisplayName: displayName,
		Role:        model.RoleUser,
	}
	p.accounts = append(p.accounts, acct)
	p.byLogin[login] = acct
	return displayName, nil
}

// PrivilegeElevation reports whether displayName belongs to an admin account.
func (p *MemoryProvider) PrivilegeElevation(_ context.Context, displayName string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	acct := p.findByNameLocked(displayName)
	if acct == nil {
		return false, nil
	}
	return rbac.Elevated(acct.Role), nil
}

// IsBanned reports the ban flag of displayName.
func (p *MemoryProvider) IsBanned(_ context.Context, displayName string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	acct := p.findByNameLocked(displayName)
	return acct != nil && acct.Banned, nil
}

// Ban marks displayName as banned.
func (p *MemoryProvider) Ban(_ context.Context, displayName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if acct := p.findByNameLocked(displayName); acct != nil {
		acct.Banned = true
	}
	return nil
}

// ChangeNick renames the account shown as oldName.
func (p *MemoryProvider) ChangeNick(_ context.Context, oldName, newName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if oldName == newName {
		return nil
	}
	if p.findByNameLocked(newName) != nil {
		return ErrDisplayNameTaken
	}
	if acct := p.findByNameLocked(oldName); acct != nil {
		acct.DisplayName = newName
	}
	return nil
}

// Accounts returns a copy of every account in registration order.
func (p *MemoryProvider) Accounts(_ context.Context) ([]model.Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.Account, 0, len(p.accounts))
	for _, acct := range p.accounts {
		out = append(out, *acct)
	}
	return out, nil
}

// Close is a no-op for MemoryProvider.
func (p *MemoryProvider) Close() error {
	return nil
}

// findByNameLocked must be called with p.mu held.
func (p *MemoryProvider) findByNameLocked(displayName string) *model.Account {
	for _, acct := range p.accounts {
		if acct.DisplayName == displayName {
			return acct
		}
	}
	return nil
}

var (
	_ Provider = (*MemoryProvider)(nil)
	_ Lister   = (*MemoryProvider)(nil)
)
