package idp

import (
	"context"
	"sync"
	"time"

	"github.com/savaki/coachme-auth/internal/dao/accountdao"
)

// Account is the provider's directory entry for a user who has signed in.
type Account struct {
	Subject      string
	Email        string
	Name         string
	Provider     string
	LastSignInAt time.Time
}

// Directory stores accounts known to the provider. DeleteAccount removes
// the signed-in user's entry.
type Directory interface {
	Put(ctx context.Context, account Account) error
	Delete(ctx context.Context, subject string) error
}

// MemoryDirectory is a process-local Directory.
type MemoryDirectory struct {
	mu       sync.Mutex
	accounts map[string]Account
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{accounts: map[string]Account{}}
}

func (d *MemoryDirectory) Put(_ context.Context, account Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[account.Subject] = account
	return nil
}

func (d *MemoryDirectory) Delete(_ context.Context, subject string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.accounts[subject]; !ok {
		return accountdao.ErrAccountNotFound
	}
	delete(d.accounts, subject)
	return nil
}

// Get returns the account for subject.
func (d *MemoryDirectory) Get(subject string) (Account, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	account, ok := d.accounts[subject]
	return account, ok
}

// DynamoDirectory is a Directory backed by the accounts table.
type DynamoDirectory struct {
	dao *accountdao.DAO
}

func NewDynamoDirectory(dao *accountdao.DAO) *DynamoDirectory {
	return &DynamoDirectory{dao: dao}
}

func (d *DynamoDirectory) Put(ctx context.Context, account Account) error {
	return d.dao.Upsert(ctx, accountdao.UpsertInput{
		Subject:      account.Subject,
		Email:        account.Email,
		Name:         account.Name,
		Provider:     account.Provider,
		LastSignInAt: account.LastSignInAt,
	})
}

func (d *DynamoDirectory) Delete(ctx context.Context, subject string) error {
	return d.dao.Delete(ctx, accountdao.NewID(subject))
}
