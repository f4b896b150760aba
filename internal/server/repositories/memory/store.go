// Package memory keeps accounts, emails and verification secrets in
// process memory. It backs the server when no database DSN is configured
// and doubles as a fast fake in service tests.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/common"
	"github.com/dmitrijs2005/idkeeper/internal/server/models"
	"github.com/google/uuid"
)

// Store holds all records behind one mutex. Transactions are serialized
// against every other operation and roll back by restoring a snapshot.
type Store struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	now      func() time.Time
	accounts map[string]models.Account
	emails   map[string]models.Email
	secrets  map[string]models.VerificationSecret
}

func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:      now,
		accounts: make(map[string]models.Account),
		emails:   make(map[string]models.Email),
		secrets:  make(map[string]models.VerificationSecret),
	}
}

// Tx exposes repositories bound to a running transaction.
type Tx struct {
	s *Store
}

func (t *Tx) Accounts() *Accounts { return &Accounts{view{t.s, true}} }
func (t *Tx) Emails() *Emails     { return &Emails{view{t.s, true}} }
func (t *Tx) Secrets() *Secrets   { return &Secrets{view{t.s, true}} }

// WithTx runs fn while holding the store's transaction lock. If fn fails
// every change made through tx is discarded.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	accounts, emails, secrets := maps.Clone(s.accounts), maps.Clone(s.emails), maps.Clone(s.secrets)
	s.mu.Unlock()

	if err := fn(ctx, &Tx{s}); err != nil {
		s.mu.Lock()
		s.accounts, s.emails, s.secrets = accounts, emails, secrets
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Accounts() *Accounts { return &Accounts{view{s, false}} }
func (s *Store) Emails() *Emails     { return &Emails{view{s, false}} }
func (s *Store) Secrets() *Secrets   { return &Secrets{view{s, false}} }

// view locks the store for one operation. Views outside a transaction
// also wait for any running transaction.
type view struct {
	s  *Store
	tx bool
}

func (v view) lock() *Store {
	if !v.tx {
		v.s.txMu.Lock()
	}
	v.s.mu.Lock()
	return v.s
}

func (v view) unlock() {
	v.s.mu.Unlock()
	if !v.tx {
		v.s.txMu.Unlock()
	}
}

type Accounts struct{ view }

func (r *Accounts) Create(ctx context.Context, passwordHash string) (*models.Account, error) {
	st := r.lock()
	defer r.unlock()

	a := models.Account{ID: uuid.NewString(), PasswordHash: passwordHash, CreatedAt: st.now()}
	st.accounts[a.ID] = a
	return &a, nil
}

func (r *Accounts) Get(ctx context.Context, id string) (*models.Account, error) {
	st := r.lock()
	defer r.unlock()

	a, ok := st.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &a, nil
}

func (r *Accounts) SetPasswordHash(ctx context.Context, id string, hash string) error {
	st := r.lock()
	defer r.unlock()

	a, ok := st.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.PasswordHash = hash
	st.accounts[id] = a
	return nil
}

func (r *Accounts) ReplacePasswordHash(ctx context.Context, id string, oldHash, newHash string) (bool, error) {
	st := r.lock()
	defer r.unlock()

	a, ok := st.accounts[id]
	if !ok || a.PasswordHash != oldHash {
		return false, nil
	}
	a.PasswordHash = newHash
	st.accounts[id] = a
	return true, nil
}

// Delete removes the account with its emails and secrets.
func (r *Accounts) Delete(ctx context.Context, id string) error {
	st := r.lock()
	defer r.unlock()

	if _, ok := st.accounts[id]; !ok {
		return common.ErrorNotFound
	}
	delete(st.accounts, id)
	for addr, e := range st.emails {
		if e.AccountID == id {
			delete(st.emails, addr)
		}
	}
	for tok, sec := range st.secrets {
		if sec.AccountID == id {
			delete(st.secrets, tok)
		}
	}
	return nil
}

type Emails struct{ view }

func (r *Emails) Add(ctx context.Context, e *models.Email) error {
	st := r.lock()
	defer r.unlock()

	if _, ok := st.emails[e.Address]; ok {
		return common.ErrorDuplicateAddress
	}
	if _, ok := st.accounts[e.AccountID]; !ok {
		return common.ErrorNotFound
	}
	e.CreatedAt = st.now()
	st.emails[e.Address] = *e
	return nil
}

func (r *Emails) Get(ctx context.Context, address string) (*models.Email, error) {
	st := r.lock()
	defer r.unlock()

	e, ok := st.emails[address]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &e, nil
}

func (r *Emails) ListByAccount(ctx context.Context, accountID string) ([]models.Email, error) {
	st := r.lock()
	defer r.unlock()

	var out []models.Email
	for _, e := range st.emails {
		if e.AccountID == accountID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Address < out[j].Address
	})
	return out, nil
}

func (r *Emails) Delete(ctx context.Context, address string) error {
	st := r.lock()
	defer r.unlock()

	if _, ok := st.emails[address]; !ok {
		return common.ErrorNotFound
	}
	delete(st.emails, address)
	return nil
}

type Secrets struct{ view }

func (r *Secrets) Insert(ctx context.Context, sec *models.VerificationSecret) error {
	st := r.lock()
	defer r.unlock()

	if _, ok := st.secrets[sec.Token]; ok {
		return common.ErrorDuplicateAddress
	}
	st.secrets[sec.Token] = *sec
	return nil
}

func (r *Secrets) DeleteFor(ctx context.Context, email string, purpose models.Purpose) error {
	st := r.lock()
	defer r.unlock()

	for tok, sec := range st.secrets {
		if sec.Email == email && sec.Purpose == purpose {
			delete(st.secrets, tok)
		}
	}
	return nil
}

func (r *Secrets) Get(ctx context.Context, token string) (*models.VerificationSecret, error) {
	st := r.lock()
	defer r.unlock()

	sec, ok := st.secrets[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &sec, nil
}

func (r *Secrets) FindByEmail(ctx context.Context, email string, purpose models.Purpose) (*models.VerificationSecret, error) {
	st := r.lock()
	defer r.unlock()

	for _, sec := range st.secrets {
		if sec.Email == email && sec.Purpose == purpose {
			return &sec, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *Secrets) Take(ctx context.Context, token string) (*models.VerificationSecret, error) {
	st := r.lock()
	defer r.unlock()

	sec, ok := st.secrets[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(st.secrets, token)
	return &sec, nil
}

func (r *Secrets) DeleteIssuedBefore(ctx context.Context, t time.Time) (int64, error) {
	st := r.lock()
	defer r.unlock()

	var n int64
	for tok, sec := range st.secrets {
		if sec.IssuedAt.Before(t) {
			delete(st.secrets, tok)
			n++
		}
	}
	return n, nil
}
