package pairing

import (
	"context"
	"fmt"
	"sync"

	"github.com/pairlink/pairlink/internal/model"
)

// fakeStore is an in-memory Store for unit tests. Transactions mutate a
// scratch copy that is published only when fn succeeds, matching the
// all-or-nothing behavior of the real implementation.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	couples  map[string][2]string
	coupleN  int

	// failSave, when set, makes SaveAccount for that uid fail once.
	failSave string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[string]*model.Account),
		couples:  make(map[string][2]string),
	}
}

func (s *fakeStore) seed(accounts ...*model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range accounts {
		s.accounts[a.UID] = cloneAccount(a)
	}
}

func (s *fakeStore) account(uid string) *model.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[uid]
	if !ok {
		return nil
	}
	return cloneAccount(a)
}

func (s *fakeStore) coupleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.couples)
}

func (s *fakeStore) RunTransaction(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scratch := &fakeTx{
		accounts: make(map[string]*model.Account, len(s.accounts)),
		couples:  make(map[string][2]string, len(s.couples)),
		coupleN:  s.coupleN,
		failSave: s.failSave,
	}
	for uid, a := range s.accounts {
		scratch.accounts[uid] = cloneAccount(a)
	}
	for id, owners := range s.couples {
		scratch.couples[id] = owners
	}

	if err := fn(scratch); err != nil {
		return err
	}

	s.accounts = scratch.accounts
	s.couples = scratch.couples
	s.coupleN = scratch.coupleN
	s.failSave = scratch.failSave
	return nil
}

type fakeTx struct {
	accounts map[string]*model.Account
	couples  map[string][2]string
	coupleN  int
	failSave string
}

func (tx *fakeTx) Account(uid string) (*model.Account, error) {
	a, ok := tx.accounts[uid]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (tx *fakeTx) AccountByEmail(email string) (*model.Account, error) {
	for _, a := range tx.accounts {
		if a.Email == email {
			return cloneAccount(a), nil
		}
	}
	return nil, ErrAccountNotFound
}

func (tx *fakeTx) SaveAccount(a *model.Account) error {
	if tx.failSave != "" && a.UID == tx.failSave {
		tx.failSave = ""
		return fmt.Errorf("save %s: injected failure", a.UID)
	}
	if _, ok := tx.accounts[a.UID]; !ok {
		return ErrAccountNotFound
	}
	tx.accounts[a.UID] = cloneAccount(a)
	return nil
}

func (tx *fakeTx) DeleteAccount(uid string) error {
	delete(tx.accounts, uid)
	return nil
}

func (tx *fakeTx) CreateCouple(ownerA, ownerB string) (string, error) {
	tx.coupleN++
	id := fmt.Sprintf("couple-%d", tx.coupleN)
	tx.couples[id] = [2]string{ownerA, ownerB}
	return id, nil
}

func (tx *fakeTx) DeleteCouple(id string) error {
	delete(tx.couples, id)
	return nil
}

func cloneAccount(a *model.Account) *model.Account {
	c := *a
	if a.Partner != nil {
		p := *a.Partner
		c.Partner = &p
	}
	if a.RequestOut != nil {
		p := *a.RequestOut
		c.RequestOut = &p
	}
	if a.RequestIn != nil {
		p := *a.RequestIn
		c.RequestIn = &p
	}
	return &c
}

// fakeIdentityDeleter records deletions and optionally fails.
type fakeIdentityDeleter struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (f *fakeIdentityDeleter) Delete(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, uid)
	return nil
}
