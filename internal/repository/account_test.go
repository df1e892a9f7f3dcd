package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pairlink/pairlink/internal/model"
	"github.com/pairlink/pairlink/internal/pairing"
	"github.com/pairlink/pairlink/internal/testutil"
)

// newTestRepository connects to the database named by TEST_DATABASE_URL and
// resets the accounts schema. Tests are skipped when the variable is unset.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	databaseURL := testutil.RequireEnv(t, "TEST_DATABASE_URL")

	ctx := context.Background()
	repo, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("connect to database: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() { _ = unlock() })

	if err := testutil.ResetAccountsSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return repo
}

func seedAccount(t *testing.T, repo *Repository, uid string) {
	t.Helper()
	err := repo.CreateAccount(context.Background(), &model.Account{
		UID:   uid,
		Email: uid + "@example.com",
		Name:  "User " + uid,
	})
	if err != nil {
		t.Fatalf("seed account %s: %v", uid, err)
	}
}

func TestRunTransaction_RoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedAccount(t, repo, "alice")
	seedAccount(t, repo, "bob")

	err := repo.RunTransaction(ctx, func(tx pairing.Tx) error {
		alice, err := tx.Account("alice")
		if err != nil {
			return err
		}
		bob, err := tx.AccountByEmail("bob@example.com")
		if err != nil {
			return err
		}

		coupleID, err := tx.CreateCouple(alice.UID, bob.UID)
		if err != nil {
			return err
		}

		alice.Partner = &model.PartnerInfo{UID: bob.UID, Name: bob.Name, Email: bob.Email}
		alice.CoupleID = coupleID
		bob.Partner = &model.PartnerInfo{UID: alice.UID, Name: alice.Name, Email: alice.Email}
		bob.CoupleID = coupleID

		if err := tx.SaveAccount(alice); err != nil {
			return err
		}
		return tx.SaveAccount(bob)
	})
	if err != nil {
		t.Fatalf("RunTransaction() error = %v", err)
	}

	alice, err := repo.GetAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if alice.Partner == nil || alice.Partner.UID != "bob" {
		t.Errorf("Partner = %+v, want bob", alice.Partner)
	}
	if alice.CoupleID == "" {
		t.Fatal("CoupleID not persisted")
	}

	couple, err := repo.GetCouple(ctx, alice.CoupleID)
	if err != nil {
		t.Fatalf("GetCouple() error = %v", err)
	}
	if couple.Owners != [2]string{"alice", "bob"} {
		t.Errorf("Owners = %v, want [alice bob]", couple.Owners)
	}
}

func TestRunTransaction_ErrorRollsBack(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedAccount(t, repo, "alice")

	sentinel := errors.New("abort")
	err := repo.RunTransaction(ctx, func(tx pairing.Tx) error {
		alice, err := tx.Account("alice")
		if err != nil {
			return err
		}
		alice.Name = "Changed"
		if err := tx.SaveAccount(alice); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("RunTransaction() error = %v, want sentinel", err)
	}

	alice, err := repo.GetAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if alice.Name == "Changed" {
		t.Error("failed transaction left a partial write")
	}
}

func TestAccount_NotFound(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.RunTransaction(context.Background(), func(tx pairing.Tx) error {
		_, err := tx.Account("ghost")
		return err
	})
	if !errors.Is(err, pairing.ErrAccountNotFound) {
		t.Fatalf("error = %v, want ErrAccountNotFound", err)
	}
}

func TestSaveAccount_MissingRow(t *testing.T) {
	repo := newTestRepository(t)

	err := repo.RunTransaction(context.Background(), func(tx pairing.Tx) error {
		return tx.SaveAccount(&model.Account{UID: "ghost", Email: "ghost@example.com"})
	})
	if !errors.Is(err, pairing.ErrAccountNotFound) {
		t.Fatalf("error = %v, want ErrAccountNotFound", err)
	}
}

func TestDeleteAccount_Idempotent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedAccount(t, repo, "alice")

	for i := 0; i < 2; i++ {
		err := repo.RunTransaction(ctx, func(tx pairing.Tx) error {
			return tx.DeleteAccount("alice")
		})
		if err != nil {
			t.Fatalf("delete #%d error = %v", i+1, err)
		}
	}

	if _, err := repo.GetAccount(ctx, "alice"); !errors.Is(err, pairing.ErrAccountNotFound) {
		t.Fatalf("GetAccount() error = %v, want ErrAccountNotFound", err)
	}
}

func TestNullableFieldsRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedAccount(t, repo, "alice")

	info := &model.PartnerInfo{UID: "bob", Name: "User bob", Email: "bob@example.com"}
	err := repo.RunTransaction(ctx, func(tx pairing.Tx) error {
		alice, err := tx.Account("alice")
		if err != nil {
			return err
		}
		alice.RequestOut = info
		alice.RefreshToken = true
		return tx.SaveAccount(alice)
	})
	if err != nil {
		t.Fatalf("RunTransaction() error = %v", err)
	}

	alice, err := repo.GetAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if alice.RequestOut == nil || *alice.RequestOut != *info {
		t.Errorf("RequestOut = %+v, want %+v", alice.RequestOut, info)
	}
	if !alice.RefreshToken {
		t.Error("RefreshToken not persisted")
	}

	// Clear it again; the columns must go back to NULL.
	err = repo.RunTransaction(ctx, func(tx pairing.Tx) error {
		alice, err := tx.Account("alice")
		if err != nil {
			return err
		}
		alice.RequestOut = nil
		return tx.SaveAccount(alice)
	})
	if err != nil {
		t.Fatalf("RunTransaction() error = %v", err)
	}
	alice, err = repo.GetAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if alice.RequestOut != nil {
		t.Errorf("RequestOut = %+v, want nil after clearing", alice.RequestOut)
	}
}

func TestRunTransaction_ConcurrentConflictsConverge(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	seedAccount(t, repo, "alice")

	// Competing serializable transactions on the same row; the retry loop
	// has to absorb the serialization failures.
	const writers = 4
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = repo.RunTransaction(ctx, func(tx pairing.Tx) error {
				alice, err := tx.Account("alice")
				if err != nil {
					return err
				}
				alice.RefreshToken = !alice.RefreshToken
				return tx.SaveAccount(alice)
			})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("writer %d error = %v", i, err)
		}
	}
}
