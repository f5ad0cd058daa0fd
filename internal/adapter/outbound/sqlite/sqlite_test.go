package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mapwarden/mapwarden/internal/adapter/outbound/sqlite"
	"github.com/mapwarden/mapwarden/internal/clock"
	"github.com/mapwarden/mapwarden/internal/domain/account"
	"github.com/mapwarden/mapwarden/internal/domain/schedule"
)

// newTestDB opens a fresh database in a temp dir with a fixed clock at
// 2025-07-01 14:00 London time.
func newTestDB(t *testing.T) (*sqlite.DB, *clock.Reference) {
	t.Helper()

	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	now := time.Date(2025, 7, 1, 14, 0, 0, 0, loc)
	ref, err := clock.NewReferenceAt("Europe/London", func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewReferenceAt() error = %v", err)
	}

	db := sqlite.New(filepath.Join(t.TempDir(), "mapwarden.db"))
	if err := db.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, ref
}

func testSession(email, date string, startHour, endHour int) *schedule.ScheduledSession {
	loc, _ := time.LoadLocation("Europe/London")
	day, _ := time.ParseInLocation("2006-01-02", date, loc)
	return &schedule.ScheduledSession{
		Email:         email,
		Name:          "Guest",
		EventTitle:    "Harbour tour",
		EventDate:     day,
		OriginalStart: day.Add(time.Duration(startHour) * time.Hour),
		OriginalEnd:   day.Add(time.Duration(endHour) * time.Hour),
	}
}

func TestDB_ConnectIdempotent(t *testing.T) {
	db, _ := newTestDB(t)

	// Repeat connects share the first attempt's result.
	for range 3 {
		if err := db.Connect(context.Background()); err != nil {
			t.Fatalf("repeated Connect() error = %v", err)
		}
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestScheduleStore_UpsertOutcomes(t *testing.T) {
	db, ref := newTestDB(t)
	store := sqlite.NewScheduleStore(db, ref)
	ctx := context.Background()

	sess := testSession("guest@example.com", "2025-07-01", 14, 15)

	outcome, err := store.Upsert(ctx, sess)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if outcome != schedule.UpsertInserted {
		t.Errorf("first Upsert() = %v, want Inserted", outcome)
	}

	// Identical record is a no-op.
	outcome, err = store.Upsert(ctx, sess)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if outcome != schedule.UpsertUnchanged {
		t.Errorf("identical Upsert() = %v, want Unchanged", outcome)
	}

	// Changed title updates in place.
	renamed := *sess
	renamed.EventTitle = "Old town tour"
	outcome, err = store.Upsert(ctx, &renamed)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if outcome != schedule.UpsertUpdated {
		t.Errorf("changed Upsert() = %v, want Updated", outcome)
	}

	all, err := store.FindByEmail(ctx, "guest@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("FindByEmail() returned %d sessions, want 1", len(all))
	}
	got := all[0]
	if got.EventTitle != "Old town tour" || !got.IsActive {
		t.Errorf("stored session = %+v, want renamed active record", got)
	}
	if !got.OriginalStart.Equal(sess.OriginalStart) {
		t.Errorf("OriginalStart = %v, want %v", got.OriginalStart, sess.OriginalStart)
	}
	if got.Key() != sess.Key() {
		t.Errorf("Key() = %+v, want %+v", got.Key(), sess.Key())
	}
}

func TestScheduleStore_DeactivateMissing(t *testing.T) {
	db, ref := newTestDB(t)
	store := sqlite.NewScheduleStore(db, ref)
	ctx := context.Background()

	kept := testSession("keep@example.com", "2025-07-01", 14, 15)
	dropped := testSession("drop@example.com", "2025-07-01", 16, 17)
	otherDay := testSession("other@example.com", "2025-07-02", 10, 11)
	for _, sess := range []*schedule.ScheduledSession{kept, dropped, otherDay} {
		if _, err := store.Upsert(ctx, sess); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	present := map[schedule.Key]struct{}{kept.Key(): {}}
	n, err := store.DeactivateMissing(ctx, kept.EventDate, present)
	if err != nil {
		t.Fatalf("DeactivateMissing() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeactivateMissing() = %d, want 1", n)
	}

	assertActive := func(email string, want bool) {
		t.Helper()
		all, err := store.FindByEmail(ctx, email)
		if err != nil || len(all) != 1 {
			t.Fatalf("FindByEmail(%s) = %v, %v", email, all, err)
		}
		if all[0].IsActive != want {
			t.Errorf("%s IsActive = %v, want %v", email, all[0].IsActive, want)
		}
	}
	assertActive("keep@example.com", true)
	assertActive("drop@example.com", false)
	// Records on other days are untouched.
	assertActive("other@example.com", true)
}

func TestScheduleStore_PruneBefore(t *testing.T) {
	db, ref := newTestDB(t)
	store := sqlite.NewScheduleStore(db, ref)
	ctx := context.Background()

	past := testSession("past@example.com", "2025-06-30", 14, 15)
	today := testSession("today@example.com", "2025-07-01", 14, 15)
	future := testSession("future@example.com", "2025-07-02", 14, 15)
	for _, sess := range []*schedule.ScheduledSession{past, today, future} {
		if _, err := store.Upsert(ctx, sess); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	n, err := store.PruneBefore(ctx, ref.Today())
	if err != nil {
		t.Fatalf("PruneBefore() error = %v", err)
	}
	if n != 1 {
		t.Errorf("PruneBefore() = %d, want 1", n)
	}

	// Second prune is a no-op: already-inactive rows don't count again.
	n, err = store.PruneBefore(ctx, ref.Today())
	if err != nil {
		t.Fatalf("PruneBefore() error = %v", err)
	}
	if n != 0 {
		t.Errorf("second PruneBefore() = %d, want 0", n)
	}
}

func TestScheduleStore_FindByEmailOrder(t *testing.T) {
	db, ref := newTestDB(t)
	store := sqlite.NewScheduleStore(db, ref)
	ctx := context.Background()

	later := testSession("guest@example.com", "2025-07-03", 14, 15)
	earlier := testSession("guest@example.com", "2025-07-01", 14, 15)
	for _, sess := range []*schedule.ScheduledSession{later, earlier} {
		if _, err := store.Upsert(ctx, sess); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	all, err := store.FindByEmail(ctx, "guest@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("FindByEmail() returned %d sessions, want 2", len(all))
	}
	if !all[0].OriginalStart.Before(all[1].OriginalStart) {
		t.Errorf("sessions out of order: %v then %v", all[0].OriginalStart, all[1].OriginalStart)
	}
}

func TestScheduleStore_InTransactionRollback(t *testing.T) {
	db, ref := newTestDB(t)
	store := sqlite.NewScheduleStore(db, ref)
	ctx := context.Background()

	failure := errors.New("boom")
	err := store.InTransaction(ctx, func(tx schedule.Store) error {
		if _, err := tx.Upsert(ctx, testSession("guest@example.com", "2025-07-01", 14, 15)); err != nil {
			return err
		}
		return failure
	})
	if !errors.Is(err, failure) {
		t.Fatalf("InTransaction() error = %v, want wrapped boom", err)
	}

	all, err := store.FindByEmail(ctx, "guest@example.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if len(all) != 0 {
		t.Errorf("rolled-back write is visible: %d sessions", len(all))
	}

	// A successful transaction commits.
	err = store.InTransaction(ctx, func(tx schedule.Store) error {
		_, err := tx.Upsert(ctx, testSession("guest@example.com", "2025-07-01", 14, 15))
		return err
	})
	if err != nil {
		t.Fatalf("InTransaction() error = %v", err)
	}
	all, err = store.FindByEmail(ctx, "guest@example.com")
	if err != nil || len(all) != 1 {
		t.Errorf("committed write missing: %v, %v", all, err)
	}
}

func TestAccountStore_CRUD(t *testing.T) {
	db, ref := newTestDB(t)
	store := sqlite.NewAccountStore(db, ref)
	ctx := context.Background()

	acct := &account.AdminAccount{
		Email:        "Admin@Example.com",
		Name:         "Admin",
		PasswordHash: "$argon2id$v=19$m=48128,t=1,p=1$c2FsdA$aGFzaA",
	}
	if err := store.Create(ctx, acct); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Lookups normalize the email.
	got, err := store.GetByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.Email != "admin@example.com" || !got.IsActive {
		t.Errorf("GetByEmail() = %+v, want normalized active account", got)
	}

	if err := store.Create(ctx, acct); !errors.Is(err, account.ErrDuplicateEmail) {
		t.Errorf("duplicate Create() error = %v, want ErrDuplicateEmail", err)
	}

	if err := store.Delete(ctx, "ADMIN@example.com"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.GetByEmail(ctx, "admin@example.com"); !errors.Is(err, account.ErrAccountNotFound) {
		t.Errorf("GetByEmail() after delete error = %v, want ErrAccountNotFound", err)
	}
	if err := store.Delete(ctx, "admin@example.com"); !errors.Is(err, account.ErrAccountNotFound) {
		t.Errorf("second Delete() error = %v, want ErrAccountNotFound", err)
	}
}
