package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lox/weatherreminder/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := New(db, nil)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

func TestMigrate_Idempotent(t *testing.T) {
	store := setupTestStore(t)

	if err := store.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	version, err := store.MigrationVersion()
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("version = %d, want %d", version, len(migrations))
	}
}

func TestMigrate_BackfillsFoldedNames(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.db.Exec(`
		INSERT INTO locations (name, country, latitude, longitude, created_at)
		VALUES ('Óbidos', 'PT', 39.36, -9.16, ?)
	`, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	if got, _ := store.SearchLocations(ctx, "óbidos"); len(got) != 0 {
		t.Fatalf("unfolded row matched before backfill: %v", got)
	}

	if err := store.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	got, err := store.SearchLocations(ctx, "ÓBIDOS")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "Óbidos" {
		t.Errorf("SearchLocations after backfill = %v", got)
	}
}

func TestOpen_PragmasOnEveryConnection(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "pragmas.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	ctx := context.Background()

	first, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	second, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	for i, conn := range []*sql.Conn{first, second} {
		var timeout, fk int
		if err := conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout); err != nil {
			t.Fatal(err)
		}
		if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatal(err)
		}
		if timeout != 5000 || fk != 1 {
			t.Errorf("conn %d: busy_timeout = %d, foreign_keys = %d", i, timeout, fk)
		}
	}

	var mode string
	if err := second.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"data/w.db", "data/w.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"},
		{"file:w.db?mode=rwc", "file:w.db?mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"},
	}
	for _, tt := range tests {
		if got := DSN(tt.path); got != tt.want {
			t.Errorf("DSN(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestGetOrCreateLocation_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	loc, created, err := store.GetOrCreateLocation(ctx, "Kyiv", "UA", 50.4501, 30.5234)
	if err != nil {
		t.Fatalf("GetOrCreateLocation: %v", err)
	}
	if !created {
		t.Error("first call: created = false, want true")
	}

	again, created, err := store.GetOrCreateLocation(ctx, "Kyiv", "UA", 50.4501, 30.5234)
	if err != nil {
		t.Fatalf("GetOrCreateLocation again: %v", err)
	}
	if created {
		t.Error("second call: created = true, want false")
	}
	if again.ID != loc.ID {
		t.Errorf("ID = %d, want %d", again.ID, loc.ID)
	}

	n, err := store.CountLocations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("CountLocations = %d, want 1", n)
	}
}

func TestGetOrCreateLocation_SameNameDifferentCountry(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, _, err := store.GetOrCreateLocation(ctx, "Paris", "FR", 48.85, 2.35); err != nil {
		t.Fatal(err)
	}
	_, created, err := store.GetOrCreateLocation(ctx, "Paris", "US", 33.66, -95.55)
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Error("Paris,US should be a new location")
	}
}

func TestGetOrCreateLocation_Concurrent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[int64]bool{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loc, c, err := store.GetOrCreateLocation(ctx, "Lviv", "UA", 49.84, 24.03)
			if err != nil {
				t.Errorf("GetOrCreateLocation: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[loc.ID] = true
			if c {
				created++
			}
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("created = %d, want exactly 1", created)
	}
	if len(ids) != 1 {
		t.Errorf("distinct ids = %d, want 1", len(ids))
	}
}

func TestGetLocation_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetLocation(context.Background(), 42)
	if !errors.Is(err, ErrLocationNotFound) {
		t.Errorf("err = %v, want ErrLocationNotFound", err)
	}
}

func TestSearchLocations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, c := range []struct {
		name, country string
	}{
		{"Kyiv", "UA"},
		{"Kyivska", "UA"},
		{"London", "GB"},
		{"100%_City", "XX"},
		{"Київ", "UA"},
		{"München", "DE"},
	} {
		if _, _, err := store.GetOrCreateLocation(ctx, c.name, c.country, 0, 0); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"kyiv", []string{"Kyiv", "Kyivska"}},
		{"KYIV", []string{"Kyiv", "Kyivska"}},
		{"ondo", []string{"London"}},
		{"%", []string{"100%_City"}},
		{"_", []string{"100%_City"}},
		{"Berlin", nil},
		{"київ", []string{"Київ"}},
		{"КИЇВ", []string{"Київ"}},
		{"MÜNCHEN", []string{"München"}},
		{"ünch", []string{"München"}},
	}
	for _, tt := range tests {
		got, err := store.SearchLocations(ctx, tt.query)
		if err != nil {
			t.Fatalf("SearchLocations(%q): %v", tt.query, err)
		}
		if len(got) != len(tt.want) {
			t.Errorf("SearchLocations(%q) returned %d rows, want %d", tt.query, len(got), len(tt.want))
			continue
		}
		for i := range got {
			if got[i].Name != tt.want[i] {
				t.Errorf("SearchLocations(%q)[%d] = %q, want %q", tt.query, i, got[i].Name, tt.want[i])
			}
		}
	}
}

func TestUpsertSnapshot_OverwritesPerPeriod(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	loc, _, err := store.GetOrCreateLocation(ctx, "Kyiv", "UA", 50.4501, 30.5234)
	if err != nil {
		t.Fatal(err)
	}

	first := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	if err := store.UpsertSnapshot(ctx, loc.ID, models.PeriodCurrent, models.Snapshot{{Dt: 1, Temp: 10}}, first); err != nil {
		t.Fatalf("UpsertSnapshot: %v", err)
	}
	second := first.Add(30 * time.Minute)
	if err := store.UpsertSnapshot(ctx, loc.ID, models.PeriodCurrent, models.Snapshot{{Dt: 2, Temp: 15.5}}, second); err != nil {
		t.Fatalf("UpsertSnapshot overwrite: %v", err)
	}
	if err := store.UpsertSnapshot(ctx, loc.ID, models.PeriodWeek, models.Snapshot{{Dt: 3}, {Dt: 4}}, first); err != nil {
		t.Fatalf("UpsertSnapshot week: %v", err)
	}

	snap, err := store.GetSnapshot(ctx, loc.ID, models.PeriodCurrent)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if len(snap.Data) != 1 || snap.Data[0].Temp != 15.5 {
		t.Errorf("Data = %+v, want single point with temp 15.5", snap.Data)
	}
	if !snap.FetchedAt.Equal(second) {
		t.Errorf("FetchedAt = %v, want %v", snap.FetchedAt, second)
	}

	history, total, err := store.ListSnapshots(ctx, loc.ID, 20, 0)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if total != 2 {
		t.Errorf("total = %d, want 2 (one row per period)", total)
	}
	if len(history) != 2 || history[0].Period != models.PeriodCurrent {
		t.Errorf("history order = %+v, want current first (newest)", history)
	}
	if history[1].ItemsCount != 2 {
		t.Errorf("week ItemsCount = %d, want 2", history[1].ItemsCount)
	}
}

func TestGetSnapshot_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetSnapshot(context.Background(), 1, models.PeriodToday)
	if !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("err = %v, want ErrSnapshotNotFound", err)
	}
}

func TestSubscriptions_CRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	loc, _, err := store.GetOrCreateLocation(ctx, "Kyiv", "UA", 50.4501, 30.5234)
	if err != nil {
		t.Fatal(err)
	}

	sub, err := store.CreateSubscription(ctx, models.Subscription{
		UserID:           "user-1",
		LocationID:       loc.ID,
		IntervalHours:    6,
		ForecastPeriod:   models.PeriodToday,
		NotificationType: models.NotifyEmail,
		Active:           true,
	})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}

	_, err = store.CreateSubscription(ctx, models.Subscription{
		UserID:           "user-1",
		LocationID:       loc.ID,
		IntervalHours:    1,
		ForecastPeriod:   models.PeriodCurrent,
		NotificationType: models.NotifyEmail,
		Active:           true,
	})
	if !errors.Is(err, ErrDuplicateSubscription) {
		t.Errorf("duplicate create err = %v, want ErrDuplicateSubscription", err)
	}

	if _, err := store.GetSubscription(ctx, "user-2", sub.ID); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("other user get err = %v, want ErrSubscriptionNotFound", err)
	}

	sub.ForecastPeriod = models.PeriodWeek
	sub.IntervalHours = 12
	if _, err := store.UpdateSubscription(ctx, sub); err != nil {
		t.Fatalf("UpdateSubscription: %v", err)
	}

	got, err := store.GetSubscription(ctx, "user-1", sub.ID)
	if err != nil {
		t.Fatalf("GetSubscription: %v", err)
	}
	if got.ForecastPeriod != models.PeriodWeek || got.IntervalHours != 12 {
		t.Errorf("got = %+v, want week/12", got)
	}
	if got.LastNotifiedAt.Valid {
		t.Error("LastNotifiedAt should be null for a new subscription")
	}

	list, err := store.ListSubscriptions(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("len(list) = %d, want 1", len(list))
	}

	if err := store.DeleteSubscription(ctx, "user-2", sub.ID); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("other user delete err = %v, want ErrSubscriptionNotFound", err)
	}
	if err := store.DeleteSubscription(ctx, "user-1", sub.ID); err != nil {
		t.Fatalf("DeleteSubscription: %v", err)
	}
	if _, err := store.GetSubscription(ctx, "user-1", sub.ID); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("get after delete err = %v, want ErrSubscriptionNotFound", err)
	}
}

func TestDueSubscriptions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	var locIDs []int64
	for _, name := range []string{"A", "B", "C", "D"} {
		loc, _, err := store.GetOrCreateLocation(ctx, name, "XX", 0, 0)
		if err != nil {
			t.Fatal(err)
		}
		locIDs = append(locIDs, loc.ID)
	}

	subs := []models.Subscription{
		{LocationID: locIDs[0], IntervalHours: 1, Active: true},
		{LocationID: locIDs[1], IntervalHours: 3, Active: true, LastNotifiedAt: sql.NullTime{Time: now.Add(-4 * time.Hour), Valid: true}},
		{LocationID: locIDs[2], IntervalHours: 6, Active: true, LastNotifiedAt: sql.NullTime{Time: now.Add(-time.Hour), Valid: true}},
		{LocationID: locIDs[3], IntervalHours: 1, Active: false},
	}
	for i := range subs {
		subs[i].UserID = "user-1"
		subs[i].ForecastPeriod = models.PeriodCurrent
		subs[i].NotificationType = models.NotifyWebhook
		created, err := store.CreateSubscription(ctx, subs[i])
		if err != nil {
			t.Fatalf("CreateSubscription: %v", err)
		}
		subs[i] = created
	}

	due, err := store.DueSubscriptions(ctx, now)
	if err != nil {
		t.Fatalf("DueSubscriptions: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("len(due) = %d, want 2", len(due))
	}
	if due[0].ID != subs[0].ID || due[1].ID != subs[1].ID {
		t.Errorf("due = [%d %d], want [%d %d]", due[0].ID, due[1].ID, subs[0].ID, subs[1].ID)
	}

	if err := store.MarkNotified(ctx, subs[0].ID, now); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	due, err = store.DueSubscriptions(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 || due[0].ID != subs[1].ID {
		t.Errorf("after MarkNotified due = %+v, want only %d", due, subs[1].ID)
	}
}
