package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"

	"selefli/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postgresDSNEnv points the concurrency tests at a disposable postgres
// database, e.g. "host=localhost dbname=selefli_test sslmode=disable".
const postgresDSNEnv = "SELEFLI_TEST_POSTGRES_DSN"

// concurrencyStores returns sqlite always and postgres when configured.
func concurrencyStores(t *testing.T) map[string]*DB {
	t.Helper()
	stores := map[string]*DB{DriverSQLite: setupTestDB(t)}
	if dsn := os.Getenv(postgresDSNEnv); dsn != "" {
		logger := zerolog.New(io.Discard)
		db, err := Open(DriverPostgres, dsn, &logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		stores[DriverPostgres] = db
	} else {
		t.Logf("%s not set, postgres run skipped", postgresDSNEnv)
	}
	return stores
}

func TestConcurrentBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	owner := seedUser(t, db, "owner")
	item := seedItem(t, db, owner.ID)

	const numGoroutines = 10
	borrowers := make([]*models.User, numGoroutines)
	for i := range borrowers {
		borrowers[i] = seedUser(t, db, fmt.Sprintf("borrower%d", i))
	}

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			booking := &models.Booking{
				ItemID:       item.ID,
				OwnerID:      owner.ID,
				BorrowerID:   borrowers[id].ID,
				StartDate:    jan10,
				ReturnByDate: jan15,
			}
			results <- db.CreateBookingWithLock(ctx, booking)
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	overlapCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, ErrBookingOverlap):
			overlapCount++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successCount, "only one overlapping booking may be created")
	assert.Equal(t, numGoroutines-1, overlapCount)

	incoming, err := db.ListIncomingBookings(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, incoming, 1)
}

func TestConcurrentBooking_SameBorrower(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	owner := seedUser(t, db, "owner")
	alice := seedUser(t, db, "alice")
	item := seedItem(t, db, owner.ID)

	const numGoroutines = 5
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(offset int) {
			defer wg.Done()
			start := jan10.AddDays(offset * 10)
			results <- db.CreateBookingWithLock(ctx, &models.Booking{
				ItemID: item.ID, OwnerID: owner.ID, BorrowerID: alice.ID,
				StartDate: start, ReturnByDate: start.AddDays(2),
			})
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
		} else {
			assert.ErrorIs(t, err, ErrActiveBookingExists)
		}
	}
	assert.Equal(t, 1, successCount)
}

func TestConcurrentRatingsKeepAggregate(t *testing.T) {
	for driver, db := range concurrencyStores(t) {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			suffix := uuid.NewString()[:8]

			owner := seedUser(t, db, "owner-"+suffix)
			item := seedItem(t, db, owner.ID)

			const raters = 12
			ratings := make([]*models.Rating, raters)
			for i := range ratings {
				rater := seedUser(t, db, fmt.Sprintf("rater%d-%s", i, suffix))
				b := seedBooking(t, db, item, rater.ID, jan10.AddDays(3*i), jan10.AddDays(3*i+2))
				ratings[i] = &models.Rating{BookingID: b.ID, RaterID: rater.ID, TargetUserID: owner.ID, Stars: 1 + i%5}
			}

			var wg sync.WaitGroup
			errs := make(chan error, raters)
			for _, r := range ratings {
				wg.Add(1)
				go func(r *models.Rating) {
					defer wg.Done()
					errs <- db.CreateRatingWithAggregate(ctx, r)
				}(r)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}
			assertLedgerAggregate(t, db, owner.ID)

			errs = make(chan error, raters)
			for i, r := range ratings {
				wg.Add(1)
				go func(i int, r *models.Rating) {
					defer wg.Done()
					var err error
					if i%2 == 0 {
						_, err = db.DeleteRatingWithAggregate(ctx, r.ID)
					} else {
						_, err = db.UpdateRatingWithAggregate(ctx, r.ID, 5)
					}
					errs <- err
				}(i, r)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}
			assertLedgerAggregate(t, db, owner.ID)

			user, err := db.GetUserByID(ctx, owner.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(raters/2), user.RatingCount)
			assert.Equal(t, int64(5*raters/2), user.RatingSum)
		})
	}
}
