//go:build integration

package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StricklySoft/storefront/internal/testutil"
	"github.com/StricklySoft/storefront/internal/testutil/containers"
	"github.com/StricklySoft/storefront/pkg/clients/postgres"
	sserr "github.com/StricklySoft/storefront/pkg/errors"
	"github.com/StricklySoft/storefront/pkg/models"
)

// cartVersions is the number of migrations shipped with the service.
const cartVersions = 2

func setupDatabase(t *testing.T) postgres.Config {
	t.Helper()
	ctx := context.Background()
	result, err := containers.StartPostgresDatabase(ctx, "cart")
	require.NoError(t, err)
	t.Cleanup(func() {
		if termErr := result.Container.Terminate(ctx); termErr != nil {
			t.Logf("failed to terminate postgres container: %v", termErr)
		}
	})
	return postgres.Config{URI: result.ConnString, MaxConns: 20, MinConns: 1}
}

// TestIntegration_MigrationStairway applies, rolls back and reapplies every
// migration one step at a time.
func TestIntegration_MigrationStairway(t *testing.T) {
	cfg := setupDatabase(t)
	m, err := NewMigrator(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	for v := 1; v <= cartVersions; v++ {
		require.NoError(t, m.Steps(1), "up to %d", v)
		require.NoError(t, m.Steps(-1), "down from %d", v)
		require.NoError(t, m.Steps(1), "up to %d again", v)
	}
	version, ok, err := m.Version()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint(cartVersions), version)

	require.NoError(t, m.Down())
	require.NoError(t, m.Up())
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	cfg := setupDatabase(t)
	m, err := NewMigrator(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	db, err := postgres.NewClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return NewStore(db)
}

func firstProduct(t *testing.T, store *Store) *models.Product {
	t.Helper()
	var first *models.Product
	require.NoError(t, store.ListProducts(context.Background(), "keyboard", func(p *models.Product) error {
		if first == nil {
			first = p
		}
		return nil
	}))
	require.NotNil(t, first, "seeded catalog is missing")
	return first
}

func TestIntegration_CartFlow(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	product := firstProduct(t, store)

	testutil.AssertErrorCode(t, store.ClearCart(ctx, 3), sserr.CodeNotFound)

	cart, err := store.GetOrCreateCart(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "0.00", cart.TotalPrice.String())

	cart, err = store.AddItem(ctx, 3, product.ID, 2)
	require.NoError(t, err)
	require.Len(t, cart.CartItems, 1)
	assert.Equal(t, product.Price.Times(2).String(), cart.TotalPrice.String())

	_, err = store.AddItem(ctx, 3, product.ID, 1)
	testutil.AssertErrorCode(t, err, sserr.CodeBusinessDuplicate)
	_, err = store.AddItem(ctx, 3, 999999, 1)
	testutil.AssertErrorCode(t, err, sserr.CodeBusinessIntegrity)
	_, err = store.AddItem(ctx, 4, product.ID, 1)
	testutil.AssertErrorCode(t, err, sserr.CodeBusinessIntegrity, "cart 4 was never created")

	itemID := cart.CartItems[0].ID
	owner, err := store.ItemCart(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), owner)

	require.NoError(t, store.ClearCart(ctx, 3))
	testutil.AssertErrorCode(t, store.DeleteItem(ctx, itemID), sserr.CodeNotFound)
}

// TestIntegration_ConcurrentQuantityIncrements increments one line from
// several goroutines, each reading the quantity and writing it back plus
// one under the line's lock. No increment is lost, so the line ends at
// the maximum quantity.
func TestIntegration_ConcurrentQuantityIncrements(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	product := firstProduct(t, store)

	_, err := store.GetOrCreateCart(ctx, 3)
	require.NoError(t, err)
	cart, err := store.AddItem(ctx, 3, product.ID, 1)
	require.NoError(t, err)
	itemID := cart.CartItems[0].ID

	const increments = 4
	var wg sync.WaitGroup
	errs := make(chan error, increments)
	for i := 0; i < increments; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.db.WithAdvisoryLock(ctx, itemID, func(ctx context.Context, tx pgx.Tx) error {
				var quantity int
				if err := tx.QueryRow(ctx, "SELECT quantity FROM cartitems WHERE id = $1", itemID).Scan(&quantity); err != nil {
					return err
				}
				// Widen the window between read and write.
				time.Sleep(20 * time.Millisecond)
				var cartID int64
				return tx.QueryRow(ctx, sqlUpdateItem, itemID, quantity+1).Scan(&cartID)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	cart, err = store.GetOrCreateCart(ctx, 3)
	require.NoError(t, err)
	require.Len(t, cart.CartItems, 1)
	assert.Equal(t, 1+increments, cart.CartItems[0].Quantity)
	assert.Equal(t, product.Price.Times(1+increments).String(), cart.TotalPrice.String())

	// The store's own update waits on the same lock and sees the result.
	cart, err = store.UpdateItemQuantity(ctx, itemID, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, cart.CartItems[0].Quantity)
}

// TestIntegration_DuplicateItemRace adds the same product concurrently;
// exactly one insert wins.
func TestIntegration_DuplicateItemRace(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	product := firstProduct(t, store)
	_, err := store.GetOrCreateCart(ctx, 3)
	require.NoError(t, err)

	const n = 10
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added int
		dups  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AddItem(ctx, 3, product.ID, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				added++
			case sserr.HasCode(err, sserr.CodeBusinessDuplicate):
				dups++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, added)
	assert.Equal(t, n-1, dups)
}
