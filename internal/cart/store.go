package cart

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/StricklySoft/storefront/pkg/clients/postgres"
	sserr "github.com/StricklySoft/storefront/pkg/errors"
	"github.com/StricklySoft/storefront/pkg/models"
)

// Client-facing messages for rejected cart item inserts.
const (
	MessageProductInCart = "The product is already in cart. Please change the product or just update it's quantity."
	MessageAddFailed     = "Failed to add this product to cart."
)

const (
	productColumns = "id, created, name, description, price"
	itemColumns    = "id, created, cart_id, product_id, quantity"
)

const (
	sqlListProducts   = "SELECT " + productColumns + " FROM products ORDER BY id"
	sqlSearchProducts = "SELECT " + productColumns + " FROM products WHERE name ILIKE $1 ORDER BY id"

	sqlCartExists = "SELECT EXISTS (SELECT 1 FROM carts WHERE user_id = $1)"
	sqlEnsureCart = "INSERT INTO carts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING"
	sqlClearCart  = "DELETE FROM cartitems WHERE cart_id = $1"

	// Each line carries its product price; the cart total is summed from
	// these rows.
	sqlCartLines = `SELECT ci.id, ci.created, ci.cart_id, ci.product_id, ci.quantity, p.price
FROM cartitems ci
JOIN products p ON p.id = ci.product_id
WHERE ci.cart_id = $1
ORDER BY ci.id`

	sqlItemCart   = "SELECT cart_id FROM cartitems WHERE id = $1"
	sqlInsertItem = "INSERT INTO cartitems (cart_id, product_id, quantity) VALUES ($1, $2, $3) RETURNING " + itemColumns
	sqlUpdateItem = "UPDATE cartitems SET quantity = $2 WHERE id = $1 RETURNING cart_id"
	sqlDeleteItem = "DELETE FROM cartitems WHERE id = $1"
)

// Carts is the persistence behind the cart HTTP API.
type Carts interface {
	ListProducts(ctx context.Context, search string, fn func(*models.Product) error) error
	CartExists(ctx context.Context, userID int64) (bool, error)
	GetOrCreateCart(ctx context.Context, userID int64) (models.Cart, error)
	ClearCart(ctx context.Context, userID int64) error
	AddItem(ctx context.Context, cartID, productID int64, quantity int) (models.Cart, error)
	UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) (models.Cart, error)
	DeleteItem(ctx context.Context, itemID int64) error
	ItemCart(ctx context.Context, itemID int64) (int64, error)
}

// Store is the PostgreSQL implementation of [Carts]. A cart's id is its
// owner's user id.
type Store struct {
	db *postgres.Client
}

var _ Carts = (*Store)(nil)

// NewStore returns a Store backed by db.
func NewStore(db *postgres.Client) *Store {
	return &Store{db: db}
}

// ListProducts calls fn for every product whose name contains search,
// case-insensitively, ordered by id. An empty search lists the catalog.
func (s *Store) ListProducts(ctx context.Context, search string, fn func(*models.Product) error) error {
	sql, args := sqlListProducts, []any(nil)
	if search != "" {
		sql, args = sqlSearchProducts, []any{postgres.ContainsPattern(search)}
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Created, &p.Name, &p.Description, &p.Price); err != nil {
			return postgres.WrapError(err, "cart: failed to read product")
		}
		if err := fn(&p); err != nil {
			return err
		}
	}
	return postgres.WrapError(rows.Err(), "cart: failed to list products")
}

// CartExists reports whether userID has a cart.
func (s *Store) CartExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, sqlCartExists, userID).Scan(&exists); err != nil {
		return false, postgres.WrapError(err, "cart: failed to check cart")
	}
	return exists, nil
}

// GetOrCreateCart returns the cart of userID, creating an empty one the
// first time.
func (s *Store) GetOrCreateCart(ctx context.Context, userID int64) (models.Cart, error) {
	var cart models.Cart
	err := s.db.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, sqlEnsureCart, userID); err != nil {
			return err
		}
		var err error
		cart, err = loadCart(ctx, tx, userID)
		return err
	})
	return cart, err
}

// ClearCart removes every line from the cart of userID. The cart itself
// stays. It is a not-found error if the user has no cart.
func (s *Store) ClearCart(ctx context.Context, userID int64) error {
	return s.db.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, sqlCartExists, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return sserr.NotFound()
		}
		_, err := tx.Exec(ctx, sqlClearCart, userID)
		return err
	})
}

// AddItem inserts a line and returns the updated cart. Uniqueness of a
// product within a cart is left to the database: the insert is attempted
// and a unique violation becomes a business error on product_id. Any other
// integrity failure, such as an unknown product, is reported under
// non_field_errors.
func (s *Store) AddItem(ctx context.Context, cartID, productID int64, quantity int) (models.Cart, error) {
	var cart models.Cart
	err := s.db.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var item models.CartItem
		err := tx.QueryRow(ctx, sqlInsertItem, cartID, productID, quantity).
			Scan(&item.ID, &item.Created, &item.CartID, &item.ProductID, &item.Quantity)
		if err != nil {
			return insertError(err)
		}
		cart, err = loadCart(ctx, tx, cartID)
		return err
	})
	return cart, err
}

// UpdateItemQuantity sets the quantity of a line under the line's lock and
// returns the cart it belongs to.
func (s *Store) UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) (models.Cart, error) {
	var cart models.Cart
	err := s.db.WithAdvisoryLock(ctx, itemID, func(ctx context.Context, tx pgx.Tx) error {
		var cartID int64
		err := tx.QueryRow(ctx, sqlUpdateItem, itemID, quantity).Scan(&cartID)
		if postgres.IsNoRows(err) {
			return sserr.NotFound()
		}
		if err != nil {
			return err
		}
		cart, err = loadCart(ctx, tx, cartID)
		return err
	})
	return cart, err
}

// DeleteItem removes a line under the line's lock.
func (s *Store) DeleteItem(ctx context.Context, itemID int64) error {
	return s.db.WithAdvisoryLock(ctx, itemID, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, sqlDeleteItem, itemID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return sserr.NotFound()
		}
		return nil
	})
}

// ItemCart returns the cart id, and so the owner, of a line.
func (s *Store) ItemCart(ctx context.Context, itemID int64) (int64, error) {
	var cartID int64
	err := s.db.QueryRow(ctx, sqlItemCart, itemID).Scan(&cartID)
	if postgres.IsNoRows(err) {
		return 0, sserr.NotFound()
	}
	if err != nil {
		return 0, postgres.WrapError(err, "cart: failed to load cart item")
	}
	return cartID, nil
}

// loadCart reads the lines of a cart and sums their prices.
func loadCart(ctx context.Context, tx pgx.Tx, userID int64) (models.Cart, error) {
	rows, err := tx.Query(ctx, sqlCartLines, userID)
	if err != nil {
		return models.Cart{}, err
	}
	defer rows.Close()

	var (
		items []models.CartItem
		total models.Money
	)
	for rows.Next() {
		var (
			item  models.CartItem
			price models.Money
		)
		if err := rows.Scan(&item.ID, &item.Created, &item.CartID, &item.ProductID, &item.Quantity, &price); err != nil {
			return models.Cart{}, err
		}
		items = append(items, item)
		total = total.Plus(price.Times(item.Quantity))
	}
	if err := rows.Err(); err != nil {
		return models.Cart{}, err
	}
	return models.NewCart(userID, total, items), nil
}

func insertError(err error) error {
	if _, ok := postgres.UniqueViolation(err); ok {
		return sserr.FieldError(sserr.CodeBusinessDuplicate, "product_id", MessageProductInCart).WithCause(err)
	}
	if postgres.IntegrityViolation(err) {
		return sserr.FieldError(sserr.CodeBusinessIntegrity, sserr.NonFieldErrors, MessageAddFailed).WithCause(err)
	}
	return err
}
