package database

import (
	"context"
	"fmt"
	"strings"

	"selefli/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const itemSelect = `SELECT i.id, i.owner_id, i.title, i.category, i.description, i.estimated_value,
		i.deposit_amount, i.start_date, i.end_date, i.lat, i.lng, i.is_available, i.created_at, i.updated_at,
		u.username AS owner_username
	FROM items i JOIN users u ON u.id = i.owner_id`

func (db *DB) CreateItem(ctx context.Context, item *models.Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	ts := now()
	query := db.Rebind(`INSERT INTO items (id, owner_id, title, category, description, estimated_value,
			deposit_amount, start_date, end_date, lat, lng, is_available, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := db.ExecContext(ctx, query,
		item.ID, item.OwnerID, item.Title, item.Category, item.Description, item.EstimatedValue,
		item.DepositAmount, item.StartDate, item.EndDate, item.Lat, item.Lng, item.IsAvailable, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	item.CreatedAt, item.UpdatedAt = ts, ts
	if item.Images == nil {
		item.Images = []models.ItemImage{}
	}
	return nil
}

// GetItem loads an item with its owner's username and ordered images.
func (db *DB) GetItem(ctx context.Context, id string) (*models.Item, error) {
	var item models.Item
	if err := db.GetContext(ctx, &item, db.Rebind(itemSelect+` WHERE i.id = ?`), id); err != nil {
		return nil, normalize(err)
	}
	images, err := db.ListItemImages(ctx, id)
	if err != nil {
		return nil, err
	}
	item.Images = images
	return &item, nil
}

// UpdateItem writes every mutable column of item.
func (db *DB) UpdateItem(ctx context.Context, item *models.Item) error {
	ts := now()
	query := db.Rebind(`UPDATE items SET title = ?, category = ?, description = ?, estimated_value = ?,
			deposit_amount = ?, start_date = ?, end_date = ?, lat = ?, lng = ?, is_available = ?, updated_at = ?
		WHERE id = ?`)
	res, err := db.ExecContext(ctx, query,
		item.Title, item.Category, item.Description, item.EstimatedValue, item.DepositAmount,
		item.StartDate, item.EndDate, item.Lat, item.Lng, item.IsAvailable, ts, item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	item.UpdatedAt = ts
	return nil
}

// likeEscaper makes user text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListItems returns one page of the feed and the total number of matches.
func (db *DB) ListItems(ctx context.Context, filter models.ItemFilter) ([]models.Item, int, error) {
	filter.Normalize()

	where := []string{"1 = 1"}
	args := []any{}
	if filter.OwnerID != "" {
		where = append(where, "i.owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.ExcludeOwnerID != "" {
		where = append(where, "i.owner_id <> ?")
		args = append(args, filter.ExcludeOwnerID)
	}
	if len(filter.Categories) > 0 {
		where = append(where, "i.category IN (?)")
		args = append(args, filter.Categories)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		where = append(where, `LOWER(i.title) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(s))+"%")
	}
	cond := " WHERE " + strings.Join(where, " AND ")

	countQuery, countArgs, err := db.in(`SELECT COUNT(*) FROM items i`+cond, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build item count: %w", err)
	}
	var total int
	if err := db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to count items: %w", err)
	}

	listQuery, listArgs, err := db.in(itemSelect+cond+` ORDER BY i.created_at DESC, i.id LIMIT ? OFFSET ?`,
		append(args, filter.PageSize, filter.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build item list: %w", err)
	}
	items := []models.Item{}
	if err := db.SelectContext(ctx, &items, listQuery, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list items: %w", err)
	}
	if err := db.attachImages(ctx, items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (db *DB) attachImages(ctx context.Context, items []models.Item) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, len(items))
	for i := range items {
		ids[i] = items[i].ID
		items[i].Images = []models.ItemImage{}
	}
	query, args, err := db.in(`SELECT `+imageColumns+` FROM item_images WHERE item_id IN (?) ORDER BY item_id, position`, ids)
	if err != nil {
		return fmt.Errorf("failed to build image query: %w", err)
	}
	images := []models.ItemImage{}
	if err := db.SelectContext(ctx, &images, query, args...); err != nil {
		return fmt.Errorf("failed to load item images: %w", err)
	}
	byItem := make(map[string][]models.ItemImage, len(items))
	for _, img := range images {
		byItem[img.ItemID] = append(byItem[img.ItemID], img)
	}
	for i := range items {
		if imgs, ok := byItem[items[i].ID]; ok {
			items[i].Images = imgs
		}
	}
	return nil
}

// DeleteItem removes an item with its images and bookings. Ratings left on
// those bookings go with them, so their targets' aggregates are rebuilt in
// the same transaction.
func (db *DB) DeleteItem(ctx context.Context, id string) (*models.ItemDeletion, error) {
	var out models.ItemDeletion
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		var item models.Item
		if err := tx.GetContext(ctx, &item, tx.Rebind(itemSelect+` WHERE i.id = ?`), id); err != nil {
			return normalize(err)
		}
		out.Item = &item

		out.Bookings = []models.Booking{}
		query := tx.Rebind(bookingSelect + ` WHERE b.item_id = ? AND b.status IN (?, ?) ORDER BY b.created_at`)
		if err := tx.SelectContext(ctx, &out.Bookings, query, id, models.StatusPending, models.StatusAccepted); err != nil {
			return fmt.Errorf("failed to load item bookings: %w", err)
		}

		out.Images = []models.ItemImage{}
		query = tx.Rebind(`SELECT ` + imageColumns + ` FROM item_images WHERE item_id = ? ORDER BY position`)
		if err := tx.SelectContext(ctx, &out.Images, query, id); err != nil {
			return fmt.Errorf("failed to load item images: %w", err)
		}

		var targets []string
		query = tx.Rebind(`SELECT DISTINCT r.target_user_id FROM ratings r
			JOIN bookings b ON b.id = r.booking_id WHERE b.item_id = ?`)
		if err := tx.SelectContext(ctx, &targets, query, id); err != nil {
			return fmt.Errorf("failed to load rating targets: %w", err)
		}
		if err := db.lockUsers(ctx, tx, targets...); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM items WHERE id = ?`), id); err != nil {
			return fmt.Errorf("failed to delete item: %w", err)
		}
		return recomputeRatings(ctx, tx, targets...)
	})
	if err != nil {
		return nil, err
	}
	out.Item.Images = out.Images
	return &out, nil
}
