package database

import (
	"context"
	"fmt"
	"slices"

	"selefli/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const imageColumns = `id, item_id, image_url, position, created_at`

func (db *DB) ListItemImages(ctx context.Context, itemID string) ([]models.ItemImage, error) {
	images := []models.ItemImage{}
	query := db.Rebind(`SELECT ` + imageColumns + ` FROM item_images WHERE item_id = ? ORDER BY position`)
	if err := db.SelectContext(ctx, &images, query, itemID); err != nil {
		return nil, fmt.Errorf("failed to list item images: %w", err)
	}
	return images, nil
}

func (db *DB) GetItemImage(ctx context.Context, id string) (*models.ItemImage, error) {
	var img models.ItemImage
	query := db.Rebind(`SELECT ` + imageColumns + ` FROM item_images WHERE id = ?`)
	if err := db.GetContext(ctx, &img, query, id); err != nil {
		return nil, normalize(err)
	}
	return &img, nil
}

func (db *DB) ListItemImagesByURL(ctx context.Context, url string) ([]models.ItemImage, error) {
	images := []models.ItemImage{}
	query := db.Rebind(`SELECT ` + imageColumns + ` FROM item_images WHERE image_url = ?`)
	if err := db.SelectContext(ctx, &images, query, url); err != nil {
		return nil, fmt.Errorf("failed to find item images: %w", err)
	}
	return images, nil
}

// AddItemImages inserts images under the per-item cap. A zero position
// takes the lowest free slot.
func (db *DB) AddItemImages(ctx context.Context, itemID string, images []models.ItemImage) ([]models.ItemImage, error) {
	created := make([]models.ItemImage, 0, len(images))
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		var exists int
		if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT COUNT(*) FROM items WHERE id = ?`), itemID); err != nil {
			return fmt.Errorf("failed to check item: %w", err)
		}
		if exists == 0 {
			return ErrNotFound
		}
		var err error
		created, err = insertImages(ctx, tx, itemID, images)
		return err
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func insertImages(ctx context.Context, tx *sqlx.Tx, itemID string, images []models.ItemImage) ([]models.ItemImage, error) {
	var taken []int
	if err := tx.SelectContext(ctx, &taken, tx.Rebind(`SELECT position FROM item_images WHERE item_id = ?`), itemID); err != nil {
		return nil, fmt.Errorf("failed to load image positions: %w", err)
	}
	if len(taken)+len(images) > models.MaxItemImages {
		return nil, ErrImageLimit
	}
	used := make(map[int]bool, models.MaxItemImages)
	for _, p := range taken {
		used[p] = true
	}

	query := tx.Rebind(`INSERT INTO item_images (id, item_id, image_url, position, created_at) VALUES (?, ?, ?, ?, ?)`)
	created := make([]models.ItemImage, 0, len(images))
	for _, img := range images {
		if img.Position == 0 {
			for p := 1; p <= models.MaxItemImages; p++ {
				if !used[p] {
					img.Position = p
					break
				}
			}
		}
		if used[img.Position] {
			return nil, ErrDuplicate
		}
		used[img.Position] = true

		img.ID = uuid.NewString()
		img.ItemID = itemID
		img.CreatedAt = now()
		if _, err := tx.ExecContext(ctx, query, img.ID, img.ItemID, img.ImageURL, img.Position, img.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return nil, ErrDuplicate
			}
			return nil, fmt.Errorf("failed to insert item image: %w", err)
		}
		created = append(created, img)
	}
	return created, nil
}

func (db *DB) DeleteItemImage(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, db.Rebind(`DELETE FROM item_images WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete item image: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteItemImagesByURL removes every row pointing at url and returns them.
func (db *DB) DeleteItemImagesByURL(ctx context.Context, url string) ([]models.ItemImage, error) {
	var removed []models.ItemImage
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		removed = []models.ItemImage{}
		query := tx.Rebind(`SELECT ` + imageColumns + ` FROM item_images WHERE image_url = ?`)
		if err := tx.SelectContext(ctx, &removed, query, url); err != nil {
			return fmt.Errorf("failed to find item images: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM item_images WHERE image_url = ?`), url); err != nil {
			return fmt.Errorf("failed to delete item images: %w", err)
		}
		return nil
	})
	return removed, err
}

// DeleteItemImagesExcept removes the item's images whose id is not kept.
func (db *DB) DeleteItemImagesExcept(ctx context.Context, itemID string, keepIDs []string) ([]models.ItemImage, error) {
	var removed []models.ItemImage
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		removed, err = deleteImagesWhere(ctx, tx, itemID, func(img models.ItemImage) bool {
			return !slices.Contains(keepIDs, img.ID)
		})
		return err
	})
	return removed, err
}

// DeleteItemImagesNotInPositions removes the item's images outside positions.
func (db *DB) DeleteItemImagesNotInPositions(ctx context.Context, itemID string, positions []int) ([]models.ItemImage, error) {
	var removed []models.ItemImage
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		removed, err = deleteImagesWhere(ctx, tx, itemID, func(img models.ItemImage) bool {
			return !slices.Contains(positions, img.Position)
		})
		return err
	})
	return removed, err
}

// SyncItemImages drops images that are not kept or are explicitly removed,
// then inserts the additions, all in one transaction.
func (db *DB) SyncItemImages(ctx context.Context, itemID string, sync models.ImageSync) (removed, created []models.ItemImage, err error) {
	err = db.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		removed, err = deleteImagesWhere(ctx, tx, itemID, func(img models.ItemImage) bool {
			return !slices.Contains(sync.KeepIDs, img.ID) || slices.Contains(sync.RemoveURLs, img.ImageURL)
		})
		if err != nil {
			return err
		}
		created, err = insertImages(ctx, tx, itemID, sync.Add)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return removed, created, nil
}

func deleteImagesWhere(ctx context.Context, tx *sqlx.Tx, itemID string, match func(models.ItemImage) bool) ([]models.ItemImage, error) {
	current := []models.ItemImage{}
	query := tx.Rebind(`SELECT ` + imageColumns + ` FROM item_images WHERE item_id = ? ORDER BY position`)
	if err := tx.SelectContext(ctx, &current, query, itemID); err != nil {
		return nil, fmt.Errorf("failed to load item images: %w", err)
	}
	removed := []models.ItemImage{}
	del := tx.Rebind(`DELETE FROM item_images WHERE id = ?`)
	for _, img := range current {
		if !match(img) {
			continue
		}
		if _, err := tx.ExecContext(ctx, del, img.ID); err != nil {
			return nil, fmt.Errorf("failed to delete item image: %w", err)
		}
		removed = append(removed, img)
	}
	return removed, nil
}

// ReorderItemImages assigns positions 1..n following orderedIDs. Ids that do
// not belong to the item are ignored; images left out keep their relative
// order after the listed ones.
func (db *DB) ReorderItemImages(ctx context.Context, itemID string, orderedIDs []string) ([]models.ItemImage, error) {
	var result []models.ItemImage
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		current := []models.ItemImage{}
		query := tx.Rebind(`SELECT ` + imageColumns + ` FROM item_images WHERE item_id = ? ORDER BY position`)
		if err := tx.SelectContext(ctx, &current, query, itemID); err != nil {
			return fmt.Errorf("failed to load item images: %w", err)
		}

		byID := make(map[string]models.ItemImage, len(current))
		for _, img := range current {
			byID[img.ID] = img
		}
		order := make([]string, 0, len(current))
		for _, id := range orderedIDs {
			if _, ok := byID[id]; ok && !slices.Contains(order, id) {
				order = append(order, id)
			}
		}
		for _, img := range current {
			if !slices.Contains(order, img.ID) {
				order = append(order, img.ID)
			}
		}

		// Park every row on a negative slot first so the unique
		// (item_id, position) pair holds at each step.
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE item_images SET position = -position WHERE item_id = ?`), itemID); err != nil {
			return fmt.Errorf("failed to park image positions: %w", err)
		}
		upd := tx.Rebind(`UPDATE item_images SET position = ? WHERE id = ?`)
		result = make([]models.ItemImage, 0, len(order))
		for i, id := range order {
			if _, err := tx.ExecContext(ctx, upd, i+1, id); err != nil {
				return fmt.Errorf("failed to reorder item image: %w", err)
			}
			img := byID[id]
			img.Position = i + 1
			result = append(result, img)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
