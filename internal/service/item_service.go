package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"selefli/internal/database"
	"selefli/internal/domain"
	"selefli/internal/imaging"
	"selefli/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type ItemService struct {
	repo     domain.ItemRepository
	store    domain.ObjectStore
	notifier domain.Notifier
	bucket   string
	logger   *zerolog.Logger
}

func NewItemService(repo domain.ItemRepository, store domain.ObjectStore, notifier domain.Notifier, bucket string, logger *zerolog.Logger) *ItemService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ItemService{repo: repo, store: store, notifier: notifier, bucket: bucket, logger: logger}
}

type CreateItemInput struct {
	Title          string          `json:"title"`
	Category       string          `json:"category"`
	Description    string          `json:"description"`
	EstimatedValue decimal.Decimal `json:"estimated_value"`
	DepositAmount  decimal.Decimal `json:"deposit_amount"`
	StartDate      *models.Date    `json:"start_date"`
	EndDate        *models.Date    `json:"end_date"`
	Lat            *float64        `json:"lat"`
	Lng            *float64        `json:"lng"`
	IsAvailable    *bool           `json:"is_available"`
}

func validateItem(item *models.Item) error {
	item.Title = strings.TrimSpace(item.Title)
	item.Category = strings.TrimSpace(item.Category)
	switch {
	case item.Title == "":
		return invalid("title", "This field is required.")
	case len(item.Title) > 200:
		return invalid("title", "Ensure this field has no more than 200 characters.")
	case item.Category == "":
		return invalid("category", "This field is required.")
	case item.EstimatedValue.IsNegative():
		return invalid("estimated_value", "Ensure this value is greater than or equal to 0.")
	case item.DepositAmount.IsNegative():
		return invalid("deposit_amount", "Ensure this value is greater than or equal to 0.")
	case item.StartDate != nil && item.EndDate != nil && item.EndDate.Before(item.StartDate.Time):
		return invalid("end_date", "End date must not be before start date.")
	case item.Lat != nil && (*item.Lat < -90 || *item.Lat > 90):
		return invalid("lat", "Latitude must be between -90 and 90.")
	case item.Lng != nil && (*item.Lng < -180 || *item.Lng > 180):
		return invalid("lng", "Longitude must be between -180 and 180.")
	}
	return nil
}

func (s *ItemService) Create(ctx context.Context, ownerID string, in CreateItemInput) (*models.Item, error) {
	item := &models.Item{
		OwnerID:        ownerID,
		Title:          in.Title,
		Category:       in.Category,
		Description:    in.Description,
		EstimatedValue: in.EstimatedValue,
		DepositAmount:  in.DepositAmount,
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		Lat:            in.Lat,
		Lng:            in.Lng,
		IsAvailable:    true,
	}
	if in.IsAvailable != nil {
		item.IsAvailable = *in.IsAvailable
	}
	if err := validateItem(item); err != nil {
		return nil, err
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	s.logger.Info().Str("item_id", item.ID).Str("owner_id", ownerID).Msg("item listed")
	return s.Get(ctx, item.ID)
}

func (s *ItemService) Get(ctx context.Context, id string) (*models.Item, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return nil, storageError(err)
	}
	return item, nil
}

// ownedItem loads an item the actor may change.
func (s *ItemService) ownedItem(ctx context.Context, actorID, id string) (*models.Item, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.OwnerID != actorID {
		return nil, ErrForbidden
	}
	return item, nil
}

// Update applies a partial change. Taking an available item off the market
// tells the borrowers still waiting on it.
func (s *ItemService) Update(ctx context.Context, actorID, id string, upd models.ItemUpdate) (*models.Item, error) {
	item, err := s.ownedItem(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	wasAvailable := item.IsAvailable
	upd.Apply(item)
	if err := validateItem(item); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateItem(ctx, item); err != nil {
		return nil, storageError(err)
	}
	s.logger.Info().Str("item_id", id).Msg("item updated")

	if wasAvailable && !item.IsAvailable {
		pending, err := s.repo.ListPendingBookingsForItem(ctx, id)
		if err != nil {
			s.logger.Error().Err(err).Str("item_id", id).Msg("failed to load pending bookings")
		} else if len(pending) > 0 {
			s.notifier.ItemUnavailable(ctx, item, pending)
		}
	}
	return s.Get(ctx, id)
}

// Delete removes the item with its images and bookings, then cleans up the
// stored photos and tells affected borrowers.
func (s *ItemService) Delete(ctx context.Context, actorID, id string) error {
	if _, err := s.ownedItem(ctx, actorID, id); err != nil {
		return err
	}
	deleted, err := s.repo.DeleteItem(ctx, id)
	if err != nil {
		return storageError(err)
	}
	s.logger.Info().
		Str("item_id", id).
		Int("bookings", len(deleted.Bookings)).
		Int("images", len(deleted.Images)).
		Msg("item deleted")

	s.removeFiles(ctx, deleted.Images)
	if len(deleted.Bookings) > 0 {
		s.notifier.ItemDeleted(ctx, deleted.Item, deleted.Bookings)
	}
	return nil
}

// ItemPage is one page of the browse feed.
type ItemPage struct {
	Count    int           `json:"count"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Results  []models.Item `json:"results"`
}

func (s *ItemService) List(ctx context.Context, filter models.ItemFilter) (*ItemPage, error) {
	filter.Normalize()
	items, total, err := s.repo.ListItems(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &ItemPage{Count: total, Page: filter.Page, PageSize: filter.PageSize, Results: items}, nil
}

func (s *ItemService) ListImages(ctx context.Context, itemID string) ([]models.ItemImage, error) {
	if _, err := s.Get(ctx, itemID); err != nil {
		return nil, err
	}
	return s.repo.ListItemImages(ctx, itemID)
}

func validateImages(images []models.ItemImage) error {
	if len(images) == 0 {
		return invalid("images", "At least one image is required.")
	}
	for _, img := range images {
		if strings.TrimSpace(img.ImageURL) == "" {
			return invalid("image_url", "This field is required.")
		}
		if img.Position != 0 && (img.Position < 1 || img.Position > models.MaxItemImages) {
			return invalid("position", "position must be between 1 and 3")
		}
	}
	return nil
}

func imageError(err error) error {
	switch {
	case errors.Is(err, database.ErrImageLimit):
		return invalid("images", fmt.Sprintf("An item can have at most %d images.", models.MaxItemImages))
	case errors.Is(err, database.ErrDuplicate):
		return invalid("position", "An image already occupies this position.")
	}
	return storageError(err)
}

// AddImages attaches already hosted images to the actor's item.
func (s *ItemService) AddImages(ctx context.Context, actorID, itemID string, images []models.ItemImage) ([]models.ItemImage, error) {
	if err := validateImages(images); err != nil {
		return nil, err
	}
	if _, err := s.ownedItem(ctx, actorID, itemID); err != nil {
		return nil, err
	}
	created, err := s.repo.AddItemImages(ctx, itemID, images)
	if err != nil {
		return nil, imageError(err)
	}
	return created, nil
}

// UploadImage normalizes a photo, stores it and attaches it at position.
func (s *ItemService) UploadImage(ctx context.Context, actorID, itemID string, position int, filename string, data []byte) (*models.ItemImage, error) {
	if position < 1 || position > models.MaxItemImages {
		return nil, invalid("position", "position must be between 1 and 3")
	}
	if len(data) == 0 {
		return nil, invalid("file", "This field is required.")
	}
	if _, err := s.ownedItem(ctx, actorID, itemID); err != nil {
		return nil, err
	}

	normalized, err := imaging.Normalize(data)
	if err != nil {
		if errors.Is(err, imaging.ErrUnsupportedFormat) {
			return nil, invalid("file", "Upload a JPEG, PNG or WebP image.")
		}
		return nil, invalid("file", "The uploaded file is not a valid image.")
	}

	objectPath := fmt.Sprintf("items/%s/%s_%s", itemID, uuid.NewString(), jpegName(filename))
	url, err := s.store.Upload(ctx, s.bucket, objectPath, imaging.ContentType, normalized)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}

	created, err := s.repo.AddItemImages(ctx, itemID, []models.ItemImage{{ImageURL: url, Position: position}})
	if err != nil {
		// Do not leave an orphaned object behind.
		if rmErr := s.store.Remove(ctx, s.bucket, objectPath); rmErr != nil {
			s.logger.Warn().Err(rmErr).Str("path", objectPath).Msg("failed to remove orphaned upload")
		}
		return nil, imageError(err)
	}
	s.logger.Info().Str("item_id", itemID).Int("position", position).Msg("item image uploaded")
	return &created[0], nil
}

func jpegName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, base)
	if base == "" || base == "." || base == "_" {
		base = "image"
	}
	return base + ".jpg"
}

func (s *ItemService) ReorderImages(ctx context.Context, actorID, itemID string, orderedIDs []string) ([]models.ItemImage, error) {
	if orderedIDs == nil {
		return nil, invalid("ordered_ids", "ordered_ids must be a list")
	}
	if _, err := s.ownedItem(ctx, actorID, itemID); err != nil {
		return nil, err
	}
	images, err := s.repo.ReorderItemImages(ctx, itemID, orderedIDs)
	if err != nil {
		return nil, storageError(err)
	}
	return images, nil
}

// SyncImages replaces the image set of an item in one step.
func (s *ItemService) SyncImages(ctx context.Context, actorID, itemID string, sync models.ImageSync) ([]models.ItemImage, error) {
	for _, img := range sync.Add {
		if err := validateImages([]models.ItemImage{img}); err != nil {
			return nil, err
		}
	}
	if _, err := s.ownedItem(ctx, actorID, itemID); err != nil {
		return nil, err
	}
	removed, created, err := s.repo.SyncItemImages(ctx, itemID, sync)
	if err != nil {
		return nil, imageError(err)
	}
	s.removeFiles(ctx, removed)
	return created, nil
}

func (s *ItemService) DeleteImage(ctx context.Context, actorID, imageID string) error {
	img, err := s.repo.GetItemImage(ctx, imageID)
	if err != nil {
		return storageError(err)
	}
	if _, err := s.ownedItem(ctx, actorID, img.ItemID); err != nil {
		return err
	}
	if err := s.repo.DeleteItemImage(ctx, imageID); err != nil {
		return storageError(err)
	}
	s.removeFiles(ctx, []models.ItemImage{*img})
	return nil
}

// DeleteImagesByURL removes every image row pointing at url. Unknown URLs
// are not an error.
func (s *ItemService) DeleteImagesByURL(ctx context.Context, actorID, url string) (int, error) {
	if strings.TrimSpace(url) == "" {
		return 0, invalid("image_url", "image_url is required")
	}
	images, err := s.repo.ListItemImagesByURL(ctx, url)
	if err != nil {
		return 0, err
	}
	if len(images) == 0 {
		return 0, nil
	}
	checked := map[string]bool{}
	for _, img := range images {
		if checked[img.ItemID] {
			continue
		}
		if _, err := s.ownedItem(ctx, actorID, img.ItemID); err != nil {
			return 0, err
		}
		checked[img.ItemID] = true
	}
	removed, err := s.repo.DeleteItemImagesByURL(ctx, url)
	if err != nil {
		return 0, err
	}
	s.removeFiles(ctx, removed)
	return len(removed), nil
}

func (s *ItemService) DeleteImagesExcept(ctx context.Context, actorID, itemID string, keepIDs []string) (int, error) {
	if itemID == "" || keepIDs == nil {
		return 0, invalid("", "item_id and allowed_ids are required")
	}
	if _, err := s.ownedItem(ctx, actorID, itemID); err != nil {
		return 0, err
	}
	removed, err := s.repo.DeleteItemImagesExcept(ctx, itemID, keepIDs)
	if err != nil {
		return 0, err
	}
	s.removeFiles(ctx, removed)
	return len(removed), nil
}

func (s *ItemService) DeleteImagesNotInPositions(ctx context.Context, actorID, itemID string, positions []int) (int, error) {
	if itemID == "" || positions == nil {
		return 0, invalid("", "item_id and positions are required")
	}
	if _, err := s.ownedItem(ctx, actorID, itemID); err != nil {
		return 0, err
	}
	removed, err := s.repo.DeleteItemImagesNotInPositions(ctx, itemID, positions)
	if err != nil {
		return 0, err
	}
	s.removeFiles(ctx, removed)
	return len(removed), nil
}

// removeFiles deletes the stored objects behind images. Failures are logged.
func (s *ItemService) removeFiles(ctx context.Context, images []models.ItemImage) {
	if s.store == nil || len(images) == 0 {
		return
	}
	paths := make([]string, 0, len(images))
	for _, img := range images {
		if p, ok := s.store.PathFromURL(s.bucket, img.ImageURL); ok {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return
	}
	if err := s.store.Remove(ctx, s.bucket, paths...); err != nil {
		s.logger.Warn().Err(err).Strs("paths", paths).Msg("failed to remove stored images")
	}
}
