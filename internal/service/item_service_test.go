package service

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"selefli/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testBucket = "item-images"

type itemFixture struct {
	*bookingFixture
	svc   *ItemService
	store *mockStore
}

func newItemFixture(t *testing.T) *itemFixture {
	bf := newBookingFixture(t)
	store := &mockStore{}
	store.On("PathFromURL", testBucket, mock.Anything).Return("", false).Maybe()
	return &itemFixture{
		bookingFixture: bf,
		svc:            NewItemService(bf.db, store, bf.notifier, testBucket, nil),
		store:          store,
	}
}

func pngBytes(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := 0; x < 40; x++ {
		for y := 0; y < 30; y++ {
			img.Set(x, y, color.RGBA{R: 20, G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCreateItem(t *testing.T) {
	f := newItemFixture(t)
	ctx := context.Background()

	item, err := f.svc.Create(ctx, f.alice.ID, CreateItemInput{
		Title:          "  Kayak ",
		Category:       "Outdoor",
		EstimatedValue: decimal.RequireFromString("900"),
		DepositAmount:  decimal.RequireFromString("150"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Kayak", item.Title)
	assert.Equal(t, f.alice.ID, item.OwnerID)
	assert.Equal(t, "alice", item.OwnerUsername)
	assert.True(t, item.IsAvailable)
	assert.Empty(t, item.Images)

	start, end := jan15, jan10
	tests := []struct {
		name  string
		in    CreateItemInput
		field string
	}{
		{name: "no title", in: CreateItemInput{Category: "Outdoor"}, field: "title"},
		{name: "no category", in: CreateItemInput{Title: "Kayak"}, field: "category"},
		{name: "negative value", in: CreateItemInput{Title: "Kayak", Category: "Outdoor", EstimatedValue: decimal.NewFromInt(-5)}, field: "estimated_value"},
		{name: "negative deposit", in: CreateItemInput{Title: "Kayak", Category: "Outdoor", DepositAmount: decimal.NewFromInt(-5)}, field: "deposit_amount"},
		{name: "window reversed", in: CreateItemInput{Title: "Kayak", Category: "Outdoor", StartDate: &start, EndDate: &end}, field: "end_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.alice.ID, tt.in)
			assertValidation(t, err, tt.field)
		})
	}
}

func TestUpdateItemOwnership(t *testing.T) {
	f := newItemFixture(t)
	ctx := context.Background()
	title := "Family Tent"

	_, err := f.svc.Update(ctx, f.alice.ID, f.item.ID, models.ItemUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrForbidden)

	updated, err := f.svc.Update(ctx, f.owner.ID, f.item.ID, models.ItemUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Family Tent", updated.Title)

	_, err = f.svc.Update(ctx, f.owner.ID, "missing", models.ItemUpdate{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkingItemUnavailableNotifiesPendingBorrowers(t *testing.T) {
	f := newItemFixture(t)
	ctx := context.Background()
	pending := f.request(t, f.alice.ID, jan10, jan12)
	f.request(t, f.bob.ID, jan15, jan20)

	off := false
	_, err := f.svc.Update(ctx, f.owner.ID, f.item.ID, models.ItemUpdate{IsAvailable: &off})
	require.NoError(t, err)

	f.notifier.AssertCalled(t, "ItemUnavailable", mock.Anything, mock.Anything, mock.MatchedBy(func(list []models.Booking) bool {
		return len(list) == 2 && (list[0].ID == pending.ID || list[1].ID == pending.ID)
	}))

	// Already unavailable: no second round.
	_, err = f.svc.Update(ctx, f.owner.ID, f.item.ID, models.ItemUpdate{IsAvailable: &off})
	require.NoError(t, err)
	f.notifier.AssertNumberOfCalls(t, "ItemUnavailable", 1)
}

func TestDeleteItem(t *testing.T) {
	f := newItemFixture(t)
	ctx := context.Background()
	url := "https://proj.supabase.co/storage/v1/object/public/item-images/items/x/a.jpg"
	_, err := f.svc.AddImages(ctx, f.owner.ID, f.item.ID, []models.ItemImage{{ImageURL: url, Position: 1}})
	require.NoError(t, err)
	b := f.request(t, f.alice.ID, jan10, jan15)

	store := &mockStore{}
	store.On("PathFromURL", testBucket, url).Return("items/x/a.jpg", true).Once()
	store.On("Remove", mock.Anything, testBucket, []string{"items/x/a.jpg"}).Return(nil).Once()
	f.svc.store = store

	assert.ErrorIs(t, f.svc.Delete(ctx, f.alice.ID, f.item.ID), ErrForbidden)
	require.NoError(t, f.svc.Delete(ctx, f.owner.ID, f.item.ID))

	store.AssertExpectations(t)
	f.notifier.AssertCalled(t, "ItemDeleted", mock.Anything, mock.Anything, mock.MatchedBy(func(list []models.Booking) bool {
		return len(list) == 1 && list[0].ID == b.ID
	}))

	_, err = f.svc.Get(ctx, f.item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.db.GetBooking(ctx, b.ID)
	assert.Error(t, err)
}

func TestListItems(t *testing.T) {
	f := newItemFixture(t)
	ctx := context.Background()
	for _, title := range []string{"Road Bike", "Mountain Bike"} {
		_, err := f.svc.Create(ctx, f.alice.ID, CreateItemInput{Title: title, Category: "Sports"})
		require.NoError(t, err)
	}

	page, err := f.svc.List(ctx, models.ItemFilter{Search: "bike"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, models.DefaultPageSize, page.PageSize)

	page, err = f.svc.List(ctx, models.ItemFilter{ExcludeOwnerID: f.alice.ID})
	require.NoError(t, err)
	require.Equal(t, 1, page.Count)
	assert.Equal(t, f.item.ID, page.Results[0].ID)

	page, err = f.svc.List(ctx, models.ItemFilter{Categories: []string{"All"}, PageSize: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
	assert.Len(t, page.Results, 1)
}

func TestItemImages(t *testing.T) {
	f := newItemFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddImages(ctx, f.alice.ID, f.item.ID, []models.ItemImage{{ImageURL: "https://cdn/a.jpg"}})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.AddImages(ctx, f.owner.ID, f.item.ID, []models.ItemImage{{ImageURL: "https://cdn/a.jpg", Position: 4}})
	assertValidation(t, err, "position")

	created, err := f.svc.AddImages(ctx, f.owner.ID, f.item.ID, []models.ItemImage{
		{ImageURL: "https://cdn/a.jpg", Position: 1},
		{ImageURL: "https://cdn/b.jpg", Position: 2},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)

	_, err = f.svc.AddImages(ctx, f.owner.ID, f.item.ID, []models.ItemImage{{ImageURL: "https://cdn/c.jpg", Position: 2}})
	assertValidation(t, err, "position")

	_, err = f.svc.AddImages(ctx, f.owner.ID, f.item.ID, []models.ItemImage{
		{ImageURL: "https://cdn/c.jpg"}, {ImageURL: "https://cdn/d.jpg"},
	})
	assertValidation(t, err, "images")

	reordered, err := f.svc.ReorderImages(ctx, f.owner.ID, f.item.ID, []string{created[1].ID, created[0].ID})
	require.NoError(t, err)
	assert.Equal(t, created[1].ID, reordered[0].ID)
	assert.Equal(t, 1, reordered[0].Position)

	n, err := f.svc.DeleteImagesExcept(ctx, f.owner.ID, f.item.ID, []string{created[0].ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	images, err := f.svc.ListImages(ctx, f.item.ID)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, created[0].ID, images[0].ID)

	require.NoError(t, f.svc.DeleteImage(ctx, f.owner.ID, created[0].ID))
	assert.ErrorIs(t, f.svc.DeleteImage(ctx, f.owner.ID, created[0].ID), ErrNotFound)
}

func TestSyncImages(t *testing.T) {
	f := newItemFixture(t)
	ctx := context.Background()
	created, err := f.svc.AddImages(ctx, f.owner.ID, f.item.ID, []models.ItemImage{
		{ImageURL: "https://cdn/a.jpg", Position: 1},
		{ImageURL: "https://cdn/b.jpg", Position: 2},
	})
	require.NoError(t, err)

	added, err := f.svc.SyncImages(ctx, f.owner.ID, f.item.ID, models.ImageSync{
		KeepIDs: []string{created[0].ID},
		Add:     []models.ItemImage{{ImageURL: "https://cdn/c.jpg", Position: 2}},
	})
	require.NoError(t, err)
	require.Len(t, added, 1)

	images, err := f.svc.ListImages(ctx, f.item.ID)
	require.NoError(t, err)
	urls := []string{}
	for _, img := range images {
		urls = append(urls, img.ImageURL)
	}
	assert.Equal(t, []string{"https://cdn/a.jpg", "https://cdn/c.jpg"}, urls)
}

func TestDeleteImagesByURLAndPositions(t *testing.T) {
	f := newItemFixture(t)
	ctx := context.Background()
	_, err := f.svc.AddImages(ctx, f.owner.ID, f.item.ID, []models.ItemImage{
		{ImageURL: "https://cdn/a.jpg", Position: 1},
		{ImageURL: "https://cdn/b.jpg", Position: 2},
		{ImageURL: "https://cdn/c.jpg", Position: 3},
	})
	require.NoError(t, err)

	n, err := f.svc.DeleteImagesByURL(ctx, f.owner.ID, "https://cdn/unknown.jpg")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.svc.DeleteImagesByURL(ctx, f.alice.ID, "https://cdn/a.jpg")
	assert.ErrorIs(t, err, ErrForbidden)

	n, err = f.svc.DeleteImagesByURL(ctx, f.owner.ID, "https://cdn/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.DeleteImagesNotInPositions(ctx, f.owner.ID, f.item.ID, []int{3})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.svc.DeleteImagesNotInPositions(ctx, f.owner.ID, f.item.ID, nil)
	assertValidation(t, err, "")
}

func TestUploadImage(t *testing.T) {
	f := newItemFixture(t)
	ctx := context.Background()

	var storedPath string
	f.store.On("Upload", mock.Anything, testBucket, mock.MatchedBy(func(p string) bool {
		storedPath = p
		return strings.HasPrefix(p, "items/"+f.item.ID+"/") && strings.HasSuffix(p, "_my_photo.jpg")
	}), "image/jpeg", mock.Anything).Return("https://cdn/items/photo.jpg", nil).Once()

	img, err := f.svc.UploadImage(ctx, f.owner.ID, f.item.ID, 2, "my photo.png", pngBytes(t))
	require.NoError(t, err)
	assert.Equal(t, 2, img.Position)
	assert.Equal(t, "https://cdn/items/photo.jpg", img.ImageURL)
	assert.NotEmpty(t, storedPath)
	f.store.AssertExpectations(t)

	_, err = f.svc.UploadImage(ctx, f.owner.ID, f.item.ID, 4, "x.png", pngBytes(t))
	assertValidation(t, err, "position")

	_, err = f.svc.UploadImage(ctx, f.owner.ID, f.item.ID, 1, "notes.txt", []byte("plain text"))
	assertValidation(t, err, "file")

	_, err = f.svc.UploadImage(ctx, f.alice.ID, f.item.ID, 1, "x.png", pngBytes(t))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUploadImageRemovesOrphanOnConflict(t *testing.T) {
	f := newItemFixture(t)
	ctx := context.Background()
	_, err := f.svc.AddImages(ctx, f.owner.ID, f.item.ID, []models.ItemImage{{ImageURL: "https://cdn/a.jpg", Position: 1}})
	require.NoError(t, err)

	f.store.On("Upload", mock.Anything, testBucket, mock.Anything, "image/jpeg", mock.Anything).Return("https://cdn/new.jpg", nil).Once()
	f.store.On("Remove", mock.Anything, testBucket, mock.Anything).Return(nil).Once()

	_, err = f.svc.UploadImage(ctx, f.owner.ID, f.item.ID, 1, "x.png", pngBytes(t))
	assertValidation(t, err, "position")
	f.store.AssertExpectations(t)
}

func TestJPEGName(t *testing.T) {
	assert.Equal(t, "my_photo.jpg", jpegName("my photo.png"))
	assert.Equal(t, "evil.jpg", jpegName("../../evil.jpeg"))
	assert.Equal(t, "image.jpg", jpegName(""))
}
