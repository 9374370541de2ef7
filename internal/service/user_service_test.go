package service

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"selefli/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const avatarBucket = "avatars"

func TestProvisionCreatesOnce(t *testing.T) {
	db := setupDB(t)
	svc := NewUserService(db, nil, avatarBucket, nil)
	ctx := context.Background()
	id := Identity{UserID: "5f0c2b9e-1111-4d2a-9c3e-000000000001", Email: "kim@example.com", Username: "kim"}

	first, err := svc.Provision(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "kim", first.Username)
	require.NotNil(t, first.Email)
	assert.Equal(t, "kim@example.com", *first.Email)

	second, err := svc.Provision(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	_, err = svc.Provision(ctx, Identity{})
	assertValidation(t, err, "sub")
}

func TestProvisionUsernameFallbacks(t *testing.T) {
	db := setupDB(t)
	svc := NewUserService(db, nil, avatarBucket, nil)
	ctx := context.Background()

	t.Run("email when no username", func(t *testing.T) {
		u, err := svc.Provision(ctx, Identity{UserID: "aaaaaaaa-0000-0000-0000-000000000001", Email: "lee@example.com"})
		require.NoError(t, err)
		assert.Equal(t, "lee@example.com", u.Username)
	})

	t.Run("id when nothing else", func(t *testing.T) {
		u, err := svc.Provision(ctx, Identity{UserID: "bbbbbbbb-0000-0000-0000-000000000002"})
		require.NoError(t, err)
		assert.Equal(t, "user_bbbbbbbb", u.Username)
	})

	t.Run("taken username gets a suffix", func(t *testing.T) {
		seedUser(t, db, "sam")
		u, err := svc.Provision(ctx, Identity{UserID: "cccccccc-0000-0000-0000-000000000003", Username: "sam"})
		require.NoError(t, err)
		assert.Equal(t, "sam_cccccccc", u.Username)
	})

	t.Run("long multi-byte name is cut on a character boundary", func(t *testing.T) {
		u, err := svc.Provision(ctx, Identity{UserID: "eeeeeeee-0000-0000-0000-000000000005", Username: strings.Repeat("é", 200)})
		require.NoError(t, err)
		assert.True(t, utf8.ValidString(u.Username))
		assert.Equal(t, strings.Repeat("é", maxUsernameLength-9), u.Username)

		candidates := provisionCandidates(Identity{UserID: "eeeeeeee-0000-0000-0000-000000000006", Email: strings.Repeat("日", 150) + "@example.com"})
		for _, c := range candidates {
			assert.True(t, utf8.ValidString(c), c)
			assert.LessOrEqual(t, utf8.RuneCountInString(c), maxUsernameLength)
		}
	})

	t.Run("taken email is dropped on the last attempt", func(t *testing.T) {
		email := "pat@example.com"
		require.NoError(t, db.CreateUser(ctx, &models.User{Username: "pat", Email: &email}))

		u, err := svc.Provision(ctx, Identity{UserID: "dddddddd-0000-0000-0000-000000000004", Username: "pat", Email: email})
		require.NoError(t, err)
		assert.Equal(t, "user_dddddddd000000000000000000000004", u.Username)
		assert.Nil(t, u.Email)
	})
}

func TestUpdateProfile(t *testing.T) {
	db := setupDB(t)
	svc := NewUserService(db, nil, avatarBucket, nil)
	ctx := context.Background()
	kim := seedUser(t, db, "kim")
	seedUser(t, db, "lee")

	name := "  kimberly "
	u, err := svc.UpdateProfile(ctx, kim.ID, kim.ID, models.UserUpdate{Username: &name})
	require.NoError(t, err)
	assert.Equal(t, "kimberly", u.Username)

	_, err = svc.UpdateProfile(ctx, "someone-else", kim.ID, models.UserUpdate{Username: &name})
	assert.ErrorIs(t, err, ErrForbidden)

	blank, taken, long := " ", "lee", strings.Repeat("x", 151)
	phone, email := strings.Repeat("1", 21), "not-an-email"
	tests := []struct {
		name  string
		upd   models.UserUpdate
		field string
	}{
		{name: "blank username", upd: models.UserUpdate{Username: &blank}, field: "username"},
		{name: "taken username", upd: models.UserUpdate{Username: &taken}, field: "username"},
		{name: "long username", upd: models.UserUpdate{Username: &long}, field: "username"},
		{name: "long phone", upd: models.UserUpdate{Phone: &phone}, field: "phone"},
		{name: "bad email", upd: models.UserUpdate{Email: &email}, field: "email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateProfile(ctx, kim.ID, kim.ID, tt.upd)
			assertValidation(t, err, tt.field)
		})
	}
}

func TestListUsersAndAverageRating(t *testing.T) {
	f := newBookingFixture(t)
	ctx := context.Background()
	svc := NewUserService(f.db, nil, avatarBucket, nil)
	b := f.request(t, f.alice.ID, jan10, jan15)
	ratings := NewRatingService(f.db, f.notifier, nil, nil)
	_, err := ratings.Submit(ctx, f.alice.ID, SubmitRatingInput{BookingID: b.ID, Stars: 3})
	require.NoError(t, err)

	page, err := svc.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
	assert.Len(t, page.Results, 2)

	avg, err := svc.AverageRating(ctx, f.owner.ID)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, avg.AverageRating, 0.001)
	assert.Equal(t, int64(1), avg.RatingCount)

	avg, err = svc.AverageRating(ctx, f.bob.ID)
	require.NoError(t, err)
	assert.Zero(t, avg.AverageRating)
}

func TestUploadAvatarReplacesPrevious(t *testing.T) {
	db := setupDB(t)
	store := &mockStore{}
	svc := NewUserService(db, store, avatarBucket, nil)
	ctx := context.Background()
	kim := seedUser(t, db, "kim")

	store.On("Upload", mock.Anything, avatarBucket, mock.MatchedBy(func(p string) bool {
		return strings.HasPrefix(p, kim.ID+"/") && strings.HasSuffix(p, ".jpg")
	}), "image/jpeg", mock.Anything).Return("https://cdn/avatars/one.jpg", nil).Once()
	u, err := svc.UploadAvatar(ctx, kim.ID, kim.ID, pngBytes(t))
	require.NoError(t, err)
	require.NotNil(t, u.AvatarURL)
	assert.Equal(t, "https://cdn/avatars/one.jpg", *u.AvatarURL)

	store.On("Upload", mock.Anything, avatarBucket, mock.Anything, "image/jpeg", mock.Anything).Return("https://cdn/avatars/two.jpg", nil).Once()
	store.On("PathFromURL", avatarBucket, "https://cdn/avatars/one.jpg").Return(kim.ID+"/one.jpg", true).Once()
	store.On("Remove", mock.Anything, avatarBucket, []string{kim.ID + "/one.jpg"}).Return(nil).Once()
	u, err = svc.UploadAvatar(ctx, kim.ID, kim.ID, pngBytes(t))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/avatars/two.jpg", *u.AvatarURL)
	store.AssertExpectations(t)

	_, err = svc.UploadAvatar(ctx, "someone-else", kim.ID, pngBytes(t))
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.UploadAvatar(ctx, kim.ID, kim.ID, nil)
	assertValidation(t, err, "avatar")
	_, err = svc.UploadAvatar(ctx, kim.ID, kim.ID, []byte("%PDF-1.4"))
	assertValidation(t, err, "avatar")
}
