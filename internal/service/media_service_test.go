package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediagallery/gallery-api/internal/domain"
	"github.com/mediagallery/gallery-api/internal/repository"
)

// memMediaStore keeps uploaded objects in memory and applies the same content checks as MinIO.
type memMediaStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	seq     int
	putErr  error
}

func newMemMediaStore() *memMediaStore {
	return &memMediaStore{objects: map[string][]byte{}}
}

func (s *memMediaStore) UploadMedia(_ context.Context, userID uint, file io.Reader, size int64) (StoredObject, error) {
	contentType, head, err := sniffMedia(file, size, 1024)
	if err != nil {
		return StoredObject{}, err
	}
	if s.putErr != nil {
		return StoredObject{}, s.putErr
	}
	rest, err := io.ReadAll(file)
	if err != nil {
		return StoredObject{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	key := fmt.Sprintf("%s/user-%d/obj-%d%s", mediaPathPrefix, userID, s.seq, allowedMediaTypes[contentType])
	s.objects[key] = append(head, rest...)
	return StoredObject{Key: key, ContentType: contentType, Size: size}, nil
}

func (s *memMediaStore) DeleteMedia(_ context.Context, userID uint, objectKey string) error {
	if err := checkObjectOwner(userID, objectKey); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectKey)
	return nil
}

func (s *memMediaStore) MediaURL(_ context.Context, objectKey string) (string, error) {
	return "https://cdn.test/" + objectKey, nil
}

func (s *memMediaStore) Ping(context.Context) error { return nil }

func (s *memMediaStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type mediaFixture struct {
	svc   *MediaService
	store *memMediaStore
	users repository.UserRepository
	alice *domain.User
	bob   *domain.User
	admin *domain.User
}

func newMediaFixture(t *testing.T) *mediaFixture {
	t.Helper()
	db := newServiceDBForTest(t)
	users := repository.NewUserRepository(db)
	fx := &mediaFixture{store: newMemMediaStore(), users: users}
	fx.svc = NewMediaService(repository.NewMediaRepository(db), users, fx.store, 3, nil)
	mk := func(name, role string) *domain.User {
		u := &domain.User{Name: name, Email: name + "@example.com", PasswordHash: "x", Role: role, IsActive: true, EmailVerified: true}
		require.NoError(t, users.Create(context.Background(), u))
		return u
	}
	fx.alice = mk("alice", domain.RoleUser)
	fx.bob = mk("bob", domain.RoleUser)
	fx.admin = mk("admin", domain.RoleAdmin)
	return fx
}

func pngFile(name string) UploadFile {
	body := append([]byte{}, pngHeader...)
	return UploadFile{Name: name, Size: int64(len(body)), Content: bytes.NewReader(body)}
}

func (fx *mediaFixture) upload(t *testing.T, owner *domain.User, public bool, title string) domain.MediaView {
	t.Helper()
	res, err := fx.svc.Upload(context.Background(), owner, MediaInput{Title: &title, IsPublic: &public, Tags: strPtr("Sunset, beach ,sunset")}, []UploadFile{pngFile(title + ".png")})
	require.NoError(t, err)
	require.Len(t, res.Media, 1)
	return res.Media[0]
}

func TestMediaServiceUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults and decoration", func(t *testing.T) {
		fx := newMediaFixture(t)
		res, err := fx.svc.Upload(ctx, fx.alice, MediaInput{}, []UploadFile{pngFile("holiday.png"), pngFile("beach.png")})
		require.NoError(t, err)
		require.Len(t, res.Media, 2)
		first := res.Media[0]
		assert.Equal(t, "holiday.png", first.Title)
		assert.True(t, first.IsPublic)
		assert.Equal(t, domain.DefaultMediaCategory, first.Category)
		assert.Equal(t, "image/png", first.ContentType)
		require.NotNil(t, first.Owner)
		assert.Equal(t, "alice", first.Owner.Name)
		assert.Contains(t, first.URL, "https://cdn.test/media/user-")
		assert.Equal(t, 2, fx.store.count())
	})

	t.Run("tags are normalized", func(t *testing.T) {
		fx := newMediaFixture(t)
		view := fx.upload(t, fx.alice, true, "shore")
		assert.Equal(t, []string{"sunset", "beach"}, view.Tags)
	})

	t.Run("rejected files are reported", func(t *testing.T) {
		fx := newMediaFixture(t)
		pdf := []byte("%PDF-1.4 not an image")
		res, err := fx.svc.Upload(ctx, fx.alice, MediaInput{}, []UploadFile{
			pngFile("ok.png"),
			{Name: "doc.pdf", Size: int64(len(pdf)), Content: bytes.NewReader(pdf)},
		})
		require.NoError(t, err)
		assert.Len(t, res.Media, 1)
		assert.Equal(t, []string{"doc.pdf"}, res.Failed)
	})

	t.Run("all rejected returns the validation error", func(t *testing.T) {
		fx := newMediaFixture(t)
		pdf := []byte("%PDF-1.4 not an image")
		_, err := fx.svc.Upload(ctx, fx.alice, MediaInput{}, []UploadFile{{Name: "doc.pdf", Size: int64(len(pdf)), Content: bytes.NewReader(pdf)}})
		assert.True(t, errors.Is(err, ErrInvalidFileType))

		_, err = fx.svc.Upload(ctx, fx.alice, MediaInput{}, []UploadFile{{Name: "big.png", Size: 4096, Content: bytes.NewReader(pngHeader)}})
		assert.True(t, errors.Is(err, ErrFileTooBig))
	})

	t.Run("storage failure is unexpected", func(t *testing.T) {
		fx := newMediaFixture(t)
		fx.store.putErr = ErrUploadFailed
		_, err := fx.svc.Upload(ctx, fx.alice, MediaInput{}, []UploadFile{pngFile("a.png")})
		assert.True(t, errors.Is(err, ErrUploadFailed))
		assert.Equal(t, KindUnexpected, KindOf(err))
	})

	t.Run("request limits", func(t *testing.T) {
		fx := newMediaFixture(t)
		_, err := fx.svc.Upload(ctx, fx.alice, MediaInput{}, nil)
		assert.Equal(t, KindValidation, KindOf(err))

		files := []UploadFile{pngFile("1.png"), pngFile("2.png"), pngFile("3.png"), pngFile("4.png")}
		_, err = fx.svc.Upload(ctx, fx.alice, MediaInput{}, files)
		assert.Equal(t, KindValidation, KindOf(err))

		_, err = fx.svc.Upload(ctx, fx.alice, MediaInput{Category: strPtr("selfies")}, []UploadFile{pngFile("a.png")})
		assert.Equal(t, KindValidation, KindOf(err))
		assert.Equal(t, 0, fx.store.count())
	})
}

func TestMediaServiceVisibility(t *testing.T) {
	ctx := context.Background()
	fx := newMediaFixture(t)
	public := fx.upload(t, fx.alice, true, "public")
	private := fx.upload(t, fx.alice, false, "private")

	anon, err := fx.svc.List(ctx, nil, MediaListQuery{})
	require.NoError(t, err)
	require.Len(t, anon.Media, 1)
	assert.Equal(t, public.ID, anon.Media[0].ID)

	owner, err := fx.svc.List(ctx, fx.alice, MediaListQuery{})
	require.NoError(t, err)
	assert.Len(t, owner.Media, 2)

	_, err = fx.svc.Get(ctx, fx.bob, private.ID)
	assert.True(t, errors.Is(err, ErrMediaPrivate))
	_, err = fx.svc.Get(ctx, nil, private.ID)
	assert.True(t, errors.Is(err, ErrMediaPrivate))

	view, err := fx.svc.Get(ctx, fx.admin, private.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Views)

	view, err = fx.svc.Get(ctx, fx.bob, public.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Views)

	_, err = fx.svc.Get(ctx, fx.bob, 999)
	assert.True(t, errors.Is(err, ErrMediaNotFound))

	mine, err := fx.svc.ListMine(ctx, fx.bob, MediaListQuery{})
	require.NoError(t, err)
	assert.Empty(t, mine.Media)
}

func TestMediaServiceSearch(t *testing.T) {
	ctx := context.Background()
	fx := newMediaFixture(t)
	fx.upload(t, fx.alice, true, "Mountain lake")
	fx.upload(t, fx.alice, true, "City night")

	_, err := fx.svc.Search(ctx, nil, MediaListQuery{})
	assert.Equal(t, KindValidation, KindOf(err))

	page, err := fx.svc.Search(ctx, nil, MediaListQuery{Search: "lake"})
	require.NoError(t, err)
	require.Len(t, page.Media, 1)
	assert.Equal(t, "Mountain lake", page.Media[0].Title)

	page, err = fx.svc.Search(ctx, nil, MediaListQuery{Tags: "beach"})
	require.NoError(t, err)
	assert.Len(t, page.Media, 2)

	_, err = fx.svc.Search(ctx, nil, MediaListQuery{Category: "food"})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestMediaServiceUpdateDeleteAndLikes(t *testing.T) {
	ctx := context.Background()
	fx := newMediaFixture(t)
	view := fx.upload(t, fx.alice, true, "draft")
	item, err := fx.svc.Find(ctx, view.ID)
	require.NoError(t, err)

	updated, err := fx.svc.Update(ctx, fx.alice, item, MediaInput{Title: strPtr("final"), Category: strPtr("nature"), IsPublic: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Title)
	assert.Equal(t, "nature", updated.Category)
	assert.False(t, updated.IsPublic)

	_, err = fx.svc.Update(ctx, fx.alice, item, MediaInput{Title: strPtr("   ")})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = fx.svc.ToggleLike(ctx, fx.bob, item.ID)
	assert.True(t, errors.Is(err, ErrMediaPrivate))

	_, err = fx.svc.Update(ctx, fx.alice, item, MediaInput{IsPublic: boolPtr(true)})
	require.NoError(t, err)

	like, err := fx.svc.ToggleLike(ctx, fx.bob, item.ID)
	require.NoError(t, err)
	assert.Equal(t, LikeResult{Liked: true, LikesCount: 1}, *like)

	viewed, err := fx.svc.Get(ctx, fx.bob, item.ID)
	require.NoError(t, err)
	assert.True(t, viewed.LikedByMe)
	assert.Equal(t, int64(1), viewed.LikesCount)

	like, err = fx.svc.ToggleLike(ctx, fx.bob, item.ID)
	require.NoError(t, err)
	assert.Equal(t, LikeResult{Liked: false, LikesCount: 0}, *like)

	stats, err := fx.svc.StatsForUser(ctx, fx.alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalMedia)

	require.NoError(t, fx.svc.Delete(ctx, item))
	assert.Equal(t, 0, fx.store.count())
	_, err = fx.svc.Find(ctx, item.ID)
	assert.True(t, errors.Is(err, ErrMediaNotFound))
}

func TestMediaServiceUserStats(t *testing.T) {
	ctx := context.Background()
	fx := newMediaFixture(t)
	for i := 0; i < 6; i++ {
		fx.upload(t, fx.alice, i%3 != 0, fmt.Sprintf("shot-%d", i))
	}
	fx.upload(t, fx.bob, true, "elsewhere")

	report, err := fx.svc.UserStats(ctx, fx.alice, fx.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, fx.alice.ID, report.User.ID)
	assert.Equal(t, domain.MediaStats{TotalMedia: 6, PublicMedia: 4, PrivateMedia: 2}, report.Stats)
	require.Len(t, report.RecentMedia, 5)
	assert.Equal(t, "shot-5", report.RecentMedia[0].Title)
	assert.NotEmpty(t, report.RecentMedia[0].URL)
	assert.Equal(t, []domain.CategoryCount{{Category: domain.DefaultMediaCategory, Count: 6}}, report.CategoryStats)

	_, err = fx.svc.UserStats(ctx, fx.bob, fx.alice.ID)
	assert.True(t, errors.Is(err, ErrNotOwner))

	byAdmin, err := fx.svc.UserStats(ctx, fx.admin, fx.alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), byAdmin.Stats.TotalMedia)

	_, err = fx.svc.UserStats(ctx, fx.admin, 999)
	assert.True(t, errors.Is(err, ErrUserNotFound))

	empty, err := fx.svc.UserStats(ctx, fx.admin, fx.admin.ID)
	require.NoError(t, err)
	assert.Empty(t, empty.RecentMedia)
	assert.NotNil(t, empty.CategoryStats)
}

func TestMediaServiceListByOwnerShowsPublicOnly(t *testing.T) {
	ctx := context.Background()
	fx := newMediaFixture(t)
	public := fx.upload(t, fx.alice, true, "open")
	fx.upload(t, fx.alice, false, "closed")
	fx.upload(t, fx.bob, true, "bobs")

	for _, viewer := range []*domain.User{fx.bob, fx.alice, fx.admin} {
		page, err := fx.svc.ListByOwner(ctx, viewer, fx.alice.ID, MediaListQuery{})
		require.NoError(t, err)
		require.Len(t, page.Media, 1, "viewer %s", viewer.Name)
		assert.Equal(t, public.ID, page.Media[0].ID)
	}

	_, err := fx.svc.ListByOwner(ctx, fx.bob, fx.alice.ID, MediaListQuery{Category: "food"})
	assert.Equal(t, KindValidation, KindOf(err))
}
