package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mediagallery/gallery-api/internal/domain"
)

func seedMedia(t *testing.T, repo MediaRepository, ownerID uint, title string, public bool, tags string) *domain.Media {
	t.Helper()
	m := &domain.Media{
		Title:       title,
		ObjectKey:   fmt.Sprintf("media/%d/%s", ownerID, title),
		ContentType: "image/png",
		SizeBytes:   10,
		Tags:        tags,
		Category:    domain.DefaultMediaCategory,
		UserID:      ownerID,
		IsPublic:    public,
		IsActive:    true,
	}
	if err := repo.Create(t.Context(), m); err != nil {
		t.Fatalf("create media %s: %v", title, err)
	}
	return m
}

func TestMediaRepositoryVisibility(t *testing.T) {
	db := newRepositoryDBForTest(t)
	users := NewUserRepository(db)
	repo := NewMediaRepository(db)
	alice := seedUser(t, users, "alice@x.com", nil)
	bob := seedUser(t, users, "bob@x.com", nil)

	seedMedia(t, repo, alice.ID, "alice-public", true, "sky,blue")
	seedMedia(t, repo, alice.ID, "alice-private", false, "secret")
	seedMedia(t, repo, bob.ID, "bob-public", true, "sea")

	guest, err := repo.ListPaged(t.Context(), MediaListFilter{})
	if err != nil || guest.Total != 2 {
		t.Fatalf("guest should see 2 public items, got %+v err=%v", guest, err)
	}
	aliceView, err := repo.ListPaged(t.Context(), MediaListFilter{ViewerID: &alice.ID})
	if err != nil || aliceView.Total != 3 {
		t.Fatalf("alice should see 3 items, got %d err=%v", aliceView.Total, err)
	}
	bobView, err := repo.ListPaged(t.Context(), MediaListFilter{ViewerID: &bob.ID})
	if err != nil || bobView.Total != 2 {
		t.Fatalf("bob should see 2 items, got %d err=%v", bobView.Total, err)
	}
	mine, err := repo.ListPaged(t.Context(), MediaListFilter{ViewerID: &alice.ID, OwnerOnly: true})
	if err != nil || mine.Total != 2 {
		t.Fatalf("alice owns 2 items, got %d err=%v", mine.Total, err)
	}
	tagged, err := repo.ListPaged(t.Context(), MediaListFilter{Tags: []string{"blue"}})
	if err != nil || tagged.Total != 1 || tagged.Items[0].Title != "alice-public" {
		t.Fatalf("unexpected tag filter result %+v err=%v", tagged, err)
	}
	partial, err := repo.ListPaged(t.Context(), MediaListFilter{Tags: []string{"blu"}})
	if err != nil || partial.Total != 0 {
		t.Fatalf("tag filter must match whole tags, got %d err=%v", partial.Total, err)
	}
}

func TestMediaRepositoryLikesAndStats(t *testing.T) {
	db := newRepositoryDBForTest(t)
	users := NewUserRepository(db)
	repo := NewMediaRepository(db)
	owner := seedUser(t, users, "owner@x.com", nil)
	fan := seedUser(t, users, "fan@x.com", nil)
	m := seedMedia(t, repo, owner.ID, "pic", true, "")
	seedMedia(t, repo, owner.ID, "hidden", false, "")

	liked, err := repo.ToggleLike(t.Context(), m.ID, fan.ID)
	if err != nil || !liked {
		t.Fatalf("expected like, got liked=%v err=%v", liked, err)
	}
	counts, err := repo.LikeCounts(t.Context(), []uint{m.ID})
	if err != nil || counts[m.ID] != 1 {
		t.Fatalf("expected 1 like, got %v err=%v", counts, err)
	}
	byFan, err := repo.LikedBy(t.Context(), fan.ID, []uint{m.ID})
	if err != nil || !byFan[m.ID] {
		t.Fatalf("expected fan like recorded, got %v err=%v", byFan, err)
	}

	if err := repo.IncrementViews(t.Context(), m.ID); err != nil {
		t.Fatalf("increment views: %v", err)
	}
	stats, err := repo.StatsForUser(t.Context(), owner.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := domain.MediaStats{TotalMedia: 2, PublicMedia: 1, PrivateMedia: 1, TotalViews: 1, TotalLikes: 1}
	if stats != want {
		t.Fatalf("stats mismatch: got %+v want %+v", stats, want)
	}

	liked, err = repo.ToggleLike(t.Context(), m.ID, fan.ID)
	if err != nil || liked {
		t.Fatalf("expected unlike, got liked=%v err=%v", liked, err)
	}

	if err := repo.SoftDelete(t.Context(), m.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := repo.FindByID(t.Context(), m.ID); !errors.Is(err, ErrMediaNotFound) {
		t.Fatalf("expected ErrMediaNotFound after soft delete, got %v", err)
	}
}

func TestMediaRepositoryRecentAndCategoryCounts(t *testing.T) {
	db := newRepositoryDBForTest(t)
	users := NewUserRepository(db)
	repo := NewMediaRepository(db)
	owner := seedUser(t, users, "owner@x.com", nil)
	other := seedUser(t, users, "other@x.com", nil)

	var ids []uint
	for i, category := range []string{"nature", "street", "nature", "nature", "street", "portrait"} {
		m := seedMedia(t, repo, owner.ID, fmt.Sprintf("pic-%d", i), i%2 == 0, "")
		if err := repo.UpdateFields(t.Context(), m.ID, map[string]any{"category": category}); err != nil {
			t.Fatalf("set category: %v", err)
		}
		ids = append(ids, m.ID)
	}
	seedMedia(t, repo, other.ID, "not-mine", true, "")
	if err := repo.SoftDelete(t.Context(), ids[5]); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	recent, err := repo.RecentForUser(t.Context(), owner.ID, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 || recent[0].ID != ids[4] || recent[2].ID != ids[2] {
		t.Fatalf("expected newest three active items, got %+v", recent)
	}

	counts, err := repo.CategoryCounts(t.Context(), owner.ID)
	if err != nil {
		t.Fatalf("category counts: %v", err)
	}
	want := []domain.CategoryCount{{Category: "nature", Count: 3}, {Category: "street", Count: 2}}
	if len(counts) != len(want) {
		t.Fatalf("expected %v, got %v", want, counts)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("bucket %d: expected %v, got %v", i, want[i], counts[i])
		}
	}

	empty, err := repo.CategoryCounts(t.Context(), 999)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v err=%v", empty, err)
	}
}
