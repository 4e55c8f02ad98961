package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSortVideosIsStableAndIdempotent(t *testing.T) {
	videos := []Video{
		{ID: "a", Order: 2},
		{ID: "b", Order: 1},
		{ID: "c", Order: 2},
		{ID: "d", Order: 0},
		{ID: "e", Order: 1},
	}
	SortVideos(videos)
	want := []AssetID{"d", "b", "e", "a", "c"}
	for i, v := range videos {
		if v.ID != want[i] {
			t.Fatalf("pos %d: expected %s, got %s", i, want[i], v.ID)
		}
	}

	again := append([]Video(nil), videos...)
	SortVideos(again)
	for i := range videos {
		if videos[i] != again[i] {
			t.Fatalf("sort not idempotent at %d", i)
		}
	}
}

func TestAssetIDAcceptsStringOrNumber(t *testing.T) {
	var vs []Video
	raw := `[{"id":12,"asset_url":"http://x/a.mp4","asset_order":1,"asset_name":"a.mp4"},{"id":"k-9","asset_order":2,"asset_name":"b.png"}]`
	if err := json.Unmarshal([]byte(raw), &vs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if vs[0].ID != "12" || vs[1].ID != "k-9" {
		t.Fatalf("unexpected ids: %q %q", vs[0].ID, vs[1].ID)
	}
}

func TestFileNameStripsDirectories(t *testing.T) {
	cases := map[string]string{
		"clip.mp4":          "clip.mp4",
		"../../etc/passwd":  "passwd",
		"sub/dir/image.png": "image.png",
		"..":                "",
		"   ":               "",
	}
	for in, want := range cases {
		if got := (Video{LocalName: in}).FileName(); got != want {
			t.Fatalf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestApplyScheduleReportsChanges(t *testing.T) {
	var st SyncState
	ends := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	next := Playlist(uuid.New())
	snap := ScheduleSnapshot{ScheduleEndsAt: &ends, NextPlaylist: next}

	if !st.ApplySchedule(snap) {
		t.Fatalf("expected change on first apply")
	}
	same := ends
	snap.ScheduleEndsAt = &same
	if st.ApplySchedule(snap) {
		t.Fatalf("expected no change on identical snapshot")
	}
	snap.NextPlaylist = NoPlaylist()
	if !st.ApplySchedule(snap) {
		t.Fatalf("expected change when next playlist cleared")
	}
}

func TestErrorKindMatching(t *testing.T) {
	base := &Error{Kind: ErrFetch, Op: "fetch videos", Endpoint: "/playlists/x/videos", Status: 503}
	wrapped := fmt.Errorf("sync: %w", base)

	if !errors.Is(wrapped, ErrFetch) || !IsFetch(wrapped) {
		t.Fatalf("expected fetch kind")
	}
	if errors.Is(wrapped, ErrIO) {
		t.Fatalf("unexpected io kind")
	}
	if KindName(wrapped) != "fetch" {
		t.Fatalf("unexpected kind name %q", KindName(wrapped))
	}
	if KindName(errors.New("boom")) != "unknown" || KindName(nil) != "" {
		t.Fatalf("unexpected kind names for plain errors")
	}
}
