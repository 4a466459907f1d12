package sqlite

import (
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBookmarks(t *testing.T) {
	db := openTestDB(t)

	if err := db.SaveBookmark(Bookmark{Account: "me@test.com", RoomJID: "b@conference.test.com", Nick: "me", AutoJoin: true}); err != nil {
		t.Fatalf("SaveBookmark returned error: %v", err)
	}
	if err := db.SaveBookmark(Bookmark{Account: "me@test.com", RoomJID: "a@conference.test.com", AcceptDefaults: true}); err != nil {
		t.Fatalf("SaveBookmark returned error: %v", err)
	}
	if err := db.SaveBookmark(Bookmark{Account: "other@test.com", RoomJID: "c@conference.test.com"}); err != nil {
		t.Fatalf("SaveBookmark returned error: %v", err)
	}

	bookmarks, err := db.GetBookmarks("me@test.com")
	if err != nil {
		t.Fatalf("GetBookmarks returned error: %v", err)
	}
	if len(bookmarks) != 2 {
		t.Fatalf("expected 2 bookmarks, got %d", len(bookmarks))
	}
	if bookmarks[0].RoomJID != "a@conference.test.com" || !bookmarks[0].AcceptDefaults {
		t.Fatalf("unexpected first bookmark %+v", bookmarks[0])
	}
	if bookmarks[1].Nick != "me" || !bookmarks[1].AutoJoin {
		t.Fatalf("unexpected second bookmark %+v", bookmarks[1])
	}
}

func TestSaveBookmarkUpdates(t *testing.T) {
	db := openTestDB(t)

	b := Bookmark{Account: "me@test.com", RoomJID: "room@conference.test.com", Nick: "old"}
	if err := db.SaveBookmark(b); err != nil {
		t.Fatalf("SaveBookmark returned error: %v", err)
	}
	b.Nick = "new"
	b.AutoJoin = true
	if err := db.SaveBookmark(b); err != nil {
		t.Fatalf("SaveBookmark returned error: %v", err)
	}

	got, err := db.GetBookmark("me@test.com", "room@conference.test.com")
	if err != nil {
		t.Fatalf("GetBookmark returned error: %v", err)
	}
	if got == nil || got.Nick != "new" || !got.AutoJoin {
		t.Fatalf("expected the updated bookmark, got %+v", got)
	}
}

func TestDeleteBookmark(t *testing.T) {
	db := openTestDB(t)

	_ = db.SaveBookmark(Bookmark{Account: "me@test.com", RoomJID: "room@conference.test.com"})
	if err := db.DeleteBookmark("me@test.com", "room@conference.test.com"); err != nil {
		t.Fatalf("DeleteBookmark returned error: %v", err)
	}

	got, err := db.GetBookmark("me@test.com", "room@conference.test.com")
	if err != nil {
		t.Fatalf("GetBookmark returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no bookmark, got %+v", got)
	}
}

func TestAppState(t *testing.T) {
	db := openTestDB(t)

	if v, err := db.GetState("last_account"); err != nil || v != "" {
		t.Fatalf("expected empty state, got %q %v", v, err)
	}
	if err := db.SetState("last_account", "me@test.com"); err != nil {
		t.Fatalf("SetState returned error: %v", err)
	}
	if v, _ := db.GetState("last_account"); v != "me@test.com" {
		t.Fatalf("expected me@test.com, got %q", v)
	}
}
