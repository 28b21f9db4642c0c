package data

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Blog</title>
  <item>
    <title>Older</title>
    <link>https://example.com/older</link>
    <guid>older</guid>
    <pubDate>Mon, 02 Mar 2026 08:00:00 GMT</pubDate>
  </item>
  <item>
    <title> Newer </title>
    <link>https://example.com/newer</link>
    <pubDate>Mon, 02 Mar 2026 09:00:00 GMT</pubDate>
  </item>
</channel>
</rss>`

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testRSS))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFeedSource_Fetch(t *testing.T) {
	srv := newFeedServer(t)
	items, err := NewFeedSource().Fetch(context.Background(), srv.URL+"/feed")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "older" {
		t.Errorf("expected guid as id, got %q", items[0].ID)
	}
	if items[1].ID != "https://example.com/newer" || items[1].Title != "Newer" {
		t.Errorf("expected link as id and trimmed title, got %+v", items[1])
	}
	if items[1].Published.IsZero() {
		t.Error("expected parsed publication date")
	}
}

func TestFeedSource_Error(t *testing.T) {
	srv := newFeedServer(t)
	if _, err := NewFeedSource().Fetch(context.Background(), srv.URL+"/missing"); err == nil {
		t.Error("expected error for missing feed")
	}
}

func TestAccountSource_Latest(t *testing.T) {
	srv := newFeedServer(t)
	if NewAccountSource(NewFeedSource(), "") != nil {
		t.Error("expected nil source without template")
	}

	accounts := NewAccountSource(NewFeedSource(), srv.URL+"/user/%s")
	item, err := accounts.Latest(context.Background(), "golang")
	if err != nil {
		t.Fatal(err)
	}
	if item == nil || item.Title != "Newer" {
		t.Errorf("expected newest item, got %+v", item)
	}
}
