package tmdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New("test-key", server.URL, 5*time.Second)
}

func TestDiscoverQueryParams(t *testing.T) {
	var got map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/discover/movie" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		got = map[string]string{}
		for key := range r.URL.Query() {
			got[key] = r.URL.Query().Get(key)
		}
		w.Write([]byte(`{"page": 2, "total_pages": 5, "total_results": 100,
			"results": [{"id": 550}, {"id": 27205}]}`))
	})

	page, err := client.Discover(context.Background(), DiscoverQuery{
		Page:      2,
		Genres:    []int{28, 35},
		Providers: []int{8, 337},
		Region:    "US",
		Language:  "fr",
	})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	want := map[string]string{
		"api_key":              "test-key",
		"watch_region":         "US",
		"language":             "fr",
		"sort_by":              "popularity.desc",
		"page":                 "2",
		"with_genres":          "28,35",
		"with_watch_providers": "8|337",
	}
	for key, value := range want {
		if got[key] != value {
			t.Errorf("param %s = %q, want %q", key, got[key], value)
		}
	}

	if page.Page != 2 || page.TotalPages != 5 || page.TotalResults != 100 {
		t.Errorf("unexpected page metadata: %+v", page)
	}
	if len(page.MovieIDs) != 2 || page.MovieIDs[0] != "550" || page.MovieIDs[1] != "27205" {
		t.Errorf("unexpected ids: %v", page.MovieIDs)
	}
	if !page.HasMore() {
		t.Error("expected HasMore on page 2 of 5")
	}
}

func TestDiscoverDefaults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("watch_region") != DefaultRegion || q.Get("language") != DefaultLanguage {
			t.Errorf("expected default region/language, got %s/%s",
				q.Get("watch_region"), q.Get("language"))
		}
		if q.Get("page") != "1" {
			t.Errorf("expected page clamped to 1, got %s", q.Get("page"))
		}
		if q.Has("with_genres") || q.Has("with_watch_providers") {
			t.Error("expected no filter params when filters are empty")
		}
		w.Write([]byte(`{"page": 1, "total_pages": 1, "total_results": 0, "results": []}`))
	})

	page, err := client.Discover(context.Background(), DiscoverQuery{Page: 0})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if page.HasMore() {
		t.Error("expected HasMore false on the last page")
	}
}

func TestGetMovie(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movie/550" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("language") != "de" {
			t.Errorf("expected language de, got %s", r.URL.Query().Get("language"))
		}
		w.Write([]byte(`{"id": 550, "title": "Fight Club", "release_date": "1999-10-15",
			"genres": [{"id": 18, "name": "Drama"}], "runtime": 139}`))
	})

	detail, err := client.GetMovie(context.Background(), "550", "de")
	if err != nil {
		t.Fatalf("GetMovie failed: %v", err)
	}
	if detail.ID != 550 || detail.Title != "Fight Club" || detail.Runtime != 139 {
		t.Errorf("unexpected detail: %+v", detail)
	}
	if len(detail.Genres) != 1 || detail.Genres[0].Name != "Drama" {
		t.Errorf("unexpected genres: %v", detail.Genres)
	}
}

func TestGetMovieNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status_message": "not found"}`, http.StatusNotFound)
	})

	_, err := client.GetMovie(context.Background(), "999999", "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUnexpectedStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	if _, err := client.Discover(context.Background(), DiscoverQuery{}); err == nil {
		t.Error("expected an error on 429")
	}
	if _, err := client.GetMovie(context.Background(), "550", ""); errors.Is(err, ErrNotFound) {
		t.Error("a 429 must not map to ErrNotFound")
	}
}

func TestContextCancellation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.Discover(ctx, DiscoverQuery{}); err == nil {
		t.Error("expected an error when the context deadline passes")
	}
}
