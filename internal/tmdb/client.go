// Package tmdb wraps the TMDB discover and detail endpoints behind a small
// client with explicit configuration. One discover page is 20 movies.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when TMDB reports no movie for the requested id.
var ErrNotFound = errors.New("tmdb: movie not found")

// Client talks to TMDB. Construct with New; the zero value is not usable.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

func New(apiKey, baseURL string, timeout time.Duration) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// DiscoverQuery selects one page of the filtered catalog.
type DiscoverQuery struct {
	Page      int
	Genres    []int
	Providers []int
	Region    string
	Language  string
}

// DiscoverPage is one page of discover results, ids only.
type DiscoverPage struct {
	MovieIDs     []string
	Page         int
	TotalPages   int
	TotalResults int
}

// HasMore reports whether pages remain after this one.
func (p DiscoverPage) HasMore() bool {
	return p.Page < p.TotalPages
}

// GenreRef is a genre as TMDB attaches it to a movie.
type GenreRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// MovieDetail is the per-movie payload used for match notifications and
// match listings.
type MovieDetail struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Overview    string     `json:"overview"`
	Tagline     string     `json:"tagline"`
	ReleaseDate string     `json:"release_date"`
	PosterPath  string     `json:"poster_path"`
	Genres      []GenreRef `json:"genres"`
	Runtime     int        `json:"runtime"`
	Popularity  float64    `json:"popularity"`
	VoteAverage float64    `json:"vote_average"`
}

type discoverResponse struct {
	Page         int `json:"page"`
	TotalPages   int `json:"total_pages"`
	TotalResults int `json:"total_results"`
	Results      []struct {
		ID int64 `json:"id"`
	} `json:"results"`
}

// Discover fetches one page of movie ids matching the query filters.
func (c *Client) Discover(ctx context.Context, q DiscoverQuery) (DiscoverPage, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	region := q.Region
	if region == "" {
		region = DefaultRegion
	}
	language := q.Language
	if language == "" {
		language = DefaultLanguage
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("watch_region", region)
	params.Set("language", language)
	params.Set("sort_by", "popularity.desc")
	params.Set("page", strconv.Itoa(page))
	if len(q.Genres) > 0 {
		params.Set("with_genres", joinIDs(q.Genres, ","))
	}
	if len(q.Providers) > 0 {
		params.Set("with_watch_providers", joinIDs(q.Providers, "|"))
	}

	var decoded discoverResponse
	if err := c.get(ctx, "/discover/movie", params, &decoded); err != nil {
		return DiscoverPage{}, err
	}

	ids := make([]string, 0, len(decoded.Results))
	for _, result := range decoded.Results {
		ids = append(ids, strconv.FormatInt(result.ID, 10))
	}
	return DiscoverPage{
		MovieIDs:     ids,
		Page:         decoded.Page,
		TotalPages:   decoded.TotalPages,
		TotalResults: decoded.TotalResults,
	}, nil
}

// GetMovie fetches the full detail for one movie id.
func (c *Client) GetMovie(ctx context.Context, movieID, language string) (MovieDetail, error) {
	if language == "" {
		language = DefaultLanguage
	}
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("language", language)

	var detail MovieDetail
	if err := c.get(ctx, "/movie/"+url.PathEscape(movieID), params, &detail); err != nil {
		return MovieDetail{}, err
	}
	return detail, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("tmdb request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tmdb %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tmdb %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("tmdb %s: decode: %w", path, err)
	}
	return nil
}

func joinIDs(ids []int, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, sep)
}
