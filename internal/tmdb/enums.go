package tmdb

// Closed id/label tables for the TMDB discover filters. Filter input is
// validated against these tables: unknown genre and provider ids are skipped
// (partial filters are tolerated) while an unknown region or language is a
// client error and must be rejected by the caller.

var genreLabels = map[int]string{
	28:    "Action",
	12:    "Adventure",
	16:    "Animation",
	35:    "Comedy",
	80:    "Crime",
	99:    "Documentary",
	18:    "Drama",
	10751: "Family",
	14:    "Fantasy",
	36:    "History",
	27:    "Horror",
	10402: "Music",
	9648:  "Mystery",
	10749: "Romance",
	878:   "Science Fiction",
	10770: "TV Movie",
	53:    "Thriller",
	10752: "War",
	37:    "Western",
}

var providerLabels = map[int]string{
	8:   "Netflix",
	21:  "Stan",
	337: "Disney Plus",
	119: "Amazon Prime",
	385: "Binge",
	531: "Paramount Plus",
	2:   "Apple TV Plus",
	134: "Foxtel Now",
	132: "SBS On Demand",
	135: "ABC iview",
}

var watchRegions = map[string]string{
	"AU": "Australia",
	"US": "United States",
	"GB": "United Kingdom",
	"CA": "Canada",
	"NZ": "New Zealand",
	"DE": "Germany",
	"FR": "France",
	"IN": "India",
	"JP": "Japan",
	"BR": "Brazil",
}

var languages = map[string]string{
	"en": "English",
	"fr": "French",
	"de": "German",
	"es": "Spanish",
	"ja": "Japanese",
	"zh": "Chinese (Simplified)",
	"hi": "Hindi",
	"it": "Italian",
	"ko": "Korean",
	"pt": "Portuguese",
	"ru": "Russian",
}

const (
	DefaultRegion   = "AU"
	DefaultLanguage = "en"
)

// KnownGenre reports whether the id is in the genre table.
func KnownGenre(id int) bool {
	_, ok := genreLabels[id]
	return ok
}

// KnownProvider reports whether the id is in the provider table.
func KnownProvider(id int) bool {
	_, ok := providerLabels[id]
	return ok
}

// KnownRegion reports whether the code is a supported watch region.
func KnownRegion(code string) bool {
	_, ok := watchRegions[code]
	return ok
}

// KnownLanguage reports whether the code is a supported language.
func KnownLanguage(code string) bool {
	_, ok := languages[code]
	return ok
}

// FilterGenres drops unrecognized genre ids, preserving input order.
func FilterGenres(ids []int) []int {
	kept := make([]int, 0, len(ids))
	for _, id := range ids {
		if KnownGenre(id) {
			kept = append(kept, id)
		}
	}
	return kept
}

// FilterProviders drops unrecognized provider ids, preserving input order.
func FilterProviders(ids []int) []int {
	kept := make([]int, 0, len(ids))
	for _, id := range ids {
		if KnownProvider(id) {
			kept = append(kept, id)
		}
	}
	return kept
}
