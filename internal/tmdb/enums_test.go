package tmdb

import (
	"reflect"
	"testing"
)

func TestFilterGenresPreservesOrder(t *testing.T) {
	got := FilterGenres([]int{35, 12345, 28, 0, 10751})
	if !reflect.DeepEqual(got, []int{35, 28, 10751}) {
		t.Errorf("FilterGenres = %v", got)
	}

	if got := FilterGenres(nil); len(got) != 0 {
		t.Errorf("FilterGenres(nil) = %v, want empty", got)
	}
}

func TestFilterProvidersPreservesOrder(t *testing.T) {
	got := FilterProviders([]int{385, 1, 8})
	if !reflect.DeepEqual(got, []int{385, 8}) {
		t.Errorf("FilterProviders = %v", got)
	}
}

func TestKnownRegionAndLanguage(t *testing.T) {
	if !KnownRegion(DefaultRegion) {
		t.Error("default region must be in the region table")
	}
	if !KnownLanguage(DefaultLanguage) {
		t.Error("default language must be in the language table")
	}
	if KnownRegion("au") {
		t.Error("region codes are uppercase only")
	}
	if KnownLanguage("EN") {
		t.Error("language codes are lowercase only")
	}
	if KnownRegion("") || KnownLanguage("") {
		t.Error("empty codes are not known values")
	}
}
