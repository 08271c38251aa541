package pledge

import (
	"strings"
	"unicode"
)

// Counties are the 47 counties of Kenya, in county code order.
var Counties = []string{
	"Mombasa", "Kwale", "Kilifi", "Tana River", "Lamu", "Taita-Taveta",
	"Garissa", "Wajir", "Mandera", "Marsabit", "Isiolo", "Meru",
	"Tharaka-Nithi", "Embu", "Kitui", "Machakos", "Makueni", "Nyandarua",
	"Nyeri", "Kirinyaga", "Murang'a", "Kiambu", "Turkana", "West Pokot",
	"Samburu", "Trans-Nzoia", "Uasin Gishu", "Elgeyo-Marakwet", "Nandi", "Baringo",
	"Laikipia", "Nakuru", "Narok", "Kajiado", "Kericho", "Bomet",
	"Kakamega", "Vihiga", "Bungoma", "Busia", "Siaya", "Kisumu",
	"Homa Bay", "Migori", "Kisii", "Nyamira", "Nairobi",
}

var countyIndex = func() map[string]string {
	idx := make(map[string]string, len(Counties))
	for _, c := range Counties {
		idx[countyKey(c)] = c
	}
	return idx
}()

// countyKey folds case and drops everything but letters, so "taita taveta",
// "Taita-Taveta" and "MURANGA" all match.
func countyKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// CanonicalCounty returns the canonical spelling of a county name.
func CanonicalCounty(name string) (string, bool) {
	c, ok := countyIndex[countyKey(name)]
	return c, ok
}
