package geocoder

import "strings"

// fallbackEntry pairs a known municipality with its centroid.
// Order matters: substring matches resolve to the first entry in table order.
type fallbackEntry struct {
	Municipality string
	Lat          float64
	Lon          float64
}

// National centroid, the resolution of last resort.
const (
	nationalCentroidLat = 40.4637
	nationalCentroidLon = -3.7492
)

// fallbackTable covers the municipalities the marketplace sees most, so an
// external outage never leaves a parcel without coordinates.
var fallbackTable = []fallbackEntry{
	{"Madrid", 40.4168, -3.7038},
	{"Barcelona", 41.3874, 2.1686},
	{"Valencia", 39.4699, -0.3763},
	{"Sevilla", 37.3891, -5.9845},
	{"Zaragoza", 41.6488, -0.8891},
	{"Málaga", 36.7213, -4.4214},
	{"Murcia", 37.9922, -1.1307},
	{"Palma", 39.5696, 2.6502},
	{"Bilbao", 43.2630, -2.9350},
	{"Alicante", 38.3452, -0.4810},
	{"Córdoba", 37.8882, -4.7794},
	{"Valladolid", 41.6523, -4.7245},
	{"Getafe", 40.3083, -3.7329},
	{"Alcalá de Henares", 40.4819, -3.3635},
	{"Móstoles", 40.3223, -3.8649},
	{"Fuenlabrada", 40.2842, -3.7942},
	{"Leganés", 40.3272, -3.7635},
	{"Toledo", 39.8628, -4.0273},
	{"Guadalajara", 40.6320, -3.1600},
	{"Segovia", 40.9429, -4.1088},
}

// lookupFallback resolves a municipality against the static table.
// First exact match wins; otherwise the first substring match in table order.
func lookupFallback(municipality string) (fallbackEntry, bool) {
	needle := normalizeMunicipality(municipality)
	if needle == "" {
		return fallbackEntry{}, false
	}

	for _, entry := range fallbackTable {
		if normalizeMunicipality(entry.Municipality) == needle {
			return entry, true
		}
	}

	for _, entry := range fallbackTable {
		key := normalizeMunicipality(entry.Municipality)
		if strings.Contains(key, needle) || strings.Contains(needle, key) {
			return entry, true
		}
	}

	return fallbackEntry{}, false
}

func normalizeMunicipality(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
