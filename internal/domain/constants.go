package domain

const (
	TransportWalk    = "walk"
	TransportBike    = "bike"
	TransportCar     = "car"
	TransportTransit = "transit"
)

// TransportModes lists every travel mode the isochrone provider accepts.
var TransportModes = []string{TransportWalk, TransportBike, TransportCar, TransportTransit}

// ServiceRegions are the nine disjoint partitions of the isochrone
// provider's coverage. A location bubble is pinned to exactly one.
var ServiceRegions = []string{
	"africa",
	"central_america",
	"south_america",
	"australia",
	"britishisles",
	"asia",
	"easterneurope",
	"northamerica",
	"westcentraleurope",
}

// regions where the provider has no transit routing data
var noTransitRegions = map[string]bool{
	"africa":          true,
	"central_america": true,
}

func RegionSupportsTransit(region string) bool {
	return !noTransitRegions[region]
}

func ValidTransportMode(mode string) bool {
	for _, m := range TransportModes {
		if m == mode {
			return true
		}
	}
	return false
}

func ValidServiceRegion(region string) bool {
	for _, r := range ServiceRegions {
		if r == region {
			return true
		}
	}
	return false
}

// MaxBudgetSeconds caps a location bubble's travel-time budget (2 hours).
const MaxBudgetSeconds = 7200
