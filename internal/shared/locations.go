package shared

// Location names a storage site fabric cuts move between.
type Location string

const (
	// LocationVeerapandi is the weaving unit where cuts originate.
	LocationVeerapandi Location = "VEERAPANDI"
	// LocationSalem is the inspection and dispatch site.
	LocationSalem Location = "SALEM"
)

// InspectionLocation is where 4-point inspection happens; a cut must have
// arrived here before an inspection can be recorded.
const InspectionLocation = LocationSalem

// ValidLocation reports whether loc names a known site.
func ValidLocation(loc Location) bool {
	switch loc {
	case LocationVeerapandi, LocationSalem:
		return true
	}
	return false
}
