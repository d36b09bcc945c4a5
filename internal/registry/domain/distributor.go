package registry

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DistributorID identifies a regional distribution company.
type DistributorID int

var distributorNames = map[DistributorID]string{
	2: "2_Elektro_Celje",
	3: "3_Elektro_Ljubljana",
	4: "4_Elektro_Maribor",
	6: "6_Elektro_Gorenjska",
	7: "7_Elektro_Primorska",
}

// Valid reports whether the id is one of the fixed distributors.
func (d DistributorID) Valid() bool {
	_, ok := distributorNames[d]
	return ok
}

// SheetName returns the display name used as output sheet name.
func (d DistributorID) SheetName() string {
	return distributorNames[d]
}

// ParseDistributor parses a registry cell such as "3" or "3.0".
func ParseDistributor(value string) (DistributorID, error) {
	value = strings.TrimSpace(value)
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed != math.Trunc(parsed) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDistributor, value)
	}
	id := DistributorID(parsed)
	if !id.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDistributor, id)
	}
	return id, nil
}
