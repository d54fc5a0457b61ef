// internal/pikoder/family.go
package pikoder

import (
	"fmt"
	"strings"

	"pikoder-service/internal/model"
)

// familyMarkers is ordered most specific first; "SSC" alone matches every
// SSC variant.
var familyMarkers = []struct {
	marker string
	family model.Family
}{
	{"UART2PPM", model.FamilyUART2PPM},
	{"USB2PPM", model.FamilyUSB2PPM},
	{"SSC-HP", model.FamilySSCHP},
	{"SSC PRO", model.FamilySSCPro},
	{"SSCe (free)", model.FamilySSCeFree},
	{"SSCe", model.FamilySSCe},
	{"SSC", model.FamilySSC},
}

// ClassifyFamily identifies the device from its status record
func ClassifyFamily(status string) (model.Family, error) {
	for _, m := range familyMarkers {
		if strings.Contains(status, m.marker) {
			return m.family, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDeviceType, status)
}
