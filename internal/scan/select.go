package scan

import (
	"github.com/aquaflora/stockscan/internal/model"
	"github.com/aquaflora/stockscan/internal/textutil"
)

// rearLabels identify a rear-facing camera, which is what a handheld
// inventory count wants. Labels are reported by the platform and may be
// localised.
var rearLabels = []string{"back", "rear", "environment", "traseira"}

// SelectDevice picks the initial device: the first whose label suggests a
// rear camera, otherwise the first device. It returns -1 for an empty list.
func SelectDevice(devices []model.Device) int {
	if len(devices) == 0 {
		return -1
	}
	for i, d := range devices {
		if textutil.ContainsAnyFold(d.Label, rearLabels...) {
			return i
		}
	}
	return 0
}
