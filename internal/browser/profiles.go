package browser

import (
	"fmt"

	"github.com/ternarybob/seoscan/internal/models"
)

// DeviceProfile is the fixed viewport/user-agent pair used when rendering a
// page as a given device class.
type DeviceProfile struct {
	Variant     models.DeviceVariant
	Width       int64
	Height      int64
	ScaleFactor float64
	Mobile      bool
	UserAgent   string
}

var deviceProfiles = map[models.DeviceVariant]DeviceProfile{
	models.DeviceDesktop: {
		Variant:     models.DeviceDesktop,
		Width:       1920,
		Height:      1080,
		ScaleFactor: 1,
		Mobile:      false,
		UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	},
	models.DeviceTablet: {
		Variant:     models.DeviceTablet,
		Width:       834,
		Height:      1194,
		ScaleFactor: 2,
		Mobile:      true,
		UserAgent:   "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	},
	models.DeviceMobile: {
		Variant:     models.DeviceMobile,
		Width:       390,
		Height:      844,
		ScaleFactor: 3,
		Mobile:      true,
		UserAgent:   "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
	},
}

// ProfileFor resolves a device variant to its render profile
func ProfileFor(variant models.DeviceVariant) (DeviceProfile, error) {
	profile, ok := deviceProfiles[variant]
	if !ok {
		return DeviceProfile{}, fmt.Errorf("unknown device profile: %s", variant)
	}
	return profile, nil
}
