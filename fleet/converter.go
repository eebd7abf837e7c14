package fleet

import (
	"regexp"
	"time"
)

// RouteLookup resolves route catalog metadata for a route number. A nil
// result with a nil error is a normal miss, not a failure.
type RouteLookup func(routeNumber string) (*RouteInfo, error)

var (
	identifierPattern = regexp.MustCompile(`^([^-]+)-\d+$`)
	busNumberPattern  = regexp.MustCompile(`-(\d+)$`)
	legacyPattern     = regexp.MustCompile(`(?i)(?:Bus_|Route_)?(\d+)`)
)

// ExtractRoute pulls the route number out of a device unique identifier of
// the form "<routeNumber>-<sequence>". Returns "" when the identifier does
// not match.
func ExtractRoute(identifier string) string {
	m := identifierPattern.FindStringSubmatch(identifier)
	if m == nil {
		return ""
	}
	return m[1]
}

// extractRouteLegacy handles older device names like "Bus_138_001".
func extractRouteLegacy(name string) string {
	m := legacyPattern.FindStringSubmatch(name)
	if m == nil {
		return RouteUnknown
	}
	return m[1]
}

// extractBusNumber is the numeric suffix after the last separator, falling
// back to the raw unique identifier.
func extractBusNumber(device Device) string {
	if m := busNumberPattern.FindStringSubmatch(device.UniqueID); m != nil {
		return m[1]
	}
	if m := busNumberPattern.FindStringSubmatch(device.Name); m != nil {
		return m[1]
	}
	return device.UniqueID
}

// staleCutoff is how old a fix may be before the bus is considered offline.
const staleCutoff = 10 * time.Minute

// DeriveStatus computes the operational status of a bus. First matching
// rule wins: disabled, source-reported offline, stale fix, moving with
// ignition, ignition only, otherwise offline.
func DeriveStatus(device Device, position Position, now time.Time) BusStatus {
	switch {
	case device.Disabled:
		return StatusMaintenance
	case device.Status == DeviceOffline:
		return StatusOffline
	case now.Sub(position.FixTime) > staleCutoff:
		return StatusOffline
	case position.Attributes.Motion && position.Attributes.Ignition:
		return StatusActive
	case position.Attributes.Ignition:
		return StatusInactive
	default:
		return StatusOffline
	}
}

// Convert maps a (device, position) pair into an enriched BusLocation. A
// failing or empty route lookup never aborts conversion; the record is
// simply persisted without route info.
func Convert(device Device, position Position, lookup RouteLookup, now time.Time) BusLocation {
	routeNumber := ExtractRoute(device.UniqueID)
	if routeNumber == "" {
		routeNumber = ExtractRoute(device.Name)
	}
	if routeNumber == "" {
		routeNumber = extractRouteLegacy(device.Name)
	}

	var routeInfo *RouteInfo
	if routeNumber != RouteUnknown && lookup != nil {
		if info, err := lookup(routeNumber); err == nil && info != nil {
			resolved := *info
			if resolved.RouteName == "" {
				resolved.RouteName = resolved.StartLocation + " - " + resolved.EndLocation
			}
			routeInfo = &resolved
		}
	}

	loc := BusLocation{
		ID:          device.UniqueID,
		DeviceID:    device.ID,
		RouteNumber: routeNumber,
		BusNumber:   extractBusNumber(device),
		Latitude:    position.Latitude,
		Longitude:   position.Longitude,
		Speed:       position.Speed,
		Heading:     position.Course,
		Timestamp:   position.FixTime,
		LastUpdate:  now,
		Status:      DeriveStatus(device, position, now),
		BusInfo: BusInfo{
			PlateNumber: device.Name,
			Capacity:    defaultCapacity,
			Type:        defaultVehicleType,
			Model:       device.Model,
		},
		Attributes: BusAttributes{
			Ignition:      position.Attributes.Ignition,
			Motion:        position.Attributes.Motion,
			Distance:      position.Attributes.Distance,
			TotalDistance: position.Attributes.TotalDistance,
			Accuracy:      position.Accuracy,
		},
		RouteInfo:  routeInfo,
		IsLiveData: true,
	}

	// Driver info only when the device carries a contact; a null
	// placeholder must never reach the store.
	if device.Contact != "" {
		loc.Driver = &DriverInfo{Name: device.Contact, Phone: device.Phone}
	}

	return loc
}

const (
	defaultCapacity    = 50
	defaultVehicleType = "Standard Bus"
)

// LatestPositions deduplicates a position list to the newest fix per
// device. A fix with an equal or older fix time than the one already held
// is discarded.
func LatestPositions(positions []Position) map[int64]Position {
	latest := make(map[int64]Position, len(positions))
	for _, p := range positions {
		if cur, ok := latest[p.DeviceID]; ok && !p.FixTime.After(cur.FixTime) {
			continue
		}
		latest[p.DeviceID] = p
	}
	return latest
}

// RouteNameFallback is the display name for a route with no catalog entry.
func RouteNameFallback(routeNumber string) string {
	return "Route " + routeNumber
}
