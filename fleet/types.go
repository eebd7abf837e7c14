package fleet

import "time"

// DeviceStatus is the online state reported by the telemetry source.
type DeviceStatus string

const (
	DeviceOnline  DeviceStatus = "online"
	DeviceOffline DeviceStatus = "offline"
	DeviceUnknown DeviceStatus = "unknown"
)

// Device is a tracked vehicle's identity record from the telemetry source.
// Owned by the source; read-only here.
type Device struct {
	ID       int64        `json:"id"`
	Name     string       `json:"name"`
	UniqueID string       `json:"uniqueId"`
	Status   DeviceStatus `json:"status"`
	Disabled bool         `json:"disabled"`
	Contact  string       `json:"contact,omitempty"`
	Phone    string       `json:"phone,omitempty"`
	Model    string       `json:"model,omitempty"`
}

// PositionAttributes is the typed form of the telemetry attribute bag.
type PositionAttributes struct {
	Ignition      bool    `json:"ignition"`
	Motion        bool    `json:"motion"`
	Distance      float64 `json:"distance"`
	TotalDistance float64 `json:"totalDistance"`
}

// Position is a single timestamped GPS fix for a device. Ephemeral;
// superseded by any later fix for the same device.
type Position struct {
	ID         int64              `json:"id"`
	DeviceID   int64              `json:"deviceId"`
	Latitude   float64            `json:"latitude"`
	Longitude  float64            `json:"longitude"`
	Speed      float64            `json:"speed"`
	Course     float64            `json:"course"`
	Accuracy   float64            `json:"accuracy"`
	FixTime    time.Time          `json:"fixTime"`
	DeviceTime time.Time          `json:"deviceTime"`
	ServerTime time.Time          `json:"serverTime"`
	Attributes PositionAttributes `json:"attributes"`
}

// BusStatus is the derived operational state of a bus.
type BusStatus string

const (
	StatusActive      BusStatus = "active"
	StatusInactive    BusStatus = "inactive"
	StatusMaintenance BusStatus = "maintenance"
	StatusOffline     BusStatus = "offline"
)

// RouteUnknown is the sentinel route number when no route can be extracted
// from a device identifier.
const RouteUnknown = "Unknown"

// BusInfo describes the physical vehicle.
type BusInfo struct {
	PlateNumber string `json:"plateNumber"`
	Capacity    int    `json:"capacity"`
	Type        string `json:"type"`
	Model       string `json:"model,omitempty"`
}

// DriverInfo is present only when the device carries a contact.
type DriverInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// OperatingHours is a route's daily service window.
type OperatingHours struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// RouteInfo is resolved route catalog metadata attached to a bus.
type RouteInfo struct {
	RouteName         string          `json:"routeName"`
	StartLocation     string          `json:"startLocation"`
	EndLocation       string          `json:"endLocation"`
	Distance          float64         `json:"distance,omitempty"`
	EstimatedDuration int             `json:"estimatedDuration,omitempty"`
	Fare              float64         `json:"fare,omitempty"`
	OperatingHours    *OperatingHours `json:"operatingHours,omitempty"`
}

// BusAttributes is the raw attribute snapshot persisted with a bus location.
type BusAttributes struct {
	Ignition      bool    `json:"ignition"`
	Motion        bool    `json:"motion"`
	Distance      float64 `json:"distance"`
	TotalDistance float64 `json:"totalDistance"`
	Accuracy      float64 `json:"accuracy"`
}

// BusLocation is the enriched, persisted, per-device authoritative record.
// Exactly one exists per device unique id at any time; Timestamp (the fix
// time) only ever advances.
type BusLocation struct {
	ID          string        `json:"id"`
	DeviceID    int64         `json:"deviceId"`
	RouteNumber string        `json:"routeNumber"`
	BusNumber   string        `json:"busNumber"`
	Latitude    float64       `json:"latitude"`
	Longitude   float64       `json:"longitude"`
	Speed       float64       `json:"speed"`
	Heading     float64       `json:"heading"`
	Timestamp   time.Time     `json:"timestamp"`
	LastUpdate  time.Time     `json:"lastUpdate"`
	Status      BusStatus     `json:"status"`
	BusInfo     BusInfo       `json:"busInfo"`
	Driver      *DriverInfo   `json:"driver,omitempty"`
	Attributes  BusAttributes `json:"attributes"`
	RouteInfo   *RouteInfo    `json:"routeInfo,omitempty"`
	IsLiveData  bool          `json:"isLiveData"`
}

// RouteAggregate is the per-route rollup computed from one sync tick's
// batch of bus locations.
type RouteAggregate struct {
	ID            string    `json:"id"`
	RouteNumber   string    `json:"routeNumber"`
	RouteName     string    `json:"routeName"`
	StartLocation string    `json:"startLocation"`
	EndLocation   string    `json:"endLocation"`
	ActiveBuses   int       `json:"activeBuses"`
	TotalBuses    int       `json:"totalBuses"`
	AverageSpeed  float64   `json:"averageSpeed"`
	LastUpdate    time.Time `json:"lastUpdate"`
}
