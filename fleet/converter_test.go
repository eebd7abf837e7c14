package fleet

import (
	"errors"
	"testing"
	"time"
)

func testDevice() Device {
	return Device{
		ID:       7,
		Name:     "NB-7788",
		UniqueID: "138-007",
		Status:   DeviceOnline,
	}
}

func testPosition(fixTime time.Time) Position {
	return Position{
		DeviceID:  7,
		Latitude:  6.9271,
		Longitude: 79.8612,
		Speed:     22.5,
		Course:    180,
		Accuracy:  4.2,
		FixTime:   fixTime,
		Attributes: PositionAttributes{
			Ignition: true,
			Motion:   true,
		},
	}
}

func TestExtractRoute(t *testing.T) {
	cases := []struct {
		identifier string
		want       string
	}{
		{"138-001", "138"},
		{"177-012", "177"},
		{"1-1-003", ""}, // first segment only matches when exactly one dash remains
		{"abc", ""},
		{"", ""},
		{"-001", ""},
	}
	for _, c := range cases {
		if got := ExtractRoute(c.identifier); got != c.want {
			t.Errorf("ExtractRoute(%q) = %q, want %q", c.identifier, got, c.want)
		}
	}
}

func TestConvertRouteExtraction(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name      string
		uniqueID  string
		devName   string
		wantRoute string
	}{
		{"standard identifier", "138-001", "whatever", "138"},
		{"identifier from name", "raw", "177-002", "177"},
		{"legacy bus prefix", "raw", "Bus_138_0", "138"},
		{"legacy route prefix", "raw", "Route_120_1", "120"},
		{"no route at all", "abc", "abc", RouteUnknown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			device := testDevice()
			device.UniqueID = c.uniqueID
			device.Name = c.devName
			loc := Convert(device, testPosition(now), nil, now)
			if loc.RouteNumber != c.wantRoute {
				t.Errorf("route = %q, want %q", loc.RouteNumber, c.wantRoute)
			}
		})
	}
}

func TestConvertBusNumber(t *testing.T) {
	now := time.Now()

	device := testDevice()
	loc := Convert(device, testPosition(now), nil, now)
	if loc.BusNumber != "007" {
		t.Errorf("bus number = %q, want %q", loc.BusNumber, "007")
	}

	device.UniqueID = "no-suffix-here"
	device.Name = "plain name"
	loc = Convert(device, testPosition(now), nil, now)
	if loc.BusNumber != "no-suffix-here" {
		t.Errorf("fallback bus number = %q, want raw unique id", loc.BusNumber)
	}
}

func TestDeriveStatusPrecedence(t *testing.T) {
	now := time.Now()
	fresh := now.Add(-time.Minute)
	stale := now.Add(-11 * time.Minute)

	cases := []struct {
		name     string
		disabled bool
		status   DeviceStatus
		fixTime  time.Time
		ignition bool
		motion   bool
		want     BusStatus
	}{
		{"disabled wins over everything", true, DeviceOnline, fresh, true, true, StatusMaintenance},
		{"disabled wins even when offline", true, DeviceOffline, stale, false, false, StatusMaintenance},
		{"device offline", false, DeviceOffline, fresh, true, true, StatusOffline},
		{"stale fix", false, DeviceOnline, stale, true, true, StatusOffline},
		{"moving with ignition", false, DeviceOnline, fresh, true, true, StatusActive},
		{"ignition without motion", false, DeviceOnline, fresh, true, false, StatusInactive},
		{"motion without ignition", false, DeviceOnline, fresh, false, true, StatusOffline},
		{"neither", false, DeviceOnline, fresh, false, false, StatusOffline},
		{"unknown device status moving", false, DeviceUnknown, fresh, true, true, StatusActive},
		{"stale overrides ignition", false, DeviceOnline, stale, true, false, StatusOffline},
		{"stale overrides idle", false, DeviceOnline, stale, false, true, StatusOffline},
		{"stale neither", false, DeviceOnline, stale, false, false, StatusOffline},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			device := testDevice()
			device.Disabled = c.disabled
			device.Status = c.status
			position := testPosition(c.fixTime)
			position.Attributes.Ignition = c.ignition
			position.Attributes.Motion = c.motion
			if got := DeriveStatus(device, position, now); got != c.want {
				t.Errorf("status = %q, want %q", got, c.want)
			}
		})
	}
}

func TestConvertEndToEnd(t *testing.T) {
	now := time.Now()
	device := testDevice()
	position := testPosition(now)

	loc := Convert(device, position, nil, now)

	if loc.ID != "138-007" {
		t.Errorf("id = %q, want %q", loc.ID, "138-007")
	}
	if loc.RouteNumber != "138" {
		t.Errorf("route = %q, want %q", loc.RouteNumber, "138")
	}
	if loc.BusNumber != "007" {
		t.Errorf("bus = %q, want %q", loc.BusNumber, "007")
	}
	if loc.Status != StatusActive {
		t.Errorf("status = %q, want %q", loc.Status, StatusActive)
	}
	if loc.Speed != 22.5 {
		t.Errorf("speed = %v, want 22.5", loc.Speed)
	}
	if loc.Latitude != 6.9271 || loc.Longitude != 79.8612 {
		t.Errorf("coordinates = (%v, %v)", loc.Latitude, loc.Longitude)
	}
	if !loc.IsLiveData {
		t.Error("converted telemetry must be flagged live")
	}
}

func TestConvertDriverOnlyWithContact(t *testing.T) {
	now := time.Now()

	device := testDevice()
	loc := Convert(device, testPosition(now), nil, now)
	if loc.Driver != nil {
		t.Error("driver must be absent when device has no contact")
	}

	device.Contact = "Kamal Perera"
	device.Phone = "+94771234567"
	loc = Convert(device, testPosition(now), nil, now)
	if loc.Driver == nil {
		t.Fatal("driver must be present when device has a contact")
	}
	if loc.Driver.Name != "Kamal Perera" || loc.Driver.Phone != "+94771234567" {
		t.Errorf("driver = %+v", loc.Driver)
	}
}

func TestConvertRouteLookup(t *testing.T) {
	now := time.Now()
	device := testDevice()

	t.Run("hit populates route info", func(t *testing.T) {
		lookup := func(route string) (*RouteInfo, error) {
			if route != "138" {
				t.Errorf("lookup called with %q", route)
			}
			return &RouteInfo{StartLocation: "Pettah", EndLocation: "Kaduwela"}, nil
		}
		loc := Convert(device, testPosition(now), lookup, now)
		if loc.RouteInfo == nil {
			t.Fatal("route info missing")
		}
		if loc.RouteInfo.RouteName != "Pettah - Kaduwela" {
			t.Errorf("route name = %q", loc.RouteInfo.RouteName)
		}
	})

	t.Run("miss leaves route info unset", func(t *testing.T) {
		lookup := func(string) (*RouteInfo, error) { return nil, nil }
		loc := Convert(device, testPosition(now), lookup, now)
		if loc.RouteInfo != nil {
			t.Error("route info must be unset on a miss")
		}
	})

	t.Run("failure does not abort conversion", func(t *testing.T) {
		lookup := func(string) (*RouteInfo, error) { return nil, errors.New("catalog down") }
		loc := Convert(device, testPosition(now), lookup, now)
		if loc.RouteInfo != nil {
			t.Error("route info must be unset on failure")
		}
		if loc.RouteNumber != "138" {
			t.Error("conversion must still complete")
		}
	})

	t.Run("unknown route skips lookup", func(t *testing.T) {
		called := false
		lookup := func(string) (*RouteInfo, error) { called = true; return nil, nil }
		unroutable := device
		unroutable.UniqueID = "abc"
		unroutable.Name = "abc"
		Convert(unroutable, testPosition(now), lookup, now)
		if called {
			t.Error("lookup must not run for the Unknown sentinel")
		}
	})
}

func TestLatestPositionsLatestWins(t *testing.T) {
	t1 := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 8, 31, 10, 5, 0, 0, time.UTC)

	p1 := Position{DeviceID: 7, Speed: 10, FixTime: t1}
	p2 := Position{DeviceID: 7, Speed: 20, FixTime: t2}

	for _, order := range [][]Position{{p1, p2}, {p2, p1}} {
		latest := LatestPositions(order)
		got, ok := latest[7]
		if !ok {
			t.Fatal("device missing from latest map")
		}
		if !got.FixTime.Equal(t2) {
			t.Errorf("kept fix at %v, want %v", got.FixTime, t2)
		}
	}
}

func TestLatestPositionsEqualTimestampKeepsFirst(t *testing.T) {
	ts := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	first := Position{DeviceID: 7, Speed: 10, FixTime: ts}
	second := Position{DeviceID: 7, Speed: 99, FixTime: ts}

	latest := LatestPositions([]Position{first, second})
	if latest[7].Speed != 10 {
		t.Errorf("equal fix time must not replace the held position, got speed %v", latest[7].Speed)
	}
}
