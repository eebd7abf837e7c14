package fleet

import (
	"sort"
	"time"
)

// ComputeRouteAggregates rolls up one tick's batch of bus locations into
// per-route statistics. Average speed is the mean over exactly this batch;
// aggregates are never computed across ticks. Output is ordered by route
// number for deterministic commits.
func ComputeRouteAggregates(locations []BusLocation, now time.Time) []RouteAggregate {
	type rollup struct {
		buses      []BusLocation
		totalSpeed float64
	}
	byRoute := make(map[string]*rollup)
	for _, loc := range locations {
		r, ok := byRoute[loc.RouteNumber]
		if !ok {
			r = &rollup{}
			byRoute[loc.RouteNumber] = r
		}
		r.buses = append(r.buses, loc)
		r.totalSpeed += loc.Speed
	}

	routes := make([]string, 0, len(byRoute))
	for route := range byRoute {
		routes = append(routes, route)
	}
	sort.Strings(routes)

	aggs := make([]RouteAggregate, 0, len(routes))
	for _, route := range routes {
		r := byRoute[route]
		active := 0
		for _, bus := range r.buses {
			if bus.Status == StatusActive {
				active++
			}
		}

		name := RouteNameFallback(route)
		start, end := "Unknown", "Unknown"
		if info := r.buses[0].RouteInfo; info != nil {
			if info.RouteName != "" {
				name = info.RouteName
			}
			start = info.StartLocation
			end = info.EndLocation
		}

		aggs = append(aggs, RouteAggregate{
			ID:            route,
			RouteNumber:   route,
			RouteName:     name,
			StartLocation: start,
			EndLocation:   end,
			ActiveBuses:   active,
			TotalBuses:    len(r.buses),
			AverageSpeed:  r.totalSpeed / float64(len(r.buses)),
			LastUpdate:    now,
		})
	}
	return aggs
}
