package routes

import (
	"context"
	"testing"
)

func TestGetRouteByNumber(t *testing.T) {
	c := NewStaticCatalog()

	info, err := c.GetRouteByNumber(context.Background(), "138")
	if err != nil {
		t.Fatal(err)
	}
	if info == nil {
		t.Fatal("seed route 138 not found")
	}
	if info.RouteName != "Pettah - Kaduwela" {
		t.Errorf("route name = %q", info.RouteName)
	}
	if info.StartLocation != "Pettah" || info.EndLocation != "Kaduwela" {
		t.Errorf("endpoints = %q / %q", info.StartLocation, info.EndLocation)
	}
	if info.OperatingHours == nil {
		t.Error("operating hours not set")
	}
}

func TestGetRouteByNumberMiss(t *testing.T) {
	c := NewStaticCatalog()

	info, err := c.GetRouteByNumber(context.Background(), "999")
	if err != nil {
		t.Fatal(err)
	}
	if info != nil {
		t.Errorf("unknown route resolved to %+v", info)
	}
}

func TestGetRouteByNumberReturnsCopy(t *testing.T) {
	c := NewStaticCatalog()
	ctx := context.Background()

	first, _ := c.GetRouteByNumber(ctx, "177")
	first.RouteName = "mutated"

	second, _ := c.GetRouteByNumber(ctx, "177")
	if second.RouteName != "Fort - Nugegoda" {
		t.Errorf("catalog entry mutated through returned pointer: %q", second.RouteName)
	}
}

func TestEstimates(t *testing.T) {
	c := NewStaticCatalog()
	ctx := context.Background()

	// 19 km: 19/40*60 = 28 minutes, fare 15 + 11*2.50 = 42.50.
	info, _ := c.GetRouteByNumber(ctx, "138")
	if info.EstimatedDuration != 28 {
		t.Errorf("duration = %d", info.EstimatedDuration)
	}
	if info.Fare != 42.5 {
		t.Errorf("fare = %v", info.Fare)
	}

	// Short routes stay at the base fare.
	if got := estimateFare(6); got != 15 {
		t.Errorf("short route fare = %v", got)
	}
}

func TestUpdateActiveBusCounts(t *testing.T) {
	c := NewStaticCatalog()
	ctx := context.Background()

	if err := c.UpdateActiveBusCounts(ctx, "138", 3, 5); err != nil {
		t.Fatal(err)
	}
	counts, ok := c.BusCounts("138")
	if !ok {
		t.Fatal("counts not recorded")
	}
	if counts.ActiveBuses != 3 || counts.TotalBuses != 5 {
		t.Errorf("counts = %+v", counts)
	}
	if counts.UpdatedAt.IsZero() {
		t.Error("update time not stamped")
	}
}

func TestUpdateActiveBusCountsClampsTotal(t *testing.T) {
	c := NewStaticCatalog()

	if err := c.UpdateActiveBusCounts(context.Background(), "138", 7, 2); err != nil {
		t.Fatal(err)
	}
	counts, _ := c.BusCounts("138")
	if counts.TotalBuses < counts.ActiveBuses {
		t.Errorf("total %d below active %d", counts.TotalBuses, counts.ActiveBuses)
	}
}
