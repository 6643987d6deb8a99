package geo

import (
	"math"
	"testing"

	"github.com/example/ride-pooling/internal/models"
)

func TestHaversineZero(t *testing.T) {
	d := Haversine(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineOneDegreeLatitude(t *testing.T) {
	d := Haversine(0, 0, 1, 0)
	// one degree of latitude is ~111.19 km on a 6371 km sphere
	if math.Abs(d-111195) > 50 {
		t.Fatalf("expected ~111195m, got %f", d)
	}
}

func TestPathLengthSumsLegs(t *testing.T) {
	a := models.Coord{Lat: 35.0, Lon: 139.0}
	b := models.Coord{Lat: 35.1, Lon: 139.0}
	c := models.Coord{Lat: 35.1, Lon: 139.1}
	got := PathLength([]models.Coord{a, b, c})
	want := Distance(a, b) + Distance(b, c)
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("got %f want %f", got, want)
	}
	if PathLength([]models.Coord{a}) != 0 {
		t.Fatal("single point path must be 0")
	}
}
