package router

import (
	"net/http/httptest"
	"testing"
)

func TestParseTileRequest(t *testing.T) {
	tr, err := ParseTileRequest("dem", "3", "4", "5", 20)
	if err != nil {
		t.Fatalf("ParseTileRequest: %v", err)
	}
	if tr.Layer != "dem" || tr.Z != 3 || tr.X != 4 || tr.Y != 5 {
		t.Fatalf("parsed=%+v", tr)
	}

	bad := [][4]string{
		{"", "0", "0", "0"},
		{"dem", "a", "0", "0"},
		{"dem", "0", "b", "0"},
		{"dem", "0", "0", "c"},
		{"dem", "-1", "0", "0"},
		{"dem", "21", "0", "0"},
	}
	for _, tc := range bad {
		if _, err := ParseTileRequest(tc[0], tc[1], tc[2], tc[3], 20); err == nil {
			t.Fatalf("accepted %v", tc)
		}
	}
}

func TestParseIdentifyRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "/identify?layer=dem&lon=12.5&lat=41.9&zoom=10", nil)
	ir, err := ParseIdentifyRequest(req, 20)
	if err != nil {
		t.Fatalf("ParseIdentifyRequest: %v", err)
	}
	if ir.Layer != "dem" || ir.Lon != 12.5 || ir.Lat != 41.9 || ir.Zoom != 10 {
		t.Fatalf("parsed=%+v", ir)
	}

	bad := []string{
		"/identify?lon=0&lat=0&zoom=1",
		"/identify?layer=dem&lat=0&zoom=1",
		"/identify?layer=dem&lon=x&lat=0&zoom=1",
		"/identify?layer=dem&lon=181&lat=0&zoom=1",
		"/identify?layer=dem&lon=0&lat=-91&zoom=1",
		"/identify?layer=dem&lon=0&lat=0&zoom=25",
		"/identify?layer=dem&lon=0&lat=0",
	}
	for _, url := range bad {
		if _, err := ParseIdentifyRequest(httptest.NewRequest("GET", url, nil), 20); err == nil {
			t.Fatalf("accepted %s", url)
		}
	}
}
