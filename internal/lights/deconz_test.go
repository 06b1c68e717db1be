package lights_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"deconzctl/internal/deconz"
	"deconzctl/internal/lights"
)

func TestDeconzControllerDiscover(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"2": {"name": "Outside lighting", "type": "Dimmable light", "modelid": "TRADFRI bulb", "manufacturername": "IKEA", "uniqueid": "00:11:22:33:44:55:66:77-01", "swversion": "2.3.093", "state": {"on": false, "reachable": true, "bri": 100}},
			"1": {"name": "Bathroom light", "hascolor": true, "state": {"on": true, "reachable": true}}
		}`))
	}))
	defer server.Close()

	ctrl := lights.NewDeconzController(deconz.NewClient(server.URL, "testkey"))
	devices, err := ctrl.Discover(context.Background())
	if err != nil {
		t.Fatalf("discovering: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("device count: got %d, want 2", len(devices))
	}

	// Devices come back in ascending id order.
	if devices[0].ID != "deconz:1" || devices[1].ID != "deconz:2" {
		t.Errorf("device order: got %s, %s", devices[0].ID, devices[1].ID)
	}
	if !devices[0].HasColor {
		t.Error("bathroom light should report color support")
	}

	outside := devices[1]
	if outside.Model != "TRADFRI bulb" || outside.Manufacturer != "IKEA" {
		t.Errorf("outside metadata: got %+v", outside)
	}
	if outside.FirmwareVersion != "2.3.093" {
		t.Errorf("firmware: got %q", outside.FirmwareVersion)
	}
}

func TestDeconzControllerSetState(t *testing.T) {
	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte(`[{"success":{}}]`))
	}))
	defer server.Close()

	ctrl := lights.NewDeconzController(deconz.NewClient(server.URL, "testkey"))
	hue := uint16(1000)
	sat := uint8(200)
	if err := ctrl.SetState(context.Background(), "deconz:7", lights.StateChange{Hue: &hue, Sat: &sat}); err != nil {
		t.Fatalf("setting state: %v", err)
	}
	if gotPath != "/api/testkey/lights/7/state" {
		t.Errorf("path: got %s", gotPath)
	}
	if gotBody != `{"hue":1000,"sat":200}` {
		t.Errorf("body: got %s", gotBody)
	}
}

func TestDeconzControllerGetState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name": "Bathroom light", "state": {"on": true, "reachable": false, "bri": 10, "hue": 5000, "sat": 99}}`))
	}))
	defer server.Close()

	ctrl := lights.NewDeconzController(deconz.NewClient(server.URL, "testkey"))
	state, err := ctrl.GetState(context.Background(), "deconz:1")
	if err != nil {
		t.Fatalf("reading state: %v", err)
	}
	if !state.On || state.Reachable {
		t.Errorf("state: got %+v", state)
	}
	if state.Hue == nil || *state.Hue != 5000 || state.Sat == nil || *state.Sat != 99 {
		t.Errorf("color fields: got %+v", state)
	}
}

func TestDeconzControllerRejectsMalformedIDs(t *testing.T) {
	ctrl := lights.NewDeconzController(deconz.NewClient("http://127.0.0.1:1", "testkey"))
	for _, id := range []string{"deconz:abc", "noseparator"} {
		if err := ctrl.TurnOn(context.Background(), id); err == nil {
			t.Errorf("%q: expected an error", id)
		}
	}
}
