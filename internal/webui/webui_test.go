package webui

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skytelescope/mirrortherm/internal/interlock"
	"github.com/skytelescope/mirrortherm/internal/settings"
	"github.com/skytelescope/mirrortherm/internal/supervisor"
)

type fakeFCU struct{}

func (fakeFCU) BroadcastMode(supervisor.ILCMode) error { return nil }
func (fakeFCU) RequestServerID() error                 { return nil }
func (fakeFCU) SetPower(bool) error                     { return nil }
func (fakeFCU) EnabledMask() uint64                     { return 0 }
func (fakeFCU) NumEnabled() int                         { return 0 }

type fakePump struct{}

func (fakePump) SetPower(bool) error { return nil }

type fakeSampler struct{}

func (fakeSampler) LatestDigitalInputs() interlock.RawSample { return interlock.RawSample{} }
func (fakeSampler) WriteHeartbeat(bool) error                { return nil }

func newTestStatusPage() *StatusPage {
	loadFn := func(label string) (*settings.Root, error) { return settings.Default(), nil }
	controller := supervisor.New(fakeFCU{}, fakePump{}, fakeInterlock{}, loadFn, nil)

	data := &interlock.Data{}
	model := interlock.NewModel(interlock.DefaultSettings(), data, fakeSampler{})
	ctx := interlock.NewContext(model)

	return New(controller, ctx, data)
}

type fakeInterlock struct{}

func (fakeInterlock) Start() interlock.Result      { return interlock.Result{Kind: interlock.ResultOk} }
func (fakeInterlock) StandbyCmd() interlock.Result { return interlock.Result{Kind: interlock.ResultOk} }
func (fakeInterlock) State() interlock.State       { return interlock.Standby }

func TestStatusPageServesSnapshot(t *testing.T) {
	page := newTestStatusPage()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	page.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Offline")
	assert.Contains(t, body, "fanCoilHeatersOff")
}

func TestStatusPageNotFoundOnOtherPaths(t *testing.T) {
	page := newTestStatusPage()

	req := httptest.NewRequest(http.MethodGet, "/other", nil)
	rec := httptest.NewRecorder()
	page.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
