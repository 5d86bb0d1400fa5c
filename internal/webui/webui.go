// Package webui serves a minimal, read-only HTML status page: current
// supervisory and interlock state, and the live interlock signal
// table. Every mutating command on this system is issued through the
// RPC surface, never through the web UI, so no write path is exposed
// here.
package webui

import (
	"embed"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/skytelescope/mirrortherm/internal/interlock"
	"github.com/skytelescope/mirrortherm/internal/supervisor"
)

//go:embed templates/status.html
var statusHTML embed.FS

var statusTmpl = template.Must(template.ParseFS(statusHTML, "templates/status.html"))

// StatusPage renders the supervisory/interlock snapshot on every
// request; it holds no state of its own beyond the collaborators it
// reads from.
type StatusPage struct {
	controller    *supervisor.Controller
	interlockCtx  *interlock.Context
	interlockData *interlock.Data
}

// New builds a StatusPage over the live controller and interlock
// collaborators. now is evaluated per-request, not captured here.
func New(controller *supervisor.Controller, interlockCtx *interlock.Context, interlockData *interlock.Data) *StatusPage {
	return &StatusPage{controller: controller, interlockCtx: interlockCtx, interlockData: interlockData}
}

type statusView struct {
	SupervisorState  string
	EngineeringMode  bool
	Label            string
	InterlockState   string
	HeartbeatCommand bool
	Signals          []interlock.SignalStatus
	GeneratedAt      time.Time
}

func (p *StatusPage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	label := ""
	if root := p.controller.Settings(); root != nil {
		label = root.Label
	}

	view := statusView{
		SupervisorState:  p.controller.State().String(),
		EngineeringMode:  p.controller.EngineeringModeFlag(),
		Label:            label,
		InterlockState:   p.interlockCtx.State().String(),
		HeartbeatCommand: p.interlockData.HeartbeatCommand,
		Signals:          p.interlockData.Signals(),
		GeneratedAt:      time.Now(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := statusTmpl.Execute(w, view); err != nil {
		log.Printf("webui: rendering status page: %v", err)
		http.Error(w, "internal render error", http.StatusInternalServerError)
	}
}
