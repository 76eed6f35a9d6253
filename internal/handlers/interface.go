package handlers

import (
	"net/http"

	"verilotto/internal/models"
)

// Operation describes one route of the engine's HTTP interface.
type Operation struct {
	Name          string `json:"name"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	Authenticated bool   `json:"authenticated"`
	AdminOnly     bool   `json:"adminOnly,omitempty"`
}

// InterfaceDescription is what the display layer needs to drive the engine.
type InterfaceDescription struct {
	Admin            models.Address `json:"admin"`
	CommitmentScheme string         `json:"commitmentScheme"`
	MinNumber        int            `json:"minNumber"`
	MaxNumber        int            `json:"maxNumber"`
	Operations       []Operation    `json:"operations"`
}

// Routes are registered from this table, so the published description and
// the router cannot drift apart.
var operations = []Operation{
	{Name: "health", Method: http.MethodGet, Path: "/healthz"},
	{Name: "metrics", Method: http.MethodGet, Path: "/metrics"},
	{Name: "describeInterface", Method: http.MethodGet, Path: "/api/interface"},
	{Name: "listRounds", Method: http.MethodGet, Path: "/api/rounds"},
	{Name: "getRound", Method: http.MethodGet, Path: "/api/rounds/:id"},
	{Name: "getWinners", Method: http.MethodGet, Path: "/api/rounds/:id/winners"},
	{Name: "exportWinners", Method: http.MethodGet, Path: "/api/rounds/:id/winners/export"},
	{Name: "aggregateStats", Method: http.MethodGet, Path: "/api/stats"},
	{Name: "events", Method: http.MethodGet, Path: "/api/events"},
	{Name: "createRound", Method: http.MethodPost, Path: "/api/rounds", Authenticated: true, AdminOnly: true},
	{Name: "buyTicket", Method: http.MethodPost, Path: "/api/rounds/:id/tickets", Authenticated: true},
	{Name: "draw", Method: http.MethodPost, Path: "/api/rounds/:id/draw", Authenticated: true, AdminOnly: true},
}

// Operations returns a copy of the route table.
func Operations() []Operation {
	return append([]Operation(nil), operations...)
}

// Describe builds the interface description for an engine instance.
func Describe(admin models.Address, commitmentScheme string) InterfaceDescription {
	return InterfaceDescription{
		Admin:            admin,
		CommitmentScheme: commitmentScheme,
		MinNumber:        models.MinNumber,
		MaxNumber:        models.MaxNumber,
		Operations:       Operations(),
	}
}
