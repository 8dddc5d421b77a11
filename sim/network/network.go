// Package network holds the control-agnostic road network description
// consumed by the kernel at start/reset time: edges, routes, and
// traffic-light programs loaded from an XML network file.
package network

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

// Phase is one traffic-light phase within a program.
type Phase struct {
	Duration float64 `xml:"duration,attr"` // phase duration in seconds
	State    string  `xml:"state,attr"`    // per-link signal string, e.g. "GrGr"
}

// TrafficLight is one tlLogic program entry of the network file.
type TrafficLight struct {
	ID        string  `xml:"id,attr"`
	Type      string  `xml:"type,attr"`
	ProgramID string  `xml:"programID,attr"`
	Offset    float64 `xml:"offset,attr"`
	Phases    []Phase `xml:"phase"`
}

// Edge is a directed road segment.
type Edge struct {
	ID         string  `xml:"id,attr"`
	From       string  `xml:"from,attr"`
	To         string  `xml:"to,attr"`
	Length     float64 `xml:"length,attr"` // meters
	SpeedLimit float64 `xml:"speed,attr"`  // m/s
}

// Route is an ordered edge sequence a vehicle can traverse.
type Route struct {
	ID    string
	Edges []string
}

// Network is the opaque handle the kernel loads and steps against.
type Network struct {
	Name          string
	Edges         []Edge
	Routes        []Route
	TrafficLights []TrafficLight

	edgeIndex map[string]*Edge
}

type xmlRoute struct {
	ID    string `xml:"id,attr"`
	Edges string `xml:"edges,attr"` // space-separated edge ids
}

type xmlNetwork struct {
	XMLName       xml.Name       `xml:"net"`
	Name          string         `xml:"name,attr"`
	Edges         []Edge         `xml:"edge"`
	Routes        []xmlRoute     `xml:"route"`
	TrafficLights []TrafficLight `xml:"tlLogic"`
}

// Load parses a network description file. The path is an explicit value
// supplied by the caller; there is no process-wide project root.
func Load(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open network file: %w", err)
	}
	defer f.Close()

	var raw xmlNetwork
	if err := xml.NewDecoder(f).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse network file %s: %w", path, err)
	}
	if raw.Name == "" {
		return nil, fmt.Errorf("network file %s: missing net name attribute", path)
	}

	routes := make([]Route, 0, len(raw.Routes))
	for _, r := range raw.Routes {
		routes = append(routes, Route{ID: r.ID, Edges: strings.Fields(r.Edges)})
	}
	return New(raw.Name, raw.Edges, routes, raw.TrafficLights)
}

// New builds an in-memory network and validates route/edge references.
func New(name string, edges []Edge, routes []Route, lights []TrafficLight) (*Network, error) {
	n := &Network{
		Name:          name,
		Edges:         edges,
		Routes:        routes,
		TrafficLights: lights,
		edgeIndex:     make(map[string]*Edge, len(edges)),
	}
	for i := range n.Edges {
		e := &n.Edges[i]
		if e.ID == "" {
			return nil, fmt.Errorf("network %s: edge with empty id", name)
		}
		if e.Length <= 0 {
			return nil, fmt.Errorf("network %s: edge %s has non-positive length", name, e.ID)
		}
		if _, dup := n.edgeIndex[e.ID]; dup {
			return nil, fmt.Errorf("network %s: duplicate edge id %s", name, e.ID)
		}
		n.edgeIndex[e.ID] = e
	}
	for _, r := range n.Routes {
		if len(r.Edges) == 0 {
			return nil, fmt.Errorf("network %s: route %s has no edges", name, r.ID)
		}
		for _, id := range r.Edges {
			if _, ok := n.edgeIndex[id]; !ok {
				return nil, fmt.Errorf("network %s: route %s references unknown edge %s", name, r.ID, id)
			}
		}
	}
	return n, nil
}

// EdgeByID returns the edge with the given id, or nil.
func (n *Network) EdgeByID(id string) *Edge {
	return n.edgeIndex[id]
}
