package project

import (
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/asset"
	"github.com/loomworks/loom/graph"
	"github.com/loomworks/loom/types"
)

// FormatVersion identifies the serialized project layout.
const FormatVersion = "3.1"

// Project is the serialized form of a whole workspace.
type Project struct {
	Version  string         `json:"version"`
	Meta     Meta           `json:"meta"`
	Viewport Viewport       `json:"viewport"`
	Graph    GraphState     `json:"graph"`
	Assets   []types.Asset  `json:"assets,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

// Meta identifies a project.
type Meta struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
}

// Viewport is the last camera position over the canvas.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// GraphState is the serialized node and edge set.
type GraphState struct {
	Nodes []types.Node `json:"nodes"`
	Edges []types.Edge `json:"edges"`
}

// New creates an empty project with fresh metadata.
func New(name string) *Project {
	now := time.Now().UTC().Format(time.RFC3339)
	return &Project{
		Version: FormatVersion,
		Meta: Meta{
			ID:        uuid.NewString(),
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Viewport: Viewport{Zoom: 1},
	}
}

// Snapshot captures the live stores into a serializable project. The
// passed project's metadata and viewport are kept; UpdatedAt is bumped.
func Snapshot(p *Project, g *graph.Store, assets *asset.Store) *Project {
	out := *p
	out.Version = FormatVersion
	out.Meta.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	out.Graph = GraphState{
		Nodes: g.Nodes(),
		Edges: g.Edges(),
	}
	out.Assets = assets.All()
	return &out
}

// Restore loads a project's state into empty stores. Nodes are added
// parents first so containment validates.
func Restore(p *Project, g *graph.Store, assets *asset.Store) error {
	for _, a := range p.Assets {
		if err := assets.Put(a); err != nil {
			return err
		}
	}

	remaining := append([]types.Node(nil), p.Graph.Nodes...)
	for len(remaining) > 0 {
		progressed := false
		var deferred []types.Node
		for _, n := range remaining {
			if n.ParentID != "" {
				if _, ok := g.Node(n.ParentID); !ok {
					deferred = append(deferred, n)
					continue
				}
			}
			if _, err := g.AddNode(n); err != nil {
				return err
			}
			progressed = true
		}
		if !progressed {
			// Orphaned parents: attach the survivors at top level.
			for _, n := range deferred {
				n.ParentID = ""
				if _, err := g.AddNode(n); err != nil {
					return err
				}
			}
			break
		}
		remaining = deferred
	}

	for _, e := range p.Graph.Edges {
		if _, err := g.AddEdge(e); err != nil {
			return err
		}
	}
	return nil
}
