package mcptools

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/localtex/cli/internal/interfaces"
	"github.com/localtex/cli/internal/session"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Target is the project the tools operate on
type Target interface {
	Add(paths []string) ([]session.Entry, error)
	Remove(trackingID uuid.UUID) error
	Resolve(ref string) (uuid.UUID, error)
	Entries() []session.Entry
	Refresh() interfaces.CycleReport
	Status() session.Status
}

// ----------------------------------------
// Tool payloads
// ----------------------------------------

type AddInput struct {
	Paths []string `json:"paths" jsonschema:"bitmap files to track (bmp, tga, jpg, jpeg or png)"`
}

type RemoveInput struct {
	Bitmap string `json:"bitmap" jsonschema:"tracking id, file name or full path of a tracked bitmap"`
}

type Empty struct{}

// Bitmap is the wire form of a tracked bitmap
type Bitmap struct {
	Name         string `json:"name"`
	TrackingID   string `json:"tracking_id"`
	WorldID      string `json:"world_id"`
	File         string `json:"file"`
	Format       string `json:"format"`
	Link         string `json:"link"`
	References   int    `json:"references"`
	LastModified string `json:"last_modified,omitempty"`
}

type BitmapList struct {
	Bitmaps []Bitmap `json:"bitmaps"`
}

type Removed struct {
	TrackingID string `json:"tracking_id"`
}

type Cycle struct {
	Checked    int  `json:"checked"`
	Changed    int  `json:"changed"`
	Broken     int  `json:"broken"`
	Recomposed bool `json:"recomposed"`
}

type StatusOutput struct {
	Root     string `json:"root"`
	World    string `json:"world"`
	Bitmaps  int    `json:"bitmaps"`
	Broken   int    `json:"broken"`
	Assets   int    `json:"assets"`
	Running  bool   `json:"running"`
	Watching bool   `json:"watching"`
	Period   string `json:"period"`
}

// ----------------------------------------
// Server
// ----------------------------------------

// Tools exposes a project as MCP tools
type Tools struct {
	target Target
}

// NewServer builds an MCP server whose tools drive target
func NewServer(target Target, version string) *mcp.Server {
	t := &Tools{target: target}
	server := mcp.NewServer(&mcp.Implementation{Name: "localtex", Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_bitmaps",
		Description: "Track local bitmap files and publish them as textures. Returns the bitmaps that were added.",
	}, t.AddBitmaps)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_bitmap",
		Description: "Stop tracking a bitmap. Everything that used it falls back to the default texture.",
	}, t.RemoveBitmap)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_bitmaps",
		Description: "List tracked bitmaps with their current texture ids and reference counts.",
	}, t.ListBitmaps)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "refresh_bitmaps",
		Description: "Check every tracked bitmap for changes now and republish the ones that changed.",
	}, t.RefreshBitmaps)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "status",
		Description: "Report the refresh timer, the file watcher and the tracked bitmap counts.",
	}, t.Status)

	return server
}

// Serve runs the server over stdin and stdout until ctx is done or the
// client disconnects
func Serve(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

func (t *Tools) AddBitmaps(ctx context.Context, req *mcp.CallToolRequest, in AddInput) (*mcp.CallToolResult, BitmapList, error) {
	if len(in.Paths) == 0 {
		return nil, BitmapList{}, fmt.Errorf("paths must not be empty")
	}
	added, err := t.target.Add(in.Paths)
	if err != nil {
		return nil, BitmapList{}, err
	}
	return nil, BitmapList{Bitmaps: toWire(added)}, nil
}

func (t *Tools) RemoveBitmap(ctx context.Context, req *mcp.CallToolRequest, in RemoveInput) (*mcp.CallToolResult, Removed, error) {
	id, err := t.target.Resolve(in.Bitmap)
	if err != nil {
		return nil, Removed{}, err
	}
	if err := t.target.Remove(id); err != nil {
		return nil, Removed{}, err
	}
	return nil, Removed{TrackingID: id.String()}, nil
}

func (t *Tools) ListBitmaps(ctx context.Context, req *mcp.CallToolRequest, _ Empty) (*mcp.CallToolResult, BitmapList, error) {
	return nil, BitmapList{Bitmaps: toWire(t.target.Entries())}, nil
}

func (t *Tools) RefreshBitmaps(ctx context.Context, req *mcp.CallToolRequest, _ Empty) (*mcp.CallToolResult, Cycle, error) {
	r := t.target.Refresh()
	return nil, Cycle{Checked: r.Checked, Changed: r.Changed, Broken: r.Broken, Recomposed: r.Recomposed}, nil
}

func (t *Tools) Status(ctx context.Context, req *mcp.CallToolRequest, _ Empty) (*mcp.CallToolResult, StatusOutput, error) {
	st := t.target.Status()
	return nil, StatusOutput{
		Root:     st.Root,
		World:    st.WorldFile,
		Bitmaps:  st.Bitmaps,
		Broken:   st.Broken,
		Assets:   st.Assets,
		Running:  st.Running,
		Watching: st.Watching,
		Period:   st.Period.String(),
	}, nil
}

func toWire(entries []session.Entry) []Bitmap {
	out := make([]Bitmap, 0, len(entries))
	for _, e := range entries {
		b := Bitmap{
			Name:       e.DisplayName,
			TrackingID: e.TrackingID.String(),
			WorldID:    e.WorldID.String(),
			File:       e.Filename,
			Format:     e.Format.String(),
			Link:       string(e.Status),
			References: e.References,
		}
		if !e.LastModified.IsZero() {
			b.LastModified = e.LastModified.UTC().Format(time.RFC3339)
		}
		out = append(out, b)
	}
	return out
}
