package chat

import (
	"mcpchat/mcp"
	"mcpchat/model"
	"strings"
)

// ArtifactKind is the kind of rendered output a response asks for.
type ArtifactKind string

const (
	ArtifactDashboard ArtifactKind = "dashboard"
	ArtifactReport    ArtifactKind = "report"
	ArtifactDiagram   ArtifactKind = "diagram"
)

// Artifact tells the renderer what to show next to a response.
type Artifact struct {
	Kind ArtifactKind `json:"kind"`
	// Source is "tool_call" when a tool call named the artifact and
	// "content" when it was found in the text.
	Source     string `json:"source"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// toolArtifacts maps tool name keywords to artifact kinds, checked in order.
var toolArtifacts = []struct {
	keyword string
	kind    ArtifactKind
}{
	{"dashboard", ArtifactDashboard},
	{"report", ArtifactReport},
	{"diagram", ArtifactDiagram},
}

// DetectArtifact returns the artifact a response calls for, or nil. Tool
// calls such as render_dashboard win; otherwise the content is searched for
// "Dashboard" or "Report".
func DetectArtifact(resp *model.Response) *Artifact {
	if resp == nil {
		return nil
	}

	for _, tc := range resp.ToolCalls {
		_, name := mcp.SplitToolName(tc.Name)
		name = strings.ToLower(name)
		for _, ta := range toolArtifacts {
			if strings.Contains(name, ta.keyword) {
				return &Artifact{Kind: ta.kind, Source: "tool_call", ToolCallID: tc.ID}
			}
		}
	}

	switch {
	case strings.Contains(resp.Content, "Dashboard"):
		return &Artifact{Kind: ArtifactDashboard, Source: "content"}
	case strings.Contains(resp.Content, "Report"):
		return &Artifact{Kind: ArtifactReport, Source: "content"}
	}
	return nil
}
