package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// CapabilityManager controls per-session capability tag activation.
// Implemented by the agent runtime's session state.
type CapabilityManager interface {
	// RequestCapability activates a capability tag for the session.
	RequestCapability(tag string) error
	// DropCapability deactivates a capability tag for the session.
	DropCapability(tag string) error
	// ActiveTags returns the set of currently active tags.
	ActiveTags() map[string]bool
}

// CapabilityManifest describes a capability tag for the manifest.
type CapabilityManifest struct {
	Tag          string
	Description  string
	Tools        []string
	AlwaysActive bool
	// Context lists paths loaded into the session when this tag is
	// activated (reference docs, schemas, style guides).
	Context []string
}

// SetCapabilityTools adds request_capability and drop_capability tools
// to the registry. These tools let the agent dynamically activate or
// deactivate capability tags mid-session.
func (r *Registry) SetCapabilityTools(mgr CapabilityManager, manifest []CapabilityManifest) {
	r.registerRequestCapability(mgr, manifest)
	r.registerDropCapability(mgr, manifest)
}

// registerRequestCapability registers the request_capability tool.
func (r *Registry) registerRequestCapability(mgr CapabilityManager, manifest []CapabilityManifest) {
	byTag := make(map[string]CapabilityManifest, len(manifest))

	var availableDesc strings.Builder
	availableDesc.WriteString("Activate a capability tag to gain access to additional tools. ")
	availableDesc.WriteString("Available capabilities:\n")
	for _, m := range manifest {
		byTag[m.Tag] = m
		if m.AlwaysActive {
			continue // Always-active tags aren't listed — they can't be toggled.
		}
		availableDesc.WriteString(fmt.Sprintf("- **%s**: %s (tools: %s)",
			m.Tag, m.Description, strings.Join(m.Tools, ", ")))
		if len(m.Context) > 0 {
			availableDesc.WriteString(fmt.Sprintf(" (context: %d file", len(m.Context)))
			if len(m.Context) != 1 {
				availableDesc.WriteString("s")
			}
			availableDesc.WriteString(")")
		}
		availableDesc.WriteString("\n")
	}
	availableDesc.WriteString("Use drop_capability to deactivate a tag when you no longer need those tools.")

	r.Register(&Tool{
		Name:            "request_capability",
		Description:     availableDesc.String(),
		AlwaysAvailable: true,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tag": map[string]any{
					"type":        "string",
					"description": "The capability tag to activate",
				},
			},
			"required": []string{"tag"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			tag, _ := args["tag"].(string)
			if tag == "" {
				return "", fmt.Errorf("tag is required")
			}

			if err := mgr.RequestCapability(tag); err != nil {
				return "", err
			}

			result := fmt.Sprintf("Capability **%s** activated. Tools for this tag are now available.", tag)
			if m, ok := byTag[tag]; ok {
				if len(m.Tools) > 0 {
					result += " Tools: " + strings.Join(m.Tools, ", ") + "."
				}
				if len(m.Context) > 0 {
					result += fmt.Sprintf(" Context loaded: %d files.", len(m.Context))
				}
			}
			return result, nil
		},
	})
}

// registerDropCapability registers the drop_capability tool.
func (r *Registry) registerDropCapability(mgr CapabilityManager, manifest []CapabilityManifest) {
	r.Register(&Tool{
		Name:            "drop_capability",
		Description:     "Deactivate a capability tag to remove its tools from the active set. Always-active tags cannot be dropped. Use when you no longer need a capability's tools to keep the tool set focused.",
		AlwaysAvailable: true,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tag": map[string]any{
					"type":        "string",
					"description": "The capability tag to deactivate",
				},
			},
			"required": []string{"tag"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			tag, _ := args["tag"].(string)
			if tag == "" {
				return "", fmt.Errorf("tag is required")
			}

			if err := mgr.DropCapability(tag); err != nil {
				return "", err
			}

			var active []string
			for t, on := range mgr.ActiveTags() {
				if on {
					active = append(active, t)
				}
			}
			sort.Strings(active)

			result := fmt.Sprintf("Capability **%s** deactivated. Its tools are no longer available.", tag)
			for _, m := range manifest {
				if m.Tag == tag && len(m.Tools) > 0 {
					result += " Removed tools: " + strings.Join(m.Tools, ", ") + "."
				}
			}
			result += fmt.Sprintf(" Active tags: %s", strings.Join(active, ", "))
			return result, nil
		},
	})
}

// BuildCapabilityManifest creates a sorted list of capability descriptions
// from the config maps. This is used both for the tool description and for
// generating the capability manifest briefed to the model. contextFiles
// may be nil.
func BuildCapabilityManifest(tags map[string][]string, descriptions map[string]string, alwaysActive map[string]bool, contextFiles map[string][]string) []CapabilityManifest {
	manifest := make([]CapabilityManifest, 0, len(tags))
	for tag, toolNames := range tags {
		manifest = append(manifest, CapabilityManifest{
			Tag:          tag,
			Description:  descriptions[tag],
			Tools:        toolNames,
			AlwaysActive: alwaysActive[tag],
			Context:      contextFiles[tag],
		})
	}
	sort.Slice(manifest, func(i, j int) bool {
		return manifest[i].Tag < manifest[j].Tag
	})
	return manifest
}
