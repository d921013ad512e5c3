package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// DeviceInfo is a minimal, protocol-agnostic description of a device as
// seen by the tool layer — enough to list, fuzzy-match, and address it.
// Real device graphs (onboarding registry, a protocol bridge) supply
// these; this package never talks to a protocol directly.
type DeviceInfo struct {
	ID       string
	Name     string
	Category string
	State    string
	Attrs    map[string]any
}

// DeviceController is the seam between the tool registry and whatever
// owns the live device graph. It is deliberately narrow: discovery,
// state, and command dispatch, with no protocol assumptions.
type DeviceController interface {
	// ListDevices returns devices, optionally filtered by category
	// ("" means all categories).
	ListDevices(ctx context.Context, category string) ([]DeviceInfo, error)
	// GetDeviceState returns the current state of one device.
	GetDeviceState(ctx context.Context, deviceID string) (DeviceInfo, error)
	// SendCommand dispatches a command (e.g. "turn_on", "set_brightness")
	// with optional parameters to a device.
	SendCommand(ctx context.Context, deviceID, command string, params map[string]any) error
}

// FormatDeviceState formats a device's state for LLM consumption.
func FormatDeviceState(d DeviceInfo) string {
	result := fmt.Sprintf("Device: %s\nName: %s\nState: %s\n", d.ID, d.Name, d.State)
	if brightness, ok := d.Attrs["brightness"].(float64); ok {
		result += fmt.Sprintf("Brightness: %.0f%%\n", brightness)
	}
	if temp, ok := d.Attrs["temperature"].(float64); ok {
		result += fmt.Sprintf("Temperature: %.1f\n", temp)
	}
	if unit, ok := d.Attrs["unit"].(string); ok {
		result += fmt.Sprintf("Unit: %s\n", unit)
	}
	return result
}

func (r *Registry) registerDeviceTools() {
	if r.devices == nil {
		return
	}

	r.Register(&Tool{
		Name:        "list_devices",
		Description: "List known devices, optionally filtered by category (e.g., light, switch, sensor, climate, cover, lock). Use to discover what's available.",
		Category:    CategoryDevice,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"category": map[string]any{
					"type":        "string",
					"description": "Category to filter by (optional, returns all devices if omitted)",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Maximum number of devices to return (default 20)",
				},
			},
		},
		Handler: r.handleListDevices,
	})

	r.Register(&Tool{
		Name:        "get_device_state",
		Description: "Get the current state of a device by ID. Use to check if a light is on, a door is open, a sensor's reading, etc.",
		Category:    CategoryDevice,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"device_id": map[string]any{
					"type":        "string",
					"description": "The device ID",
				},
			},
			"required": []string{"device_id"},
		},
		Handler: r.handleGetDeviceState,
	})

	r.Register(&Tool{
		Name:        "find_device",
		Description: "Find a device by description and category. Use when the user refers to a device by description rather than device ID. Returns the best matching device or candidates if ambiguous.",
		Category:    CategoryDevice,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"description": map[string]any{
					"type":        "string",
					"description": "Device description, e.g., 'kitchen light', 'front door sensor', 'office fan'",
				},
				"category": map[string]any{
					"type":        "string",
					"description": "Device category if known, e.g., 'light', 'switch', 'sensor', 'climate'",
				},
			},
			"required": []string{"description"},
		},
		Handler: r.handleFindDevice,
	})

	r.Register(&Tool{
		Name:        "control_device",
		Description: "Control a device by description. Finds the device first, then sends the command. USE THIS for natural-language commands like 'turn on the kitchen light'.",
		Category:    CategoryDevice,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"description": map[string]any{
					"type":        "string",
					"description": "Device description (e.g., 'kitchen light', 'office lamp', 'bedroom fan')",
				},
				"command": map[string]any{
					"type":        "string",
					"enum":        []string{"turn_on", "turn_off", "toggle", "set_brightness", "set_color", "set_temperature", "lock", "unlock"},
					"description": "Command to send",
				},
				"brightness": map[string]any{
					"type":        "integer",
					"description": "Brightness 0-100 (for set_brightness)",
				},
				"color": map[string]any{
					"type":        "string",
					"description": "Color name (for set_color)",
				},
				"temperature": map[string]any{
					"type":        "number",
					"description": "Target temperature (for set_temperature)",
				},
			},
			"required": []string{"description", "command"},
		},
		Handler: r.handleControlDevice,
	})

	r.Register(&Tool{
		Name:        "send_device_command",
		Description: "Low-level device command. Only use if you already have the exact device_id — for natural-language requests, use control_device instead.",
		Category:    CategoryDevice,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"device_id": map[string]any{
					"type":        "string",
					"description": "The exact device ID (must be verified, not guessed)",
				},
				"command": map[string]any{
					"type":        "string",
					"description": "Command to send (e.g., turn_on, turn_off, set_temperature, lock)",
				},
				"params": map[string]any{
					"type":        "object",
					"description": "Additional command parameters (e.g., brightness, temperature)",
				},
			},
			"required": []string{"device_id", "command"},
		},
		Handler: r.handleSendDeviceCommand,
	})
}

func (r *Registry) handleListDevices(ctx context.Context, args map[string]any) (string, error) {
	category, _ := args["category"].(string)
	limit := 20
	if l, ok := args["limit"].(float64); ok {
		limit = int(l)
	}

	devices, err := r.devices.ListDevices(ctx, category)
	if err != nil {
		return "", err
	}

	if len(devices) == 0 {
		if category == "" {
			return "No devices found.", nil
		}
		return fmt.Sprintf("No devices found in category '%s'", category), nil
	}

	var lines []string
	for i, d := range devices {
		if i >= limit {
			break
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", d.ID, d.Name, d.State))
	}

	return fmt.Sprintf("Found %d device(s):\n%s", len(devices), strings.Join(lines, "\n")), nil
}

func (r *Registry) handleGetDeviceState(ctx context.Context, args map[string]any) (string, error) {
	deviceID, _ := args["device_id"].(string)
	if deviceID == "" {
		return "", fmt.Errorf("device_id is required")
	}

	state, err := r.devices.GetDeviceState(ctx, deviceID)
	if err != nil {
		return "", err
	}

	return FormatDeviceState(state), nil
}

func (r *Registry) handleFindDevice(ctx context.Context, args map[string]any) (string, error) {
	description, _ := args["description"].(string)
	category, _ := args["category"].(string)

	if description == "" {
		return "", fmt.Errorf("description is required")
	}

	if category == "" {
		category = inferCategoryFromDescription(description)
	}

	devices, err := r.devices.ListDevices(ctx, category)
	if err != nil {
		return "", fmt.Errorf("list devices: %w", err)
	}

	if len(devices) == 0 {
		cat := category
		if cat == "" {
			cat = "any"
		}
		return toJSON(FindDeviceResult{Found: false, Error: fmt.Sprintf("No %s devices found", cat)}), nil
	}

	matches := fuzzyMatchDevices(description, devices)
	if len(matches) == 0 {
		candidates := make([]string, 0, min(10, len(devices)))
		for i, d := range devices {
			if i >= 10 {
				break
			}
			candidates = append(candidates, d.Name)
		}
		return toJSON(FindDeviceResult{
			Found:      false,
			Error:      fmt.Sprintf("No device matching '%s' found", description),
			Candidates: candidates,
		}), nil
	}

	best := matches[0]
	result := FindDeviceResult{
		Found:      true,
		DeviceID:   best.DeviceID,
		Name:       best.Name,
		Confidence: best.Score,
	}
	if len(matches) > 1 && matches[1].Score > 0.5 {
		for _, m := range matches {
			result.Candidates = append(result.Candidates, m.DeviceID)
		}
	}
	return toJSON(result), nil
}

func (r *Registry) handleControlDevice(ctx context.Context, args map[string]any) (string, error) {
	description, _ := args["description"].(string)
	command, _ := args["command"].(string)
	if description == "" || command == "" {
		return "", fmt.Errorf("description and command are required")
	}

	category := inferCategoryFromDescription(description)
	devices, err := r.devices.ListDevices(ctx, category)
	if err != nil {
		return "", fmt.Errorf("list devices: %w", err)
	}

	matches := fuzzyMatchDevices(description, devices)
	if len(matches) == 0 {
		return fmt.Sprintf("Could not find a device matching '%s'", description), nil
	}

	best := matches[0]
	params := map[string]any{}
	if brightness, ok := args["brightness"].(float64); ok {
		params["brightness"] = brightness
	}
	if color, ok := args["color"].(string); ok && color != "" {
		params["color"] = color
	}
	if temperature, ok := args["temperature"].(float64); ok {
		params["temperature"] = temperature
	}

	if err := r.devices.SendCommand(ctx, best.DeviceID, command, params); err != nil {
		return "", fmt.Errorf("failed to control %s: %w", best.Name, err)
	}

	verb := strings.ReplaceAll(command, "_", " ")
	return fmt.Sprintf("Done. %s %s.", capitalize(verb), best.Name), nil
}

func (r *Registry) handleSendDeviceCommand(ctx context.Context, args map[string]any) (string, error) {
	deviceID, _ := args["device_id"].(string)
	command, _ := args["command"].(string)
	if deviceID == "" || command == "" {
		return "", fmt.Errorf("device_id and command are required")
	}

	params, _ := args["params"].(map[string]any)

	if err := r.devices.SendCommand(ctx, deviceID, command, params); err != nil {
		return "", err
	}

	return fmt.Sprintf("Successfully sent %s to %s", command, deviceID), nil
}

func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// FindDeviceResult represents the result of device discovery.
type FindDeviceResult struct {
	Found      bool     `json:"found"`
	DeviceID   string   `json:"device_id,omitempty"`
	Name       string   `json:"name,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Error      string   `json:"error,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

// DeviceMatch represents a fuzzy match result.
type DeviceMatch struct {
	DeviceID string
	Name     string
	Score    float64
}

// fuzzyMatchDevices scores devices against a description.
func fuzzyMatchDevices(description string, devices []DeviceInfo) []DeviceMatch {
	descTokens := tokenize(strings.ToLower(description))

	var matches []DeviceMatch
	for _, d := range devices {
		idScore := tokenMatchScore(descTokens, tokenize(strings.ToLower(d.ID)))
		nameScore := tokenMatchScore(descTokens, tokenize(strings.ToLower(d.Name)))

		score := max(idScore, nameScore)
		if score > 0.3 {
			matches = append(matches, DeviceMatch{DeviceID: d.ID, Name: d.Name, Score: score})
		}
	}

	for i := 0; i < len(matches)-1; i++ {
		for j := i + 1; j < len(matches); j++ {
			if matches[j].Score > matches[i].Score {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}

	return matches
}

// tokenize splits a string into lowercase tokens.
func tokenize(s string) []string {
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, ".", " ")
	s = strings.ReplaceAll(s, "-", " ")

	tokens := strings.Fields(s)
	result := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if len(t) > 1 {
			result = append(result, t)
		}
	}
	return result
}

// tokenMatchScore calculates overlap between token sets with abbreviation support.
func tokenMatchScore(query, target []string) float64 {
	if len(query) == 0 || len(target) == 0 {
		return 0
	}

	matches := 0.0
	for _, q := range query {
		bestMatch := 0.0
		for _, t := range target {
			score := 0.0
			if t == q {
				score = 1.0
			} else if strings.Contains(t, q) || strings.Contains(q, t) {
				score = 0.8
			} else if isAbbreviation(q, t) || isAbbreviation(t, q) {
				score = 0.7
			}
			if score > bestMatch {
				bestMatch = score
			}
		}
		matches += bestMatch
	}

	return matches / float64(len(query))
}

// isAbbreviation checks if 'abbr' could be an abbreviation token in 'full'.
func isAbbreviation(abbr, full string) bool {
	if len(abbr) < 2 || len(abbr) > 4 {
		return false
	}
	for _, t := range tokenize(full) {
		if t == abbr {
			return true
		}
	}
	return false
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"error":"json encoding failed"}`
	}
	return string(b)
}

// inferCategoryFromDescription guesses the device category from
// description keywords.
func inferCategoryFromDescription(description string) string {
	descLower := strings.ToLower(description)

	lightKeywords := []string{"light", "lamp", "led", "bulb", "strip", "chandelier", "sconce", "fixture"}
	for _, kw := range lightKeywords {
		if strings.Contains(descLower, kw) {
			return "light"
		}
	}

	switchKeywords := []string{"switch", "outlet", "plug", "relay"}
	for _, kw := range switchKeywords {
		if strings.Contains(descLower, kw) {
			return "switch"
		}
	}

	fanKeywords := []string{"fan", "ventilat", "exhaust"}
	for _, kw := range fanKeywords {
		if strings.Contains(descLower, kw) {
			return "fan"
		}
	}

	lockKeywords := []string{"lock", "deadbolt"}
	for _, kw := range lockKeywords {
		if strings.Contains(descLower, kw) {
			return "lock"
		}
	}

	coverKeywords := []string{"blind", "shade", "curtain", "garage", "shutter", "awning"}
	for _, kw := range coverKeywords {
		if strings.Contains(descLower, kw) {
			return "cover"
		}
	}

	climateKeywords := []string{"thermostat", "hvac", "climate", "heat", "cool", "ac ", "a/c"}
	for _, kw := range climateKeywords {
		if strings.Contains(descLower, kw) {
			return "climate"
		}
	}

	sensorKeywords := []string{"sensor", "temperature", "humidity", "motion", "door sensor", "window sensor"}
	for _, kw := range sensorKeywords {
		if strings.Contains(descLower, kw) {
			return "sensor"
		}
	}

	return ""
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
