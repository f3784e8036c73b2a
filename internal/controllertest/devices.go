package controllertest

// DefaultDevices returns two displays of different models.
func DefaultDevices() []map[string]any {
	return []map[string]any{
		{
			"id":     "d1",
			"name":   "Lobby",
			"online": true,
			"type":   map[string]any{"name": "UC-Display-7"},
			"shadow": map[string]any{
				"display":    true,
				"volume":     float64(20),
				"brightness": float64(80),
				"rotate":     "landscapePrim",
				"mode":       "web",
			},
			"featureFlags": map[string]any{
				"volume": map[string]any{"max": float64(100)},
			},
		},
		{
			"id":     "d2",
			"name":   "Boardroom",
			"online": true,
			"model":  "UC-Cast",
			"type":   map[string]any{"name": "UC-Cast"},
			"shadow": map[string]any{
				"display": false,
				"volume":  float64(5),
				"mode":    "digitalSignage",
			},
			"extraInfo": map[string]any{"maxVolume": float64(40)},
		},
	}
}

// applyAction mutates a stored record the way a display would after
// executing the action.
func applyAction(device map[string]any, name string, args map[string]any) {
	shadow, _ := device["shadow"].(map[string]any)
	if shadow == nil {
		shadow = map[string]any{}
		device["shadow"] = shadow
	}

	switch name {
	case "display_on", "power_on":
		shadow["display"] = true
	case "display_off", "power_off":
		shadow["display"] = false
	case "volume", "set_volume":
		if v, ok := args["value"]; ok {
			shadow["volume"] = v
		}
	case "brightness":
		if v, ok := args["value"]; ok {
			shadow["brightness"] = v
		}
	case "rotate":
		if v, ok := args["scale"].(string); ok {
			shadow["rotate"] = v
		}
	case "switch":
		if v, ok := args["mode"].(string); ok {
			shadow["mode"] = v
		}
	case "load_website":
		if v, ok := args["url"].(string); ok {
			shadow["mode"] = "web"
			shadow["currentHomePage"] = v
		}
	case "load_youtube":
		if v, ok := args["url"].(string); ok {
			shadow["mode"] = "youtube"
			shadow["currentYouTubePage"] = v
		}
	case "play":
		shadow["mode"] = "digitalSignage"
		if v, ok := args["playlistId"].(string); ok {
			shadow["playlistId"] = v
		}
	case "stop":
		shadow["mode"] = "idle"
	}
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case map[string]any:
			out[k] = cloneMap(t)
		case []any:
			items := make([]any, len(t))
			for i, item := range t {
				if m, ok := item.(map[string]any); ok {
					items[i] = cloneMap(m)
				} else {
					items[i] = item
				}
			}
			out[k] = items
		default:
			out[k] = v
		}
	}
	return out
}
