package connect

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/muurk/ucd/internal/catalog"
)

// Predict translates an action into the shadow delta the controller is
// expected to report once the action lands. A nil Shadow with a nil error
// means the action has no predictable effect.
func Predict(action string, args map[string]any) (Shadow, error) {
	switch action {
	case catalog.ActionDisplayOn, catalog.ActionPowerOn:
		return Shadow{ShadowDisplay: true}, nil

	case catalog.ActionDisplayOff, catalog.ActionPowerOff:
		return Shadow{ShadowDisplay: false}, nil

	case catalog.ActionVolume, catalog.ActionSetVolume:
		return predictLevel(action, ShadowVolume, args)

	case catalog.ActionBrightness:
		return predictLevel(action, ShadowBrightness, args)

	case catalog.ActionRotate:
		if scale, ok := args["scale"].(string); ok {
			return Shadow{ShadowRotate: scale}, nil
		}

	case catalog.ActionSwitch:
		if mode, ok := args["mode"].(string); ok {
			return Shadow{ShadowMode: mode}, nil
		}

	case catalog.ActionLoadWebsite:
		if u, ok := args["url"].(string); ok {
			return Shadow{ShadowMode: "web", ShadowHomePage: u}, nil
		}

	case catalog.ActionLoadYouTube:
		if u, ok := args["url"].(string); ok {
			return Shadow{ShadowMode: "youtube", ShadowYouTube: u}, nil
		}

	case catalog.ActionPlay:
		if id, ok := args["playlistId"].(string); ok {
			return Shadow{ShadowMode: "digitalSignage", ShadowPlaylistID: id}, nil
		}

	case catalog.ActionStop:
		// The resulting mode is not knowable; the next refresh reports it.
		return nil, nil
	}

	return nil, nil
}

func predictLevel(action, key string, args map[string]any) (Shadow, error) {
	raw, ok := args["value"]
	if !ok {
		return nil, nil
	}

	switch v := raw.(type) {
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, NewPredictionError(action, err)
		}
		return Shadow{key: int(n)}, nil
	default:
		n, ok := toInt(v)
		if !ok {
			return nil, NewPredictionError(action, fmt.Errorf("value has type %T", raw))
		}
		return Shadow{key: n}, nil
	}
}
