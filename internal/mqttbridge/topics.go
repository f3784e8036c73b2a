package mqttbridge

import (
	"fmt"
	"strings"
)

// DefaultSite is used in topics when the session has no site.
const DefaultSite = "default"

// Topics builds the bridge's topic names under a prefix and site.
//
//	{prefix}/status                 availability, retained, LWT
//	{prefix}/{site}/{id}/state      merged device, retained
//	{prefix}/{site}/{id}/set        commands in
//	{prefix}/{site}/{id}/result     command outcome
type Topics struct {
	Prefix string
	Site   string
}

// NewTopics returns topics for prefix and site, with empty values replaced
// by their defaults.
func NewTopics(prefix, site string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "ucd"
	}
	if site == "" {
		site = DefaultSite
	}
	return Topics{Prefix: prefix, Site: site}
}

// Status is the availability topic.
func (t Topics) Status() string {
	return t.Prefix + "/status"
}

// State is the retained state topic of one device.
func (t Topics) State(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/state", t.Prefix, t.Site, deviceID)
}

// Set is the command topic of one device.
func (t Topics) Set(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/set", t.Prefix, t.Site, deviceID)
}

// Result is the command outcome topic of one device.
func (t Topics) Result(deviceID string) string {
	return fmt.Sprintf("%s/%s/%s/result", t.Prefix, t.Site, deviceID)
}

// AllSet matches the command topic of every device in the site.
func (t Topics) AllSet() string {
	return t.Set("+")
}

// DeviceFromSet extracts the device id from a concrete command topic.
func (t Topics) DeviceFromSet(topic string) (string, bool) {
	prefix := fmt.Sprintf("%s/%s/", t.Prefix, t.Site)
	rest, ok := strings.CutPrefix(topic, prefix)
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/set")
	if !ok || !validSegment(id) {
		return "", false
	}
	return id, true
}

// validSegment rejects ids that would span or wildcard topic levels.
func validSegment(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/+#")
}
