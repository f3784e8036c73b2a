// Package mqttbridge mirrors a connect.Client's device cache to an MQTT
// broker and accepts commands from it.
//
// Every device signal republishes the merged device as retained JSON on
// {prefix}/{site}/{id}/state together with the current control values.
// Messages on {prefix}/{site}/{id}/set are dispatched through
// PerformAction:
//
//	{"action": "volume", "args": {"value": 30}}
//	{"control": "rotate", "value": "Portrait"}
//	reboot
//
// Each command's outcome is published on {prefix}/{site}/{id}/result.
// {prefix}/status carries "online" while connected and the broker
// publishes the retained "offline" will when the bridge disappears.
package mqttbridge
