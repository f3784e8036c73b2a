// Package tui is the interactive display dashboard behind `ucd watch`.
//
// The dashboard lists every display with its power and volume and shows
// the selected display's controls below the list. It holds one client
// subscription and re-reads the device cache on every signal, so changes
// made elsewhere (other users, the MQTT bridge, the displays themselves)
// appear as soon as the event watcher reports them.
//
// Keys: enter toggles the display, +/- step the volume, o cycles the
// rotation, m cycles the mode, r refreshes and q quits.
package tui
