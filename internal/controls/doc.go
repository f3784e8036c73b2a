// Package controls turns a display into the set of user-facing controls a
// front end renders (switches, sliders, selects, buttons, text inputs, a
// media player and a status sensor) and maps input on them back to catalog
// actions for connect.Client.PerformAction.
//
// Which controls a device gets depends only on its model's catalog entry,
// its reported volume and brightness ceilings, and the site's playlists.
package controls
