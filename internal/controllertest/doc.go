// Package controllertest provides an in-process UniFi Connect controller.
//
// The fake serves the vendor HTTP API over TLS with a self-signed
// certificate: every login candidate, every discovery endpoint (one
// DiscoveryMode answers at a time), device reads, status PATCHes,
// playlists, sites and the /api/ws/system push stream.
//
//	srv := controllertest.New(controllertest.Config{Mode: controllertest.ProxyIDs})
//	defer srv.Close()
//
//	client, _ := connect.New(connect.SessionConfig{
//	    Host:     srv.Host(),
//	    Username: "admin",
//	    Password: "password",
//	}, connect.Options{})
//
// Push and DropConnections drive the push stream; Hits and Actions let
// tests assert what the client sent. The same server backs `ucd simulate`.
package controllertest
