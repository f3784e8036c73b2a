// Package connect is a client for the display management API of a UniFi
// console running the Connect application.
//
// A Client owns one authenticated Session and everything layered on it:
//
//   - Directory runs the discovery chain (four Strategy implementations
//     tried in order) and stores what it finds in the Cache.
//   - Cache keeps the last authoritative record per device plus at most one
//     short-lived optimistic patch, and signals changes on a Broadcaster.
//   - Dispatcher resolves actions through the catalog, sends them and
//     installs the predicted shadow so readers see the change at once.
//   - Watcher holds the push-event WebSocket open and asks the Refresher
//     for a settled refresh whenever a device event arrives.
//
// # Usage
//
//	client, err := connect.New(connect.SessionConfig{
//	    Host:     "192.168.1.1",
//	    Username: "admin",
//	    Password: password,
//	}, connect.Options{})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if err := client.Login(ctx); err != nil {
//	    return err
//	}
//	devices := client.ListDevices(ctx)
//
//	sub := client.Subscribe()
//	defer sub.Close()
//	_ = client.StartEvents(ctx)
//	for id := range sub.C {
//	    d, _ := client.Device(id)
//	    fmt.Println(d.Name, d.Shadow)
//	}
//
// # Errors
//
// Every failure that reaches a caller is an *Error with an ErrorType, so
// callers can branch with IsAuthError, IsUnsupportedActionError and the
// other predicates. ListDevices never fails; an empty result after an
// exhausted chain is explained by Directory.LastOutcome.
package connect
