// Package client is an in-process stand-in for the remote side of the
// reader bridge: isolates that call the manager, receive its
// notifications and hold reader proxies whose collection releases the
// reader.
//
//	hub := client.NewHub(nil)
//	defer hub.Close(ctx)
//
//	iso := hub.Attach()
//	proxy, err := iso.Register(ctx, rd)
//	items, err := proxy.Items(ctx)
//
// Results and errors take the shape a remote client would see: errors are
// *wire.CallError values that still match the host's sentinels with
// errors.Is.
package client
