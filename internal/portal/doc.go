// Package portal serves the provisioning web pages shown to a client that has
// joined the device's access point.
//
// # Routes
//
//	GET  /            landing page
//	GET  /wifi        fresh network scan and credential form
//	POST /wifichz     credential submission (fields ssid, key)
//	GET  /status      association state, addresses, manager state
//	GET  /status/ws   websocket pushing the status document on every change
//
// OS connectivity checks (/generate_204, /hotspot-detect.html, ...) and every
// other path are answered with 307 Temporary Redirect to the portal root, which
// is what makes phones and laptops pop up their captive portal sheet.
//
// # Pages
//
// Pages are built by positional substitution over a fixed skeleton of
// strings (see Render). A page names only the slots it changes; everything
// else comes from the skeleton.
//
// # Concurrency
//
// Handlers run on net/http goroutines. They never touch the radio's
// association directly: a submission is handed to the Connector, whose own
// goroutine issues the connect request. Only /wifi blocks, for the duration
// of a scan.
package portal
