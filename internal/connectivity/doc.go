// Package connectivity owns the device's path onto a Wi-Fi network.
//
// A Manager runs a small state machine:
//
//	Idle -> AttemptingStored -> Connected
//	                         -> ProvisioningActive -> Connected
//
// On Run it asks the radio to join with stored credentials and polls the
// link status a fixed number of times. When the budget runs out it switches
// the radio to AP+STA mode, starts a soft access point, starts the captive
// portal services bound to the access point address and polls until the
// station associates, servicing the DNS responder on every iteration.
//
// Credentials submitted through the portal arrive as messages on the
// Manager's request queue (Submit); only the goroutine inside Run ever talks
// to the radio's association logic or changes State.
//
// There is no failure state. Bad credentials leave the Manager provisioning
// until the operator submits again.
package connectivity
