// Package wifi defines the radio collaborator the connectivity manager drives
// and the portal reads from, plus the network-stack pieces joinme ships for
// running on a host: a YAML credential store and a simulated radio.
//
// The Radio interface mirrors what a Wi-Fi driver offers: start a station
// association (with explicit or stored credentials), report link status,
// switch radio mode, bring up a soft access point and scan for networks.
//
// Persisting credentials is the network stack's job. Sim saves credentials to
// its CredentialStore only after an association succeeds, which is what an
// embedded Wi-Fi driver does with its non-volatile storage.
package wifi
