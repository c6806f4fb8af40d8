// Package discovery advertises a provisioned joinme device over mDNS and
// finds such devices from a workstation.
//
// Once the Connectivity Manager reports Connected, the device registers a
// "_joinme._tcp" service on the station network. The TXT record carries:
//
//	fw=<firmware version>   integer version the device is running
//	ap=<ssid>               the provisioning access point name
//
// so an operator can confirm which device joined and whether its OTA check
// has taken effect, without knowing the DHCP address it was given.
//
// # Usage
//
//	adv, err := discovery.Advertise("joinme-3f2a", 80, 7, "joinme-3f2a")
//	if err != nil {
//	    return err
//	}
//	defer adv.Shutdown()
//
//	devices, err := discovery.NewScanner().Scan(ctx)
//
// # Network Requirements
//
// mDNS uses UDP port 5353 on 224.0.0.251. Both ends must be on the same
// link; routers do not forward multicast between subnets.
package discovery
