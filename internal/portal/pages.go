package portal

import (
	"fmt"
	"html"
	"strings"

	"github.com/muurk/joinme/internal/wifi"
)

func landingPage(apSSID string) string {
	return Render(Skeleton, []Replacement{
		{SlotTitle, html.EscapeString(apSSID)},
		{SlotPayload, ""},
		{SlotBody, "<p>Choose a <a href='/wifi'>wifi access point</a>.</p>\n"},
		{SlotFooter, "<p>Check <a href='/status'>wifi status</a>.</p>\n"},
	})
}

func networksPage(apSSID string, networks []wifi.Network) string {
	return Render(Skeleton, []Replacement{
		{SlotTitle, html.EscapeString(apSSID)},
		{SlotHeading, "<h2>Network configuration</h2>\n"},
		{SlotPayload, ""},
		{SlotBody, networkForm(networks)},
	})
}

// networkForm lists one radio button per network, the first pre-checked.
func networkForm(networks []wifi.Network) string {
	var b strings.Builder
	if len(networks) == 0 {
		b.WriteString("<p>No wifi access points found :-( ")
		b.WriteString("<a href='/'>Back</a><br/><a href='/wifi'>Try again?</a></p>\n")
		return b.String()
	}

	b.WriteString("<p>Wifi access points available:</p>\n")
	b.WriteString("<p><form method='POST' action='/wifichz'>\n")
	for i, n := range networks {
		checked := ""
		if i == 0 {
			checked = " checked"
		}
		ssid := html.EscapeString(n.SSID)
		fmt.Fprintf(&b, "<input type='radio' name='ssid' value='%s'%s>%s (%d dBm)<br/>\n",
			ssid, checked, ssid, n.RSSI)
	}
	b.WriteString("<br/>Pass key: <input type='password' name='key'><br/><br/>\n")
	b.WriteString("<input type='submit' value='Submit'></form></p>\n")
	return b.String()
}

func joiningPage(apSSID, ssid string) string {
	return Render(Skeleton, []Replacement{
		{SlotTitle, html.EscapeString(apSSID)},
		{SlotHeading, "<h2>Joining wifi network...</h2>\n"},
		{SlotPayload, fmt.Sprintf("<p>Trying %s.</p>\n", html.EscapeString(ssid))},
		{SlotBody, "<p>Check <a href='/status'>wifi status</a>.</p>\n"},
	})
}

func missingSSIDPage(apSSID string) string {
	return Render(Skeleton, []Replacement{
		{SlotTitle, html.EscapeString(apSSID)},
		{SlotHeading, "<h2>No network chosen</h2>\n"},
		{SlotPayload, ""},
		{SlotBody, "<p>Pick a network from the <a href='/wifi'>list</a> and try again.</p>\n"},
	})
}

func statusPage(st Status) string {
	var b strings.Builder
	b.WriteString("<ul>\n")
	fmt.Fprintf(&b, "<li>SSID: %s</li>\n", html.EscapeString(st.SSID))
	fmt.Fprintf(&b, "<li>Status: %s</li>\n", html.EscapeString(st.Association))
	fmt.Fprintf(&b, "<li>Local IP: %s</li>\n", st.LocalIP)
	fmt.Fprintf(&b, "<li>Soft AP IP: %s</li>\n", st.APIP)
	fmt.Fprintf(&b, "<li>AP SSID name: %s</li>\n", html.EscapeString(st.APSSID))
	fmt.Fprintf(&b, "<li>State: %s</li>\n", st.State)
	b.WriteString("</ul>\n")

	return Render(Skeleton, []Replacement{
		{SlotTitle, html.EscapeString(st.APSSID)},
		{SlotHeading, "<h2>Status</h2>\n"},
		{SlotPayload, ""},
		{SlotBody, b.String()},
	})
}
