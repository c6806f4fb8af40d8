package urls

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// DefaultHost is the firmware repository host. Both the raw file path and
// the project API are served from it.
const DefaultHost = "https://gitlab.com"

// DefaultBranch is the ref firmware files are read from.
const DefaultBranch = "master"

// VersionFile is the name of the marker holding the highest published
// firmware version as a decimal integer.
const VersionFile = "version"

// ImageFile returns the file name of the firmware image for a version.
func ImageFile(version int) string {
	return strconv.Itoa(version) + ".bin"
}

// RawFile builds the unauthenticated URL of a file in a public repository:
//
//	https://<host>/<owner>/<repo>/raw/<branch>/<dir>/<file>
//
// dir may be given percent-encoded ("thing%2Ffirmware%2F") or plain.
func RawFile(host, ownerRepo, branch, dir, file string) string {
	segments := []string{strings.TrimRight(host, "/")}
	for _, s := range splitPath(ownerRepo) {
		segments = append(segments, url.PathEscape(s))
	}
	segments = append(segments, "raw", url.PathEscape(branch))
	for _, s := range splitPath(joinPath(dir, file)) {
		segments = append(segments, url.PathEscape(s))
	}
	return strings.Join(segments, "/")
}

// APIFile builds the token-authenticated project API URL of a file:
//
//	https://<host>/api/v4/projects/<id>/repository/files/<urlencodedPath>/raw?private_token=<token>&ref=<branch>
func APIFile(host, projectID, token, branch, dir, file string) string {
	q := url.Values{}
	q.Set("private_token", token)
	q.Set("ref", branch)
	return strings.TrimRight(host, "/") +
		"/api/v4/projects/" + url.PathEscape(projectID) +
		"/repository/files/" + url.PathEscape(joinPath(dir, file)) +
		"/raw?" + q.Encode()
}

// PortalRoot is the address captured clients are sent back to.
func PortalRoot(ip net.IP) string {
	return "http://" + ip.String() + "/"
}

func joinPath(dir, file string) string {
	parts := splitPath(dir)
	if file != "" {
		parts = append(parts, file)
	}
	return strings.Join(parts, "/")
}

func splitPath(p string) []string {
	if decoded, err := url.PathUnescape(p); err == nil {
		p = decoded
	}
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
