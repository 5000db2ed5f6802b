//
//  internal/requestinfo/requestinfo.go
//
//  Per-request audit metadata: a request id, the client address with an
//  optional geolocation, and a parsed user-agent fingerprint.  Record
//  writes log these beside the acting user so an admin can tell where a
//  submission came from.  The structs are inert and safe to log or
//  JSON-encode.
//
//  Dependencies
//  • github.com/avct/uasurfer          (UA parsing)
//  • github.com/oschwald/geoip2-golang (MaxMind lookup, optional)
//  • github.com/google/uuid            (request ids)
//

package requestinfo

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
)

// UA holds the parsed user-agent properties.
type UA struct {
	Browser     string `json:"browser"`
	Version     string `json:"version"`
	OS          string `json:"os"`
	Device      string `json:"device"`
	IsBot       bool   `json:"bot"`
	PrimaryLang string `json:"lang,omitempty"`
}

// RequestInfo is stored in the request context by Enrich.
type RequestInfo struct {
	ID         string    `json:"id"`
	IP         net.IP    `json:"ip"`
	CountryISO string    `json:"country,omitempty"`
	City       string    `json:"city,omitempty"`
	UA         UA        `json:"ua"`
	Start      time.Time `json:"start"`
}

// Fields flattens the info for a sugared logger.
func (ri *RequestInfo) Fields() []any {
	if ri == nil {
		return nil
	}
	out := []any{"request_id", ri.ID, "ip", ri.IP.String(), "browser", ri.UA.Browser, "device", ri.UA.Device}
	if ri.UA.IsBot {
		out = append(out, "bot", true)
	}
	if ri.CountryISO != "" {
		out = append(out, "country", ri.CountryISO)
	}
	return out
}

type ctxKey struct{} // unexported, collision-proof

// WithInfo stores ri in ctx.
func WithInfo(ctx context.Context, ri *RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, ri)
}

// FromContext returns the pointer previously stored by Enrich.
// It returns nil if the middleware has not run.
func FromContext(ctx context.Context) *RequestInfo {
	v, _ := ctx.Value(ctxKey{}).(*RequestInfo)
	return v
}

// IsBot reports a crawler user agent on the request in ctx.
func IsBot(ctx context.Context) bool {
	ri := FromContext(ctx)
	return ri != nil && ri.UA.IsBot
}

/*──────────────────────────── geolocation ──────────────────────────────────*/

// Geo is a read-only MaxMind handle.  A nil *Geo answers every lookup
// with nothing.
type Geo struct{ r *geoip2.Reader }

// OpenGeo opens a GeoLite2-City database.  An empty path returns nil.
func OpenGeo(path string) (*Geo, error) {
	if path == "" {
		return nil, nil
	}
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip db %s: %w", path, err)
	}
	return &Geo{r: r}, nil
}

// Close releases the database.
func (g *Geo) Close() error {
	if g == nil {
		return nil
	}
	return g.r.Close()
}

// Lookup returns the ISO country and English city name for ip.
func (g *Geo) Lookup(ip net.IP) (country, city string) {
	if g == nil || ip == nil {
		return "", ""
	}
	rec, err := g.r.City(ip)
	if err != nil {
		return "", ""
	}
	return rec.Country.IsoCode, rec.City.Names["en"]
}

/*──────────────────────────── user agent ───────────────────────────────────*/

// ParseUA converts a raw header into our UA struct using uasurfer.
func ParseUA(uaHeader, acceptLang string) UA {
	u := uasurfer.Parse(uaHeader)

	osName := strings.TrimPrefix(u.OS.Name.String(), "OS")
	if osName == "MacOSX" {
		osName = "macOS"
	}
	return UA{
		Browser:     strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		Version:     trimVersion(u.Browser.Version),
		OS:          osName,
		Device:      deviceTypeToString(u.DeviceType),
		IsBot:       u.IsBot(),
		PrimaryLang: primaryLang(acceptLang),
	}
}

// trimVersion builds "major.minor.patch" and removes trailing ".0".
func trimVersion(v uasurfer.Version) string {
	out := strings.Join([]string{
		strconv.Itoa(v.Major), strconv.Itoa(v.Minor), strconv.Itoa(v.Patch),
	}, ".")
	for strings.HasSuffix(out, ".0") {
		out = strings.TrimSuffix(out, ".0")
	}
	return out
}

// deviceTypeToString maps uasurfer.DeviceType to a user-friendly string.
func deviceTypeToString(dt uasurfer.DeviceType) string {
	switch dt {
	case uasurfer.DeviceComputer:
		return "Desktop"
	case uasurfer.DevicePhone:
		return "Phone"
	case uasurfer.DeviceTablet:
		return "Tablet"
	case uasurfer.DeviceConsole:
		return "Console"
	case uasurfer.DeviceWearable:
		return "Wearable"
	case uasurfer.DeviceTV:
		return "TV"
	default:
		return "Unknown"
	}
}

// primaryLang extracts the first language subtag before any ";q=" rule.
func primaryLang(al string) string {
	if al == "" {
		return ""
	}
	tag, _, _ := strings.Cut(al, ",")
	tag, _, _ = strings.Cut(tag, ";")
	return strings.ToLower(strings.TrimSpace(tag))
}
