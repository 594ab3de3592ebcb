package geo

import "strings"

// Resolver turns a postcode into coordinates. The static gazetteer below is
// a coarse placeholder; a real geocoder can be swapped in behind this
// interface without touching callers.
type Resolver interface {
	Resolve(postcode string) (lat, lon float64, ok bool)
}

// Gazetteer resolves postcodes by longest known prefix of the outward code.
type Gazetteer struct {
	centroids map[string]centroid
}

type centroid struct {
	lat, lon float64
}

// NewGazetteer builds the default prefix table covering the service area.
func NewGazetteer() *Gazetteer {
	return &Gazetteer{centroids: map[string]centroid{
		"SW1A": {51.5010, -0.1416},
		"SW1":  {51.4956, -0.1420},
		"SW":   {51.4613, -0.1700},
		"SE1":  {51.5005, -0.0900},
		"SE":   {51.4700, -0.0400},
		"N1":   {51.5380, -0.0990},
		"N":    {51.5800, -0.1100},
		"NW1":  {51.5340, -0.1500},
		"NW":   {51.5550, -0.2000},
		"E1":   {51.5170, -0.0550},
		"E":    {51.5350, 0.0050},
		"EC1":  {51.5230, -0.1000},
		"EC":   {51.5160, -0.0920},
		"WC1":  {51.5230, -0.1230},
		"WC":   {51.5160, -0.1220},
		"W1":   {51.5150, -0.1410},
		"W":    {51.5120, -0.2050},
		"CR":   {51.3720, -0.1000},
		"BR":   {51.4060, 0.0150},
		"KT":   {51.3920, -0.3020},
		"TW":   {51.4470, -0.3360},
		"UB":   {51.5410, -0.4480},
		"HA":   {51.5800, -0.3420},
		"EN":   {51.6520, -0.0810},
		"IG":   {51.5590, 0.0750},
		"RM":   {51.5760, 0.1830},
		"DA":   {51.4470, 0.2060},
		"SM":   {51.3600, -0.1940},
	}}
}

// Resolve matches the outward code (text before the space) against the
// table, longest prefix first. Unknown prefixes report ok=false.
func (g *Gazetteer) Resolve(postcode string) (float64, float64, bool) {
	outward := strings.ToUpper(strings.TrimSpace(postcode))
	if i := strings.IndexByte(outward, ' '); i >= 0 {
		outward = outward[:i]
	}
	for l := len(outward); l > 0; l-- {
		if c, ok := g.centroids[outward[:l]]; ok {
			return c.lat, c.lon, true
		}
	}
	return 0, 0, false
}
