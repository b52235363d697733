package crs

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-spatial/proj"
	"github.com/jamesrr39/goutil/errorsx"
)

var ErrUnsupportedCRS = errors.New("unsupported CRS")

type definition struct {
	name       string
	geographic bool
	projCode   proj.EPSGCode
	wkt        string
}

const (
	wktWGS84 = `GEOGCS["WGS 84",DATUM["WGS_1984",SPHEROID["WGS 84",6378137,298.257223563,AUTHORITY["EPSG","7030"]],AUTHORITY["EPSG","6326"]],PRIMEM["Greenwich",0,AUTHORITY["EPSG","8901"]],UNIT["degree",0.0174532925199433,AUTHORITY["EPSG","9122"]],AUTHORITY["EPSG","4326"]]`

	wktWebMercator = `PROJCS["WGS 84 / Pseudo-Mercator",` + wktWGS84 + `,PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],EXTENSION["PROJ4","+proj=merc +a=6378137 +b=6378137 +lat_ts=0 +lon_0=0 +x_0=0 +y_0=0 +k=1 +units=m +nadgrids=@null +wktext +no_defs"],AUTHORITY["EPSG","3857"]]`

	wktWorldMercator = `PROJCS["WGS 84 / World Mercator",` + wktWGS84 + `,PROJECTION["Mercator_1SP"],PARAMETER["central_meridian",0],PARAMETER["scale_factor",1],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","3395"]]`

	wktWorldEquidistantCylindrical = `PROJCS["WGS 84 / World Equidistant Cylindrical",` + wktWGS84 + `,PROJECTION["Equirectangular"],PARAMETER["standard_parallel_1",0],PARAMETER["central_meridian",0],PARAMETER["false_easting",0],PARAMETER["false_northing",0],UNIT["metre",1,AUTHORITY["EPSG","9001"]],AXIS["Easting",EAST],AXIS["Northing",NORTH],AUTHORITY["EPSG","4087"]]`
)

var definitions = map[int]definition{
	4326: {"WGS 84", true, proj.EPSG4326, wktWGS84},
	3857: {"WGS 84 / Pseudo-Mercator", false, proj.EPSG3857, wktWebMercator},
	3395: {"WGS 84 / World Mercator", false, proj.EPSG3395, wktWorldMercator},
	4087: {"WGS 84 / World Equidistant Cylindrical", false, proj.EPSG4087, wktWorldEquidistantCylindrical},
}

// legacy codes for web mercator
var aliases = map[int]int{
	900913: 3857,
	3785:   3857,
	102100: 3857,
	102113: 3857,
}

type CRS struct {
	code int
	def  definition
}

// FromEPSG looks up one of the supported codes: 4326, 3857, 3395 and 4087.
// The legacy web mercator codes 900913, 3785, 102100 and 102113 resolve to 3857.
// Any other code fails with ErrUnsupportedCRS.
func FromEPSG(code int) (*CRS, errorsx.Error) {
	canonicalCode, ok := aliases[code]
	if !ok {
		canonicalCode = code
	}

	def, ok := definitions[canonicalCode]
	if !ok {
		return nil, errorsx.Wrap(ErrUnsupportedCRS, "epsg", code)
	}

	return &CRS{canonicalCode, def}, nil
}

// MustFromEPSG is for package-level variables and tests with known codes
func MustFromEPSG(code int) *CRS {
	c, err := FromEPSG(code)
	if err != nil {
		panic(fmt.Sprintf("MustFromEPSG(%d): %s", code, err.Error()))
	}
	return c
}

var (
	wkt1AuthorityRegexp = regexp.MustCompile(`AUTHORITY\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)
	wkt2IDRegexp        = regexp.MustCompile(`ID\[\s*"EPSG"\s*,\s*(\d+)\s*\]`)
)

// FromWKT resolves a WKT (1 or 2) definition through its outermost EPSG authority.
// ESRI style definitions without an authority are matched by name.
func FromWKT(wkt string) (*CRS, errorsx.Error) {
	wkt = strings.TrimSpace(wkt)
	if wkt == "" {
		return nil, errorsx.Wrap(ErrUnsupportedCRS, "reason", "empty WKT")
	}

	for _, re := range []*regexp.Regexp{wkt1AuthorityRegexp, wkt2IDRegexp} {
		matches := re.FindAllStringSubmatch(wkt, -1)
		if len(matches) == 0 {
			continue
		}

		// the authority of the root node comes last
		code, err := strconv.Atoi(matches[len(matches)-1][1])
		if err != nil {
			return nil, errorsx.Wrap(err)
		}

		return FromEPSG(code)
	}

	code, ok := codeFromName(wkt)
	if !ok {
		return nil, errorsx.Wrap(ErrUnsupportedCRS, "wkt", wkt)
	}

	return FromEPSG(code)
}

func codeFromName(wkt string) (int, bool) {
	upper := strings.ToUpper(wkt)
	switch {
	case strings.HasPrefix(upper, "PROJCS") && (strings.Contains(upper, "WEB_MERCATOR") || strings.Contains(upper, "PSEUDO-MERCATOR") || strings.Contains(upper, "PSEUDO_MERCATOR")):
		return 3857, true
	case strings.HasPrefix(upper, "PROJCS") && strings.Contains(upper, "WORLD_MERCATOR"):
		return 3395, true
	case strings.HasPrefix(upper, "PROJCS") && strings.Contains(upper, "EQUIDISTANT_CYLINDRICAL"):
		return 4087, true
	case (strings.HasPrefix(upper, "GEOGCS") || strings.HasPrefix(upper, "GEOGCRS")) && (strings.Contains(upper, "WGS_1984") || strings.Contains(upper, "WGS 84")):
		return 4326, true
	}

	return 0, false
}

func (c *CRS) Code() int {
	return c.code
}

func (c *CRS) AuthID() string {
	return fmt.Sprintf("EPSG:%d", c.code)
}

func (c *CRS) Name() string {
	return c.def.name
}

func (c *CRS) WKT() string {
	return c.def.wkt
}

// IsGeographic is true when coordinates are longitude/latitude degrees
func (c *CRS) IsGeographic() bool {
	return c.def.geographic
}

func (c *CRS) Equal(other *CRS) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.code == other.code
}

func (c *CRS) String() string {
	return c.AuthID()
}

// SupportedCodes lists the EPSG codes FromEPSG accepts, aliases excluded
func SupportedCodes() []int {
	return []int{3395, 3857, 4087, 4326}
}
