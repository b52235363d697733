package webservices

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jamesrr39/ownmap-headless/headlessrender"
	"github.com/jamesrr39/semaphore"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
	"github.com/pkg/profile"
)

const (
	tileSize     = 256
	maxZoomLevel = 24
)

var webMercator = crs.MustFromEPSG(3857)

// TileService renders the layers of a catalog as XYZ tiles in web mercator
type TileService struct {
	logger        *logpkg.Logger
	env           *headlessrender.Environment
	layerSet      *LayerSet
	sema          *semaphore.Semaphore
	shouldProfile bool
	chi.Router
}

func NewTileService(logger *logpkg.Logger, env *headlessrender.Environment, layerSet *LayerSet, sema *semaphore.Semaphore, shouldProfile bool) *TileService {
	ts := &TileService{logger, env, layerSet, sema, shouldProfile, chi.NewRouter()}

	ts.Get("/{id}/{z}/{x}/{y}", ts.handleGetTile)

	return ts
}

func (ts *TileService) handleGetTile(w http.ResponseWriter, r *http.Request) {
	if ts.shouldProfile {
		defer profile.Start().Stop()
	}

	id := chi.URLParam(r, "id")
	x := chi.URLParam(r, "x")
	y := chi.URLParam(r, "y")
	zStr := chi.URLParam(r, "z")

	ints, err := stringsToInts(x, y, zStr)
	if err != nil {
		errorsx.HTTPError(w, ts.logger, errorsx.Wrap(err), http.StatusBadRequest)
		return
	}

	tile, tileErr := tileFromXYZ(ints[0], ints[1], ints[2])
	if tileErr != nil {
		errorsx.HTTPError(w, ts.logger, tileErr, http.StatusBadRequest)
		return
	}

	extent := tileExtent(tile)
	ts.logger.Debug("serving tile %s/%s/%s of %q. Extent: %s", zStr, x, y, id, extent)

	request, tileErr := ts.layerSet.newMapRequest(r.Context(), id)
	if tileErr != nil {
		errorsx.HTTPError(w, ts.logger, tileErr, statusCodeForError(tileErr))
		return
	}
	request.SetCRS(webMercator)

	ts.sema.Add()
	defer ts.sema.Done()

	img, tileErr := ts.env.RenderImage(r.Context(), request, extent, tileSize, tileSize)
	if tileErr != nil {
		errorsx.HTTPError(w, ts.logger, tileErr, statusCodeForError(tileErr))
		return
	}

	writePNG(w, ts.logger, img)
}

func tileFromXYZ(x, y, z int) (maptile.Tile, errorsx.Error) {
	if z < 0 || z > maxZoomLevel {
		return maptile.Tile{}, errorsx.Errorf("zoom level must be between 0 and %d, but got %d", maxZoomLevel, z)
	}

	tilesPerSide := 1 << uint(z)
	if x < 0 || y < 0 || x >= tilesPerSide || y >= tilesPerSide {
		return maptile.Tile{}, errorsx.Errorf("tile %d/%d is outside of zoom level %d", x, y, z)
	}

	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z)), nil
}

// tileExtent is the extent of the tile in web mercator metres
func tileExtent(tile maptile.Tile) headless.Extent {
	bound := tile.Bound()
	southWest := project.Point(bound.Min, project.WGS84.ToMercator)
	northEast := project.Point(bound.Max, project.WGS84.ToMercator)

	return headless.NewExtent(southWest[0], southWest[1], northEast[0], northEast[1])
}

func stringsToInts(s ...string) ([]int, error) {
	var ints []int
	for _, str := range s {
		i, err := strconv.Atoi(str)
		if err != nil {
			return nil, err
		}
		ints = append(ints, i)
	}

	return ints, nil
}
