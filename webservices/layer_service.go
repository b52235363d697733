package webservices

import (
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jamesrr39/ownmap-headless/headlessrender"
	"github.com/jamesrr39/ownmap-headless/headlessrenderer"
	"github.com/jamesrr39/semaphore"
)

const (
	defaultImageSize = 256
	maxImageSize     = 4096
)

// LayerService renders the layers of a catalog as images and legends
type LayerService struct {
	logger   *logpkg.Logger
	env      *headlessrender.Environment
	layerSet *LayerSet
	sema     *semaphore.Semaphore
	chi.Router
}

func NewLayerService(logger *logpkg.Logger, env *headlessrender.Environment, layerSet *LayerSet, sema *semaphore.Semaphore) *LayerService {
	ls := &LayerService{logger, env, layerSet, sema, chi.NewRouter()}

	ls.Get("/{id}/image", ls.handleGetImage)
	ls.Get("/{id}/legend", ls.handleGetLegend)

	return ls
}

func (ls *LayerService) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	query := r.URL.Query()

	ints, err := queryInts(r, map[string]int{
		"width":   defaultImageSize,
		"height":  defaultImageSize,
		"epsg":    4326,
		"quality": headlessrenderer.DefaultQuality,
	})
	if err != nil {
		errorsx.HTTPError(w, ls.logger, err, http.StatusBadRequest)
		return
	}

	width, height := ints["width"], ints["height"]
	if width <= 0 || height <= 0 || width > maxImageSize || height > maxImageSize {
		errorsx.HTTPError(w, ls.logger, errorsx.Errorf("image size must be between 1 and %d pixels, but got %dx%d", maxImageSize, width, height), http.StatusBadRequest)
		return
	}

	destCRS, err := crs.FromEPSG(ints["epsg"])
	if err != nil {
		errorsx.HTTPError(w, ls.logger, err, http.StatusBadRequest)
		return
	}

	request, err := ls.layerSet.newMapRequest(r.Context(), id)
	if err != nil {
		errorsx.HTTPError(w, ls.logger, err, statusCodeForError(err))
		return
	}
	request.SetCRS(destCRS)
	request.SetQuality(ints["quality"])

	// without a bbox, the whole layer is drawn
	var extent headless.Extent
	bbox := query.Get("bbox")
	if bbox == "" {
		extent, err = request.FullExtent()
	} else {
		extent, err = headless.ParseExtent(bbox)
	}
	if err != nil {
		errorsx.HTTPError(w, ls.logger, errorsx.Wrap(err, "bbox", bbox), http.StatusBadRequest)
		return
	}

	ls.sema.Add()
	defer ls.sema.Done()

	img, err := ls.env.RenderImage(r.Context(), request, extent, width, height)
	if err != nil {
		errorsx.HTTPError(w, ls.logger, err, statusCodeForError(err))
		return
	}

	writePNG(w, ls.logger, img)
}

func (ls *LayerService) handleGetLegend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dpi := headlessrenderer.DefaultDPI
	dpiStr := r.URL.Query().Get("dpi")
	if dpiStr != "" {
		var parseErr error
		dpi, parseErr = strconv.ParseFloat(dpiStr, 64)
		if parseErr != nil || dpi <= 0 || dpi > 1200 {
			errorsx.HTTPError(w, ls.logger, errorsx.Errorf("invalid dpi %q", dpiStr), http.StatusBadRequest)
			return
		}
	}

	request, err := ls.layerSet.newMapRequest(r.Context(), id)
	if err != nil {
		errorsx.HTTPError(w, ls.logger, err, statusCodeForError(err))
		return
	}
	request.SetDPI(dpi)

	ls.sema.Add()
	defer ls.sema.Done()

	img, err := ls.env.RenderLegend(r.Context(), request)
	if err != nil {
		errorsx.HTTPError(w, ls.logger, err, statusCodeForError(err))
		return
	}

	writePNG(w, ls.logger, img)
}

// queryInts reads integer query parameters. defaults holds the names of the parameters and their default values.
func queryInts(r *http.Request, defaults map[string]int) (map[string]int, errorsx.Error) {
	values := make(map[string]int)
	for name, defaultValue := range defaults {
		str := r.URL.Query().Get(name)
		if str == "" {
			values[name] = defaultValue
			continue
		}

		value, err := strconv.Atoi(str)
		if err != nil {
			return nil, errorsx.Wrap(err, "parameter", name)
		}
		values[name] = value
	}

	return values, nil
}

func statusCodeForError(err errorsx.Error) int {
	switch errorsx.Cause(err) {
	case ErrLayerNotFound:
		return http.StatusNotFound
	case crs.ErrUnsupportedCRS:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writePNG(w http.ResponseWriter, logger *logpkg.Logger, img *headless.Image) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(img.Size()))

	_, err := w.Write(img.Data())
	if err != nil {
		switch err.(type) {
		case *net.OpError:
			// broken pipe (request cancelled). Do nothing
		default:
			logger.Error("failed to write image: %q", err)
		}
	}
}
