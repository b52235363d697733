package webservices

import (
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/ownmap-headless/crs"
	"github.com/jamesrr39/ownmap-headless/headlessrender"
)

func NewInfoService(logger *logpkg.Logger, layerSet *LayerSet) *InfoService {
	ws := &InfoService{logger, layerSet, chi.NewRouter()}
	ws.Get("/", ws.handleGet)

	return ws
}

type InfoService struct {
	logger   *logpkg.Logger
	layerSet *LayerSet
	chi.Router
}

type layerInfoType struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
}

type infoType struct {
	Version       string          `json:"version"`
	SupportedCRSs []int           `json:"supportedCrs"`
	Layers        []layerInfoType `json:"layers"`
}

func (ws *InfoService) handleGet(w http.ResponseWriter, r *http.Request) {
	catalog := ws.layerSet.Catalog()

	layers := []layerInfoType{}
	for _, id := range catalog.IDs() {
		catalogLayer, _ := catalog.Layer(id)
		layers = append(layers, layerInfoType{catalogLayer.ID, catalogLayer.Type, catalogLayer.Label})
	}

	render.JSON(w, r, infoType{
		Version:       headlessrender.GetVersion(),
		SupportedCRSs: crs.SupportedCodes(),
		Layers:        layers,
	})
}
