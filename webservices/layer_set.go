package webservices

import (
	"context"
	"errors"
	"sync"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/ownmap-headless/headlessdal"
	"github.com/jamesrr39/ownmap-headless/headlessrender"
	"github.com/jamesrr39/ownmap-headless/styling"
)

var ErrLayerNotFound = errors.New("layer not found")

type openedLayer struct {
	catalogLayer headlessrender.CatalogLayer
	layer        headlessdal.Layer
	style        *styling.Style
}

// layerEntry is locked while its layer is opened, so that slow opens only block requests for the same layer
type layerEntry struct {
	mu     sync.Mutex
	opened *openedLayer
}

// LayerSet opens the layers of a catalog the first time they are requested and keeps them open.
// Layers that failed to open are tried again on the next request.
type LayerSet struct {
	env     *headlessrender.Environment
	catalog *headlessrender.Catalog

	mu      sync.Mutex
	entries map[string]*layerEntry
}

func NewLayerSet(env *headlessrender.Environment, catalog *headlessrender.Catalog) *LayerSet {
	return &LayerSet{env: env, catalog: catalog, entries: make(map[string]*layerEntry)}
}

func (ls *LayerSet) Catalog() *headlessrender.Catalog {
	return ls.catalog
}

func (ls *LayerSet) entry(id string) *layerEntry {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	entry, ok := ls.entries[id]
	if !ok {
		entry = new(layerEntry)
		ls.entries[id] = entry
	}
	return entry
}

func (ls *LayerSet) get(ctx context.Context, id string) (*openedLayer, errorsx.Error) {
	catalogLayer, ok := ls.catalog.Layer(id)
	if !ok {
		return nil, errorsx.Wrap(ErrLayerNotFound, "id", id)
	}

	entry := ls.entry(id)
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.opened != nil {
		return entry.opened, nil
	}

	layer, style, err := ls.env.OpenCatalogLayer(ctx, catalogLayer)
	if err != nil {
		return nil, err
	}

	entry.opened = &openedLayer{catalogLayer, layer, style}

	return entry.opened, nil
}

// newMapRequest creates a request with the single layer id
func (ls *LayerSet) newMapRequest(ctx context.Context, id string) (*headlessrender.MapRequest, errorsx.Error) {
	opened, err := ls.get(ctx, id)
	if err != nil {
		return nil, err
	}

	request := headlessrender.NewMapRequest()
	err = request.AddLayer(opened.layer, opened.style, opened.catalogLayer.Label)
	if err != nil {
		return nil, err
	}

	return request, nil
}
