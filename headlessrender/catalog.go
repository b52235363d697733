package headlessrender

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/goutil/userextra"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jamesrr39/ownmap-headless/headlessdal"
	"github.com/jamesrr39/ownmap-headless/styling"
	"gopkg.in/yaml.v3"
)

// CatalogLayer is a named, styled layer the HTTP service can render
type CatalogLayer struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"`
	URI  string `yaml:"uri"`
	// Style is the path of a QML or SLD file. Layers without a style are drawn with the default style.
	Style       string `yaml:"style"`
	StyleFormat string `yaml:"styleFormat"`
	Label       string `yaml:"label"`
}

func (cl CatalogLayer) LayerType() headless.LayerType {
	switch cl.Type {
	case "vector":
		return headless.LayerTypeVector
	case "raster":
		return headless.LayerTypeRaster
	}
	return headless.LayerTypeUnknown
}

type Catalog struct {
	Layers []CatalogLayer `yaml:"layers"`
}

// ParseCatalog reads a catalog document. Relative paths of sources and styles are taken relative to baseDir.
func ParseCatalog(data []byte, baseDir string) (*Catalog, errorsx.Error) {
	catalog := new(Catalog)
	err := yaml.Unmarshal(data, catalog)
	if err != nil {
		return nil, errorsx.Wrap(err)
	}

	seen := make(map[string]bool)
	for i, layer := range catalog.Layers {
		if layer.ID == "" {
			return nil, errorsx.Errorf("layer %d has no id", i)
		}
		if seen[layer.ID] {
			return nil, errorsx.Errorf("duplicate layer id %q", layer.ID)
		}
		seen[layer.ID] = true

		if layer.LayerType() == headless.LayerTypeUnknown {
			return nil, errorsx.Errorf("layer %q: unknown type %q (expected vector or raster)", layer.ID, layer.Type)
		}
		if layer.URI == "" {
			return nil, errorsx.Errorf("layer %q has no uri", layer.ID)
		}

		if layer.StyleFormat != "" {
			_, formatErr := styling.ParseFormat(layer.StyleFormat)
			if formatErr != nil {
				return nil, errorsx.Wrap(formatErr, "layer", layer.ID)
			}
		}

		catalog.Layers[i].URI = resolvePath(baseDir, layer.URI)
		if layer.Style != "" {
			catalog.Layers[i].Style = resolvePath(baseDir, layer.Style)
		}
	}

	return catalog, nil
}

// resolvePath makes relative file paths relative to baseDir. URLs and connection strings are kept.
func resolvePath(baseDir, path string) string {
	if strings.Contains(path, "://") || filepath.IsAbs(path) || strings.HasPrefix(path, "~/") {
		return path
	}
	return filepath.Join(baseDir, path)
}

func LoadCatalog(fs gofs.Fs, path string) (*Catalog, errorsx.Error) {
	expandedPath, err := userextra.ExpandUser(path)
	if err != nil {
		return nil, errorsx.Wrap(err, "path", path)
	}

	data, err := fs.ReadFile(expandedPath)
	if err != nil {
		return nil, errorsx.Wrap(err, "path", expandedPath)
	}

	catalog, parseErr := ParseCatalog(data, filepath.Dir(expandedPath))
	if parseErr != nil {
		return nil, errorsx.Wrap(parseErr, "path", expandedPath)
	}

	return catalog, nil
}

func (c *Catalog) Layer(id string) (CatalogLayer, bool) {
	for _, layer := range c.Layers {
		if layer.ID == id {
			return layer, true
		}
	}
	return CatalogLayer{}, false
}

// IDs returns the ids of all layers, sorted
func (c *Catalog) IDs() []string {
	ids := []string{}
	for _, layer := range c.Layers {
		ids = append(ids, layer.ID)
	}
	sort.Strings(ids)
	return ids
}

// OpenCatalogLayer opens the source of cl and reads its style. The style is nil when cl has none.
func (e *Environment) OpenCatalogLayer(ctx context.Context, cl CatalogLayer) (headlessdal.Layer, *styling.Style, errorsx.Error) {
	var style *styling.Style
	if cl.Style != "" {
		format := styling.FormatQML
		if cl.StyleFormat != "" {
			var err errorsx.Error
			format, err = styling.ParseFormat(cl.StyleFormat)
			if err != nil {
				return nil, nil, err
			}
		}

		var err errorsx.Error
		style, err = styling.FromFile(
			cl.Style,
			styling.WithFormat(format),
			styling.WithLayerType(cl.LayerType()),
			styling.WithSvgResolver(e.ResolveSvg),
			styling.WithFs(e.fs),
		)
		if err != nil {
			return nil, nil, errorsx.Wrap(err, "layer", cl.ID)
		}
	}

	switch cl.LayerType() {
	case headless.LayerTypeVector:
		layer, err := e.openStyledVector(ctx, cl.URI, style)
		if err != nil {
			return nil, nil, errorsx.Wrap(err, "layer", cl.ID)
		}
		return layer, style, nil
	case headless.LayerTypeRaster:
		layer, err := e.opener.OpenRaster(cl.URI)
		if err != nil {
			return nil, nil, errorsx.Wrap(err, "layer", cl.ID)
		}
		return layer, style, nil
	}

	return nil, nil, headless.NewError(headless.ErrOpenFailed, nil, "layer", cl.ID, "type", cl.Type)
}
