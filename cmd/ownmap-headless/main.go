package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	tracing "github.com/jamesrr39/go-tracing"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jamesrr39/ownmap-headless/headlessrender"
	"github.com/jamesrr39/ownmap-headless/styling"
	"github.com/jamesrr39/ownmap-headless/webservices"
	"github.com/pkg/profile"
	"gopkg.in/alecthomas/kingpin.v2"
)

const (
	DEFAULT_PORT                   = 9000
	DEFAULT_MAX_CONCURRENT_RENDERS = 4
)

var (
	logger *logpkg.Logger

	verbose        = kingpin.Flag("v", "verbose logging").Bool()
	svgPaths       = kingpin.Flag("svg-path", "directory to look up SVG symbols in. Can be given more than once").Strings()
	networkTimeout = kingpin.Flag("network-timeout", "timeout for fetching remote sources").Default(headlessrender.DefaultNetworkTimeout.String()).Duration()
	traceFile      = kingpin.Flag("trace-file", "file to write render traces to").String()
)

func main() {
	setupVersion()
	setupRender()
	setupServe()
	setupStyle()

	kingpin.Parse()
}

// runAction prints the stack trace of errors returned by run
func runAction(run func() errorsx.Error) func(ctx *kingpin.ParseContext) error {
	return func(ctx *kingpin.ParseContext) error {
		err := run()
		if err != nil {
			return fmt.Errorf("error: %q\nStack trace:\n%s", err.Error(), err.Stack())
		}
		return nil
	}
}

// initEnvironment initialises the renderer from the global flags. headlessrender.Deinit must be called when the command is done.
func initEnvironment() (*headlessrender.Environment, errorsx.Error) {
	logLevel := "info"
	if *verbose {
		logLevel = "debug"
	}

	args := []string{
		"--log-level=" + logLevel,
		"--network-timeout=" + networkTimeout.String(),
	}
	for _, svgPath := range *svgPaths {
		args = append(args, "--svg-path="+svgPath)
	}
	if *traceFile != "" {
		args = append(args, "--trace-file="+*traceFile)
	}

	err := headlessrender.Init(args)
	if err != nil {
		return nil, err
	}

	env, err := headlessrender.CurrentEnvironment()
	if err != nil {
		return nil, err
	}
	logger = env.Logger()

	return env, nil
}

func setupVersion() {
	cmd := kingpin.Command("version", "print the version")
	cmd.Action(func(ctx *kingpin.ParseContext) error {
		fmt.Println(headlessrender.GetVersion())
		return nil
	})
}

func setupRender() {
	renderCmd := kingpin.Command("render", "render a layer to a PNG file")
	for _, layerType := range []headless.LayerType{headless.LayerTypeVector, headless.LayerTypeRaster} {
		setupRenderLayer(renderCmd, layerType)
	}
}

func setupRenderLayer(renderCmd *kingpin.CmdClause, layerType headless.LayerType) {
	cmd := renderCmd.Command(layerType.String(), fmt.Sprintf("render a %s layer", layerType))
	uri := cmd.Arg("uri", "source of the layer. A file path, URL or connection string").Required().String()
	outPath := cmd.Arg("out", "PNG file to write").Required().String()
	stylePath := cmd.Flag("style", "QML style file").Required().String()
	bbox := cmd.Flag("bbox", "extent to render, in the units of the EPSG code. Example: -10,40,10,60").Required().String()
	width := cmd.Flag("width", "width of the image in pixels").Default("256").Int()
	height := cmd.Flag("height", "height of the image in pixels").Default("256").Int()
	epsg := cmd.Flag("epsg", "EPSG code of the CRS to render in").Default("4326").Int()
	quality := cmd.Flag("quality", "PNG quality, from 0 (smallest file) to 100 (fastest). -1 for the default").Default("-1").Int()
	shouldProfile := cmd.Flag("profile", "profile the render performance").Bool()
	cmd.Action(runAction(func() errorsx.Error {
		if *shouldProfile {
			defer profile.Start(profile.ProfilePath(filepath.Dir(*outPath)), profile.CPUProfile).Stop()
		}

		extent, err := headless.ParseExtent(*bbox)
		if err != nil {
			return err
		}

		env, err := initEnvironment()
		if err != nil {
			return err
		}
		defer headlessrender.Deinit()

		styleXML, readErr := env.Fs().ReadFile(*stylePath)
		if readErr != nil {
			return errorsx.Wrap(readErr, "style", *stylePath)
		}

		startTime := time.Now()

		var img *headless.Image
		switch layerType {
		case headless.LayerTypeRaster:
			img, err = env.RenderRaster(context.Background(), *uri, string(styleXML), extent, *width, *height, *epsg, *quality)
		default:
			img, err = env.RenderVector(context.Background(), *uri, string(styleXML), extent, *width, *height, *epsg, *quality)
		}
		if err != nil {
			return err
		}

		writeErr := env.Fs().WriteFile(*outPath, img.Data(), 0644)
		if writeErr != nil {
			return errorsx.Wrap(writeErr, "out", *outPath)
		}

		logger.Info("rendered %q to %q (%d bytes) in %s", *uri, *outPath, img.Size(), time.Since(startTime))
		return nil
	}))
}

var addrHelp = fmt.Sprintf(
	`address to serve on. Ex: ':%d' listen on port %d to traffic from anywhere. 'localhost:%d' listen on port %d to traffic from localhost`,
	DEFAULT_PORT, DEFAULT_PORT, DEFAULT_PORT, DEFAULT_PORT,
)

func setupServe() {
	cmd := kingpin.Command("serve", "serve the layers of a catalog over HTTP")
	catalogPath := cmd.Arg("catalog", "YAML file listing the layers to serve").Required().String()
	addr := cmd.Flag("addr", addrHelp).Default(fmt.Sprintf(":%d", DEFAULT_PORT)).String()
	maxConcurrentRenders := cmd.Flag("max-concurrent-renders", "maximum amount of images rendered at the same time").Default(fmt.Sprintf("%d", DEFAULT_MAX_CONCURRENT_RENDERS)).Uint()
	traceDir := cmd.Flag("trace-dir", "directory to write request traces to").String()
	shouldProfile := cmd.Flag("profile", "profile the request performance").Bool()
	cmd.Action(runAction(func() errorsx.Error {
		env, err := initEnvironment()
		if err != nil {
			return err
		}
		defer headlessrender.Deinit()

		catalog, err := headlessrender.LoadCatalog(env.Fs(), *catalogPath)
		if err != nil {
			return err
		}
		logger.Info("serving layers %s", strings.Join(catalog.IDs(), ", "))

		options := webservices.RouterOptions{
			MaxConcurrentRenders: *maxConcurrentRenders,
			ShouldProfile:        *shouldProfile,
			LogRequests:          true,
		}

		if *traceDir != "" {
			traceFilePath := filepath.Join(*traceDir, fmt.Sprintf("trace_%s.pbf", time.Now().Format("2006-01-02__03_04_05")))
			logger.Info("tracing at %q", traceFilePath)

			traceFile, createErr := os.Create(traceFilePath)
			if createErr != nil {
				return errorsx.Wrap(createErr)
			}
			defer traceFile.Close()

			options.Tracer = tracing.NewTracer(traceFile)
		}

		router := webservices.NewRouter(logger, env, webservices.NewLayerSet(env, catalog), options)

		server := httpextra.NewServerWithTimeouts()
		server.Addr = *addr
		server.Handler = router

		logger.Info("about to start serving on %q", *addr)

		serveErr := server.ListenAndServe()
		if serveErr != nil {
			return errorsx.Wrap(serveErr)
		}
		return nil
	}))
}

func setupStyle() {
	styleCmd := kingpin.Command("style", "inspect and convert styles")

	attributesCmd := styleCmd.Command("attributes", "list the attributes a style reads")
	attributesStylePath := attributesCmd.Arg("style", "style file").Required().String()
	attributesFormat := attributesCmd.Flag("format", "format of the style file (qml or sld)").Default("qml").Enum("qml", "sld")
	attributesGeometryType := attributesCmd.Flag("geometry-type", "fail if the style is not for this geometry type").Enum("point", "line", "polygon")
	attributesCmd.Action(runAction(func() errorsx.Error {
		style, err := readStyle(*attributesStylePath, *attributesFormat, *attributesGeometryType)
		if err != nil {
			return err
		}

		attributes, ok := style.UsedAttributes()
		if !ok {
			fmt.Println("the attributes used by the style can't be determined (diagrams are enabled)")
			return nil
		}

		for _, attribute := range attributes {
			fmt.Println(attribute)
		}
		return nil
	}))

	exportCmd := styleCmd.Command("export", "convert a style to another format")
	exportStylePath := exportCmd.Arg("style", "style file").Required().String()
	exportFrom := exportCmd.Flag("from", "format of the style file").Default("qml").Enum("qml", "sld")
	exportTo := exportCmd.Flag("to", "format to export to").Default("sld").Enum("qml", "sld")
	exportOut := exportCmd.Flag("out", "file to write to. Defaults to stdout").String()
	exportGeometryType := exportCmd.Flag("geometry-type", "fail if the style is not for this geometry type").Enum("point", "line", "polygon")
	exportCmd.Action(runAction(func() errorsx.Error {
		style, err := readStyle(*exportStylePath, *exportFrom, *exportGeometryType)
		if err != nil {
			return err
		}

		format, err := styling.ParseFormat(*exportTo)
		if err != nil {
			return err
		}

		exported, err := style.ExportToString(format)
		if err != nil {
			return err
		}

		if *exportOut == "" {
			fmt.Println(exported)
			return nil
		}

		writeErr := ioutil.WriteFile(*exportOut, []byte(exported), 0644)
		if writeErr != nil {
			return errorsx.Wrap(writeErr)
		}
		return nil
	}))
}

// readStyle reads a style file. geometryTypeName is optional.
func readStyle(path, formatName, geometryTypeName string) (*styling.Style, errorsx.Error) {
	format, err := styling.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}

	env, err := initEnvironment()
	if err != nil {
		return nil, err
	}
	defer headlessrender.Deinit()

	options := []styling.Option{styling.WithFormat(format), styling.WithSvgResolver(env.ResolveSvg)}
	if geometryTypeName != "" {
		geometryType, parseErr := headless.ParseGeometryType(geometryTypeName)
		if parseErr != nil {
			return nil, errorsx.Wrap(parseErr)
		}
		options = append(options, styling.WithGeometryType(geometryType))
	}

	return styling.FromFile(path, options...)
}
