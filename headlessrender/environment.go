package headlessrender

import (
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	tracing "github.com/jamesrr39/go-tracing"
	"github.com/jamesrr39/goutil/errorsx"
	"github.com/jamesrr39/goutil/gofs"
	"github.com/jamesrr39/goutil/httpextra"
	"github.com/jamesrr39/goutil/logpkg"
	"github.com/jamesrr39/goutil/userextra"
	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jamesrr39/ownmap-headless/headlessdal"
	"github.com/jamesrr39/ownmap-headless/headlessrenderer"
	"gopkg.in/alecthomas/kingpin.v2"
)

const DefaultNetworkTimeout = 30 * time.Second

var logLevels = map[string]logpkg.LogLevel{
	"debug": logpkg.LogLevelDebug,
	"info":  logpkg.LogLevelInfo,
	"warn":  logpkg.LogLevelWarn,
	"error": logpkg.LogLevelError,
}

// Environment holds everything renders share within a process: the logger, the network client used to fetch remote
// sources and the directories SVG symbols are looked up in.
type Environment struct {
	logger *logpkg.Logger
	fs     gofs.Fs
	opener *headlessdal.Opener

	tracer      *tracing.Tracer
	traceCloser io.Closer

	svgPathsMu sync.RWMutex
	svgPaths   []string
}

func NewEnvironment(logger *logpkg.Logger, fs gofs.Fs, client httpextra.Doer, svgPaths []string) *Environment {
	return &Environment{
		logger:   logger,
		fs:       fs,
		opener:   headlessdal.NewOpener(logger, fs, client),
		svgPaths: append([]string{}, svgPaths...),
	}
}

func (e *Environment) Logger() *logpkg.Logger {
	return e.logger
}

func (e *Environment) Fs() gofs.Fs {
	return e.fs
}

func (e *Environment) Opener() *headlessdal.Opener {
	return e.opener
}

// SetTracer records a trace for every render made through the environment
func (e *Environment) SetTracer(tracer *tracing.Tracer) {
	e.tracer = tracer
}

func (e *Environment) AddSvgPath(path string) {
	e.svgPathsMu.Lock()
	defer e.svgPathsMu.Unlock()

	e.svgPaths = append(e.svgPaths, path)
}

func (e *Environment) SvgPaths() []string {
	e.svgPathsMu.RLock()
	defer e.svgPathsMu.RUnlock()

	return append([]string{}, e.svgPaths...)
}

// ResolveSvg finds the file an SVG path of a style refers to. Paths that exist are kept, relative paths are then
// looked up in the SVG directories in the order they were added. Paths that can't be found are returned unchanged.
func (e *Environment) ResolveSvg(path string) string {
	if _, err := e.fs.Stat(path); err == nil {
		return path
	}

	for _, dir := range e.SvgPaths() {
		candidate := filepath.Join(dir, path)
		if _, err := e.fs.Stat(candidate); err == nil {
			return candidate
		}
	}

	return path
}

// startTrace starts a trace for one render when the environment has a tracer
func (e *Environment) startTrace(ctx context.Context, name string) (context.Context, func()) {
	if e.tracer == nil {
		return ctx, func() {}
	}

	traceCtx, end := headlessrenderer.WithTrace(ctx, e.tracer, name)
	return traceCtx, func() {
		err := end("")
		if err != nil {
			e.logger.Warn("couldn't write trace %q. Error: %q", name, err)
		}
	}
}

func (e *Environment) close() errorsx.Error {
	if e.traceCloser == nil {
		return nil
	}

	err := e.traceCloser.Close()
	if err != nil {
		return errorsx.Wrap(err)
	}
	return nil
}

var (
	envMu sync.RWMutex
	env   *Environment
)

// Init creates the process wide environment from command line style arguments (without the program name):
//
//	--log-level=debug|info|warn|error
//	--svg-path=DIR (repeatable)
//	--network-timeout=30s
//	--trace-file=FILE
//
// Calling Init again replaces the environment.
func Init(args []string) errorsx.Error {
	app := kingpin.New("headlessrender", "headless map renderer")
	app.Terminate(nil)
	app.UsageWriter(ioutil.Discard)
	app.ErrorWriter(ioutil.Discard)

	logLevel := app.Flag("log-level", "log level").Default("info").Enum("debug", "info", "warn", "error")
	svgPaths := app.Flag("svg-path", "directory to look up SVG symbols in. Can be given more than once").Strings()
	networkTimeout := app.Flag("network-timeout", "timeout for fetching remote sources").Default(DefaultNetworkTimeout.String()).Duration()
	traceFilePath := app.Flag("trace-file", "file to write render traces to").String()

	_, err := app.Parse(args)
	if err != nil {
		return errorsx.Wrap(err, "args", args)
	}

	logger := logpkg.NewLogger(os.Stderr, logLevels[*logLevel])

	var expandedSvgPaths []string
	for _, svgPath := range *svgPaths {
		expanded, err := userextra.ExpandUser(svgPath)
		if err != nil {
			return errorsx.Wrap(err, "svgPath", svgPath)
		}
		expandedSvgPaths = append(expandedSvgPaths, expanded)
	}

	client := &http.Client{Timeout: *networkTimeout}

	newEnv := NewEnvironment(logger, gofs.NewOsFs(), client, expandedSvgPaths)

	if *traceFilePath != "" {
		traceFile, err := os.Create(*traceFilePath)
		if err != nil {
			return errorsx.Wrap(err, "traceFile", *traceFilePath)
		}
		newEnv.SetTracer(tracing.NewTracer(traceFile))
		newEnv.traceCloser = traceFile
	}

	setEnvironment(newEnv)

	logger.Debug("initialised headless renderer %s. SVG paths: %v", headless.Version, expandedSvgPaths)

	return nil
}

// Deinit releases the environment. Renders made afterwards fail with ErrNotInitialised until Init is called again.
func Deinit() {
	setEnvironment(nil)
}

func setEnvironment(newEnv *Environment) {
	envMu.Lock()
	defer envMu.Unlock()

	if env != nil {
		err := env.close()
		if err != nil {
			env.logger.Error("error releasing environment: %q\n%s", err.Error(), err.Stack())
		}
	}

	env = newEnv
}

// CurrentEnvironment is the environment created by Init
func CurrentEnvironment() (*Environment, errorsx.Error) {
	envMu.RLock()
	defer envMu.RUnlock()

	if env == nil {
		return nil, headless.NewError(headless.ErrNotInitialised, nil)
	}
	return env, nil
}
