package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jamesrr39/ownmap-headless/headless"
	"github.com/jamesrr39/ownmap-headless/headlessrender"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitEnvironment(t *testing.T) {
	dir := t.TempDir()

	testCases := []struct {
		Name          string
		Verbose       bool
		SvgPaths      []string
		TraceFile     string
		ExpectedTrace bool
	}{
		{"defaults", false, []string{}, "", false},
		{"verbose with svg paths", true, []string{"/usr/share/svg", "/opt/svg"}, "", false},
		{"trace file", false, []string{}, filepath.Join(dir, "trace.pbf"), true},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			*verbose = tc.Verbose
			*svgPaths = tc.SvgPaths
			*networkTimeout = 5 * time.Second
			*traceFile = tc.TraceFile

			env, err := initEnvironment()
			require.NoError(t, err)

			current, err := headlessrender.CurrentEnvironment()
			require.NoError(t, err)
			assert.True(t, env == current)
			assert.True(t, logger == env.Logger())
			assert.Equal(t, tc.SvgPaths, env.SvgPaths())

			headlessrender.Deinit()

			_, err = headlessrender.CurrentEnvironment()
			assert.True(t, headless.IsKind(err, headless.ErrNotInitialised))

			if tc.ExpectedTrace {
				_, statErr := os.Stat(tc.TraceFile)
				assert.NoError(t, statErr)
			}
		})
	}
}

func TestReadStyle_geometryType(t *testing.T) {
	*svgPaths = nil
	*traceFile = ""

	testCases := []struct {
		Name         string
		GeometryType string
		ExpectError  bool
	}{
		{"any geometry type", "", false},
		{"matching geometry type", "point", false},
		{"other geometry type", "line", true},
		{"unknown geometry type", "circle", true},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			style, err := readStyle("../../styling/testdata/point-style.qml", "qml", tc.GeometryType)
			if tc.ExpectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, style)

			_, err = headlessrender.CurrentEnvironment()
			assert.True(t, headless.IsKind(err, headless.ErrNotInitialised))
		})
	}
}
