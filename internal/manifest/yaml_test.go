package manifest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlFixture = `
app:
  id: com.example.Sketch
  runtime: org.gnome.Platform
  runtime-version: "48"
  sdk: org.gnome.Sdk
  command: sketch
  finish-args:
    - --socket=wayland
    - --filesystem=xdg-documents
  build-options:
    build-args:
      - --share=network
    env:
      CARGO_HOME: /run/build/cargo
    append-path:
      - /usr/lib/sdk/rust-stable/bin

modules:
  - name: libthing
    buildsystem: cmake-ninja
    config-opts:
      - -DBUILD_TESTING=OFF
    cleanup:
      - /include
    sources:
      - type: archive
        url: https://example.com/libthing.tar.gz
        sha256: aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa

  - name: sketch
    buildsystem: simple
    depends-on:
      - libthing
    run-tests: true
    build-commands:
      - make install DESTDIR=$DESTDIR
    sources:
      - type: dir
        path: .
`

func TestYAMLLoaderLoadsFile(t *testing.T) {
	path := writeManifest(t, "app.yml", yamlFixture)

	m, err := NewYAMLLoader().Load(context.Background(), path)
	require.NoError(t, err)

	require.NotNil(t, m.App)
	assert.Equal(t, "com.example.Sketch", m.App.ID)
	assert.Equal(t, "48", m.App.RuntimeVersion)
	assert.Equal(t, []string{"--socket=wayland", "--filesystem=xdg-documents"}, m.App.FinishArgs)
	assert.Equal(t, []string{"--share=network"}, m.App.BuildOptions.BuildArgs)
	assert.Equal(t, []string{"/usr/lib/sdk/rust-stable/bin"}, m.App.BuildOptions.AppendPath)

	require.Len(t, m.Modules, 2)
	assert.Equal(t, "cmake-ninja", m.Modules[0].BuildSystem)
	assert.Equal(t, testDigest, m.Modules[0].Sources[0].SHA256)
	assert.Equal(t, []string{"libthing"}, m.Modules[1].DependsOn)
	assert.True(t, m.Modules[1].RunTests)
	assert.Equal(t, SourceDir, m.Modules[1].Sources[0].Type)
}

func TestYAMLLoaderRejectsMalformedDocument(t *testing.T) {
	path := writeManifest(t, "app.yml", "app: [not: a: mapping")
	_, err := NewYAMLLoader().Load(context.Background(), path)
	require.Error(t, err)
}

func TestYAMLLoaderRunsValidation(t *testing.T) {
	path := writeManifest(t, "app.yml", `
app:
  id: com.example.App
  runtime: rt
  sdk: sdk
  command: app
modules:
  - name: broken
    buildsystem: simple
    sources:
      - type: archive
        url: https://example.com/x.tar.gz
`)
	_, err := NewYAMLLoader().Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sha256")
}
