package installer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-modpackinstaller/pkg/config"
	"github.com/go-modpackinstaller/pkg/download"
	"github.com/go-modpackinstaller/pkg/loader"
	"github.com/go-modpackinstaller/pkg/utils"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	// install writes the version descriptor the way the real installer does
	install string
	err     error
}

func (r *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.err != nil {
		return []byte("failure"), r.err
	}
	jar := args[1]
	if _, err := os.Stat(jar); err != nil {
		return nil, fmt.Errorf("installer jar missing: %w", err)
	}
	if r.install != "" {
		gameDir := args[len(args)-1]
		p := versionJSONPath(gameDir, r.install)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(p, []byte("{}"), 0644); err != nil {
			return nil, err
		}
	}
	return []byte("ok"), nil
}

func testClient() *download.Client {
	return download.NewClient(utils.NewDiscardLogger(), nil)
}

func testOptions(t *testing.T) download.Options {
	return download.Options{Workers: 2, StagingRoot: t.TempDir()}
}

func mavenServer(t *testing.T, files map[string][]byte) (*httptest.Server, *[]string) {
	var mu sync.Mutex
	var requested []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested = append(requested, r.URL.Path)
		mu.Unlock()
		body, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &requested
}

func TestForgeInstall(t *testing.T) {
	srv, requested := mavenServer(t, map[string][]byte{
		"/net/minecraftforge/forge/1.20.1-43.1.0/forge-1.20.1-43.1.0-installer.jar": []byte("jar"),
	})
	gameDir := t.TempDir()
	runner := &fakeRunner{install: "1.20.1-forge-43.1.0"}
	f := NewForgeInstaller(gameDir, srv.URL+"/", testClient(), testOptions(t), utils.NewDiscardLogger())
	f.SetRunner(runner)
	f.SetJavaPath("/opt/java/bin/java")
	rec := &loader.Record{LoaderType: "forge", VersionString: "1.20.1-forge-43.1.0"}

	assert.False(t, f.Installed(rec))
	require.NoError(t, f.Install(context.Background(), rec))
	assert.True(t, f.Installed(rec))

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, "/opt/java/bin/java", call[0])
	assert.Equal(t, "-jar", call[1])
	assert.Equal(t, "--installClient", call[3])
	abs, _ := filepath.Abs(gameDir)
	assert.Equal(t, abs, call[4])
	assert.Len(t, *requested, 1)
	assert.FileExists(t, filepath.Join(gameDir, launcherProfilesName))
	// staged installer is gone once the batch ends
	assert.NoFileExists(t, call[2])
}

func TestForgeInstallFailure(t *testing.T) {
	srv, _ := mavenServer(t, map[string][]byte{
		"/net/minecraftforge/forge/1.20.1-43.1.0/forge-1.20.1-43.1.0-installer.jar": []byte("jar"),
	})
	f := NewForgeInstaller(t.TempDir(), srv.URL, testClient(), testOptions(t), utils.NewDiscardLogger())
	f.SetRunner(&fakeRunner{err: fmt.Errorf("exit status 1")})
	rec := &loader.Record{LoaderType: "forge", VersionString: "1.20.1-forge-43.1.0"}

	err := f.Install(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forge installer failed")
	assert.False(t, f.Installed(rec))
}

func TestForgeInstallerMissingDescriptor(t *testing.T) {
	srv, _ := mavenServer(t, map[string][]byte{
		"/net/minecraftforge/forge/1.20.1-43.1.0/forge-1.20.1-43.1.0-installer.jar": []byte("jar"),
	})
	f := NewForgeInstaller(t.TempDir(), srv.URL, testClient(), testOptions(t), utils.NewDiscardLogger())
	f.SetRunner(&fakeRunner{})

	err := f.Install(context.Background(), &loader.Record{LoaderType: "forge", VersionString: "1.20.1-forge-43.1.0"})
	assert.ErrorContains(t, err, "is missing")
}

func TestForgeDryRun(t *testing.T) {
	srv, requested := mavenServer(t, nil)
	gameDir := t.TempDir()
	runner := &fakeRunner{}
	f := NewForgeInstaller(gameDir, srv.URL, testClient(), testOptions(t), utils.NewDiscardLogger())
	f.SetRunner(runner)
	f.SetDryRun(true)

	require.NoError(t, f.Install(context.Background(), &loader.Record{LoaderType: "forge", VersionString: "1.20.1-forge-43.1.0"}))
	assert.Empty(t, runner.calls)
	assert.Empty(t, *requested)
	assert.NoFileExists(t, filepath.Join(gameDir, launcherProfilesName))
}

func TestForgeInstallRejectsMalformedVersion(t *testing.T) {
	f := NewForgeInstaller(t.TempDir(), "http://unused", testClient(), testOptions(t), utils.NewDiscardLogger())
	err := f.Install(context.Background(), &loader.Record{LoaderType: "forge", VersionString: "fabric-loader-0.14.21-1.20.1"})
	assert.Error(t, err)
}

func sha1Hex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}

func TestFabricInstall(t *testing.T) {
	loaderJar := []byte("fabric loader jar")
	asmJar := []byte("asm jar")
	var srv *httptest.Server
	files := map[string][]byte{
		"/maven/net/fabricmc/fabric-loader/0.14.21/fabric-loader-0.14.21.jar": loaderJar,
		"/maven/org/ow2/asm/asm/9.5/asm-9.5.jar":                              asmJar,
	}
	srv, _ = mavenServer(t, files)
	profile, err := json.Marshal(map[string]interface{}{
		"id":           "fabric-loader-0.14.21-1.20.1",
		"inheritsFrom": "1.20.1",
		"libraries": []map[string]interface{}{
			{"name": "net.fabricmc:fabric-loader:0.14.21", "url": srv.URL + "/maven/", "sha1": sha1Hex(loaderJar), "size": len(loaderJar)},
			{"name": "org.ow2.asm:asm:9.5", "url": srv.URL + "/maven"},
		},
	})
	require.NoError(t, err)
	files["/v2/versions/loader/1.20.1/0.14.21/profile/json"] = profile

	gameDir := t.TempDir()
	f := NewFabricInstaller(gameDir, srv.URL+"/v2", testClient(), testOptions(t), utils.NewDiscardLogger())
	rec := &loader.Record{LoaderType: "fabric", VersionString: "fabric-loader-0.14.21-1.20.1"}

	require.NoError(t, f.Install(context.Background(), rec))
	assert.True(t, f.Installed(rec))

	written, err := os.ReadFile(versionJSONPath(gameDir, rec.VersionString))
	require.NoError(t, err)
	assert.JSONEq(t, string(profile), string(written))
	assert.FileExists(t, filepath.Join(gameDir, "libraries", "net", "fabricmc", "fabric-loader", "0.14.21", "fabric-loader-0.14.21.jar"))
	assert.FileExists(t, filepath.Join(gameDir, "libraries", "org", "ow2", "asm", "asm", "9.5", "asm-9.5.jar"))
}

func TestFabricInstallLibraryFailureLeavesNoProfile(t *testing.T) {
	var srv *httptest.Server
	files := map[string][]byte{}
	srv, _ = mavenServer(t, files)
	profile, _ := json.Marshal(map[string]interface{}{
		"id":        "fabric-loader-0.14.21-1.20.1",
		"libraries": []map[string]interface{}{{"name": "net.fabricmc:missing:1.0", "url": srv.URL + "/maven/"}},
	})
	files["/versions/loader/1.20.1/0.14.21/profile/json"] = profile

	gameDir := t.TempDir()
	f := NewFabricInstaller(gameDir, srv.URL, testClient(), testOptions(t), utils.NewDiscardLogger())
	rec := &loader.Record{LoaderType: "fabric", VersionString: "fabric-loader-0.14.21-1.20.1"}

	require.Error(t, f.Install(context.Background(), rec))
	assert.False(t, f.Installed(rec))
}

func TestMavenPath(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"net.fabricmc:fabric-loader:0.14.21", "net/fabricmc/fabric-loader/0.14.21/fabric-loader-0.14.21.jar", false},
		{"org.lwjgl:lwjgl:3.3.1:natives-linux", "org/lwjgl/lwjgl/3.3.1/lwjgl-3.3.1-natives-linux.jar", false},
		{"net.minecraft:client:1.20.1@txt", "net/minecraft/client/1.20.1/client-1.20.1.txt", false},
		{"broken", "", true},
		{"a:..:1", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := mavenPath(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInstallersForConfig(t *testing.T) {
	cfg := testConfigForInstallers(t)
	installers := Installers(cfg, utils.NewDiscardLogger())
	require.Contains(t, installers, "forge")
	require.Contains(t, installers, "fabric")

	forge := installers["forge"].(*ForgeInstaller)
	assert.Equal(t, "https://maven.minecraftforge.net/net/minecraftforge/forge/1.20.1-47.2.0/forge-1.20.1-47.2.0-installer.jar",
		forge.InstallerURL("1.20.1", "47.2.0"))
	assert.True(t, forge.dryRun)
}

func testConfigForInstallers(t *testing.T) *config.Config {
	cfg := config.NewConfig()
	cfg.GameDirectory = t.TempDir()
	cfg.DryRun = true
	return cfg
}
