package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sockhttpd/internal/infra/confloader"
	"github.com/yndnr/sockhttpd/internal/infra/tlscert"
	"github.com/yndnr/sockhttpd/internal/telemetry/logger"
)

func TestApp(t *testing.T) {
	app := App()
	if app.Name != "sockhttpd" {
		t.Errorf("Name = %q, want sockhttpd", app.Name)
	}

	flagNames := make(map[string]bool)
	for _, f := range app.Flags {
		flagNames[f.Names()[0]] = true
	}
	for _, f := range overrideFlags {
		if !flagNames[f.flag] {
			t.Errorf("override %q has no flag", f.flag)
		}
	}
	if !flagNames["config"] {
		t.Error("missing config flag")
	}

	if len(app.Commands) != 1 || app.Commands[0].Name != "gencert" {
		t.Errorf("Commands = %v, want [gencert]", app.Commands)
	}
}

func TestOverrides(t *testing.T) {
	var got map[string]any
	app := App()
	app.Action = func(c *cli.Context) error {
		got = overrides(c)
		return nil
	}

	args := []string{"sockhttpd", "--port", "9000", "--tls", "--root", "/srv/www", "--log-level", "debug"}
	if err := app.Run(args); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := map[string]any{
		"server.port":          9000,
		"tls.enabled":          true,
		"server.document_root": "/srv/www",
		"log.level":            "debug",
	}
	if len(got) != len(want) {
		t.Fatalf("overrides = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("overrides[%q] = %v, want %v", k, got[k], v)
		}
	}
}

// ===== Config =====

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_FileAndFlags(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "www")
	if err := os.Mkdir(root, 0755); err != nil {
		t.Fatal(err)
	}
	path := writeConfig(t, dir, "server:\n  document_root: "+root+"\n  port: 9000\n  max_threads: 4\n")

	cfg, err := loadConfig(newConfigLoader(path, map[string]any{"server.port": 9100}))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Port = %d, want flag value 9100", cfg.Server.Port)
	}
	if cfg.Server.MaxThreads != 4 {
		t.Errorf("MaxThreads = %d, want 4 from file", cfg.Server.MaxThreads)
	}
	if cfg.Server.ConnectionQueue != 10 {
		t.Errorf("ConnectionQueue = %d, want default 10", cfg.Server.ConnectionQueue)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := loadConfig(newConfigLoader("", map[string]any{
		"server.document_root": filepath.Join(t.TempDir(), "missing"),
	}))
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("loadConfig() error = %v, want invalid configuration", err)
	}
}

func TestWatchLogLevel(t *testing.T) {
	prev := logger.GetLevel()
	t.Cleanup(func() { logger.SetLevel(prev) })
	logger.SetLevel("info")

	dir := t.TempDir()
	path := writeConfig(t, dir, "server:\n  document_root: "+dir+"\nlog:\n  level: info\n")

	w, err := confloader.NewWatcher(confloader.WithDebounce(10 * time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	t.Cleanup(func() { w.Stop() })

	if err := watchLogLevel(w, newConfigLoader(path, nil), path, logger.Discard()); err != nil {
		t.Fatalf("watchLogLevel() error = %v", err)
	}
	w.StartAsync()

	writeConfig(t, dir, "server:\n  document_root: "+dir+"\nlog:\n  level: debug\n")

	deadline := time.Now().Add(3 * time.Second)
	for logger.GetLevel() != "debug" {
		if time.Now().After(deadline) {
			t.Fatalf("level = %q, want debug after config change", logger.GetLevel())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// ===== Serve =====

func TestServe_StartStop(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(newConfigLoader("", map[string]any{
		"server.document_root": dir,
		"server.port":          0,
		"uploads.dir":          filepath.Join(dir, "uploads"),
	}))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- serve(ctx, cfg, newConfigLoader("", nil), logger.Discard())
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve() did not return after cancel")
	}

	if _, err := os.Stat(filepath.Join(dir, "uploads")); err != nil {
		t.Errorf("upload dir not created: %v", err)
	}
}

func TestServe_TLSMaterialMissing(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(newConfigLoader("", map[string]any{
		"server.document_root": dir,
		"server.port":          0,
		"uploads.enabled":      false,
	}))
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	cfg.TLS.Enabled = true
	cfg.TLS.CertFile = filepath.Join(dir, "missing.crt")
	cfg.TLS.KeyFile = filepath.Join(dir, "missing.key")

	if err := serve(context.Background(), cfg, newConfigLoader("", nil), logger.Discard()); err == nil {
		t.Error("serve() should fail without TLS material")
	}
}

// ===== GenCert =====

func TestGenCert(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "tls", "server.crt")
	keyFile := filepath.Join(dir, "tls", "server.key")

	var out bytes.Buffer
	app := App()
	app.Writer = &out
	args := []string{"sockhttpd", "gencert", "--host", "example.test", "--cert", certFile, "--key", keyFile}
	if err := app.Run(args); err != nil {
		t.Fatalf("gencert error = %v", err)
	}
	if !strings.Contains(out.String(), certFile) {
		t.Errorf("output = %q", out.String())
	}

	store, err := tlscert.NewStore(certFile, keyFile, tlscert.WithLogger(logger.Discard()))
	if err != nil {
		t.Fatalf("generated pair does not load: %v", err)
	}
	leaf := store.Certificate().Leaf
	if leaf != nil && (len(leaf.DNSNames) != 1 || leaf.DNSNames[0] != "example.test") {
		t.Errorf("DNSNames = %v, want [example.test]", leaf.DNSNames)
	}
}

func TestGenCert_InvalidLifetime(t *testing.T) {
	app := App()
	app.Writer = &bytes.Buffer{}
	args := []string{"sockhttpd", "gencert", "--valid-for", "0s", "--cert", filepath.Join(t.TempDir(), "c"), "--key", filepath.Join(t.TempDir(), "k")}
	if err := app.Run(args); err == nil {
		t.Error("gencert with zero lifetime should fail")
	}
}
