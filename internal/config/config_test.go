package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadServer(t *testing.T) {
	secret := strings.Repeat("s", 32)
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing backend", map[string]string{"SESSION_SECRET": secret}, "BACKEND_URL"},
		{"short secret", map[string]string{"BACKEND_URL": "http://api", "SESSION_SECRET": "x"}, "SESSION_SECRET"},
		{"postgres without url", map[string]string{"BACKEND_URL": "http://api", "SESSION_SECRET": secret, "STATE_BACKEND": "postgres"}, "DATABASE_URL"},
		{"unknown backend", map[string]string{"BACKEND_URL": "http://api", "SESSION_SECRET": secret, "STATE_BACKEND": "etcd"}, "STATE_BACKEND"},
		{"ok", map[string]string{"BACKEND_URL": "http://api", "SESSION_SECRET": secret, "API_TIMEOUT": "3s"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"BACKEND_URL", "SESSION_SECRET", "STATE_BACKEND", "DATABASE_URL", "API_TIMEOUT"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := LoadServer()
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want mention of %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if cfg.APITimeout != 3*time.Second || cfg.StateBackend != "memory" || cfg.ListenAddr != ":8080" {
				t.Errorf("cfg = %+v", cfg)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PORTAL_DOTENV_TEST=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORTAL_DOTENV_TEST", "")
	os.Unsetenv("PORTAL_DOTENV_TEST")
	if err := LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("PORTAL_DOTENV_TEST"); got != "from-file" {
		t.Errorf("PORTAL_DOTENV_TEST = %q", got)
	}
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing file should be ignored: %v", err)
	}
}

func TestLoadCLI(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PORTAL_CONFIG_DIR", dir)
	t.Setenv("PORTAL_BACKEND_URL", "")
	t.Setenv("PORTAL_TIMEOUT", "")
	t.Setenv("PORTAL_STATE_PATH", "")
	t.Setenv("PORTAL_LOG_LEVEL", "")

	cfg, err := LoadCLI("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StatePath != filepath.Join(dir, "state.db") || cfg.Timeout != 10*time.Second {
		t.Errorf("defaults = %+v", cfg)
	}

	yml := "backend_url: https://api.example\ntimeout: 5s\ns3:\n  bucket: media\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yml), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORTAL_LOG_LEVEL", "debug")
	cfg, err = LoadCLI("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BackendURL != "https://api.example" || cfg.Timeout != 5*time.Second || cfg.S3.Bucket != "media" || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	if err := fs.Parse([]string{"--backend", "http://override", "--timeout", "1s"}); err != nil {
		t.Fatal(err)
	}
	if cfg.BackendURL != "http://override" || cfg.Timeout != time.Second {
		t.Errorf("after flags cfg = %+v", cfg)
	}
}

func TestCLISaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := DefaultCLI()
	cfg.BackendURL = "https://saved"
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := LoadCLI(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.BackendURL != "https://saved" {
		t.Errorf("BackendURL = %q", got.BackendURL)
	}
}
