package platform

import (
	"path/filepath"
	"testing"
)

// TestPathsFor verifies base directory overrides per platform.
func TestPathsFor(t *testing.T) {
	cases := []struct {
		name       string
		goos       string
		env        map[string]string
		configBase string
		dataBase   string
		wantConfig string
		wantData   string
	}{
		{
			name:       "linux with xdg",
			goos:       "linux",
			env:        map[string]string{"XDG_CONFIG_HOME": "/xdg/config", "XDG_DATA_HOME": "/xdg/data"},
			configBase: "/fallback/config",
			dataBase:   "/fallback/data",
			wantConfig: "/xdg/config",
			wantData:   "/xdg/data",
		},
		{
			name:       "linux without xdg",
			goos:       "linux",
			env:        map[string]string{},
			configBase: "/home/me/.config",
			dataBase:   "/home/me/.local/share",
			wantConfig: "/home/me/.config",
			wantData:   "/home/me/.local/share",
		},
		{
			name:       "linux blank xdg",
			goos:       "linux",
			env:        map[string]string{"XDG_CONFIG_HOME": "  ", "XDG_DATA_HOME": ""},
			configBase: "/home/me/.config",
			dataBase:   "/home/me/.local/share",
			wantConfig: "/home/me/.config",
			wantData:   "/home/me/.local/share",
		},
		{
			name:       "windows app data",
			goos:       "windows",
			env:        map[string]string{"APPDATA": `C:\Users\me\AppData\Roaming`, "LOCALAPPDATA": `C:\Users\me\AppData\Local`},
			configBase: `C:\fallback\config`,
			dataBase:   `C:\fallback\data`,
			wantConfig: `C:\Users\me\AppData\Roaming`,
			wantData:   `C:\Users\me\AppData\Local`,
		},
		{
			name:       "darwin ignores xdg",
			goos:       "darwin",
			env:        map[string]string{"XDG_CONFIG_HOME": "/ignored", "XDG_DATA_HOME": "/ignored"},
			configBase: "/Users/me/Library/Application Support",
			dataBase:   "/Users/me/Library/Application Support",
			wantConfig: "/Users/me/Library/Application Support",
			wantData:   "/Users/me/Library/Application Support",
		},
		{
			name:       "unknown platform",
			goos:       "freebsd",
			env:        nil,
			configBase: "/cfg",
			dataBase:   "/data",
			wantConfig: "/cfg",
			wantData:   "/data",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := PathsFor(tc.goos, tc.env, tc.configBase, tc.dataBase, "splitledger")
			if err != nil {
				t.Fatalf("PathsFor() error = %v", err)
			}
			if want := filepath.Join(tc.wantConfig, "splitledger", "config.toml"); p.ConfigPath != want {
				t.Fatalf("unexpected config path %q, want %q", p.ConfigPath, want)
			}
			if want := filepath.Join(tc.wantData, "splitledger", "splitledger.db"); p.DBPath != want {
				t.Fatalf("unexpected db path %q, want %q", p.DBPath, want)
			}
			if want := filepath.Join(tc.wantData, "splitledger", "log"); p.LogDir != want {
				t.Fatalf("unexpected log dir %q, want %q", p.LogDir, want)
			}
		})
	}
}

// TestPathsForRejectsEmptyInputs verifies base dirs and app name are required.
func TestPathsForRejectsEmptyInputs(t *testing.T) {
	if _, err := PathsFor("darwin", nil, "", "/tmp/data", "splitledger"); err == nil {
		t.Fatal("expected error for empty dirs")
	}
	if _, err := PathsFor("linux", nil, "/cfg", "/data", " "); err == nil {
		t.Fatal("expected error for empty app name")
	}
}

// TestDefaultPathsSmoke verifies the current user's paths resolve.
func TestDefaultPathsSmoke(t *testing.T) {
	p, err := DefaultPaths()
	if err != nil {
		t.Fatalf("DefaultPaths() error = %v", err)
	}
	if p.ConfigPath == "" || p.DBPath == "" || p.DataDir == "" || p.LogDir == "" {
		t.Fatalf("expected non-empty paths, got %#v", p)
	}
	if filepath.Base(p.DBPath) != DefaultAppName+".db" {
		t.Fatalf("expected default db name, got %q", p.DBPath)
	}
}

// TestDefaultPathsWithOptionsDevMode verifies dev mode isolates its directories.
func TestDefaultPathsWithOptionsDevMode(t *testing.T) {
	p, err := DefaultPathsWithOptions(Options{AppName: "ledger", DevMode: true})
	if err != nil {
		t.Fatalf("DefaultPathsWithOptions() error = %v", err)
	}
	if filepath.Base(filepath.Dir(p.ConfigPath)) != "ledger-dev" {
		t.Fatalf("expected dev config dir suffix, got %q", p.ConfigPath)
	}
	if filepath.Base(p.DBPath) != "ledger-dev.db" {
		t.Fatalf("expected dev db name, got %q", p.DBPath)
	}
}
