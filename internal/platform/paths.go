// Package platform decides where splitledger keeps its files on the local machine.
//
// Config lives under the user's config base and the ledger database plus dev logs
// under the data base, each in a directory named after the app. On Linux the XDG
// variables move those bases; on Windows APPDATA and LOCALAPPDATA do. Other systems
// use whatever the os package reports.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultAppName names the config and data directories.
const DefaultAppName = "splitledger"

const (
	configFileName = "config.toml"
	logDirName     = "log"
	devSuffix      = "-dev"
)

var (
	errNoBaseDir = errors.New("empty base dirs")
	errNoAppName = errors.New("empty app name")
)

// Paths locates the CLI's config file, ledger database and log directory.
type Paths struct {
	ConfigPath string
	DataDir    string
	DBPath     string
	LogDir     string
}

// Options tunes path resolution. DevMode appends "-dev" so a development build never
// touches the real ledger.
type Options struct {
	AppName string
	DevMode bool
}

// baseEnv names the variables that relocate the config and data bases on one OS.
type baseEnv struct {
	config string
	data   string
}

var baseEnvByOS = map[string]baseEnv{
	"linux":   {config: "XDG_CONFIG_HOME", data: "XDG_DATA_HOME"},
	"windows": {config: "APPDATA", data: "LOCALAPPDATA"},
}

// DefaultPaths resolves paths for DefaultAppName outside dev mode.
func DefaultPaths() (Paths, error) {
	return DefaultPathsWithOptions(Options{})
}

// DefaultPathsWithOptions resolves paths for the current user and OS.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	configBase, dataBase, err := userBases(runtime.GOOS)
	if err != nil {
		return Paths{}, err
	}
	return PathsFor(runtime.GOOS, lookupBaseEnv(), configBase, dataBase, dirName(opts))
}

func dirName(opts Options) string {
	name := strings.TrimSpace(opts.AppName)
	if name == "" {
		name = DefaultAppName
	}
	if opts.DevMode {
		return name + devSuffix
	}
	return name
}

// userBases returns the OS defaults before any env override. Go has no data-dir
// lookup, so Linux falls back to ~/.local/share and everything else shares the config base.
func userBases(goos string) (string, string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", "", fmt.Errorf("user config dir: %w", err)
	}
	if goos != "linux" {
		return configBase, configBase, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("user home dir: %w", err)
	}
	return configBase, filepath.Join(home, ".local", "share"), nil
}

func lookupBaseEnv() map[string]string {
	env := make(map[string]string, 2*len(baseEnvByOS))
	for _, names := range baseEnvByOS {
		env[names.config] = os.Getenv(names.config)
		env[names.data] = os.Getenv(names.data)
	}
	return env
}

// PathsFor lays out an app's files from explicit inputs, so callers and tests can
// resolve paths for any goos without touching the process environment.
func PathsFor(goos string, env map[string]string, userConfigDir, userDataDir, appName string) (Paths, error) {
	if userConfigDir == "" || userDataDir == "" {
		return Paths{}, errNoBaseDir
	}
	appName = strings.TrimSpace(appName)
	if appName == "" {
		return Paths{}, errNoAppName
	}

	if names, ok := baseEnvByOS[goos]; ok {
		userConfigDir = override(userConfigDir, env[names.config])
		userDataDir = override(userDataDir, env[names.data])
	}
	dataDir := filepath.Join(userDataDir, appName)
	return Paths{
		ConfigPath: filepath.Join(userConfigDir, appName, configFileName),
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, appName+".db"),
		LogDir:     filepath.Join(dataDir, logDirName),
	}, nil
}

func override(base, value string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return base
}
