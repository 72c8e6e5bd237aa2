// go-nisprog
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-nisprog.
//
// go-nisprog is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-nisprog is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-nisprog; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	nisprog "github.com/ZaparooProject/go-nisprog"
	"github.com/ZaparooProject/go-nisprog/transport/kline"
	"gopkg.in/yaml.v3"
)

// config is the YAML configuration file, overridden by flags
type config struct {
	Port        string                `yaml:"port"`
	GPIOInit    string                `yaml:"gpio_init"`
	FlashDevice string                `yaml:"flash_device"`
	KeysetFile  string                `yaml:"keyset_file"`
	Session     nisprog.SessionConfig `yaml:"session"`
	Baud        int                   `yaml:"baud"`
	Keepalive   time.Duration         `yaml:"keepalive"`
	Echo        bool                  `yaml:"echo"`
	Subaru      bool                  `yaml:"subaru"`
	Debug       bool                  `yaml:"debug"`
}

func defaultConfig() *config {
	return &config{
		Baud:      kline.DefaultBaud,
		Keepalive: 2 * time.Second,
		Echo:      true,
		Session:   *nisprog.DefaultSessionConfig(),
	}
}

// loadConfig reads path over the defaults. An empty path gives the defaults.
func loadConfig(path string) (*config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.validate()
}

func (c *config) validate() error {
	if c.Baud <= 0 {
		return fmt.Errorf("baud must be positive: %w", nisprog.ErrInvalidParameter)
	}
	if c.Keepalive < 0 {
		return fmt.Errorf("keepalive must not be negative: %w", nisprog.ErrInvalidParameter)
	}
	return c.Session.Validate()
}

// cliFlags holds the parsed command line
type cliFlags struct {
	args       []string
	configPath string
	port       string
	gpioInit   string
	device     string
	keysetFile string
	baud       int
	kernelBaud int
	subaru     bool
	debug      bool
	noEcho     bool
}

var errUsage = errors.New("usage")

func parseFlags(fs *flag.FlagSet, argv []string) (*cliFlags, error) {
	f := &cliFlags{}
	fs.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&f.port, "port", "", "Serial device of the K-line adapter (e.g. /dev/ttyUSB0 or COM3). "+
		"Leave empty for auto-detection.")
	fs.StringVar(&f.gpioInit, "gpio-init", "", "GPIO pin driving the fast init pulse (e.g. GPIO17)")
	fs.StringVar(&f.device, "device", "", "Flash device: 7051, 7055, 7058 or catalog index")
	fs.StringVar(&f.keysetFile, "keys", "", "Keyset catalog file")
	fs.IntVar(&f.baud, "baud", 0, "Initial line speed (default 10400)")
	fs.IntVar(&f.kernelBaud, "kernel-baud", 0, "Line speed of a running kernel (default 62500)")
	fs.BoolVar(&f.subaru, "subaru", false, "Connect with the Subaru SSM dialect")
	fs.BoolVar(&f.debug, "debug", false, "Enable protocol trace output")
	fs.BoolVar(&f.noEcho, "no-echo", false, "Adapter does not echo transmitted bytes")
	if err := fs.Parse(argv); err != nil {
		return nil, errors.Join(errUsage, err)
	}
	f.args = fs.Args()
	return f, nil
}

// apply overrides cfg with the flags that were given
func (f *cliFlags) apply(cfg *config) {
	if f.port != "" {
		cfg.Port = f.port
	}
	if f.gpioInit != "" {
		cfg.GPIOInit = f.gpioInit
	}
	if f.device != "" {
		cfg.FlashDevice = f.device
	}
	if f.keysetFile != "" {
		cfg.KeysetFile = f.keysetFile
	}
	if f.baud > 0 {
		cfg.Baud = f.baud
	}
	if f.kernelBaud > 0 {
		cfg.Session.KernelBaud = f.kernelBaud
	}
	if f.subaru {
		cfg.Subaru = true
	}
	if f.debug {
		cfg.Debug = true
	}
	if f.noEcho {
		cfg.Echo = false
	}
}
