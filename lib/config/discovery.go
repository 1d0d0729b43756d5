// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
)

// Discovery is the server's published address. The server writes it
// to [Config.DiscoveryFile] once the listener is bound; clients read
// it instead of guessing a port.
type Discovery struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Addr returns the host:port dial string.
func (d Discovery) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// WriteDiscovery atomically publishes the discovery file. The parent
// directory is created if missing. The write goes through a temporary
// file and rename so a concurrently starting client never reads a
// partial file.
func WriteDiscovery(path string, discovery Discovery) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.Marshal(discovery)
	if err != nil {
		return fmt.Errorf("marshaling discovery file: %w", err)
	}
	data = append(data, '\n')

	temporaryPath := path + ".tmp"
	if err := os.WriteFile(temporaryPath, data, 0600); err != nil {
		return fmt.Errorf("writing temporary discovery file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming discovery file into place: %w", err)
	}
	return nil
}

// ReadDiscovery reads the discovery file. A missing file means no
// server is running; callers distinguish that with os.IsNotExist.
func ReadDiscovery(path string) (Discovery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Discovery{}, err
	}
	var discovery Discovery
	if err := json.Unmarshal(data, &discovery); err != nil {
		return Discovery{}, fmt.Errorf("parsing discovery file %s: %w", path, err)
	}
	if discovery.Host == "" || discovery.Port <= 0 || discovery.Port > 65535 {
		return Discovery{}, fmt.Errorf("discovery file %s has invalid address %q:%d",
			path, discovery.Host, discovery.Port)
	}
	return discovery, nil
}
