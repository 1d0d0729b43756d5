// Copyright 2026 The Vern Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the vern
// client and server.
//
// Configuration is loaded from a single file specified by either the
// VERN_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no automatic file search; a process with
// neither uses [Default] unchanged. Environment variables never
// override individual config values — the file is the single source
// of truth, which keeps a misbehaving setup reproducible from the
// file alone.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${VERN_DATA}, and ${VAR:-default} patterns are expanded.
//
// Key exports:
//
//   - [Config] — master struct with Paths, Network, Session, Server
//   - [Default] — defaults rooted under ~/.local/share/vern
//   - [Load], [LoadFile], [LoadOrDefault] — the loading entry points
//
// This package depends on no other vern packages.
package config
