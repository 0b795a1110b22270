// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package config loads the gateway's configuration.

Config is assembled from defaults, then overridden by an optional YAML
file, then overridden again by environment variables (prefix GATEWAY_ by
default). The sub-configs are Server, KV, RateLimit, Queue, Provider, Log
and Telemetry — matching the components the gateway is built from.

Usage:

	cfg, err := config.NewLoader().
		WithConfigPath("config.yaml").
		WithEnvPrefix("GATEWAY").
		Load()
*/
package config
