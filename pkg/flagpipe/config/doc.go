/*
Package config reads SDK settings files.

# Overview

A flagpipe settings file is a small YAML or JSON document: a few top-level
keys (credential, endpoint) and an events block holding the pipeline's
tuning knobs. Config wraps the decoded document and provides typed accessors
that fall back to a default on a missing key or a mistyped value, so a
partial settings file still yields a fully-populated configuration.

# Basic Usage

	cfg, err := config.FromFile("flagpipe.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	credential := cfg.String("credential", "")

	events := cfg.Events()
	interval := events.Duration("flush_interval", 5*time.Second)
	capacity := events.Int("capacity", 10000)
	private := events.StringSlice("private_attributes", nil)

The events section feeds event.EventsConfigFromConfig directly; Section
extracts any other nested block the same way.

# Value Coercion

Decoders differ in how they surface scalars, so the accessors accept the
shapes that actually occur: Int takes int, int64, or a whole float64;
Duration takes a time.ParseDuration string ("5s", "1m30s") or a bare number
of seconds; StringSlice takes []string or YAML's []any, rejecting the whole
list when any element is not a string.

# Thread Safety

Config is an immutable view; it is safe for concurrent reads as long as the
original map is not modified after New.
*/
package config
