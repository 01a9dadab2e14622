// Copyright (c) bundlekit Authors.
// Licensed under the MIT License.

// Package config loads bundlekit configuration.
//
// Values are layered defaults, then a YAML file, then environment
// variables named <PREFIX>_<SECTION>_<FIELD> (prefix BUNDLEKIT by default).
package config
