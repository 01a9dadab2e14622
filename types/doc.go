// Copyright (c) bundlekit Authors.
// Licensed under the MIT License.

/*
Package types holds the shared error vocabulary of bundlekit.

# Overview

types is the lowest public package and imports nothing from the rest of the
module. Every fatal condition of a reconciliation pass is reported as a
*Error carrying an ErrorCode and the offending subject (a manifest path, a
class name, a project root), so callers can branch with errors.Is against
the exported sentinels or with IsErrorCode.

# Error kinds

  - PROJECT_NOT_MANAGED: the package manager's namespace map is absent
  - MALFORMED_MANIFEST: a manifest body failed the structural parse
  - UNRESOLVABLE_CLASS: a declared plugin class is unknown at activation
  - INSTANTIATION_FAILED: a resolvable class failed to construct
  - LIFECYCLE_FAILED: the lifecycle executor rejected a batch
*/
package types
