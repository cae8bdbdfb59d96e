// Package dregistry is a client for the Docker Registry HTTP API v2. It
// retrieves v1-style manifests (fsLayers/history) and downloads blobs,
// transparently negotiating the Bearer token challenge/response dance
// and following 307 redirects to content backends.
//
// Registry push, manifest v2 schema2/OCI, cross-registry mirroring, and
// content trust are out of scope; see the package-level design notes in
// DESIGN.md for the full rationale.
package dregistry
