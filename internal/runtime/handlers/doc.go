// Package handlers decodes event content into the types user callbacks
// expect, either JSON (via sonic) or protobuf (via protojson).
package handlers
