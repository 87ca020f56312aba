// Package bundle manages versioned configuration bundles: the trained
// payloads produced by the pipeline and the active/backup/canary
// pointers that route traffic between them. All pointer switches go
// through the store's versioned key-value table, so a concurrent writer
// surfaces as a version conflict instead of a silent clobber.
package bundle
