// Package feed turns decision history and external feedback into the
// labeled training set. Ingestion is idempotent: examples are unique per
// (source, source id), so re-running a load never duplicates data.
package feed
