// Package aggregate runs one refresh cycle: it fetches every configured feed
// concurrently, absorbs per-feed failures into the resulting snapshot rather
// than failing the batch, and runs the dropout-tolerant extractor on each
// payload that arrived. The cycle's duration is bounded by the slowest single
// feed, not the sum; feeds race independently and the snapshot is assembled
// only after all have settled.
package aggregate
