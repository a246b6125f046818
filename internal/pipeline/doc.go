// Package pipeline orchestrates a download run as a sequence of steps.
//
// A run has two phases: a discover step crawls the seed URLs and
// collects downloadable targets, then a transfer step downloads those
// targets in concurrency-capped batches with a politeness pause between
// batches. Each step receives the shared Session and records its
// outcome there, so a partially failed run still produces usable
// results and statistics.
//
// DefaultPipeline assembles the standard two-step pipeline; callers
// that need a different shape can build one with New and AddSteps.
package pipeline
