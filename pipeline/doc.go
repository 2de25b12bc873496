// Package pipeline drives per-video analysis plugins over a stream of frames.
//
// # Core Concepts
//
// A Plugin analyses one video. The Runner calls its methods in a fixed order:
//
//	Setup -> Process (once per frame, in frame order) -> Reduce -> Results / Summary
//
// Frames come from a Source, which yields decoded images together with the
// annotation produced by upstream detectors. Every plugin sees the same annotation
// pointer for a given frame and may enrich it in place, so a plugin registered later
// observes the fields written by the plugins registered before it.
//
// # Batching
//
// With WithBatchSize(n) for n > 1 the Runner groups frames into batches. Plugins that
// implement BatchProcessor receive the whole batch in one call and may work on the
// frames concurrently; they must still apply their effects in frame order. Plugins
// that don't implement it are fed the batch one frame at a time.
//
// # Results
//
// Each plugin has a Result that moves through the states
//
//	NotStarted -> SetUp -> Processing -> Reduced
//
// or ends in Failed with the error that caused it. A failed plugin receives no
// further frames, while the remaining plugins carry on. If the failure happened on a
// frame the plugin is still reduced, so its partial result is reported alongside the
// error. Run returns a Report with the outcome of every plugin and the combination of
// all plugin errors.
//
// # Usage
//
//	runner := pipeline.New(pipeline.WithLogger(logger), pipeline.WithBatchSize(8))
//	if err := runner.AddPlugin(activityPlugin); err != nil {
//		return err
//	}
//	report, err := runner.Run(ctx, source)
package pipeline
