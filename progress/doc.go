// Package progress provides per-plugin status lines for analysis runs.
//
// A status line carries a short unstructured message describing what a plugin is
// currently doing ("processed 40 frames", "reducing"). Messages are logged and
// stored in a shared Handler so a server can show the progress of the run in
// flight.
//
// The package follows the handler/writer split of log/slog:
//
//   - Line: writes status messages for one plugin (analogous to slog.Logger)
//   - Handler: receives and stores the latest message per plugin (analogous to slog.Handler)
//
// # Usage
//
//	handler := progress.NewHandler()
//	runner := pipeline.New(pipeline.WithProgress(handler))
//	...
//	statuses := handler.All() // map[plugin name]status
package progress
