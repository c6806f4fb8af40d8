// Package ui provides terminal output for the joinme CLI.
//
// The components follow a "render once and exit" pattern built on Bubble
// Tea and Lipgloss. Nothing here asks the user for more than a single
// confirmation line.
//
// # Components
//
//   - Header: banner naming the operation and its parameters
//   - DownloadBar: image transfer bar fed by ota.Progress updates
//   - LinePrinter: plain carriage-return progress for non-TTY output
//   - Result: outcome box for an over-the-air update
//   - UpdateModel: Bubble Tea program combining the bar and the result
//
// # Usage
//
//	res, err := ui.RunUpdate(os.Stdout, header, func(obs ota.ProgressObserver) (ota.Result, error) {
//	    updater.SetObserver(obs)
//	    return updater.CheckAndUpdate(ctx, current, repo, token, base)
//	})
//
// # Logging Integration
//
// zap logging stays silent unless JOINME_LOG_LEVEL (or --log-level) is
// set, so the curated output is not interleaved with log lines.
package ui
