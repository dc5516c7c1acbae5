// Package viz renders the live event monitor in the terminal.
//
// The monitor is a Bubble Tea model: each frame advances the
// integration a few steps, scans the dense output for event crossings,
// and draws the selected trigger's recent history next to the state
// readout, per-event cooldown status and the firing log.
//
// # Key Bindings
//
//	Space - Pause/Resume
//	R     - Reset to the initial state
//	Tab   - Cycle the charted trigger
//	↑/↓   - Double/halve steps per frame
//	Q     - Quit
package viz
