// Package checkpoint records which accounts finished their daily run so a
// rerun on the same day can skip them.
//
// Records live in the per-user data directory:
//   - Linux: $XDG_DATA_HOME/gmdaily/checkpoints/ (default ~/.local/share)
//   - macOS: ~/Library/Application Support/gmdaily/checkpoints/
//   - Windows: %APPDATA%/gmdaily/checkpoints/
//
// Files are replaced atomically.
package checkpoint
