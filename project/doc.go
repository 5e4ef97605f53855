// Package project persists and restores whole workspaces. A project is
// plain structured data: graph nodes and edges, the assets they own, a
// viewport, and free-form settings. The file store writes one JSON document
// atomically; the SQL store keeps assets, asset history, and settings in a
// SQLite database for incremental saves.
package project
