// Package prefs is the typed key-value persistence layer. Every persisted
// slot (the download list, the progress ledger, the current item, the playback
// rate and so on) is stored as an independently JSON-encoded value behind a
// Backend, so codec concerns live here and nowhere else.
package prefs
