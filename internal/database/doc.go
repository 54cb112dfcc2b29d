// Package database archives finished crawl reports in SQLite.
//
// ReportDB keeps one row per crawl. The full report is stored as JSON next
// to the headline numbers, so history listings do not need to decode it.
// The archive is read by the compare command; crawls never consult it.
//
// The driver is modernc.org/sqlite, which needs no cgo. WAL mode is enabled
// by default.
package database
