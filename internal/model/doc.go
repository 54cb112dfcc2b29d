// Package model defines the report types shared by the report writers, the
// history database and the command line.
//
// A CrawlReport is the serializable form of one crawl run. It is built from
// a crawler.Result, written by the report package and archived as JSON by
// the database package. Comparison describes how two archived reports of the
// same root URL differ.
package model
