// Package threatdex holds the domain types shared by the ingestion pipeline,
// the persistence layer, and the read API.
//
// The types in this package are plain data. Behavior that interprets them
// lives in the subpackages: feeds fetch and project source records into these
// shapes, the merge package combines records with the same CVE id, the score
// package derives the priority score, and datastore persists them.
package threatdex

// Version is reported in User-Agent headers and the health endpoint.
const Version = "1.0.0"

// UserAgent is sent on every outbound HTTP request.
const UserAgent = "threatdex/" + Version + " (+https://github.com/threatdex/threatdex)"
