// Package connectors provides implementations of the SourceClient
// interface for various record sources. Each connector knows how to
// paginate and authenticate against a specific API style.
//
// soda is the only connector today; the layout leaves room for others
// (cursor-token APIs, GraphQL) without touching core.
package connectors
