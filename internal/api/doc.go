// Package api handles incoming HTTP requests, routing, and response
// formatting for the back-office task API. It exposes read access to
// batch ledgers so frontends can poll progress alongside the live
// progress channel.
package api
