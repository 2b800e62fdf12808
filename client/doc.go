// Package client implements the caller side of silent renewal.
//
// A [Renewer] holds the access and anti-forgery tokens and moves between the Authenticated,
// AccessExpired, Renewing and LoggedOut states. Requests that come back with the renewal
// marker wait for a single shared refresh call and are replayed once with the new access
// token. Any refresh failure, including a timeout, ends in LoggedOut.
//
// [Transport] wires a Renewer into an http.Client; [UnaryClientInterceptor] does the same for
// gRPC. [HTTPRefresher] is the refresh call for servers that keep the refresh token in a
// cookie.
package client
