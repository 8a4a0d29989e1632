// Package web serves the browser capture page as an embedded asset.
//
// The page is a thin client: it forwards raw key events over the capture
// socket and renders the frames the server sends back. Vectors are built
// server-side by the capture engine.
//
// Handler applies SPA fallback, so unknown paths serve index.html.
package web
