// Package matching implements the request-to-rule matching algorithms shared
// by the resolution pipeline, the proxy engine, and the fallback machine.
//
// Matching runs in two passes: literal paths first (query string stripped,
// exact method preferred over "any", then lowest priority number), then regex
// rules in ascending priority order tested against the full raw URL. A rule
// whose pattern fails to compile is skipped and logged, never fatal. Proxy
// routes run the same passes but literal paths match as segment prefixes,
// since a proxy rule forwards its whole subtree.
package matching
