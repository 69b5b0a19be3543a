// Mentio - Filtered Stream Mention Bot
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mentio

// Package middleware provides HTTP middleware shared by the API router.
//
// The middleware here is deliberately small: request-ID propagation for
// log correlation and Prometheus instrumentation of every API request.
// Cross-cutting concerns with hardened ecosystem implementations (CORS,
// rate limiting, compression, panic recovery) are composed directly in
// the router from go-chi packages rather than reimplemented.
//
// Ordering matters: RequestID must run before PrometheusMetrics so the
// instrumented handler logs carry the request ID.
package middleware
