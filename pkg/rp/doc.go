// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package rp implements the server side of WebAuthn passkey ceremonies:
// registration (credential creation) and assertion (login), backed by
// pluggable challenge, credential and lockout stores.
//
// The ceremony engines own challenge lifecycle, origin and RP ID binding,
// signature verification, sign-counter clone detection and the
// username-enumeration discipline. Parsing of the wire formats (CBOR
// attestation objects, COSE keys) is delegated to
// github.com/go-webauthn/webauthn/protocol.
//
// Service is the usual entry point: it wires the engines to a lockout
// guard, audit sink and optional token generator, and collapses failure
// detail into a coarse outward verdict. Hosts with multiple
// authentication methods compose Backend implementations into a Chain.
package rp
