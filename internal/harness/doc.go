// Package harness runs byte-level correctness scenarios against the
// record-layer handler hosted in the event-driven pipeline.
//
// One scenario builds a fresh pipeline with the handler under test, hangs
// the blocking reference engine (crypto/tls) on a mediation adapter wired
// to it, performs the handshake, streams a seeded random frame sequence
// through the scenario's direction and write strategy, drains the far end,
// and asserts byte-for-byte equality. Every failure mode — timeout,
// handshake rejection, pipeline fault, byte mismatch — is local to its
// scenario: nothing is shared between runs.
package harness
