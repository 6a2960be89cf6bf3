// Package schema provides the attribute types and matching rules consumed by
// the index engine.
//
// A MatchingRule carries the normalization function for one matching
// category (equality, ordering, substring or approximate). Index keys are
// always normalized values, so two values that match under a rule produce the
// same key.
//
// Extensible matching rules (see ExtensibleRule) additionally describe how
// they are indexed: each rule exposes one or more ExtensibleIndexer values
// identified by an index ID, and builds index queries through an
// IndexQueryFactory supplied by the index layer. Rules sharing an index ID
// share one physical index.
package schema
