// Package filter provides LDAP search filter parsing and evaluation.
//
// # Overview
//
// The filter package implements the RFC 4515 string representation of
// search filters and evaluates filters against entries with the matching
// rules of a schema. It supports all standard filter types:
//
//   - AND (&), OR (|) and NOT (!)
//   - Equality (=), Substring (*) and Present (=*)
//   - Greater-or-Equal (>=) and Less-or-Equal (<=)
//   - Approximate (~=)
//   - Extensible match (attr:dn:rule:=value)
//
// # Parsing
//
//	f, err := filter.Parse("(&(objectClass=person)(cn=jo*))")
//	if err != nil {
//	    return err
//	}
//
// # Evaluation
//
// Evaluation follows RFC 4511 three-valued logic: a comparison whose
// assertion cannot be normalized, or an attribute without the required
// matching rule, is Undefined, and NOT Undefined stays Undefined.
//
//	ev := filter.NewEvaluator(schema.Default())
//	if ev.Matches(f, e) {
//	    // e is returned to the client
//	}
//
// # Optimization
//
// Optimizer flattens the filter tree and orders AND components so that the
// cheapest indexed components are evaluated first.
package filter
