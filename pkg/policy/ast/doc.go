// Package ast defines the condition expression tree used by Ganymede
// policies. Conditions are a closed set of tagged-variant nodes (eq,
// exists, all, any, not, range) that serialize to JSON and evaluate
// without runtime code generation or reflection-based dispatch.
package ast
