// Package guard supervises canary bundles. A canary that sustains a
// quality gain over the active baseline is stepped toward full traffic;
// one that regresses past the configured drop is rolled back
// immediately.
package guard
