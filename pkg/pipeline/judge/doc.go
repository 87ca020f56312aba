// Package judge scores the reliability of automated judges against the
// labeled training set. Recent verdicts count more than old ones, and
// overconfident judges are penalized through a calibration term.
package judge
