// Package features extracts the fixed feature vocabulary from entity
// feature maps.
//
// The same extractor instance feeds both the confidence estimator and the
// online learner. The two must see identical features for identical
// entities; a divergence silently breaks learning, so neither package
// carries its own extraction logic.
package features
