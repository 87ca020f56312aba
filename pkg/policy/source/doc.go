// Package source loads policies from YAML files and watches them for
// changes. A path may be a single file or a directory of .yaml/.yml
// files; the watcher debounces file events so editor save storms trigger
// one reload.
package source
