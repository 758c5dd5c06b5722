// Package catalog loads the YAML template catalog: per-hospital template
// images and match confidences, per-step wait timeouts, rescue overrides, and
// the modal watcher's guard list.
//
// Relative image paths resolve against the catalog file's directory. Lookups
// fall back from the hospital section to the shared "common" section, so
// templates such as the VDI desktop tab are declared once.
package catalog
