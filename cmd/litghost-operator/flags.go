package main

import "flag"

// flagSet wraps flag.FlagSet to keep the binding style consistent with
// newFlagSet in main.go, the way the rest of this pack's CLI commands do.
type flagSet struct {
	*flag.FlagSet
}

// newCustomFlagSet creates a flagSet with ContinueOnError behavior, so
// callers control the error handling rather than flag's default of
// printing usage and calling os.Exit.
func newCustomFlagSet(name string) *flagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return &flagSet{FlagSet: fs}
}

// Bool wraps flag.FlagSet.Bool.
func (fs *flagSet) Bool(name string, value bool, usage string) *bool {
	return fs.FlagSet.Bool(name, value, usage)
}
