package main

import "fmt"

// fsTypeValue is a pflag.Value restricting --fstype to the two filesystems
// this tool understands, catching a typo at flag-parse time instead of
// inside openFS.
type fsTypeValue struct {
	value *string
}

func (f fsTypeValue) String() string { return *f.value }

func (f fsTypeValue) Set(s string) error {
	switch s {
	case "", "xfs", "yaffs2":
		*f.value = s
		return nil
	default:
		return fmt.Errorf("must be one of: xfs, yaffs2")
	}
}

func (f fsTypeValue) Type() string { return "string" }
