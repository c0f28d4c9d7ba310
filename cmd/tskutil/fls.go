package main

import (
	"github.com/spf13/cobra"

	"github.com/tsk-go/fsforensics/pkg/tsk"
)

var flagRecursive bool
var flagOrphan bool

var flsCmd = &cobra.Command{
	Use:   "fls <image> [path]",
	Short: "List a directory's entries",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		fi, err := openFS(args[0], flagFSType)
		if err != nil {
			fatal(err)
		}
		defer fi.Close()

		if flagOrphan {
			dir, err := tsk.OrphanDir(fi)
			if err != nil {
				fatal(err)
			}
			printDir(dir, "")
			return
		}

		target := "/"
		if len(args) > 1 {
			target = args[1]
		}

		addr, err := resolveTarget(fi, target)
		if err != nil {
			fatal(err)
		}

		listDir(fi, addr, "")
	},
}

func init() {
	flsCmd.Flags().BoolVarP(&flagRecursive, "recursive", "r", false, "recurse into subdirectories")
	flsCmd.Flags().BoolVar(&flagOrphan, "orphan", false, "list the synthetic orphan directory instead of a path")
}

func listDir(fi *tsk.Info, addr tsk.Addr, prefix string) {
	meta, err := fi.Driver.FileAddMeta(addr)
	if err != nil {
		fatal(err)
	}
	if meta.Type != tsk.TypeDir && meta.Type != tsk.TypeVirtDir {
		fatal(errNotADirectory(addr))
	}

	dir, result, err := fi.Driver.DirOpenMeta(meta)
	if err != nil {
		fatal(err)
	}
	if result == tsk.DirCorrupt {
		log.Warnf("%s: directory only partially recovered", prefix)
	}
	printDir(dir, prefix)

	if flagRecursive {
		for _, name := range dir.Entries {
			if name.Name == "." || name.Name == ".." {
				continue
			}
			if name.Type != tsk.NameTypeDir {
				continue
			}
			listDir(fi, name.Addr, prefix+name.Name+"/")
		}
	}
}

func printDir(dir *tsk.Dir, prefix string) {
	for _, name := range dir.Entries {
		allocMark := "a"
		if name.Flags&tsk.NameUnalloc != 0 {
			allocMark = "u"
		}
		log.Printf("%s/%-30s %d\t%s", allocMark, prefix+name.Name, name.Addr, nameTypeString(name.Type))
	}
}

func nameTypeString(t tsk.NameType) string {
	switch t {
	case tsk.NameTypeReg:
		return "r"
	case tsk.NameTypeDir:
		return "d"
	case tsk.NameTypeLnk:
		return "l"
	case tsk.NameTypeChr:
		return "c"
	case tsk.NameTypeBlk:
		return "b"
	case tsk.NameTypeFifo:
		return "p"
	case tsk.NameTypeSock:
		return "s"
	default:
		return "?"
	}
}

func errNotADirectory(addr tsk.Addr) error {
	return tsk.Errorf(tsk.KindArg, "inode %d is not a directory", addr)
}
