package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tsk-go/fsforensics/pkg/tsk"
)

var icatCmd = &cobra.Command{
	Use:   "icat <image> <inode|path>",
	Short: "Dump a file's content to stdout",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		fi, err := openFS(args[0], flagFSType)
		if err != nil {
			fatal(err)
		}
		defer fi.Close()

		addr, err := resolveTarget(fi, args[1])
		if err != nil {
			fatal(err)
		}

		meta, err := fi.Driver.FileAddMeta(addr)
		if err != nil {
			fatal(err)
		}
		if meta.Type != tsk.TypeReg && meta.Type != tsk.TypeLnk {
			fatal(tsk.Errorf(tsk.KindArg, "inode %d is not a regular file", addr))
		}

		if err := fi.Driver.LoadAttrs(meta); err != nil {
			fatal(err)
		}

		var data *tsk.Attr
		for i := range meta.Attr {
			if meta.Attr[i].Type == tsk.AttrTypeDefault || meta.Attr[i].Type == tsk.AttrTypeData {
				data = &meta.Attr[i]
				break
			}
		}
		if data == nil {
			fatal(tsk.Errorf(tsk.KindArg, "inode %d has no data fork", addr))
		}

		err = tsk.FileWalk(fi, data, func(buf []byte, blockAddr tsk.BlockAddr, sparse bool) (tsk.WalkAction, error) {
			if sparse {
				zeros := make([]byte, fi.Driver.BlockSize())
				_, err := os.Stdout.Write(zeros)
				return tsk.WalkContinue, err
			}
			_, err := os.Stdout.Write(buf)
			return tsk.WalkContinue, err
		})
		if err != nil {
			fatal(err)
		}
	},
}
