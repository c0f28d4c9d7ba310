package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tsk-go/fsforensics/pkg/tsk"
)

var blkstatCmd = &cobra.Command{
	Use:   "blkstat <image> <block>",
	Short: "Print allocation flags for a single block/chunk address",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		fi, err := openFS(args[0], flagFSType)
		if err != nil {
			fatal(err)
		}
		defer fi.Close()

		n, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			fatal(tsk.Errorf(tsk.KindArg, "invalid block address %q: %v", args[1], err))
		}
		addr := tsk.BlockAddr(n)

		flags, err := fi.Driver.BlockGetFlags(addr)
		if err != nil {
			fatal(err)
		}

		log.Printf("Block: %d", addr)
		log.Printf("Allocated: %t", flags&tsk.BlockAlloc != 0)
	},
}
