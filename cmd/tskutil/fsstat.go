package main

import (
	"github.com/spf13/cobra"

	"github.com/tsk-go/fsforensics/pkg/tsk"
	"github.com/tsk-go/fsforensics/pkg/xfs"
)

var fsstatCmd = &cobra.Command{
	Use:   "fsstat <image>",
	Short: "Print general file-system information",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fi, err := openFS(args[0], flagFSType)
		if err != nil {
			fatal(err)
		}
		defer fi.Close()

		d := fi.Driver
		log.Printf("File System Type: %s", d.FsType())
		log.Printf("Block Size:       %d", d.BlockSize())
		log.Printf("Block Count:      %d", d.BlockCount())
		if xfsDrv, ok := d.(*xfs.FS); ok {
			log.Printf("File System UUID: %s", xfsDrv.SuperBlockUUID())
		}
		log.Printf("Root Inode:       %d", d.RootAddr())
		log.Printf("First Inode:      %d", d.FirstInum())
		log.Printf("Last Inode:       %d", d.LastInum())

		if flagVerifyChecksums {
			if xfsDrv, ok := d.(*xfs.FS); ok {
				mismatches, err := xfsDrv.VerifyChecksums()
				if err != nil {
					log.Warnf("checksum verification failed: %v", err)
				}
				for _, m := range mismatches {
					log.Warnf("checksum mismatch: %s: stored=%#x computed=%#x", m.What, m.Stored, m.Computed)
				}
			}
		}

		orphan, err := tsk.OrphanDir(fi)
		if err != nil {
			log.Warnf("could not build orphan directory: %v", err)
			return
		}
		log.Printf("Orphan Files:     %d", len(orphan.Entries))
	},
}
