package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tsk-go/fsforensics/pkg/tsk"
	"github.com/tsk-go/fsforensics/pkg/yaffs2"
)

var istatCmd = &cobra.Command{
	Use:   "istat <image> [inode|path]",
	Short: "Print metadata for a single inode",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		fi, err := openFS(args[0], flagFSType)
		if err != nil {
			fatal(err)
		}
		defer fi.Close()

		target := "/"
		if len(args) > 1 {
			target = args[1]
		}

		addr, err := resolveTarget(fi, target)
		if err != nil {
			fatal(err)
		}

		meta, err := fi.Driver.FileAddMeta(addr)
		if err != nil {
			fatal(err)
		}

		printMeta(meta)

		if y, ok := fi.Driver.(*yaffs2.FS); ok {
			if shrink, err := y.VersionIsShrink(addr); err == nil && shrink {
				log.Printf("Shrink:    true")
			}
		}
	},
}

// resolveTarget accepts either a bare decimal inode number or a "/"-rooted
// path and resolves it to an Addr.
func resolveTarget(fi *tsk.Info, target string) (tsk.Addr, error) {
	if n, err := strconv.ParseUint(target, 10, 64); err == nil {
		return tsk.Addr(n), nil
	}
	return tsk.Path2Inum(fi, target)
}

func printMeta(meta *tsk.Meta) {
	log.Printf("Inode: %d", meta.Addr)
	log.Printf("Type:  %s", metaTypeString(meta.Type))
	log.Printf("Mode:  %#o", meta.Mode)
	log.Printf("UID:   %d", meta.UID)
	log.Printf("GID:   %d", meta.GID)
	log.Printf("Links: %d", meta.NLink)
	log.Printf("Size:  %d", meta.Size)
	log.Printf("Accessed: %s", meta.ATime)
	log.Printf("Modified:  %s", meta.MTime)
	log.Printf("Changed:   %s", meta.CTime)
	if !meta.CRTime.IsZero() {
		log.Printf("Created:   %s", meta.CRTime)
	}
	if meta.LinkTarget != "" {
		log.Printf("Link target: %s", meta.LinkTarget)
	}
}

func metaTypeString(t tsk.MetaType) string {
	switch t {
	case tsk.TypeReg:
		return "Regular File"
	case tsk.TypeDir:
		return "Directory"
	case tsk.TypeVirtDir:
		return "Virtual Directory"
	case tsk.TypeLnk:
		return "Symbolic Link"
	case tsk.TypeChr:
		return "Character Device"
	case tsk.TypeBlk:
		return "Block Device"
	case tsk.TypeFifo:
		return "FIFO"
	case tsk.TypeSock:
		return "Socket"
	default:
		return "Unknown"
	}
}
