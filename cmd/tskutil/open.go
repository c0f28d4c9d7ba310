package main

import (
	"fmt"

	"github.com/tsk-go/fsforensics/pkg/image"
	"github.com/tsk-go/fsforensics/pkg/tsk"
	"github.com/tsk-go/fsforensics/pkg/xfs"
	"github.com/tsk-go/fsforensics/pkg/yaffs2"
)

// openFS opens imgPath and mounts it, sniffing the filesystem type unless
// fsType forces one ("xfs" or "yaffs2"). It returns a tsk.Info ready for the
// generic FileWalk/AttrRead/Path2Inum/OrphanDir helpers.
func openFS(imgPath, fsType string) (*tsk.Info, error) {
	img, err := image.Open(imgPath, 512)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}

	switch fsType {
	case "xfs":
		drv, err := xfs.Mount(img)
		if err != nil {
			img.Close()
			return nil, err
		}
		return &tsk.Info{Image: img, Driver: drv}, nil
	case "yaffs2":
		cfg, err := loadYAFFS2Config(imgPath)
		if err != nil {
			img.Close()
			return nil, err
		}
		drv, err := yaffs2.Mount(img, cfg)
		if err != nil {
			img.Close()
			return nil, err
		}
		return &tsk.Info{Image: img, Driver: drv}, nil
	case "":
		if drv, err := xfs.Mount(img); err == nil {
			return &tsk.Info{Image: img, Driver: drv}, nil
		}
		cfg, err := loadYAFFS2Config(imgPath)
		if err != nil {
			img.Close()
			return nil, err
		}
		drv, err := yaffs2.Mount(img, cfg)
		if err != nil {
			img.Close()
			return nil, fmt.Errorf("could not identify filesystem (not XFS, and YAFFS2 mount failed: %w)", err)
		}
		return &tsk.Info{Image: img, Driver: drv}, nil
	default:
		img.Close()
		return nil, fmt.Errorf("unknown filesystem type %q (want \"xfs\" or \"yaffs2\")", fsType)
	}
}

func loadYAFFS2Config(imgPath string) (*image.YAFFS2Config, error) {
	return image.LoadYAFFS2Config(image.SidecarConfigPath(imgPath))
}
