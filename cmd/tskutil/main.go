package main

import (
	"errors"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tsk-go/fsforensics/pkg/elog"
	"github.com/tsk-go/fsforensics/pkg/tsk"
)

var log elog.View

var (
	flagVerbose         bool
	flagDebug           bool
	flagFSType          string
	flagCaseID          string
	flagVerifyChecksums bool
)

var rootCmd = &cobra.Command{
	Use:   "tskutil",
	Short: "A read-only forensic file-system analysis toolkit",
	Long: `tskutil inspects XFS and YAFFS2 images without mounting them: it reads
superblocks, inode tables and directory structures directly off the raw
image and reports what it finds, including content an unlinked or
overwritten file left behind.`,
}

func commandInit() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flagDebug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().Var(fsTypeValue{&flagFSType}, "fstype", "force the filesystem type (xfs, yaffs2) instead of auto-detecting it")
	rootCmd.PersistentFlags().StringVar(&flagCaseID, "case-id", "", "correlation id to stamp on log output (default: a generated uuid, for tying together multiple invocations against the same case)")
	rootCmd.PersistentFlags().BoolVar(&flagVerifyChecksums, "verify-checksums", false, "recompute and report XFS v5 metadata CRC32C mismatches (warnings only, never aborts)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		logger := &elog.CLI{}
		logrus.SetFormatter(logger)
		logrus.SetLevel(logrus.TraceLevel)

		if flagDebug {
			logger.IsDebug = true
			logger.IsVerbose = true
		} else if flagVerbose {
			logger.IsVerbose = true
		}
		log = logger

		if flagCaseID == "" {
			flagCaseID = uuid.New().String()
		}
		log.Infof("case id: %s", flagCaseID)
		return nil
	}

	rootCmd.AddCommand(fsstatCmd)
	rootCmd.AddCommand(istatCmd)
	rootCmd.AddCommand(flsCmd)
	rootCmd.AddCommand(icatCmd)
	rootCmd.AddCommand(blkstatCmd)
}

func main() {
	commandInit()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func fatal(err error) {
	var te *tsk.Error
	if errors.As(err, &te) && len(te.Concat) > 0 {
		log.Errorf("%s", te.Msg)
		for _, c := range te.Concat {
			log.Errorf("%s", c)
		}
	} else {
		log.Errorf("%v", err)
	}
	os.Exit(1)
}
