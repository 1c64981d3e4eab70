// Command recoverctl is an operator-facing CLI over the tablet log
// recovery library: replaying a tablet's logs, building synthetic log
// fixtures, inspecting the compaction job queue, and diffing two
// mutation dumps produced by separate recovery runs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	queueMaxWeight      int64
	validateFirstKey    bool
	cloudBackend        string
	s3Bucket            string
	s3Region            string
	s3KeyPrefix         string
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "recoverctl",
		Short: "Inspect and drive tablet log recovery",
	}
	flags := root.PersistentFlags()
	flags.Int64Var(&queueMaxWeight, "recovery.queue.max_weight", 64<<20, "weight bound applied to each compaction job queue group")
	flags.BoolVar(&validateFirstKey, "recovery.validate_first_key", true, "has no effect: recover and recover-all always require each scanned directory's first entry to be OPEN")
	flags.StringVar(&cloudBackend, "cloud", "local", "vfs.FS backend for recovery log directories: local or s3")
	flags.StringVar(&s3Bucket, "s3-bucket", "", "S3 bucket backing --cloud=s3 (also read from S3_BUCKET)")
	flags.StringVar(&s3Region, "s3-region", "us-east-1", "S3 region backing --cloud=s3")
	flags.StringVar(&s3KeyPrefix, "s3-prefix", "", "S3 key prefix backing --cloud=s3")

	root.AddCommand(recoverCommand())
	root.AddCommand(recoverAllCommand())
	root.AddCommand(writeTestlogCommand())
	root.AddCommand(statsCommand())
	root.AddCommand(diffMutationsCommand())
	return root
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
