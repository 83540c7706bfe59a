// Command rfsmount mounts a flist's metadata database as a read-only FUSE
// filesystem, fetching file content through a local chunk cache fronting
// whichever stores the metadata's route table names.
//
// It is a direct port of the original Rust rfs binary's main.rs: same
// flags (--meta, --cache, --daemon, --debug, --log, the hidden --ro), same
// control flow (refuse an already-mounted target, optionally daemonize with
// a pidfile and a bounded wait for the mount to appear, otherwise mount in
// the foreground and block).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/threefoldtech/rfs/pkg/rfslog"

	_ "github.com/threefoldtech/rfs/pkg/store/dirstore"
	_ "github.com/threefoldtech/rfs/pkg/store/httpstore"
	_ "github.com/threefoldtech/rfs/pkg/store/s3store"
	_ "github.com/threefoldtech/rfs/pkg/store/zdbstore"
)

var opts struct {
	meta    string
	cache   string
	daemon  bool
	debug   int
	logPath string
	ro      bool
}

var log = rfslog.New(os.Stderr, 0)

var rootCmd = &cobra.Command{
	Use:   "rfsmount <mountpoint>",
	Short: "mount flists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log.SetLevel(opts.debug)
		target := args[0]

		mounted, err := procMounted(target)
		if err != nil {
			return fmt.Errorf("checking mount point: %w", err)
		}
		if mounted {
			return fmt.Errorf("target %s is already a mount point", target)
		}

		if opts.daemon {
			return runDaemon(target)
		}
		return runForeground(target)
	},
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&opts.meta, "meta", "m", "", "path to metadata file (flist)")
	flags.StringVarP(&opts.cache, "cache", "c", "/tmp/cache", "directory used as cache for downloaded file chunks")
	flags.BoolVarP(&opts.daemon, "daemon", "d", false, "daemonize the mount")
	flags.CountVarP(&opts.debug, "debug", "", "enable debugging logs")
	flags.StringVarP(&opts.logPath, "log", "l", "", "log file, only used with daemon mode")
	flags.BoolVar(&opts.ro, "ro", true, "hidden value")
	_ = flags.MarkHidden("ro")
	_ = rootCmd.MarkFlagRequired("meta")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
