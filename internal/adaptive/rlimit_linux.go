//go:build linux

package adaptive

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

func checkFdLimit(maxFilesInFlight int, log *logrus.Entry) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		log.Debugf("could not read RLIMIT_NOFILE: %v", err)
		return
	}
	if rlim.Cur != unix.RLIM_INFINITY && rlim.Cur < uint64(maxFilesInFlight) {
		log.Warnf("process open-file soft limit (%d) is lower than --max-files-in-flight (%d); "+
			"raise it with ulimit -n for full throughput", rlim.Cur, maxFilesInFlight)
	}
}
