package destination

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/andoriyu/gazpacho/internal/config"
)

// layout derives the destination-relative directory and file name for one
// save, per spec.md §6: "<folder>/YYYY/MM/DD/YYYYMMDD-<unix-seconds>-<dataset-with-/→_>.<zfs|zfs.zst>".
func layout(dataset string, runDate time.Time, compressed bool) (dir, file string) {
	ext := "zfs"
	if compressed {
		ext = "zfs.zst"
	}
	basename := strings.ReplaceAll(dataset, "/", "_")
	dir = path.Join(runDate.Format("2006"), runDate.Format("01"), runDate.Format("02"))
	file = fmt.Sprintf("%s-%d-%s.%s", runDate.Format("20060102"), runDate.Unix(), basename, ext)
	return dir, file
}

// sink is a writable destination file, closed once the save completes.
type sink struct {
	io.Writer
	closers []func() error
}

func (s *sink) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openLocalSink ensures the destination directory tree exists locally and
// opens the target file for write+truncate.
func openLocalSink(dst *config.DestinationLocal, dir, file string, chmodDir, chmodFile uint32) (*sink, error) {
	fullDir := path.Join(dst.Folder, dir)
	if err := os.MkdirAll(fullDir, os.FileMode(chmodDir)); err != nil {
		return nil, &IOError{Err: err}
	}

	f, err := os.OpenFile(path.Join(fullDir, file), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(chmodFile))
	if err != nil {
		return nil, &IOError{Err: err}
	}
	return &sink{Writer: f, closers: []func() error{f.Close}}, nil
}

// openSFTPSink connects over SSH with public-key auth, verifies the parent
// of the destination folder exists, walks the remaining ancestor chain
// creating any missing segments, and opens the target file for
// write+truncate.
func openSFTPSink(dst *config.DestinationSSH, dir, file string, chmodDir, chmodFile uint32) (*sink, error) {
	key, err := os.ReadFile(dst.IdentityFile)
	if err != nil {
		return nil, &SSHError{Err: err}
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, &SSHError{Err: err}
	}

	clientCfg := &ssh.ClientConfig{
		User:            dst.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // host key pinning is out of scope
	}

	conn, err := ssh.Dial("tcp", dst.HostPort, clientCfg)
	if err != nil {
		return nil, &SSHError{Err: err}
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, &SSHError{Err: err}
	}

	parent := path.Dir(dst.Folder)
	if _, err := client.Stat(parent); err != nil {
		_ = client.Close()
		_ = conn.Close()
		return nil, &RootFolderNotFoundError{Path: parent}
	}

	target := path.Join(dst.Folder, dir)
	if err := mkdirAllSFTP(client, dst.Folder, target, os.FileMode(chmodDir)); err != nil {
		_ = client.Close()
		_ = conn.Close()
		return nil, &SSHError{Err: err}
	}

	f, err := client.OpenFile(path.Join(target, file), os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		_ = client.Close()
		_ = conn.Close()
		return nil, &SSHError{Err: err}
	}
	if err := f.Chmod(os.FileMode(chmodFile)); err != nil {
		_ = f.Close()
		_ = client.Close()
		_ = conn.Close()
		return nil, &SSHError{Err: err}
	}

	return &sink{
		Writer: f,
		closers: []func() error{
			f.Close,
			client.Close,
			conn.Close,
		},
	}, nil
}

// mkdirAllSFTP creates each missing segment between root (known to exist or
// already verified reachable) and target, in order, so only genuinely
// missing intermediates are created.
func mkdirAllSFTP(client *sftp.Client, root, target string, mode os.FileMode) error {
	if _, err := client.Stat(target); err == nil {
		return nil
	}

	rel := strings.TrimPrefix(strings.TrimPrefix(target, root), "/")
	segments := strings.Split(rel, "/")

	cur := root
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		cur = path.Join(cur, seg)
		if _, err := client.Stat(cur); err == nil {
			continue
		}
		if err := client.Mkdir(cur); err != nil {
			return err
		}
		if err := client.Chmod(cur, mode); err != nil {
			return err
		}
	}
	return nil
}
