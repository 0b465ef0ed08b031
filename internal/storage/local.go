package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local stores originals under <dir>/original.
type Local struct {
	dir        string
	hashVerify bool
}

func NewLocal(dir string, hashVerify bool) *Local {
	return &Local{dir: dir, hashVerify: hashVerify}
}

func (l *Local) Name() string { return BackendLocal }

// LocalPath returns the on-disk path of filename when it exists.
func (l *Local) LocalPath(filename string) (string, bool) {
	name, err := cleanName(filename)
	if err != nil {
		return "", false
	}
	p := filepath.Join(l.dir, originalDir, name)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return p, true
}

// Put copies srcPath into the store through a .part file, then checks the
// result against what was read from the source.
func (l *Local) Put(ctx context.Context, srcPath, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := cleanName(filename)
	if err != nil {
		return err
	}
	destPath := filepath.Join(l.dir, originalDir, name)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return err
	}

	partPath := destPath + ".part"
	d, err := atomicCopy(srcPath, partPath, destPath)
	if err != nil {
		os.Remove(partPath)
		return err
	}
	if err := verifyCopy(destPath, d, l.hashVerify); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("verify %s: %w", name, err)
	}
	return nil
}

func atomicCopy(src, partDest, finalDest string) (digest, error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return digest{}, err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(partDest)
	if err != nil {
		return digest{}, err
	}

	hr := newHashingReader(srcFile)
	_, err = io.Copy(dstFile, hr)
	if closeErr := dstFile.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return digest{}, err
	}

	// Preserve modification time
	if info, err := srcFile.Stat(); err == nil {
		os.Chtimes(partDest, info.ModTime(), info.ModTime())
	}

	if err := os.Rename(partDest, finalDest); err != nil {
		return digest{}, err
	}
	return hr.digest(), nil
}
