// Command mkbekfs builds a bootable bekOS disk image: a freshly formatted
// FAT16 volume populated from a host skeleton directory tree.
//
// Grounded on the teacher's mkfs/mkfs.go (renamed cmd/mkbekfs/main.go) for
// the overall "format, then walk a skeleton dir and replicate it" shape,
// and cmd/mkbekfs's sibling fat/ufs.go (since deleted) for the MkFile/
// MkDir/Append API this tool originally drove — now driven through
// fs.Entry directly.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	flags "github.com/jessevdk/go-flags"

	"bekkernel/blockdev"
	"bekkernel/errs"
	"bekkernel/fat"
	fspkg "bekkernel/fs"
	"bekkernel/kstr"
)

type options struct {
	Output   string `short:"o" long:"output" required:"true" description:"path to the output disk image"`
	SkelDir  string `short:"s" long:"skel" required:"true" description:"host directory tree to copy into the image"`
	SizeMB   int    `long:"size-mb" default:"64" description:"image size in megabytes"`
}

func mkdirAll(root fspkg.Entry, relPath string) (fspkg.Entry, error) {
	cur := root
	if relPath == "" {
		return cur, nil
	}
	for _, comp := range strings.Split(relPath, string(filepath.Separator)) {
		if comp == "" {
			continue
		}
		child, err := cur.Lookup(kstr.Str(comp))
		if err == errs.ENOENT {
			child, err = cur.AddChild(kstr.Str(comp), fspkg.KindDirectory)
			if err != errs.ESUCCESS {
				return nil, fmt.Errorf("mkbekfs: mkdir %q: %v", comp, err)
			}
		} else if err != errs.ESUCCESS {
			return nil, fmt.Errorf("mkbekfs: lookup %q: %v", comp, err)
		}
		cur = child
	}
	return cur, nil
}

func copyFile(parent fspkg.Entry, name, hostPath string) error {
	data, err := os.ReadFile(hostPath)
	if err != nil {
		return err
	}
	entry, eerr := parent.AddChild(kstr.Str(name), fspkg.KindFile)
	if eerr != errs.ESUCCESS {
		return fmt.Errorf("mkbekfs: create %q: %v", name, eerr)
	}
	if len(data) == 0 {
		return nil
	}
	n, werr := entry.WriteBytes(data, 0)
	if werr != errs.ESUCCESS || n != len(data) {
		return fmt.Errorf("mkbekfs: write %q: %v", name, werr)
	}
	return errs.ErrorFor(entry.Flush())
}

func addSkeleton(root fspkg.Entry, skelDir string) error {
	return filepath.WalkDir(skelDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(path, skelDir)
		rel = strings.TrimPrefix(rel, string(filepath.Separator))
		if rel == "" {
			return nil
		}
		dir, base := filepath.Split(rel)
		parent, merr := mkdirAll(root, strings.TrimSuffix(dir, string(filepath.Separator)))
		if merr != nil {
			return merr
		}
		if d.IsDir() {
			_, err := mkdirAll(parent, base)
			return err
		}
		return copyFile(parent, base, path)
	})
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	log := slog.Default()
	sizeBytes := int64(opts.SizeMB) * 1024 * 1024

	dev, err := blockdev.CreateFileDevice(opts.Output, sizeBytes, 512)
	if err != nil {
		log.Error("mkbekfs: create image", "error", err)
		os.Exit(1)
	}
	defer dev.Close()

	volume, ferr := fat.Format(dev, fat.DefaultFormatOptions(), log)
	if ferr != errs.ESUCCESS {
		log.Error("mkbekfs: format", "error", ferr)
		os.Exit(1)
	}

	if err := addSkeleton(volume.GetRoot(), opts.SkelDir); err != nil {
		log.Error("mkbekfs: populate image", "error", err)
		os.Exit(1)
	}

	if serr := volume.Sync(); serr != errs.ESUCCESS {
		log.Error("mkbekfs: sync", "error", serr)
		os.Exit(1)
	}
	log.Info("mkbekfs: image created", "path", opts.Output, "size_mb", opts.SizeMB)
}
